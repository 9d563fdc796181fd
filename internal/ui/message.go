package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/tasks"
	"github.com/desertthunder/scorebook/internal/toggle"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSongsLoaded MsgKind = iota
	MsgStatusEvent
	MsgStatusLoaded
	MsgToggleSettled
	MsgPrefetchDone
)

type songsLoaded struct {
	page *models.SongPage
	err  error
}

type statusLoaded struct {
	kind   models.Kind
	id     string
	status models.Status
	err    error
}

type toggleSettled struct {
	kind    models.Kind
	id      string
	outcome models.Outcome
	err     error
}

type prefetchDone struct {
	result *tasks.PrefetchResult
	err    error
}

// songsLoadedMsg is the constructor for [MsgSongsLoaded]
func songsLoadedMsg(page *models.SongPage, err error) Msg {
	return Msg{kind: MsgSongsLoaded, data: songsLoaded{page, err}}
}

// statusEventMsg is the constructor for [MsgStatusEvent]
func statusEventMsg(ev toggle.Event) Msg {
	return Msg{kind: MsgStatusEvent, data: ev}
}

// statusLoadedMsg is the constructor for [MsgStatusLoaded]
func statusLoadedMsg(kind models.Kind, id string, status models.Status, err error) Msg {
	return Msg{kind: MsgStatusLoaded, data: statusLoaded{kind, id, status, err}}
}

// toggleSettledMsg is the constructor for [MsgToggleSettled]
func toggleSettledMsg(kind models.Kind, id string, outcome models.Outcome, err error) Msg {
	return Msg{kind: MsgToggleSettled, data: toggleSettled{kind, id, outcome, err}}
}

// prefetchDoneMsg is the constructor for [MsgPrefetchDone]
func prefetchDoneMsg(result *tasks.PrefetchResult, err error) Msg {
	return Msg{kind: MsgPrefetchDone, data: prefetchDone{result, err}}
}
