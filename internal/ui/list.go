package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/shared"
)

var _ list.Item = songItem{}

// statusCell is the visible state of one kind for a row.
type statusCell struct {
	status models.Status
	known  bool // false until the user's own status has been read
	busy   int  // toggles in flight or queued
}

func (c statusCell) render(on, off string) string {
	mark := off
	if c.status.Active {
		mark = on
	}
	s := mark + " " + shared.FormatCount(c.status.Count)
	if !c.known {
		s = off + " " + shared.FormatCount(c.status.Count)
	}
	if c.busy > 0 {
		s += " …"
	}
	return s
}

// songItem wraps [models.Song] to implement [list.Item].
type songItem struct {
	song      models.Song
	like      statusCell
	favourite statusCell
}

func newSongItem(s models.Song) songItem {
	return songItem{
		song:      s,
		like:      statusCell{status: models.Status{Kind: models.KindLike, SubjectID: s.ID, Count: s.LikesCount}},
		favourite: statusCell{status: models.Status{Kind: models.KindFavourite, SubjectID: s.ID, Count: s.FavouritesCount}},
	}
}

// with returns the item with the status of kind replaced.
func (i songItem) with(kind models.Kind, status models.Status, busy int) songItem {
	cell := statusCell{status: status.Normalized(), known: true, busy: busy}
	if kind == models.KindFavourite {
		i.favourite = cell
	} else {
		i.like = cell
	}
	return i
}

func (i songItem) cell(kind models.Kind) statusCell {
	if kind == models.KindFavourite {
		return i.favourite
	}
	return i.like
}

func (i songItem) pending() bool { return i.like.busy > 0 || i.favourite.busy > 0 }

func (i songItem) FilterValue() string { return i.song.Title + " " + i.song.Composer }
func (i songItem) Title() string       { return i.song.Title }
func (i songItem) Description() string {
	parts := []string{i.like.render("♥", "♡"), i.favourite.render("★", "☆")}
	if i.song.Composer != "" {
		parts = append(parts, i.song.Composer)
	}
	if i.song.Difficulty != "" {
		parts = append(parts, i.song.Difficulty)
	}
	return strings.Join(parts, " • ")
}
