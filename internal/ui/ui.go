package ui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/services"
	"github.com/desertthunder/scorebook/internal/shared"
	"github.com/desertthunder/scorebook/internal/tasks"
	"github.com/desertthunder/scorebook/internal/toggle"
)

const defaultPageSize = 50

// Options configures [NewModel].
type Options struct {
	Catalogue  services.Catalogue
	Engine     *tasks.CatalogueEngine // statuses are prefetched through it when set
	Likes      *toggle.Controller
	Favourites *toggle.Controller
	PageSize   int
	Logger     *log.Logger
}

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	cancel    context.CancelFunc
	catalogue services.Catalogue
	engine    *tasks.CatalogueEngine
	toggles   map[models.Kind]*toggle.Controller
	pageSize  int
	logger    *log.Logger

	width   int
	height  int
	songs   list.Model
	index   map[string]int
	total   int
	loading bool
	status  string
	err     error
	help    help.Model
	keys    keyMap
}

// NewModel creates a new TUI model. The model's context derives from ctx and is cancelled when
// the user quits.
func NewModel(ctx context.Context, opts Options) *Model {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	toggles := map[models.Kind]*toggle.Controller{}
	for _, c := range []*toggle.Controller{opts.Likes, opts.Favourites} {
		if c != nil {
			toggles[c.Kind()] = c
		}
	}

	songs := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	songs.Title = "Songs"
	songs.SetShowHelp(false)

	ctx, cancel := context.WithCancel(ctx)
	return &Model{
		ctx:       ctx,
		cancel:    cancel,
		catalogue: opts.Catalogue,
		engine:    opts.Engine,
		toggles:   toggles,
		pageSize:  opts.PageSize,
		logger:    opts.Logger,
		songs:     songs,
		index:     map[string]int{},
		loading:   true,
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Init loads the first page of songs and starts listening for controller events.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadSongs()}
	for _, c := range m.toggles {
		cmds = append(cmds, m.listen(c))
	}
	return tea.Batch(cmds...)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.songs.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.songs, cmd = m.songs.Update(msg)
	return m, cmd
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.songs.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.songs, cmd = m.songs.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		m.cancel()
		return m, tea.Quit
	case key.Matches(msg, m.keys.like):
		return m, m.toggle(models.KindLike)
	case key.Matches(msg, m.keys.favourite):
		return m, m.toggle(models.KindFavourite)
	case key.Matches(msg, m.keys.refresh):
		return m, m.refresh()
	case key.Matches(msg, m.keys.dismiss) && m.err != nil:
		m.err = nil
		return m, nil
	}

	var cmd tea.Cmd
	m.songs, cmd = m.songs.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSongsLoaded:
		data := msg.data.(songsLoaded)
		m.loading = false
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		return m, m.setSongs(data.page)

	case MsgStatusEvent:
		ev := msg.data.(toggle.Event)
		m.apply(ev.Kind, ev.SubjectID, ev.Status, m.busy(ev.Kind, ev.SubjectID))
		switch ev.Type {
		case toggle.EventRolledBack, toggle.EventRefreshFailed:
			m.fail(ev.Err)
		case toggle.EventConfirmed:
			m.status = fmt.Sprintf("saved %s", ev.Status)
		}
		return m, m.listen(m.toggles[ev.Kind])

	case MsgStatusLoaded:
		data := msg.data.(statusLoaded)
		if data.err != nil {
			m.fail(data.err)
			return m, nil
		}
		m.apply(data.kind, data.id, data.status, m.busy(data.kind, data.id))
		return m, nil

	case MsgToggleSettled:
		data := msg.data.(toggleSettled)
		if m.ctx.Err() != nil {
			return m, nil
		}
		if c := m.toggles[data.kind]; c != nil {
			if status, ok := c.Peek(data.id); ok {
				m.apply(data.kind, data.id, status, c.Busy(data.id))
			}
		}
		if data.outcome == models.OutcomeRolledBack {
			m.fail(data.err)
		}
		return m, nil

	case MsgPrefetchDone:
		data := msg.data.(prefetchDone)
		if data.err != nil {
			m.fail(data.err)
			return m, nil
		}
		m.status = fmt.Sprintf("loaded %d statuses", data.result.Succeeded)
		if data.result.Failed > 0 {
			m.status += fmt.Sprintf(" (%d failed)", data.result.Failed)
		}
		return m, nil
	}
	return m, nil
}

// fail shows err in the status line. Cancellations are not errors.
func (m *Model) fail(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	m.logger.Warn("tui operation failed", "err", err)
	m.err = err
}

func (m *Model) busy(kind models.Kind, id string) int {
	if c := m.toggles[kind]; c != nil {
		return c.Busy(id)
	}
	return 0
}

// apply updates the row of id. Unknown ids are ignored.
func (m *Model) apply(kind models.Kind, id string, status models.Status, busy int) {
	i, ok := m.index[id]
	if !ok {
		return
	}
	item, ok := m.songs.Items()[i].(songItem)
	if !ok {
		return
	}
	m.songs.SetItem(i, item.with(kind, status, busy))
}

func (m *Model) setSongs(page *models.SongPage) tea.Cmd {
	m.total = page.Total
	m.index = make(map[string]int, len(page.Songs))
	items := make([]list.Item, len(page.Songs))
	ids := make([]string, len(page.Songs))
	for i, s := range page.Songs {
		item := newSongItem(s)
		for kind, c := range m.toggles {
			if status, ok := c.Peek(s.ID); ok {
				item = item.with(kind, status, c.Busy(s.ID))
			}
		}
		items[i] = item
		m.index[s.ID] = i
		ids[i] = s.ID
	}
	cmd := m.songs.SetItems(items)
	m.songs.Title = fmt.Sprintf("Songs (%d of %d)", len(items), page.Total)
	return tea.Batch(cmd, m.prefetch(ids))
}

func (m *Model) selected() (songItem, bool) {
	item, ok := m.songs.SelectedItem().(songItem)
	return item, ok
}

func (m *Model) toggle(kind models.Kind) tea.Cmd {
	item, ok := m.selected()
	c := m.toggles[kind]
	if !ok || c == nil {
		return nil
	}

	id := item.song.ID
	p, err := c.Toggle(m.ctx, id)
	if err != nil {
		m.fail(err)
		return nil
	}
	m.err = nil
	m.apply(kind, id, p.Visible(), c.Busy(id))

	return func() tea.Msg {
		_, err := p.Wait(m.ctx)
		return toggleSettledMsg(kind, id, p.Outcome(), err)
	}
}

func (m *Model) refresh() tea.Cmd {
	item, ok := m.selected()
	if !ok {
		return nil
	}

	id := item.song.ID
	cmds := make([]tea.Cmd, 0, len(m.toggles))
	for kind, c := range m.toggles {
		cmds = append(cmds, func() tea.Msg {
			status, err := c.Refresh(m.ctx, id)
			return statusLoadedMsg(kind, id, status, err)
		})
	}
	m.status = "refreshing " + item.song.Title
	return tea.Batch(cmds...)
}

func (m *Model) loadSongs() tea.Cmd {
	return func() tea.Msg {
		if m.catalogue == nil {
			return songsLoadedMsg(nil, fmt.Errorf("%w: no catalogue", shared.ErrServiceUnavailable))
		}
		page, err := m.catalogue.List(m.ctx, 1, m.pageSize)
		return songsLoadedMsg(page, err)
	}
}

func (m *Model) prefetch(ids []string) tea.Cmd {
	if m.engine == nil || len(ids) == 0 || len(m.toggles) == 0 {
		return nil
	}
	readers := make([]tasks.StatusReader, 0, len(m.toggles))
	for _, c := range m.toggles {
		readers = append(readers, c)
	}

	return func() tea.Msg {
		result, err := m.engine.PrefetchStatuses(m.ctx, nil, readers, ids, tasks.PrefetchOpts{})
		return prefetchDoneMsg(result, err)
	}
}

// listen waits for the next event of c. It returns nil once the view is left or c is closed.
func (m *Model) listen(c *toggle.Controller) tea.Cmd {
	if c == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return nil
			}
			return statusEventMsg(ev)
		case <-m.ctx.Done():
			return nil
		}
	}
}

// Close cancels the model's context, abandoning pending toggles.
func (m *Model) Close() { m.cancel() }

// View renders the song list, the status line and the key help.
func (m *Model) View() string {
	if m.loading {
		return styles.title.Render("Loading songs...")
	}
	return fmt.Sprintf("%s\n%s\n%s", m.songs.View(), m.statusLine(), m.help.ShortHelpView(m.keys.ShortHelp()))
}

func (m *Model) statusLine() string {
	if m.err != nil {
		return styles.err.Render("✗ " + shared.UserMessage(m.err))
	}
	if item, ok := m.selected(); ok && item.pending() {
		return styles.pending.Render("saving " + item.song.Title + "…")
	}
	if m.status != "" {
		return styles.ok.Render(m.status)
	}
	return ""
}
