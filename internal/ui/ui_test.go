package ui

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/shared"
	"github.com/desertthunder/scorebook/internal/store"
	tu "github.com/desertthunder/scorebook/internal/testing"
	"github.com/desertthunder/scorebook/internal/toggle"
)

type fakeCatalogue struct {
	songs []models.Song
	err   error
}

func (f *fakeCatalogue) List(_ context.Context, page, limit int) (*models.SongPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.SongPage{Songs: f.songs, Total: len(f.songs), Page: page}, nil
}

func (f *fakeCatalogue) Get(_ context.Context, id string) (*models.Song, error) {
	for _, s := range f.songs {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, shared.ErrSongNotFound
}

type fixture struct {
	model *Model
	likes *tu.FakeRemote
	favs  *tu.FakeRemote
	likeC *toggle.Controller
	favC  *toggle.Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := log.New(io.Discard)
	f := &fixture{likes: tu.NewFakeRemote(models.KindLike), favs: tu.NewFakeRemote(models.KindFavourite)}
	f.likes.Seed("s1", false, 5)
	f.favs.Seed("s1", true, 2)

	var err error
	f.likeC, err = toggle.New(toggle.Config{Remote: f.likes, Store: store.NewStatusStore(store.Options{}), Logger: logger})
	if err != nil {
		t.Fatalf("toggle.New() error = %v", err)
	}
	f.favC, err = toggle.New(toggle.Config{Remote: f.favs, Store: store.NewStatusStore(store.Options{}), Logger: logger})
	if err != nil {
		t.Fatalf("toggle.New() error = %v", err)
	}
	t.Cleanup(func() {
		f.likeC.Close()
		f.favC.Close()
	})

	catalogue := &fakeCatalogue{songs: []models.Song{
		{ID: "s1", Title: "Clair de Lune", Composer: "Debussy", LikesCount: 5, FavouritesCount: 2},
		{ID: "s2", Title: "Gymnopédie No. 1", Composer: "Satie"},
	}}
	f.model = NewModel(context.Background(), Options{
		Catalogue:  catalogue,
		Likes:      f.likeC,
		Favourites: f.favC,
		Logger:     logger,
	})
	f.model.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return f
}

// load runs the initial song load and reads the statuses of s1 so toggles start from the server state.
func (f *fixture) load(t *testing.T) {
	t.Helper()
	f.model.Update(f.model.loadSongs()())
	for _, c := range []*toggle.Controller{f.likeC, f.favC} {
		status, err := c.GetStatus(context.Background(), "s1")
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		f.model.apply(c.Kind(), "s1", status, 0)
	}
}

func (f *fixture) press(keys string) tea.Cmd {
	_, cmd := f.model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)})
	return cmd
}

func (f *fixture) row(t *testing.T, id string) songItem {
	t.Helper()
	i, ok := f.model.index[id]
	if !ok {
		t.Fatalf("no row for %s", id)
	}
	return f.model.songs.Items()[i].(songItem)
}

func TestModelLoadsSongs(t *testing.T) {
	t.Run("rows", func(t *testing.T) {
		f := newFixture(t)
		if !strings.Contains(f.model.View(), "Loading") {
			t.Error("expected loading view before songs arrive")
		}

		f.model.Update(f.model.loadSongs()())
		if got := len(f.model.songs.Items()); got != 2 {
			t.Fatalf("items = %d, want 2", got)
		}
		row := f.row(t, "s1")
		if row.like.known || row.like.status.Count != 5 {
			t.Errorf("like cell = %+v, want unknown with catalogue count 5", row.like)
		}
		if !strings.Contains(f.model.View(), "Clair de Lune") {
			t.Error("view should list the song title")
		}
	})

	t.Run("error", func(t *testing.T) {
		m := NewModel(context.Background(), Options{
			Catalogue: &fakeCatalogue{err: shared.NewAPIError(shared.KindNetwork, 0, "dial tcp", nil)},
			Logger:    log.New(io.Discard),
		})
		m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
		m.Update(m.loadSongs()())
		if m.err == nil {
			t.Fatal("expected load error")
		}
		if !strings.Contains(m.View(), "Network unavailable") {
			t.Errorf("status line should explain the failure, got %q", m.statusLine())
		}
	})
}

func TestModelToggle(t *testing.T) {
	t.Run("optimistic then confirmed", func(t *testing.T) {
		f := newFixture(t)
		f.load(t)
		f.likes.Hold()

		cmd := f.press("l")
		if cmd == nil {
			t.Fatal("toggle should return a settle command")
		}

		row := f.row(t, "s1")
		if !row.like.status.Active || row.like.status.Count != 6 {
			t.Errorf("visible like = %v, want active with 6", row.like.status)
		}
		if row.like.busy != 1 || !strings.Contains(row.Description(), "…") {
			t.Errorf("row should be pending, got %q", row.Description())
		}

		<-f.likes.Started()
		f.likes.Release()
		f.model.Update(cmd())

		row = f.row(t, "s1")
		if !row.like.status.Active || row.like.status.Count != 6 || row.like.busy != 0 {
			t.Errorf("settled like = %+v, want active 6 and idle", row.like)
		}
		if f.model.err != nil {
			t.Errorf("unexpected error %v", f.model.err)
		}
	})

	t.Run("failure rolls back and shows the error", func(t *testing.T) {
		f := newFixture(t)
		f.load(t)
		f.favs.FailNextSet(shared.NewAPIError(shared.KindServer, 500, "boom", nil))

		cmd := f.press("f")
		f.model.Update(cmd())

		row := f.row(t, "s1")
		if !row.favourite.status.Active || row.favourite.status.Count != 2 {
			t.Errorf("favourite = %v, want restored active 2", row.favourite.status)
		}
		if f.model.err == nil || !strings.Contains(f.model.View(), "Server error") {
			t.Fatalf("expected server error in status line, got %q", f.model.statusLine())
		}

		f.model.Update(tea.KeyMsg{Type: tea.KeyEsc})
		if f.model.err != nil {
			t.Error("esc should dismiss the error")
		}
	})

	t.Run("leaving the view abandons pending toggles", func(t *testing.T) {
		f := newFixture(t)
		f.load(t)
		f.likes.Hold()

		settle := f.press("l")
		<-f.likes.Started()

		quit := f.press("q")
		if _, ok := quit().(tea.QuitMsg); !ok {
			t.Fatal("q should quit")
		}
		if f.model.ctx.Err() == nil {
			t.Fatal("quitting should cancel the model context")
		}

		f.model.Update(settle())
		if !tu.Eventually(t, time.Second, func() bool { return f.likeC.Busy("s1") == 0 }) {
			t.Fatal("pending toggle was not abandoned")
		}
		status, _ := f.likeC.Peek("s1")
		if status.Active || status.Count != 5 {
			t.Errorf("status after abandon = %v, want the confirmed inactive 5", status)
		}
		if f.model.err != nil {
			t.Errorf("cancellation should not be reported, got %v", f.model.err)
		}
	})
}

func TestModelEvents(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	ev := toggle.Event{
		Type:      toggle.EventRefreshed,
		Kind:      models.KindLike,
		SubjectID: "s2",
		Status:    models.Status{Kind: models.KindLike, SubjectID: "s2", Active: true, Count: 1},
	}
	_, cmd := f.model.Update(statusEventMsg(ev))
	if cmd == nil {
		t.Error("the model should keep listening after an event")
	}
	row := f.row(t, "s2")
	if !row.like.known || !row.like.status.Active {
		t.Errorf("row s2 like = %+v, want known active", row.like)
	}

	f.model.Update(statusEventMsg(toggle.Event{Type: toggle.EventRefreshed, Kind: models.KindLike, SubjectID: "missing"}))
}

func TestSongItemDescription(t *testing.T) {
	item := newSongItem(models.Song{ID: "s1", Title: "Nocturne", Composer: "Chopin", LikesCount: 1200})
	if got := item.Description(); !strings.HasPrefix(got, "♡ 1.2k") || !strings.Contains(got, "Chopin") {
		t.Errorf("Description() = %q", got)
	}

	item = item.with(models.KindFavourite, models.Status{Kind: models.KindFavourite, Active: true, Count: 3}, 0)
	if got := item.Description(); !strings.Contains(got, "★ 3") {
		t.Errorf("Description() = %q, want active favourite", got)
	}
}
