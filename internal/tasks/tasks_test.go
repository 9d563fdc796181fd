package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/shared"
)

type mockCatalogue struct {
	songs   []models.Song
	listErr error
	failAt  int // page that fails; zero never
	bare    bool
	calls   []int
}

func (m *mockCatalogue) List(ctx context.Context, page, limit int) (*models.SongPage, error) {
	m.calls = append(m.calls, page)
	if m.listErr != nil && (m.failAt == 0 || m.failAt == page) {
		return nil, m.listErr
	}

	start := (page - 1) * limit
	end := min(start+limit, len(m.songs))
	resp := &models.SongPage{Page: page, Total: len(m.songs)}
	if m.bare {
		resp.Total = 0
	}
	if start < len(m.songs) {
		resp.Songs = m.songs[start:end]
	}
	return resp, nil
}

func (m *mockCatalogue) Get(ctx context.Context, id string) (*models.Song, error) {
	for _, s := range m.songs {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, shared.ErrSongNotFound
}

type mockSongStore struct {
	mu      sync.Mutex
	rows    map[string]models.Song
	rejects map[string]bool
}

func newMockSongStore() *mockSongStore {
	return &mockSongStore{rows: make(map[string]models.Song), rejects: make(map[string]bool)}
}

func (m *mockSongStore) Upsert(song models.Song) (*models.PersistedSong, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rejects[song.ID] {
		return nil, false, fmt.Errorf("rejected %s", song.ID)
	}
	_, exists := m.rows[song.ID]
	m.rows[song.ID] = song
	return models.NewPersistedSong(song), !exists, nil
}

func makeSongs(n int) []models.Song {
	songs := make([]models.Song, n)
	for i := range songs {
		songs[i] = models.Song{ID: fmt.Sprintf("s%d", i+1), Title: fmt.Sprintf("Song %d", i+1)}
	}
	return songs
}

type mockReader struct {
	kind   models.Kind
	mu     sync.Mutex
	fail   map[string]error
	seen   []string
	active int
	peak   int
	delay  time.Duration
}

func (m *mockReader) Kind() models.Kind { return m.kind }

func (m *mockReader) Refresh(ctx context.Context, id string) (models.Status, error) {
	m.mu.Lock()
	m.seen = append(m.seen, id)
	m.active++
	m.peak = max(m.peak, m.active)
	err := m.fail[id]
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	m.active--
	m.mu.Unlock()

	if err != nil {
		return models.DefaultStatus(m.kind, id), err
	}
	return models.Status{Kind: m.kind, SubjectID: id, Active: true, Count: 1}, nil
}

func TestCatalogueEngine_SyncCatalogue(t *testing.T) {
	t.Run("pages until total", func(t *testing.T) {
		catalogue := &mockCatalogue{songs: makeSongs(5)}
		store := newMockSongStore()
		engine := NewCatalogueEngine(catalogue, store, nil)

		result, err := engine.SyncCatalogue(context.Background(), nil, SyncOpts{PageSize: 2})
		if err != nil {
			t.Fatalf("SyncCatalogue failed: %v", err)
		}

		if result.Pages != 3 {
			t.Errorf("expected 3 pages, got %d", result.Pages)
		}
		if result.Fetched != 5 || result.Created != 5 || result.Updated != 0 {
			t.Errorf("unexpected counts: %+v", result)
		}
		if len(store.rows) != 5 {
			t.Errorf("expected 5 stored songs, got %d", len(store.rows))
		}
	})

	t.Run("second sync updates", func(t *testing.T) {
		catalogue := &mockCatalogue{songs: makeSongs(3)}
		store := newMockSongStore()
		engine := NewCatalogueEngine(catalogue, store, nil)

		if _, err := engine.SyncCatalogue(context.Background(), nil, SyncOpts{}); err != nil {
			t.Fatalf("first sync failed: %v", err)
		}
		result, err := engine.SyncCatalogue(context.Background(), nil, SyncOpts{})
		if err != nil {
			t.Fatalf("second sync failed: %v", err)
		}
		if result.Created != 0 || result.Updated != 3 {
			t.Errorf("expected 3 updates, got %+v", result)
		}
	})

	t.Run("bare array responses stop on a short page", func(t *testing.T) {
		catalogue := &mockCatalogue{songs: makeSongs(4), bare: true}
		engine := NewCatalogueEngine(catalogue, newMockSongStore(), nil)

		result, err := engine.SyncCatalogue(context.Background(), nil, SyncOpts{PageSize: 3})
		if err != nil {
			t.Fatalf("SyncCatalogue failed: %v", err)
		}
		if result.Pages != 2 || result.Fetched != 4 {
			t.Errorf("expected 2 pages and 4 songs, got %+v", result)
		}
	})

	t.Run("max pages", func(t *testing.T) {
		catalogue := &mockCatalogue{songs: makeSongs(10)}
		engine := NewCatalogueEngine(catalogue, newMockSongStore(), nil)

		result, _ := engine.SyncCatalogue(context.Background(), nil, SyncOpts{PageSize: 2, MaxPages: 2})
		if result.Pages != 2 || result.Fetched != 4 {
			t.Errorf("expected to stop after 2 pages, got %+v", result)
		}
	})

	t.Run("page size is capped", func(t *testing.T) {
		catalogue := &mockCatalogue{songs: makeSongs(1)}
		engine := NewCatalogueEngine(catalogue, newMockSongStore(), nil)

		if _, err := engine.SyncCatalogue(context.Background(), nil, SyncOpts{PageSize: 5000}); err != nil {
			t.Fatalf("SyncCatalogue failed: %v", err)
		}
	})

	t.Run("rejected songs are collected", func(t *testing.T) {
		catalogue := &mockCatalogue{songs: makeSongs(3)}
		store := newMockSongStore()
		store.rejects["s2"] = true
		engine := NewCatalogueEngine(catalogue, store, nil)

		result, err := engine.SyncCatalogue(context.Background(), nil, SyncOpts{})
		if err != nil {
			t.Fatalf("partial failures should not fail the sync: %v", err)
		}
		if len(result.Failed) != 1 || result.Failed[0].SongID != "s2" {
			t.Errorf("expected s2 in failures, got %+v", result.Failed)
		}
	})

	t.Run("all rejected", func(t *testing.T) {
		catalogue := &mockCatalogue{songs: makeSongs(2)}
		store := newMockSongStore()
		store.rejects["s1"], store.rejects["s2"] = true, true
		engine := NewCatalogueEngine(catalogue, store, nil)

		if _, err := engine.SyncCatalogue(context.Background(), nil, SyncOpts{}); err == nil {
			t.Error("expected error when nothing was stored")
		}
	})

	t.Run("page error returns partial result", func(t *testing.T) {
		catalogue := &mockCatalogue{songs: makeSongs(6), listErr: shared.ErrNetwork, failAt: 2}
		engine := NewCatalogueEngine(catalogue, newMockSongStore(), nil)

		result, err := engine.SyncCatalogue(context.Background(), nil, SyncOpts{PageSize: 2})
		if !errors.Is(err, shared.ErrNetwork) {
			t.Fatalf("expected network error, got %v", err)
		}
		if result == nil || result.Fetched != 2 {
			t.Errorf("expected first page in partial result, got %+v", result)
		}
	})

	t.Run("missing dependencies", func(t *testing.T) {
		if _, err := NewCatalogueEngine(nil, newMockSongStore(), nil).SyncCatalogue(context.Background(), nil, SyncOpts{}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
		if _, err := NewCatalogueEngine(&mockCatalogue{}, nil, nil).SyncCatalogue(context.Background(), nil, SyncOpts{}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		catalogue := &mockCatalogue{songs: makeSongs(2)}

		_, err := NewCatalogueEngine(catalogue, newMockSongStore(), nil).SyncCatalogue(ctx, nil, SyncOpts{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if len(catalogue.calls) != 0 {
			t.Errorf("no page should be requested after cancellation")
		}
	})

	t.Run("progress updates", func(t *testing.T) {
		catalogue := &mockCatalogue{songs: makeSongs(2)}
		engine := NewCatalogueEngine(catalogue, newMockSongStore(), nil)
		progress := make(chan ProgressUpdate, 100)

		if _, err := engine.SyncCatalogue(context.Background(), progress, SyncOpts{}); err != nil {
			t.Fatalf("SyncCatalogue failed: %v", err)
		}
		close(progress)

		phases := map[Phase]int{}
		var last ProgressUpdate
		for u := range progress {
			phases[u.Phase]++
			last = u
		}
		if phases[FetchPage] != 1 || phases[StoreSongs] != 2 || phases[SyncComplete] != 1 {
			t.Errorf("unexpected phases: %v", phases)
		}
		if last.Phase != SyncComplete {
			t.Errorf("expected sync_complete last, got %s", last.Phase)
		}
	})
}

func TestCatalogueEngine_PrefetchStatuses(t *testing.T) {
	ids := []string{"s1", "s2", "s3", "s4"}

	t.Run("refreshes every subject for every kind", func(t *testing.T) {
		likes := &mockReader{kind: models.KindLike}
		favourites := &mockReader{kind: models.KindFavourite, fail: map[string]error{"s3": shared.ErrNetwork}}
		engine := NewCatalogueEngine(nil, nil, nil)

		result, err := engine.PrefetchStatuses(context.Background(), nil, []StatusReader{likes, favourites}, ids, PrefetchOpts{RateLimit: 1000})
		if err != nil {
			t.Fatalf("PrefetchStatuses failed: %v", err)
		}

		if result.Requested != 8 || result.Succeeded != 7 || result.Failed != 1 {
			t.Errorf("unexpected counts: %+v", result)
		}
		if len(likes.seen) != 4 || len(favourites.seen) != 4 {
			t.Errorf("expected 4 refreshes per kind, got %d and %d", len(likes.seen), len(favourites.seen))
		}

		for _, r := range result.Results {
			if r.Error != nil && (r.SubjectID != "s3" || r.Kind != models.KindFavourite) {
				t.Errorf("unexpected failure: %+v", r)
			}
		}
	})

	t.Run("worker pool is bounded", func(t *testing.T) {
		reader := &mockReader{kind: models.KindLike, delay: 20 * time.Millisecond}
		many := make([]string, 12)
		for i := range many {
			many[i] = fmt.Sprintf("s%d", i)
		}

		_, err := NewCatalogueEngine(nil, nil, nil).PrefetchStatuses(context.Background(), nil, []StatusReader{reader}, many, PrefetchOpts{NumWorkers: 50, RateLimit: 1000})
		if err != nil {
			t.Fatalf("PrefetchStatuses failed: %v", err)
		}
		if reader.peak > 10 {
			t.Errorf("expected at most 10 concurrent refreshes, got %d", reader.peak)
		}
	})

	t.Run("rate limit paces requests", func(t *testing.T) {
		reader := &mockReader{kind: models.KindLike}
		start := time.Now()

		_, err := NewCatalogueEngine(nil, nil, nil).PrefetchStatuses(context.Background(), nil, []StatusReader{reader}, ids, PrefetchOpts{RateLimit: 20})
		if err != nil {
			t.Fatalf("PrefetchStatuses failed: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
			t.Errorf("expected pacing at 20/s, finished in %v", elapsed)
		}
	})

	t.Run("no readers", func(t *testing.T) {
		_, err := NewCatalogueEngine(nil, nil, nil).PrefetchStatuses(context.Background(), nil, nil, ids, PrefetchOpts{})
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := NewCatalogueEngine(nil, nil, nil).PrefetchStatuses(ctx, nil, []StatusReader{&mockReader{kind: models.KindLike}}, ids, PrefetchOpts{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if result == nil || result.Succeeded == len(ids) {
			t.Errorf("expected a partial result, got %+v", result)
		}
	})

	t.Run("progress updates", func(t *testing.T) {
		progress := make(chan ProgressUpdate, 100)
		_, err := NewCatalogueEngine(nil, nil, nil).PrefetchStatuses(context.Background(), progress, []StatusReader{&mockReader{kind: models.KindLike}}, ids, PrefetchOpts{RateLimit: 1000})
		if err != nil {
			t.Fatalf("PrefetchStatuses failed: %v", err)
		}
		close(progress)

		count := 0
		var last ProgressUpdate
		for u := range progress {
			count++
			last = u
		}
		if count != len(ids)+1 {
			t.Errorf("expected %d updates, got %d", len(ids)+1, count)
		}
		if last.Phase != PrefetchComplete {
			t.Errorf("expected prefetch_complete last, got %s", last.Phase)
		}
	})
}

func TestProgressUpdate_NonBlocking(t *testing.T) {
	catalogue := &mockCatalogue{songs: makeSongs(20)}
	engine := NewCatalogueEngine(catalogue, newMockSongStore(), nil)
	progress := make(chan ProgressUpdate) // unbuffered, never read

	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.SyncCatalogue(context.Background(), progress, SyncOpts{PageSize: 5})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SyncCatalogue blocked on an unread progress channel")
	}
}

func TestPhase_String(t *testing.T) {
	phases := map[Phase]string{
		FetchPage:        "fetch_page",
		StoreSongs:       "store_songs",
		SyncComplete:     "sync_complete",
		PrefetchStatus:   "prefetch_status",
		PrefetchComplete: "prefetch_complete",
		Phase(99):        "",
	}
	for p, want := range phases {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(p), got, want)
		}
	}
}
