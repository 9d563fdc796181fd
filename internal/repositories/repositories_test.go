package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func testSong(id string) models.Song {
	return models.Song{
		ID:              id,
		Title:           "Clair de Lune " + id,
		Composer:        "Debussy",
		Genre:           "classical",
		Difficulty:      "advanced",
		Price:           4.99,
		LikesCount:      3,
		FavouritesCount: 1,
		CreatedAt:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "songs")
		if err != nil {
			t.Fatalf("NextSequence failed: %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}

	if _, err := NextSequence(db, "missing"); err == nil {
		t.Error("expected error for a table without a sequence")
	}
}

func TestSongRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		repo := NewSongRepository(setupTestDB(t))
		song := models.NewPersistedSong(testSong("s1"))

		if err := repo.Create(song); err != nil {
			t.Fatalf("failed to create song: %v", err)
		}
		if song.Sequence() != 1 {
			t.Errorf("expected sequence 1, got %d", song.Sequence())
		}
	})

	t.Run("Create rejects invalid songs", func(t *testing.T) {
		repo := NewSongRepository(setupTestDB(t))

		invalid := testSong("bad id")
		if err := repo.Create(models.NewPersistedSong(invalid)); err == nil {
			t.Error("expected validation error for an id with spaces")
		}

		untitled := testSong("s2")
		untitled.Title = "  "
		if err := repo.Create(models.NewPersistedSong(untitled)); err == nil {
			t.Error("expected validation error for an empty title")
		}
	})

	t.Run("Get", func(t *testing.T) {
		repo := NewSongRepository(setupTestDB(t))
		song := models.NewPersistedSong(testSong("s1"))
		if err := repo.Create(song); err != nil {
			t.Fatalf("failed to create song: %v", err)
		}

		retrieved, err := repo.Get("s1")
		if err != nil {
			t.Fatalf("failed to get song: %v", err)
		}

		got := retrieved.Song()
		if got.Title != "Clair de Lune s1" || got.Composer != "Debussy" {
			t.Errorf("unexpected song fields: %+v", got)
		}
		if got.Price != 4.99 {
			t.Errorf("expected price 4.99, got %v", got.Price)
		}
		if got.LikesCount != 3 || got.FavouritesCount != 1 {
			t.Errorf("unexpected counters: likes=%d favourites=%d", got.LikesCount, got.FavouritesCount)
		}
		if !got.CreatedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected created_at: %v", got.CreatedAt)
		}
	})

	t.Run("Get missing", func(t *testing.T) {
		repo := NewSongRepository(setupTestDB(t))

		_, err := repo.Get("nope")
		if !errors.Is(err, shared.ErrSongNotFound) {
			t.Errorf("expected ErrSongNotFound, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := NewSongRepository(setupTestDB(t))
		song := models.NewPersistedSong(testSong("s1"))
		if err := repo.Create(song); err != nil {
			t.Fatalf("failed to create song: %v", err)
		}

		changed := testSong("s1")
		changed.Title = "Arabesque No. 1"
		song.Refresh(changed)

		if err := repo.Update(song); err != nil {
			t.Fatalf("failed to update song: %v", err)
		}

		retrieved, _ := repo.Get("s1")
		if retrieved.Song().Title != "Arabesque No. 1" {
			t.Errorf("expected updated title, got %s", retrieved.Song().Title)
		}
	})

	t.Run("Update missing", func(t *testing.T) {
		repo := NewSongRepository(setupTestDB(t))

		err := repo.Update(models.NewPersistedSong(testSong("ghost")))
		if !errors.Is(err, shared.ErrSongNotFound) {
			t.Errorf("expected ErrSongNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewSongRepository(setupTestDB(t))
		if err := repo.Create(models.NewPersistedSong(testSong("s1"))); err != nil {
			t.Fatalf("failed to create song: %v", err)
		}

		if err := repo.Delete("s1"); err != nil {
			t.Fatalf("failed to delete song: %v", err)
		}
		if _, err := repo.Get("s1"); err == nil {
			t.Error("expected error when getting deleted song")
		}
		if err := repo.Delete("s1"); err == nil {
			t.Error("expected error when deleting twice")
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewSongRepository(setupTestDB(t))
		for i := 1; i <= 4; i++ {
			s := testSong(fmt.Sprintf("s%d", i))
			if i%2 == 0 {
				s.Genre = "jazz"
			}
			if err := repo.Create(models.NewPersistedSong(s)); err != nil {
				t.Fatalf("failed to create song: %v", err)
			}
		}

		all, err := repo.List(map[string]any{})
		if err != nil {
			t.Fatalf("failed to list songs: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("expected 4 songs, got %d", len(all))
		}
		for i, s := range all {
			if s.Sequence() != i+1 {
				t.Errorf("expected songs in sequence order, got %d at %d", s.Sequence(), i)
			}
		}

		jazz, _ := repo.List(map[string]any{"genre": "jazz"})
		if len(jazz) != 2 {
			t.Errorf("expected 2 jazz songs, got %d", len(jazz))
		}

		byTitle, _ := repo.List(map[string]any{"title": "s3"})
		if len(byTitle) != 1 || byTitle[0].ID() != "s3" {
			t.Errorf("expected title match for s3, got %d songs", len(byTitle))
		}

		page, _ := repo.List(map[string]any{"limit": 2, "offset": 2})
		if len(page) != 2 || page[0].ID() != "s3" {
			t.Errorf("expected second page to start at s3")
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		repo := NewSongRepository(setupTestDB(t))

		_, created, err := repo.Upsert(testSong("s1"))
		if err != nil || !created {
			t.Fatalf("expected first upsert to create, created=%v err=%v", created, err)
		}

		changed := testSong("s1")
		changed.LikesCount = 10
		song, created, err := repo.Upsert(changed)
		if err != nil || created {
			t.Fatalf("expected second upsert to update, created=%v err=%v", created, err)
		}
		if song.Sequence() != 1 {
			t.Errorf("upsert should keep the sequence, got %d", song.Sequence())
		}

		n, _ := repo.Count()
		if n != 1 {
			t.Errorf("expected 1 song, got %d", n)
		}
		retrieved, _ := repo.Get("s1")
		if retrieved.Song().LikesCount != 10 {
			t.Errorf("expected likes 10, got %d", retrieved.Song().LikesCount)
		}
	})

	t.Run("Upsert restores deleted songs", func(t *testing.T) {
		repo := NewSongRepository(setupTestDB(t))
		if _, _, err := repo.Upsert(testSong("s1")); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		if err := repo.Delete("s1"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}

		song, created, err := repo.Upsert(testSong("s1"))
		if err != nil || created {
			t.Fatalf("expected restore, created=%v err=%v", created, err)
		}
		if song.IsDeleted() {
			t.Error("restored song should not be deleted")
		}
		if _, err := repo.Get("s1"); err != nil {
			t.Errorf("restored song should be readable: %v", err)
		}
	})

	t.Run("SetCount", func(t *testing.T) {
		repo := NewSongRepository(setupTestDB(t))
		if _, _, err := repo.Upsert(testSong("s1")); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		if err := repo.SetCount(models.KindFavourite, "s1", 7); err != nil {
			t.Fatalf("SetCount failed: %v", err)
		}
		if err := repo.SetCount(models.KindLike, "s1", -2); err != nil {
			t.Fatalf("SetCount failed: %v", err)
		}

		retrieved, _ := repo.Get("s1")
		if retrieved.Song().FavouritesCount != 7 {
			t.Errorf("expected favourites 7, got %d", retrieved.Song().FavouritesCount)
		}
		if retrieved.Song().LikesCount != 0 {
			t.Errorf("negative counts are clamped, got %d", retrieved.Song().LikesCount)
		}

		if err := repo.SetCount(models.KindLike, "missing", 1); !errors.Is(err, shared.ErrSongNotFound) {
			t.Errorf("expected ErrSongNotFound, got %v", err)
		}
	})
}

func TestLocalCatalogue(t *testing.T) {
	repo := NewSongRepository(setupTestDB(t))
	for i := 1; i <= 5; i++ {
		if _, _, err := repo.Upsert(testSong(fmt.Sprintf("s%d", i))); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}
	catalogue := NewLocalCatalogue(repo)
	ctx := context.Background()

	t.Run("List pages", func(t *testing.T) {
		page, err := catalogue.List(ctx, 2, 2)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if page.Total != 5 || page.Page != 2 {
			t.Errorf("unexpected page metadata: total=%d page=%d", page.Total, page.Page)
		}
		if len(page.Songs) != 2 || page.Songs[0].ID != "s3" {
			t.Errorf("unexpected page contents: %+v", page.Songs)
		}
	})

	t.Run("List rejects zero limit", func(t *testing.T) {
		if _, err := catalogue.List(ctx, 1, 0); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Get", func(t *testing.T) {
		song, err := catalogue.Get(ctx, "s4")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if song.ID != "s4" {
			t.Errorf("expected s4, got %s", song.ID)
		}

		if _, err := catalogue.Get(ctx, "zzz"); !errors.Is(err, shared.ErrSongNotFound) {
			t.Errorf("expected ErrSongNotFound, got %v", err)
		}
	})

	t.Run("Cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := catalogue.List(cancelled, 1, 2); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestToggleJournal(t *testing.T) {
	journal := NewToggleJournal(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	records := []models.ToggleRecord{
		{
			Kind: models.KindLike, SubjectID: "s1", User: "u1",
			From:    models.Status{Active: false, Count: 5},
			To:      models.Status{Active: true, Count: 6},
			Outcome: models.OutcomeConfirmed, StartedAt: base, SettledAt: base.Add(time.Second),
		},
		{
			Kind: models.KindFavourite, SubjectID: "s1", User: "u1",
			From:    models.Status{Active: true, Count: 3},
			To:      models.Status{Active: false, Count: 2},
			Outcome: models.OutcomeRolledBack, Error: "server error: boom",
			StartedAt: base.Add(2 * time.Second), SettledAt: base.Add(3 * time.Second),
		},
		{
			Kind: models.KindLike, SubjectID: "s2", User: models.AnonymousUser,
			To:      models.Status{Active: true, Count: 1},
			Outcome: models.OutcomeConfirmed, StartedAt: base.Add(4 * time.Second), SettledAt: base.Add(5 * time.Second),
		},
	}
	for _, rec := range records {
		if err := journal.Append(ctx, rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	t.Run("Recent newest first", func(t *testing.T) {
		recent, err := journal.Recent(ctx, "", "", 0)
		if err != nil {
			t.Fatalf("Recent failed: %v", err)
		}
		if len(recent) != 3 {
			t.Fatalf("expected 3 records, got %d", len(recent))
		}
		if recent[0].SubjectID != "s2" {
			t.Errorf("expected newest record first, got %s", recent[0].SubjectID)
		}
		if recent[0].ID == "" {
			t.Error("Append should generate an ID")
		}
	})

	t.Run("Recent filters", func(t *testing.T) {
		likes, _ := journal.Recent(ctx, models.KindLike, "s1", 10)
		if len(likes) != 1 {
			t.Fatalf("expected 1 like record for s1, got %d", len(likes))
		}
		rec := likes[0]
		if !rec.To.Active || rec.To.Count != 6 || rec.From.Count != 5 {
			t.Errorf("unexpected statuses: from=%+v to=%+v", rec.From, rec.To)
		}
		if rec.To.Kind != models.KindLike || rec.To.SubjectID != "s1" {
			t.Errorf("statuses should carry kind and subject, got %+v", rec.To)
		}
		if rec.Duration() != time.Second {
			t.Errorf("expected 1s duration, got %v", rec.Duration())
		}

		limited, _ := journal.Recent(ctx, "", "", 1)
		if len(limited) != 1 {
			t.Errorf("expected limit to apply, got %d", len(limited))
		}
	})

	t.Run("Outcomes", func(t *testing.T) {
		counts, err := journal.Outcomes(ctx)
		if err != nil {
			t.Fatalf("Outcomes failed: %v", err)
		}
		if counts[models.OutcomeConfirmed] != 2 || counts[models.OutcomeRolledBack] != 1 {
			t.Errorf("unexpected outcome counts: %v", counts)
		}
	})

	t.Run("Append rejects unknown kinds", func(t *testing.T) {
		err := journal.Append(ctx, models.ToggleRecord{Kind: "vote", SubjectID: "s1", Outcome: models.OutcomeConfirmed})
		if err == nil {
			t.Error("expected check constraint failure")
		}
	})
}
