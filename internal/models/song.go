package models

import (
	"fmt"
	"strings"
	"time"
)

// Song is a catalogue entry as returned by GET /songs and GET /songs/{id}.
type Song struct {
	ID              string    `json:"_id" validate:"required"`
	Title           string    `json:"title" validate:"required"`
	Composer        string    `json:"composer"`
	Arranger        string    `json:"arranger"`
	Genre           string    `json:"genre"`
	Difficulty      string    `json:"difficulty"`
	Price           float64   `json:"price" validate:"gte=0"`
	LikesCount      int       `json:"likesCount" validate:"gte=0"`
	FavouritesCount int       `json:"favouritesCount" validate:"gte=0"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Count returns the catalogue counter for kind.
func (s Song) Count(kind Kind) int {
	if kind == KindFavourite {
		return s.FavouritesCount
	}
	return s.LikesCount
}

// SongPage is one page of GET /songs.
type SongPage struct {
	Songs []Song `json:"songs"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
}

// PersistedSong is a [Song] cached in the local catalogue.
type PersistedSong struct {
	song      Song
	sequence  int
	syncedAt  time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// NewPersistedSong wraps s for storage, stamping the sync time.
func NewPersistedSong(s Song) *PersistedSong {
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	return &PersistedSong{song: s, syncedAt: now, updatedAt: now}
}

// RestorePersistedSong rebuilds a row read from the database.
func RestorePersistedSong(s Song, sequence int, syncedAt time.Time, deletedAt *time.Time) *PersistedSong {
	return &PersistedSong{song: s, sequence: sequence, syncedAt: syncedAt, updatedAt: syncedAt, deletedAt: deletedAt}
}

func (p *PersistedSong) ID() string           { return p.song.ID }
func (p *PersistedSong) CreatedAt() time.Time { return p.song.CreatedAt }
func (p *PersistedSong) UpdatedAt() time.Time { return p.updatedAt }
func (p *PersistedSong) SyncedAt() time.Time  { return p.syncedAt }
func (p *PersistedSong) Sequence() int        { return p.sequence }
func (p *PersistedSong) Song() Song           { return p.song }
func (p *PersistedSong) IsDeleted() bool      { return p.deletedAt != nil }

// SetSequence records the sequence assigned on insert.
func (p *PersistedSong) SetSequence(seq int) { p.sequence = seq }

// Refresh replaces the cached fields with s and stamps the sync time.
func (p *PersistedSong) Refresh(s Song) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = p.song.CreatedAt
	}
	p.song = s
	p.syncedAt = time.Now()
	p.updatedAt = p.syncedAt
}

// Validate checks the fields the catalogue table requires.
func (p *PersistedSong) Validate() error {
	if err := ValidateSubjectID(p.song.ID); err != nil {
		return err
	}
	if strings.TrimSpace(p.song.Title) == "" {
		return fmt.Errorf("song %s: title is required", p.song.ID)
	}
	if p.song.Price < 0 || p.song.LikesCount < 0 || p.song.FavouritesCount < 0 {
		return fmt.Errorf("song %s: negative price or counter", p.song.ID)
	}
	return nil
}

// Outcome is how a toggle settled.
type Outcome string

const (
	OutcomeConfirmed  Outcome = "confirmed"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeDiscarded  Outcome = "discarded"
)

// ToggleRecord is one settled toggle in the local journal.
type ToggleRecord struct {
	ID        string
	Kind      Kind
	SubjectID string
	User      string
	From      Status
	To        Status
	Outcome   Outcome
	Error     string
	StartedAt time.Time
	SettledAt time.Time
}

// Duration is the time between the optimistic write and settlement.
func (r ToggleRecord) Duration() time.Duration {
	return r.SettledAt.Sub(r.StartedAt)
}
