package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/shared"
)

const songColumns = `id, sequence, title, composer, arranger, genre, difficulty, price,
	likes_count, favourites_count, created_at, synced_at, deleted_at`

// SongRepository implements models.Repository[*models.PersistedSong] for the local catalogue.
//
// Song ids are the server's ids, so a sync can upsert without a lookup table.
type SongRepository struct {
	db *sql.DB
}

// NewSongRepository creates a new SongRepository with the given database connection
func NewSongRepository(db *sql.DB) *SongRepository {
	return &SongRepository{db: db}
}

// Create inserts a new [models.PersistedSong] with the next sequence number
func (r *SongRepository) Create(song *models.PersistedSong) error {
	if err := song.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "songs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	s := song.Song()
	query := `
		INSERT INTO songs (id, sequence, title, composer, arranger, genre, difficulty, price,
			likes_count, favourites_count, created_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		s.ID,
		sequence,
		s.Title,
		s.Composer,
		s.Arranger,
		s.Genre,
		s.Difficulty,
		s.Price,
		s.LikesCount,
		s.FavouritesCount,
		s.CreatedAt,
		song.SyncedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert song: %w", err)
	}

	song.SetSequence(sequence)
	return nil
}

// Get retrieves a song by ID, excluding soft-deleted songs
func (r *SongRepository) Get(id string) (*models.PersistedSong, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE id = ? AND deleted_at IS NULL`

	song, err := scanSong(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSongNotFound, id)
	}
	return song, err
}

// Update writes the cached fields of an existing song and stamps the sync time
func (r *SongRepository) Update(song *models.PersistedSong) error {
	if err := song.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	s := song.Song()
	query := `
		UPDATE songs
		SET title = ?, composer = ?, arranger = ?, genre = ?, difficulty = ?, price = ?,
			likes_count = ?, favourites_count = ?, synced_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		s.Title,
		s.Composer,
		s.Arranger,
		s.Genre,
		s.Difficulty,
		s.Price,
		s.LikesCount,
		s.FavouritesCount,
		song.SyncedAt(),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update song: %w", err)
	}

	return requireRow(result, s.ID)
}

// Delete soft-deletes a song by ID
func (r *SongRepository) Delete(id string) error {
	query := `UPDATE songs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete song: %w", err)
	}

	return requireRow(result, id)
}

// List retrieves songs matching the given criteria, excluding soft-deleted songs.
//
// Supported criteria: "genre", "difficulty" (exact), "title" (substring), "limit" and "offset" (int).
func (r *SongRepository) List(criteria map[string]any) ([]*models.PersistedSong, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE deleted_at IS NULL`
	args := []any{}

	if genre, ok := criteria["genre"].(string); ok && genre != "" {
		query += " AND genre = ?"
		args = append(args, genre)
	}

	if difficulty, ok := criteria["difficulty"].(string); ok && difficulty != "" {
		query += " AND difficulty = ?"
		args = append(args, difficulty)
	}

	if title, ok := criteria["title"].(string); ok && title != "" {
		query += " AND title LIKE ?"
		args = append(args, "%"+title+"%")
	}

	query += " ORDER BY sequence ASC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset, ok := criteria["offset"].(int); ok && offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	var songs []*models.PersistedSong
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return songs, nil
}

// Count returns the number of songs that are not deleted.
func (r *SongRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM songs WHERE deleted_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count songs: %w", err)
	}
	return n, nil
}

// Upsert stores s, creating the row or refreshing an existing one (restoring it when soft-deleted).
// It reports whether a new row was created.
func (r *SongRepository) Upsert(s models.Song) (*models.PersistedSong, bool, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE id = ?`

	existing, err := scanSong(r.db.QueryRow(query, s.ID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		song := models.NewPersistedSong(s)
		if err := r.Create(song); err != nil {
			return nil, false, err
		}
		return song, true, nil
	case err != nil:
		return nil, false, err
	}

	if existing.IsDeleted() {
		if _, err := r.db.Exec(`UPDATE songs SET deleted_at = NULL WHERE id = ?`, s.ID); err != nil {
			return nil, false, fmt.Errorf("failed to restore song: %w", err)
		}
		existing = models.RestorePersistedSong(existing.Song(), existing.Sequence(), existing.SyncedAt(), nil)
	}

	existing.Refresh(s)
	if err := r.Update(existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// SetCount updates the cached counter of kind after a confirmed toggle.
func (r *SongRepository) SetCount(kind models.Kind, id string, count int) error {
	column := "likes_count"
	if kind == models.KindFavourite {
		column = "favourites_count"
	}

	result, err := r.db.Exec(
		fmt.Sprintf("UPDATE songs SET %s = ? WHERE id = ? AND deleted_at IS NULL", column),
		max(count, 0), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	return requireRow(result, id)
}

func requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s (missing or deleted)", shared.ErrSongNotFound, id)
	}
	return nil
}

// scanSong scans a single row into a [models.PersistedSong], passing [sql.ErrNoRows] through
func scanSong(row rowScanner) (*models.PersistedSong, error) {
	var (
		s         models.Song
		sequence  int
		syncedAt  time.Time
		deletedAt sql.NullTime
	)

	err := row.Scan(
		&s.ID, &sequence, &s.Title, &s.Composer, &s.Arranger, &s.Genre, &s.Difficulty, &s.Price,
		&s.LikesCount, &s.FavouritesCount, &s.CreatedAt, &syncedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan song: %w", err)
	}

	var deleted *time.Time
	if deletedAt.Valid {
		deleted = &deletedAt.Time
	}
	return models.RestorePersistedSong(s, sequence, syncedAt, deleted), nil
}
