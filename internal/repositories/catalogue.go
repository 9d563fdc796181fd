package repositories

import (
	"context"
	"fmt"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/shared"
)

// LocalCatalogue implements services.Catalogue from the synced songs table.
//
// Counters are those of the last sync or confirmed toggle, so they can lag behind the server.
type LocalCatalogue struct {
	repo *SongRepository
}

// NewLocalCatalogue creates a new LocalCatalogue with the given repository
func NewLocalCatalogue(repo *SongRepository) *LocalCatalogue {
	return &LocalCatalogue{repo: repo}
}

// List returns one page of songs in sync order. Pages start at 1.
func (c *LocalCatalogue) List(ctx context.Context, page, limit int) (*models.SongPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", shared.ErrInvalidArgument)
	}

	total, err := c.repo.Count()
	if err != nil {
		return nil, err
	}

	rows, err := c.repo.List(map[string]any{"limit": limit, "offset": (page - 1) * limit})
	if err != nil {
		return nil, err
	}

	result := &models.SongPage{Songs: make([]models.Song, 0, len(rows)), Total: total, Page: page}
	for _, row := range rows {
		result.Songs = append(result.Songs, row.Song())
	}
	return result, nil
}

// Get returns a cached song or an error wrapping [shared.ErrSongNotFound].
func (c *LocalCatalogue) Get(ctx context.Context, id string) (*models.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row, err := c.repo.Get(id)
	if err != nil {
		return nil, err
	}
	song := row.Song()
	return &song, nil
}
