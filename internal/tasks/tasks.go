// package tasks implements long-running catalogue operations against the scorebook API.
//
// The core abstraction is CatalogueEngine, which syncs the song catalogue and warms status caches.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/services"
	"github.com/desertthunder/scorebook/internal/shared"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// SongStore persists synced songs. repositories.SongRepository implements it.
type SongStore interface {
	Upsert(song models.Song) (*models.PersistedSong, bool, error)
}

// StatusReader refreshes one kind of status. toggle.Controller implements it.
type StatusReader interface {
	Kind() models.Kind
	Refresh(ctx context.Context, subjectID string) (models.Status, error)
}

// SongError records a song that could not be stored.
type SongError struct {
	SongID string
	Error  error
}

// SyncResult summarises a catalogue sync.
type SyncResult struct {
	Pages   int         // Pages fetched
	Fetched int         // Songs received from the API
	Created int         // New rows
	Updated int         // Existing rows refreshed
	Total   int         // Total reported by the API
	Failed  []SongError // Songs the store rejected
}

// SyncOpts configures [CatalogueEngine.SyncCatalogue].
type SyncOpts struct {
	PageSize int // Songs per request (default: 50, max: 200)
	MaxPages int // Stop after this many pages; zero means all
}

// CatalogueEngine runs catalogue tasks.
type CatalogueEngine struct {
	catalogue services.Catalogue
	songs     SongStore
	logger    *log.Logger
}

// NewCatalogueEngine creates a new CatalogueEngine. songs may be nil for engines that only prefetch.
func NewCatalogueEngine(catalogue services.Catalogue, songs SongStore, logger *log.Logger) *CatalogueEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &CatalogueEngine{catalogue: catalogue, songs: songs, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *CatalogueEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// SyncCatalogue pages through the remote catalogue and upserts every song into the local store.
//
// Songs the store rejects are collected in [SyncResult.Failed]; a failing page request aborts the sync
// and returns the partial result with the error.
func (e *CatalogueEngine) SyncCatalogue(ctx context.Context, progress chan<- ProgressUpdate, opts SyncOpts) (*SyncResult, error) {
	if e.catalogue == nil {
		return nil, fmt.Errorf("%w: catalogue not initialized", shared.ErrServiceUnavailable)
	}
	if e.songs == nil {
		return nil, fmt.Errorf("%w: song store not initialized", shared.ErrServiceUnavailable)
	}

	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}

	result := &SyncResult{}

	for page := 1; opts.MaxPages == 0 || page <= opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		e.sendProgress(progress, fetchPageUpdate(page, result.Fetched, result.Total))

		resp, err := e.catalogue.List(ctx, page, opts.PageSize)
		if err != nil {
			return result, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}

		result.Pages++
		result.Total = max(resp.Total, result.Total)
		result.Fetched += len(resp.Songs)

		for i, song := range resp.Songs {
			_, created, err := e.songs.Upsert(song)
			switch {
			case err != nil:
				e.logger.Warn("song not stored", "song", song.ID, "err", err)
				result.Failed = append(result.Failed, SongError{SongID: song.ID, Error: err})
			case created:
				result.Created++
			default:
				result.Updated++
			}
			e.sendProgress(progress, storeSongUpdate(i+1, len(resp.Songs), song))
		}

		if len(resp.Songs) < opts.PageSize || (result.Total > 0 && result.Fetched >= result.Total) {
			break
		}
	}

	e.logger.Info("catalogue synced", "pages", result.Pages, "created", result.Created,
		"updated", result.Updated, "failed", len(result.Failed))
	e.sendProgress(progress, syncCompleteUpdate(result))

	if result.Fetched > 0 && len(result.Failed) == result.Fetched {
		return result, errors.New("no songs were stored")
	}
	return result, nil
}
