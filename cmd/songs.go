package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/scorebook/internal/formatter"
	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/repositories"
	"github.com/desertthunder/scorebook/internal/services"
	"github.com/desertthunder/scorebook/internal/shared"
	"github.com/desertthunder/scorebook/internal/tasks"
)

// catalogueFor picks the local sqlite catalogue or the cached remote one.
func (r *Runner) catalogueFor(local bool) (services.Catalogue, error) {
	if !local {
		return r.catalogue(), nil
	}
	repo, err := r.songRepository()
	if err != nil {
		return nil, err
	}
	return repositories.NewLocalCatalogue(repo), nil
}

// SongsList prints one page of songs, or writes it to --output.
func (r *Runner) SongsList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	songs, total, err := r.listSongs(ctx, cmd)
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteSongExport(songs, format, path)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Wrote %d songs to %s\n", len(songs), written)
	}

	data, err := formatter.FormatSongs(songs, format)
	if err != nil {
		return err
	}
	if err := r.writeBytes(data); err != nil {
		return err
	}
	if format == formatter.FormatText {
		r.writePlain("\nShowing %d of %d songs (page %d)\n", len(songs), total, cmd.Int("page"))
	}
	return nil
}

func (r *Runner) listSongs(ctx context.Context, cmd *cli.Command) ([]models.Song, int, error) {
	page, limit := cmd.Int("page"), cmd.Int("limit")
	if page < 1 || limit < 1 {
		return nil, 0, fmt.Errorf("%w: --page and --limit must be positive", shared.ErrInvalidArgument)
	}

	genre := cmd.String("genre")
	if genre == "" {
		catalogue, err := r.catalogueFor(cmd.Bool("local"))
		if err != nil {
			return nil, 0, err
		}
		result, err := catalogue.List(ctx, page, limit)
		if err != nil {
			return nil, 0, err
		}
		return result.Songs, result.Total, nil
	}

	repo, err := r.songRepository()
	if err != nil {
		return nil, 0, err
	}
	rows, err := repo.List(map[string]any{"genre": genre, "limit": limit, "offset": (page - 1) * limit})
	if err != nil {
		return nil, 0, err
	}
	songs := make([]models.Song, len(rows))
	for i, row := range rows {
		songs[i] = row.Song()
	}
	return songs, len(songs), nil
}

// SongsShow prints a song together with the current user's statuses.
func (r *Runner) SongsShow(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if err := models.ValidateSubjectID(id); err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	catalogue, err := r.catalogueFor(cmd.Bool("local"))
	if err != nil {
		return err
	}
	song, err := catalogue.Get(ctx, id)
	if err != nil {
		return err
	}

	statuses := make([]models.Status, 0, 2)
	for _, kind := range []models.Kind{models.KindLike, models.KindFavourite} {
		c, err := r.controller(kind)
		if err != nil {
			return err
		}
		status, err := c.GetStatus(ctx, id)
		if err != nil {
			r.logger.Warn("status unavailable", "kind", kind, "song", id, "err", err)
			continue
		}
		statuses = append(statuses, status)
	}

	if format == formatter.FormatJSON {
		return r.writeJSON(struct {
			Song     *models.Song    `json:"song"`
			Statuses []models.Status `json:"statuses"`
		}{song, statuses}, true)
	}

	if err := r.writeBytes(formatter.SongDetail(*song)); err != nil {
		return err
	}
	for _, s := range statuses {
		r.writePlain("  %s\n", formatter.StatusLine(s))
	}
	return nil
}

// SongsSync copies the remote catalogue into the local database.
func (r *Runner) SongsSync(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.songRepository()
	if err != nil {
		return err
	}

	engine := tasks.NewCatalogueEngine(r.songService(), repo, r.logger)
	opts := tasks.SyncOpts{PageSize: cmd.Int("page-size"), MaxPages: cmd.Int("max-pages")}

	r.logger.Info("starting catalogue sync", "page_size", opts.PageSize, "max_pages", opts.MaxPages)
	r.writePlain("Syncing catalogue into %s...\n\n", r.config.Database.Path)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchPage:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.StoreSongs:
				r.writePlain("   %s\n", update.Message)
			}
		}
	}()

	result, err := engine.SyncCatalogue(ctx, progressCh, opts)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Sync Complete!")
	r.writePlain("Pages: %d\n", result.Pages)
	r.writePlain("Songs: %d of %d (%d new, %d updated)\n", result.Fetched, result.Total, result.Created, result.Updated)
	if len(result.Failed) > 0 {
		r.writePlain("\nFailed to store %d songs:\n", len(result.Failed))
		for _, f := range result.Failed {
			r.writePlain("  - %s: %v\n", f.SongID, f.Error)
		}
	}
	return nil
}

// SongsPrefetch refreshes the like and favourite statuses of the first songs in the local catalogue.
func (r *Runner) SongsPrefetch(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.songRepository()
	if err != nil {
		return err
	}
	rows, err := repo.List(map[string]any{"limit": cmd.Int("limit")})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: the local catalogue is empty, run 'scorebook songs sync' first", shared.ErrSongNotFound)
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.Song().ID
	}

	readers := []tasks.StatusReader{}
	for _, kind := range []models.Kind{models.KindLike, models.KindFavourite} {
		c, err := r.controller(kind)
		if err != nil {
			return err
		}
		readers = append(readers, c)
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			if update.Phase == tasks.PrefetchStatus {
				r.writePlain("   %s\n", update.Message)
			}
		}
	}()

	engine := tasks.NewCatalogueEngine(repositories.NewLocalCatalogue(repo), repo, r.logger)
	result, err := engine.PrefetchStatuses(ctx, progressCh, readers, ids, tasks.PrefetchOpts{NumWorkers: cmd.Int("workers")})
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	for _, item := range result.Results {
		if item.Error == nil {
			if err := repo.SetCount(item.Kind, item.SubjectID, item.Status.Count); err != nil {
				r.logger.Warn("failed to update local count", "song", item.SubjectID, "err", err)
			}
		}
	}

	return r.writePlain("\n✓ Prefetched %d statuses (%d failed)\n", result.Succeeded, result.Failed)
}
