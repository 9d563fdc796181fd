package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/services"
	"github.com/desertthunder/scorebook/internal/store"
)

// songsListKey is the aggregate key a confirmed toggle invalidates.
const songsListKey = "songs:list"

// pageCache keeps song list pages in memory for the staleness window. Invalidating
// [songsListKey] marks every cached page stale.
type pageCache struct {
	next  services.Catalogue
	pages *store.Store[*models.SongPage]
}

func newPageCache(next services.Catalogue, opts store.Options) *pageCache {
	c := &pageCache{next: next, pages: store.New[*models.SongPage](opts)}
	c.pages.Subscribe(func(key string) {
		if key == songsListKey {
			c.pages.InvalidatePrefix(songsListKey + ":")
		}
	})
	return c
}

func pageKey(page, limit int) string {
	return fmt.Sprintf("%s:%d:%d", songsListKey, page, limit)
}

// List returns a fresh cached page or fetches it.
func (c *pageCache) List(ctx context.Context, page, limit int) (*models.SongPage, error) {
	key := pageKey(page, limit)
	if p, ok := c.pages.Fresh(key); ok {
		return p, nil
	}

	p, err := c.next.List(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	c.pages.Set(key, p)
	return p, nil
}

func (c *pageCache) Get(ctx context.Context, id string) (*models.Song, error) {
	return c.next.Get(ctx, id)
}
