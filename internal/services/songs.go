package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/shared"
)

// SongService implements [Catalogue] over GET /songs.
type SongService struct {
	api *APIService
}

// NewSongService creates a catalogue client.
func NewSongService(api *APIService) *SongService {
	return &SongService{api: api}
}

// List fetches one page of songs.
//
// The API answers either {"songs": [...], "total": n, "page": p} or a bare array; both are accepted.
func (s *SongService) List(ctx context.Context, page, limit int) (*models.SongPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/songs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var raw json.RawMessage
	if err := s.api.Do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	result := &models.SongPage{Page: max(page, 1)}
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0:
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &result.Songs); err != nil {
			return nil, shared.NewAPIError(shared.KindValidation, http.StatusOK, "malformed songs response", err)
		}
		result.Total = len(result.Songs)
	default:
		if err := json.Unmarshal(trimmed, result); err != nil {
			return nil, shared.NewAPIError(shared.KindValidation, http.StatusOK, "malformed songs response", err)
		}
		if result.Page == 0 {
			result.Page = max(page, 1)
		}
	}

	for i := range result.Songs {
		if err := schemaValidator().Struct(result.Songs[i]); err != nil {
			return nil, shared.NewAPIError(shared.KindValidation, http.StatusOK, fmt.Sprintf("song %d of page %d is invalid", i, result.Page), err)
		}
	}
	return result, nil
}

// Get fetches a single song; a missing song is reported as [shared.ErrSongNotFound].
func (s *SongService) Get(ctx context.Context, id string) (*models.Song, error) {
	if err := models.ValidateSubjectID(id); err != nil {
		return nil, err
	}

	var song models.Song
	if err := s.api.Do(ctx, http.MethodGet, "/songs/"+id, nil, &song); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", shared.ErrSongNotFound, id, err)
		}
		return nil, err
	}
	if err := schemaValidator().Struct(song); err != nil {
		return nil, shared.NewAPIError(shared.KindValidation, http.StatusOK, "unexpected song response", err)
	}
	return &song, nil
}
