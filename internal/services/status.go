package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/shared"
)

// StatusService implements [StatusRemote] for one [models.Kind] over the REST API.
//
//	GET    /{likes|favourites}/{id}  read
//	POST   /{likes|favourites}       {"song": id}
//	DELETE /{likes|favourites}/{id}
type StatusService struct {
	api  *APIService
	kind models.Kind
}

// NewStatusService creates a remote for kind.
func NewStatusService(api *APIService, kind models.Kind) *StatusService {
	return &StatusService{api: api, kind: kind}
}

// NewLikeService is shorthand for [NewStatusService] with [models.KindLike].
func NewLikeService(api *APIService) *StatusService { return NewStatusService(api, models.KindLike) }

// NewFavouriteService is shorthand for [NewStatusService] with [models.KindFavourite].
func NewFavouriteService(api *APIService) *StatusService {
	return NewStatusService(api, models.KindFavourite)
}

func (s *StatusService) Kind() models.Kind { return s.kind }

// Fetch reads the status and validates it against the wire schema.
func (s *StatusService) Fetch(ctx context.Context, subjectID string) (models.Status, error) {
	if err := models.ValidateSubjectID(subjectID); err != nil {
		return models.Status{}, err
	}

	path := fmt.Sprintf("/%s/%s", s.kind.Resource(), subjectID)

	var (
		target   any
		toStatus func() models.Status
	)
	switch s.kind {
	case models.KindFavourite:
		var fs models.FavouriteStatus
		target, toStatus = &fs, func() models.Status { return fs.Status(subjectID) }
	default:
		var ls models.LikeStatus
		target, toStatus = &ls, func() models.Status { return ls.Status(subjectID) }
	}

	if err := s.api.Do(ctx, http.MethodGet, path, nil, target); err != nil {
		return models.Status{}, err
	}
	if err := schemaValidator().Struct(target); err != nil {
		return models.Status{}, shared.NewAPIError(shared.KindValidation, http.StatusOK, "unexpected "+s.kind.Resource()+" response", err)
	}
	return toStatus(), nil
}

// Set issues POST when turning on and DELETE when turning off. Response bodies are not needed.
func (s *StatusService) Set(ctx context.Context, subjectID string, active bool) error {
	if err := models.ValidateSubjectID(subjectID); err != nil {
		return err
	}
	if active {
		return s.api.Do(ctx, http.MethodPost, "/"+s.kind.Resource(), models.ToggleRequest{Song: subjectID}, nil)
	}
	return s.api.Do(ctx, http.MethodDelete, fmt.Sprintf("/%s/%s", s.kind.Resource(), subjectID), nil, nil)
}
