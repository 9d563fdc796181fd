// package services defines clients for the remote scorebook REST API
package services

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/desertthunder/scorebook/internal/models"
)

// StatusRemote reads and writes one kind of per-song status (likes or favourites).
type StatusRemote interface {
	// Kind returns the resource kind served by this remote.
	Kind() models.Kind

	// Fetch retrieves the server status of subjectID.
	Fetch(ctx context.Context, subjectID string) (models.Status, error)

	// Set turns the status on (POST) or off (DELETE).
	Set(ctx context.Context, subjectID string, active bool) error
}

// Catalogue lists and fetches songs.
type Catalogue interface {
	List(ctx context.Context, page, limit int) (*models.SongPage, error)
	Get(ctx context.Context, id string) (*models.Song, error)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// schemaValidator returns the process-wide validator used for response schemas.
func schemaValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}
