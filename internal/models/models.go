// package models defines the data model for the scorebook client
package models

import (
	"fmt"
	"regexp"
	"time"

	"github.com/desertthunder/scorebook/internal/shared"
)

// AnonymousUser is the cache key segment used when no token is present.
const AnonymousUser = "anon"

var subjectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Model defines the base interface for persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Kind names a per-subject boolean resource with a counter.
type Kind string

const (
	KindLike      Kind = "like"
	KindFavourite Kind = "favourite"
)

// Kinds lists every toggleable kind.
var Kinds = []Kind{KindLike, KindFavourite}

// ParseKind converts "like"/"likes"/"favourite"/"favourites"/"favorite" to a [Kind].
func ParseKind(s string) (Kind, error) {
	switch s {
	case "like", "likes":
		return KindLike, nil
	case "favourite", "favourites", "favorite", "favorites":
		return KindFavourite, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", shared.ErrInvalidArgument, s)
	}
}

// Resource is the REST collection of the kind ("likes" or "favourites").
func (k Kind) Resource() string {
	if k == KindFavourite {
		return "favourites"
	}
	return "likes"
}

// Verb is the label shown for the active state.
func (k Kind) Verb() string {
	if k == KindFavourite {
		return "favourited"
	}
	return "liked"
}

// Status is the client view of one subject's boolean and counter.
type Status struct {
	Kind      Kind   `json:"kind"`
	SubjectID string `json:"subjectId"`
	Active    bool   `json:"active"`
	Count     int    `json:"count"`
}

// DefaultStatus is the status of a subject with no known server state.
func DefaultStatus(kind Kind, subjectID string) Status {
	return Status{Kind: kind, SubjectID: subjectID}
}

// Flipped computes the optimistic target of a toggle.
//
// Turning on adds one; turning off subtracts one, never going below zero.
func (s Status) Flipped() Status {
	next := s
	next.Active = !s.Active
	if next.Active {
		next.Count = s.Count + 1
	} else {
		next.Count = max(s.Count-1, 0)
	}
	return next
}

// Normalized clamps a negative count to zero.
func (s Status) Normalized() Status {
	if s.Count < 0 {
		s.Count = 0
	}
	return s
}

// Equal compares the visible fields.
func (s Status) Equal(o Status) bool {
	return s.Active == o.Active && s.Count == o.Count
}

func (s Status) String() string {
	mark := "not " + s.Kind.Verb()
	if s.Active {
		mark = s.Kind.Verb()
	}
	return fmt.Sprintf("%s %s (%d)", s.SubjectID, mark, s.Count)
}

// LikeStatus is the wire schema of GET /likes/{id}.
type LikeStatus struct {
	SubjectID  string `json:"songId"`
	IsLiked    *bool  `json:"isLiked" validate:"required"`
	LikesCount *int   `json:"likesCount" validate:"required,gte=0"`
}

// Status converts the response to a [Status] for subjectID.
func (l LikeStatus) Status(subjectID string) Status {
	return Status{Kind: KindLike, SubjectID: subjectID, Active: deref(l.IsLiked), Count: derefInt(l.LikesCount)}
}

// FavouriteStatus is the wire schema of GET /favourites/{id}.
type FavouriteStatus struct {
	SubjectID       string `json:"songId"`
	IsFavourited    *bool  `json:"isFavourited" validate:"required"`
	FavouritesCount *int   `json:"favouritesCount" validate:"required,gte=0"`
}

// Status converts the response to a [Status] for subjectID.
func (f FavouriteStatus) Status(subjectID string) Status {
	return Status{Kind: KindFavourite, SubjectID: subjectID, Active: deref(f.IsFavourited), Count: derefInt(f.FavouritesCount)}
}

// ToggleRequest is the body of POST /likes and POST /favourites.
type ToggleRequest struct {
	Song string `json:"song"`
}

// ValidateSubjectID rejects ids that cannot be placed in a URL path segment.
func ValidateSubjectID(id string) error {
	if !subjectIDPattern.MatchString(id) {
		return shared.NewAPIError(shared.KindValidation, 0, fmt.Sprintf("invalid song id %q", id), shared.ErrInvalidArgument)
	}
	return nil
}

// CacheKey builds the status store key "<kind>:<user>:<subjectID>".
func CacheKey(kind Kind, user, subjectID string) string {
	if user == "" {
		user = AnonymousUser
	}
	return fmt.Sprintf("%s:%s:%s", kind, user, subjectID)
}

func deref(b *bool) bool {
	return b != nil && *b
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
