package toggle

import (
	"time"

	"github.com/desertthunder/scorebook/internal/models"
)

// EventType names a visible state change.
type EventType int

const (
	EventOptimistic EventType = iota
	EventConfirmed
	EventRolledBack
	EventDiscarded
	EventRefreshed
	EventRefreshFailed
)

func (t EventType) String() string {
	switch t {
	case EventOptimistic:
		return "optimistic"
	case EventConfirmed:
		return "confirmed"
	case EventRolledBack:
		return "rolled_back"
	case EventDiscarded:
		return "discarded"
	case EventRefreshed:
		return "refreshed"
	case EventRefreshFailed:
		return "refresh_failed"
	default:
		return "unknown"
	}
}

// Event reports the status now visible for a subject.
//
// Busy is true while a toggle of the subject is in flight or queued.
type Event struct {
	Type      EventType
	Kind      models.Kind
	SubjectID string
	Status    models.Status
	Busy      bool
	Err       error
	At        time.Time
}
