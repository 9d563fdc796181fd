package toggle

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/desertthunder/scorebook/internal/models"
)

// Pending tracks one toggle from its optimistic write to settlement.
type Pending struct {
	SubjectID string

	key       string
	user      string
	ctx       context.Context
	cancel    context.CancelFunc
	visible   models.Status
	queued    atomic.Bool
	done      chan struct{}
	createdAt time.Time

	// written under the controller mutex, read after done is closed
	from      models.Status
	target    models.Status
	startedAt time.Time
	result    models.Status
	err       error
	outcome   models.Outcome
}

// Visible is the status shown when the toggle was issued.
func (p *Pending) Visible() models.Status { return p.visible }

// Queued reports whether the toggle is still waiting behind another toggle of the same subject.
func (p *Pending) Queued() bool { return p.queued.Load() }

// Done is closed once the toggle settles.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Result returns the settled status and error. Only valid after Done is closed.
//
// On failure the status is the restored server-confirmed value.
func (p *Pending) Result() (models.Status, error) {
	select {
	case <-p.done:
		return p.result, p.err
	default:
		return p.visible, nil
	}
}

// Outcome reports how the toggle settled, or "" before Done is closed.
func (p *Pending) Outcome() models.Outcome {
	select {
	case <-p.done:
		return p.outcome
	default:
		return ""
	}
}

// Wait blocks until the toggle settles or ctx is done.
func (p *Pending) Wait(ctx context.Context) (models.Status, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return p.visible, ctx.Err()
	}
}

func (p *Pending) record(kind models.Kind, settledAt time.Time) models.ToggleRecord {
	errText := ""
	if p.err != nil {
		errText = p.err.Error()
	}
	started := p.startedAt
	if started.IsZero() {
		started = p.createdAt
	}
	return models.ToggleRecord{
		Kind:      kind,
		SubjectID: p.SubjectID,
		User:      p.user,
		From:      p.from,
		To:        p.target,
		Outcome:   p.outcome,
		Error:     errText,
		StartedAt: started,
		SettledAt: settledAt,
	}
}
