package toggle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/services"
	"github.com/desertthunder/scorebook/internal/shared"
	"github.com/desertthunder/scorebook/internal/store"
)

const defaultEventBuffer = 64

// Journal receives every settled toggle.
type Journal interface {
	Append(ctx context.Context, rec models.ToggleRecord) error
}

// Config wires a [Controller]. Remote and Store are required.
type Config struct {
	Remote      services.StatusRemote
	Store       *store.StatusStore
	Invalidator store.Invalidator // receives Aggregates after a confirmed toggle
	Aggregates  []string
	User        func() string // acting user for cache keys; anonymous when nil
	Logger      *log.Logger
	Journal     Journal
	Metrics     *Metrics
	EventBuffer int
	Now         func() time.Time
}

// lane sequences the toggles of one cache key.
type lane struct {
	inflight    *Pending
	queue       []*Pending
	confirmed   models.Status // last server-confirmed value
	confirmedAt time.Time
	visible     models.Status
	unconfirmed bool // an abandoned request may have reached the server
	resyncing   bool
}

func (l *lane) busy() bool { return l.inflight != nil || l.resyncing || len(l.queue) > 0 }

// Controller applies like or favourite toggles optimistically and reconciles them with the server.
type Controller struct {
	kind       models.Kind
	remote     services.StatusRemote
	store      *store.StatusStore
	inv        store.Invalidator
	aggregates []string
	user       func() string
	logger     *log.Logger
	journal    Journal
	metrics    *Metrics
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	lanes      map[string]*lane
	versions   map[string]uint64
	reads      map[string]int
	unsure     map[string]bool // keys whose last abandoned request may have been applied
	refreshing map[string]bool
	events     chan Event
	closed     bool
}

// New creates a controller for the kind served by cfg.Remote.
func New(cfg Config) (*Controller, error) {
	if cfg.Remote == nil || cfg.Store == nil {
		return nil, fmt.Errorf("%w: toggle controller needs a remote and a store", shared.ErrInvalidConfig)
	}
	if cfg.User == nil {
		cfg.User = func() string { return models.AnonymousUser }
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(nilWriter{})
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		kind:       cfg.Remote.Kind(),
		remote:     cfg.Remote,
		store:      cfg.Store,
		inv:        cfg.Invalidator,
		aggregates: cfg.Aggregates,
		user:       cfg.User,
		logger:     shared.WithLogger(cfg.Logger, "kind", cfg.Remote.Kind()),
		journal:    cfg.Journal,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
		ctx:        ctx,
		cancel:     cancel,
		lanes:      make(map[string]*lane),
		versions:   make(map[string]uint64),
		reads:      make(map[string]int),
		unsure:     make(map[string]bool),
		refreshing: make(map[string]bool),
		events:     make(chan Event, cfg.EventBuffer),
	}, nil
}

// Kind returns the resource kind this controller toggles.
func (c *Controller) Kind() models.Kind { return c.kind }

// Events delivers visible state changes. Events are dropped when the buffer is full.
// The channel is closed by [Controller.Close].
func (c *Controller) Events() <-chan Event { return c.events }

func (c *Controller) key(subjectID string) string {
	return models.CacheKey(c.kind, c.user(), subjectID)
}

// Peek returns the visible status of subjectID without fetching.
func (c *Controller) Peek(subjectID string) (models.Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.key(subjectID)
	if l := c.lanes[key]; l != nil {
		return l.visible, true
	}
	entry, _, ok := c.store.Get(key)
	return entry.Value, ok
}

// Busy reports how many toggles of subjectID are in flight or queued.
func (c *Controller) Busy(subjectID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lanes[c.key(subjectID)]
	if l == nil {
		return 0
	}
	n := len(l.queue)
	if l.inflight != nil {
		n++
	}
	return n
}

// GetStatus returns the status of subjectID.
//
// A fresh cached value is returned as is. A stale one is returned while a single background refresh runs.
// A miss is fetched synchronously. Unauthenticated reads yield the default status without an error;
// an unknown subject fails with [shared.ErrNotFound]. Other failures return the cached value (or the
// default) together with the error and leave the cache untouched.
func (c *Controller) GetStatus(ctx context.Context, subjectID string) (models.Status, error) {
	if err := models.ValidateSubjectID(subjectID); err != nil {
		return models.Status{}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.DefaultStatus(c.kind, subjectID), shared.ErrControllerClosed
	}
	key := c.key(subjectID)
	if l := c.lanes[key]; l != nil {
		visible := l.visible
		c.mu.Unlock()
		c.metrics.read(c.kind, "fresh")
		return visible, nil
	}

	entry, stale, ok := c.store.Get(key)
	switch {
	case ok && !stale:
		c.mu.Unlock()
		c.metrics.read(c.kind, "fresh")
		return entry.Value, nil
	case ok:
		c.startRefreshLocked(key, subjectID)
		c.mu.Unlock()
		c.metrics.read(c.kind, "stale")
		return entry.Value, nil
	}
	version := c.beginReadLocked(key)
	c.mu.Unlock()

	c.metrics.read(c.kind, "miss")
	return c.fetch(ctx, key, subjectID, version)
}

// Refresh fetches subjectID from the server now, bypassing the staleness window.
//
// While a toggle of the subject is pending the visible status is returned instead.
func (c *Controller) Refresh(ctx context.Context, subjectID string) (models.Status, error) {
	if err := models.ValidateSubjectID(subjectID); err != nil {
		return models.Status{}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.DefaultStatus(c.kind, subjectID), shared.ErrControllerClosed
	}
	key := c.key(subjectID)
	if l := c.lanes[key]; l != nil {
		visible := l.visible
		c.mu.Unlock()
		return visible, nil
	}
	version := c.beginReadLocked(key)
	c.mu.Unlock()

	return c.fetch(ctx, key, subjectID, version)
}

// fetch reads from the server and stores the result unless a toggle wrote the key in the meantime.
func (c *Controller) fetch(ctx context.Context, key, subjectID string, version uint64) (models.Status, error) {
	status, err := c.remote.Fetch(ctx, subjectID)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.endReadLocked(key)

	if err != nil {
		return c.readFailureLocked(key, subjectID, err)
	}

	status = status.Normalized()
	status.Kind, status.SubjectID = c.kind, subjectID
	if c.closed {
		return status, nil
	}
	if l := c.lanes[key]; l != nil {
		return l.visible, nil
	}
	if c.versions[key] != version {
		if entry, _, ok := c.store.Get(key); ok {
			return entry.Value, nil
		}
	}

	c.store.Set(key, status)
	delete(c.unsure, key)
	c.emitLocked(Event{Type: EventRefreshed, SubjectID: subjectID, Status: status})
	return status, nil
}

func (c *Controller) readFailureLocked(key, subjectID string, err error) (models.Status, error) {
	fallback := models.DefaultStatus(c.kind, subjectID)
	if entry, _, ok := c.store.Get(key); ok {
		fallback = entry.Value
	}

	switch {
	case errors.Is(err, shared.ErrAuthRequired):
		c.logger.Debug("status read without credentials", "subject", subjectID)
		return models.DefaultStatus(c.kind, subjectID), nil
	case errors.Is(err, shared.ErrNotFound):
		return models.Status{}, fmt.Errorf("%s %s: %w", c.kind, subjectID, err)
	default:
		c.logger.Warn("status read failed", "subject", subjectID, "err", err)
		return fallback, err
	}
}

func (c *Controller) startRefreshLocked(key, subjectID string) {
	if c.refreshing[key] || c.closed {
		return
	}
	c.refreshing[key] = true
	version := c.versions[key]

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		status, err := c.remote.Fetch(c.ctx, subjectID)

		c.mu.Lock()
		defer c.mu.Unlock()
		defer c.pruneLocked(key)
		delete(c.refreshing, key)
		if c.closed {
			return
		}

		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				c.store.Remove(key)
			}
			c.logger.Debug("background refresh failed", "subject", subjectID, "err", err)
			c.emitLocked(Event{Type: EventRefreshFailed, SubjectID: subjectID, Status: c.visibleLocked(key, subjectID), Err: err})
			return
		}
		if c.lanes[key] != nil || c.versions[key] != version {
			return
		}

		status = status.Normalized()
		status.Kind, status.SubjectID = c.kind, subjectID
		c.store.Set(key, status)
		delete(c.unsure, key)
		c.emitLocked(Event{Type: EventRefreshed, SubjectID: subjectID, Status: status})
	}()
}

func (c *Controller) visibleLocked(key, subjectID string) models.Status {
	if l := c.lanes[key]; l != nil {
		return l.visible
	}
	if entry, _, ok := c.store.Get(key); ok {
		return entry.Value
	}
	return models.DefaultStatus(c.kind, subjectID)
}

// Toggle flips subjectID optimistically and sends the change in the background.
//
// The flipped status is written to the store before Toggle returns. While another toggle of the
// same subject is pending, the new one is queued and its target is recomputed from the settled
// state once the earlier one finishes. On failure the last server-confirmed status is restored
// and marked stale.
//
// Cancelling ctx abandons the toggle: its result is discarded and the entry rolled back.
func (c *Controller) Toggle(ctx context.Context, subjectID string) (*Pending, error) {
	if err := models.ValidateSubjectID(subjectID); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, shared.ErrControllerClosed
	}

	user := c.user()
	key := models.CacheKey(c.kind, user, subjectID)
	l := c.lanes[key]
	if l == nil {
		base := models.DefaultStatus(c.kind, subjectID)
		var fetchedAt time.Time
		if entry, _, ok := c.store.Get(key); ok {
			base, fetchedAt = entry.Value.Normalized(), entry.FetchedAt
		}
		l = &lane{confirmed: base, confirmedAt: fetchedAt, visible: base, unconfirmed: c.unsure[key]}
		c.lanes[key] = l
		delete(c.unsure, key)
	}

	reqCtx, cancel := context.WithCancel(c.ctx)
	stop := context.AfterFunc(ctx, cancel)
	p := &Pending{
		SubjectID: subjectID,
		key:       key,
		user:      user,
		ctx:       reqCtx,
		cancel:    func() { stop(); cancel() },
		visible:   l.visible.Flipped(),
		done:      make(chan struct{}),
		createdAt: c.now(),
	}

	l.visible = p.visible
	c.versions[key]++
	c.store.Replace(key, p.visible)

	if l.inflight == nil && !l.resyncing && !l.unconfirmed {
		c.startLocked(l, p)
		return p, nil
	}

	p.queued.Store(true)
	l.queue = append(l.queue, p)
	c.emitLocked(Event{Type: EventOptimistic, SubjectID: subjectID, Status: p.visible, Busy: true})
	if l.inflight == nil && !l.resyncing {
		c.resyncLocked(l, key, subjectID)
	}
	return p, nil
}

// ToggleAndWait toggles subjectID and blocks until the server settles it.
func (c *Controller) ToggleAndWait(ctx context.Context, subjectID string) (models.Status, error) {
	p, err := c.Toggle(ctx, subjectID)
	if err != nil {
		return models.Status{}, err
	}
	<-p.Done()
	return p.Result()
}

// startLocked sends p, computing its target from the lane's confirmed status.
func (c *Controller) startLocked(l *lane, p *Pending) {
	p.queued.Store(false)
	p.from = l.confirmed
	p.target = l.confirmed.Flipped()
	p.startedAt = c.now()
	l.inflight = p

	l.visible = p.target
	c.store.Replace(p.key, p.target)
	c.emitLocked(Event{Type: EventOptimistic, SubjectID: p.SubjectID, Status: l.visible, Busy: true})
	c.metrics.started(c.kind)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.remote.Set(p.ctx, p.SubjectID, p.target.Active)
		c.settle(l, p, err)
	}()
}

type settledToggle struct {
	p   *Pending
	rec models.ToggleRecord
	ran bool
}

func (c *Controller) settle(l *lane, p *Pending, err error) {
	c.mu.Lock()
	settledAt := c.now()
	confirmed := false

	l.inflight = nil
	c.versions[p.key]++

	switch {
	case p.ctx.Err() != nil || c.closed:
		if err == nil {
			err = context.Canceled
		}
		p.outcome, p.result, p.err = models.OutcomeDiscarded, l.confirmed, err
		l.unconfirmed = true
		c.rollbackLocked(l, p, EventDiscarded, nil)
	case err != nil:
		p.outcome, p.result, p.err = models.OutcomeRolledBack, l.confirmed, err
		c.rollbackLocked(l, p, EventRolledBack, err)
		c.logger.Warn("toggle rolled back", "subject", p.SubjectID, "err", err)
	default:
		l.confirmed, l.confirmedAt = p.target, settledAt
		l.visible = p.target
		c.store.Set(p.key, p.target)
		p.outcome, p.result = models.OutcomeConfirmed, p.target
		confirmed = true
		c.emitLocked(Event{Type: EventConfirmed, SubjectID: p.SubjectID, Status: p.target, Busy: len(l.queue) > 0})
	}

	finished := []settledToggle{{p: p, rec: p.record(c.kind, settledAt), ran: true}}
	finished = append(finished, c.advanceLocked(l, p.key, p.SubjectID, settledAt)...)
	c.mu.Unlock()

	if confirmed && c.inv != nil && len(c.aggregates) > 0 {
		c.inv.Invalidate(c.aggregates...)
	}
	c.finish(finished)
}

// advanceLocked starts the next queued toggle of l, dropping cancelled ones on the way. A lane whose
// last request was abandoned after sending is resynced from the server first, so the next target is
// computed from the real outcome.
func (c *Controller) advanceLocked(l *lane, key, subjectID string, at time.Time) []settledToggle {
	finished := []settledToggle{}
	for len(l.queue) > 0 {
		next := l.queue[0]
		if next.ctx.Err() != nil || c.closed {
			l.queue = l.queue[1:]
			finished = append(finished, c.dropLocked(l, next, models.OutcomeDiscarded, context.Canceled, at))
			continue
		}
		if l.unconfirmed {
			c.resyncLocked(l, key, subjectID)
			break
		}
		l.queue = l.queue[1:]
		c.startLocked(l, next)
		break
	}
	c.pruneLocked(key)
	return finished
}

// dropLocked settles a queued toggle that never sent a request.
func (c *Controller) dropLocked(l *lane, p *Pending, outcome models.Outcome, err error, at time.Time) settledToggle {
	p.from, p.target = l.confirmed, l.confirmed
	p.outcome, p.result, p.err = outcome, l.confirmed, err
	return settledToggle{p: p, rec: p.record(c.kind, at)}
}

// resyncLocked fetches the server status of l in the background, then resumes its queue from it.
// When the fetch fails the queued toggles are rolled back without sending.
func (c *Controller) resyncLocked(l *lane, key, subjectID string) {
	l.resyncing = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		status, err := c.remote.Fetch(c.ctx, subjectID)

		c.mu.Lock()
		at := c.now()
		l.resyncing = false
		c.versions[key]++

		finished := []settledToggle{}
		if err != nil || c.closed {
			outcome := models.OutcomeRolledBack
			if c.closed {
				outcome, err = models.OutcomeDiscarded, context.Canceled
			}
			head := l.queue[0]
			for _, next := range l.queue {
				finished = append(finished, c.dropLocked(l, next, outcome, err, at))
			}
			l.queue = nil
			c.rollbackLocked(l, head, EventRolledBack, err)
			c.logger.Warn("queued toggles dropped, status unknown", "subject", subjectID, "err", err)
			c.pruneLocked(key)
		} else {
			status = status.Normalized()
			status.Kind, status.SubjectID = c.kind, subjectID
			l.confirmed, l.confirmedAt, l.unconfirmed = status, at, false
			l.visible = status
			c.store.Set(key, status)
			c.emitLocked(Event{Type: EventRefreshed, SubjectID: subjectID, Status: status, Busy: true})
			finished = c.advanceLocked(l, key, subjectID, at)
		}
		c.mu.Unlock()
		c.finish(finished)
	}()
}

// finish records settled toggles and wakes their waiters. Called without the mutex.
func (c *Controller) finish(finished []settledToggle) {
	for _, f := range finished {
		f.p.cancel()
		c.metrics.settled(c.kind, f.p.outcome, f.rec.Duration(), f.ran)
		if c.journal != nil {
			rec := f.rec
			rec.ID = shared.GenerateID()
			if err := c.journal.Append(context.Background(), rec); err != nil {
				c.logger.Error("failed to journal toggle", "subject", rec.SubjectID, "err", err)
			}
		}
		close(f.p.done)
	}
}

func (c *Controller) beginReadLocked(key string) uint64 {
	c.reads[key]++
	return c.versions[key]
}

func (c *Controller) endReadLocked(key string) {
	c.reads[key]--
	if c.reads[key] <= 0 {
		delete(c.reads, key)
	}
	c.pruneLocked(key)
}

// pruneLocked forgets the lane and version of key once nothing is pending or reading it.
func (c *Controller) pruneLocked(key string) {
	if l := c.lanes[key]; l != nil {
		if l.busy() {
			return
		}
		if l.unconfirmed {
			c.unsure[key] = true
		}
		delete(c.lanes, key)
	}
	if c.reads[key] == 0 && !c.refreshing[key] {
		delete(c.versions, key)
	}
}

// rollbackLocked restores the last confirmed status and marks it stale so the next read refetches it.
func (c *Controller) rollbackLocked(l *lane, p *Pending, typ EventType, err error) {
	l.visible = l.confirmed
	c.store.Put(p.key, store.Entry[models.Status]{Value: l.confirmed, FetchedAt: l.confirmedAt, Stale: true})
	c.emitLocked(Event{Type: typ, SubjectID: p.SubjectID, Status: l.confirmed, Busy: len(l.queue) > 0, Err: err})
}

func (c *Controller) emitLocked(ev Event) {
	if c.closed {
		return
	}
	ev.Kind = c.kind
	ev.At = c.now()
	select {
	case c.events <- ev:
	default:
		c.metrics.dropped()
	}
}

// Close cancels in-flight requests and background refreshes, waits for them to settle and
// closes the event channel. Results arriving after Close are discarded.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	close(c.events)
	return nil
}

type nilWriter struct{}

func (nilWriter) Write(p []byte) (int, error) { return len(p), nil }
