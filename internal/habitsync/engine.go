// Package habitsync reconciles the local event slot with the
// authoritative remote store: optimistic local commits, push of pending
// writes, full pull that replaces local state with server truth, and
// connectivity-driven state transitions.
package habitsync

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AryanShah2000/HabitTracker/internal/habit"
	"github.com/AryanShah2000/HabitTracker/internal/localstore"
)

type State string

const (
	StateOffline    State = "offline"
	StateOnlineIdle State = "online-idle"
	StateSyncing    State = "syncing"
)

// Gateway is the remote transport. Implementations do not retry; the
// engine owns retry policy.
type Gateway interface {
	FetchAll(ctx context.Context) ([]habit.ActivityEvent, error)
	Create(ctx context.Context, event habit.ActivityEvent) (habit.ActivityEvent, error)
	Update(ctx context.Context, id string, event habit.ActivityEvent) (habit.ActivityEvent, error)
	Delete(ctx context.Context, id string) error
	IsReachable(ctx context.Context) bool
}

type Options struct {
	Store   *localstore.Store
	Gateway Gateway
	Catalog habit.Catalog
	Logger  logrus.FieldLogger

	// Bounded retry for sync-cycle calls. Interactive writes attempt the
	// network once and defer to the next cycle on failure.
	MaxSyncAttempts int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration

	Now func() time.Time
}

type Engine struct {
	store   *localstore.Store
	gateway Gateway
	catalog habit.Catalog
	logger  logrus.FieldLogger

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	now         func() time.Time

	// generation tags each resync so a slow stale fetch cannot clobber
	// the result of a newer one.
	generation atomic.Uint64

	// syncMu single-flights the push+pull cycle. Overlapping resync
	// triggers must not both drain the pending lists: a create pushed
	// twice becomes two server events that sum into the day total.
	syncMu sync.Mutex

	mu     sync.Mutex
	state  State
	lastID int64
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	catalog := opts.Catalog
	if catalog.Len() == 0 {
		catalog = habit.DefaultCatalog()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	maxAttempts := opts.MaxSyncAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := opts.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:       opts.Store,
		gateway:     opts.Gateway,
		catalog:     catalog,
		logger:      logger,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		now:         now,
		state:       StateOffline,
	}, nil
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Catalog() habit.Catalog {
	return e.catalog
}

// Events returns the current local snapshot. Aggregation is computed by
// callers over this snapshot; nothing here is cached.
func (e *Engine) Events() []habit.ActivityEvent {
	return e.store.Events()
}

// Start loads the slot and attempts an initial reconciliation. Local
// data is served either way.
func (e *Engine) Start(ctx context.Context) {
	e.store.Load()
	if !e.gateway.IsReachable(ctx) {
		e.setState(StateOffline)
		return
	}
	if err := e.SyncNow(ctx); err != nil {
		e.logger.WithError(err).Warn("initial sync failed, serving local data")
	}
}

// Log commits a new event locally first, then pushes it when online.
// Transport failure is not user-visible: the write already succeeded
// locally and syncs later.
func (e *Engine) Log(ctx context.Context, event habit.ActivityEvent) (habit.ActivityEvent, error) {
	if err := event.Validate(e.catalog); err != nil {
		return habit.ActivityEvent{}, err
	}
	e.mu.Lock()
	if event.ID == "" {
		event.ID = e.newClientIDLocked()
	}
	if event.Timestamp == "" {
		event.Timestamp = e.now().UTC().Format(time.RFC3339)
	}
	e.store.UpsertLocal(event)
	e.store.MarkPendingCreate(event.ID)
	online := e.state == StateOnlineIdle
	e.mu.Unlock()

	if !online {
		return event, nil
	}
	return e.pushCreate(ctx, event)
}

// Update amends an event in place; identity and creation instant are
// preserved.
func (e *Engine) Update(ctx context.Context, id string, updated habit.ActivityEvent) (habit.ActivityEvent, error) {
	id = e.store.Resolve(id)
	current, ok := e.store.Get(id)
	if !ok {
		return habit.ActivityEvent{}, &habit.NotFoundError{ID: id}
	}
	updated.ID = id
	if updated.Timestamp == "" {
		updated.Timestamp = current.Timestamp
	}
	if err := updated.Validate(e.catalog); err != nil {
		return habit.ActivityEvent{}, err
	}

	e.mu.Lock()
	e.store.UpsertLocal(updated)
	pending := e.store.Pending()
	unpushedCreate := containsID(pending.Creates, id)
	if !unpushedCreate {
		e.store.MarkPendingUpdate(id)
	}
	online := e.state == StateOnlineIdle
	e.mu.Unlock()

	if !online {
		return updated, nil
	}
	if unpushedCreate {
		return e.pushCreate(ctx, updated)
	}

	pushed, err := e.gateway.Update(ctx, id, updated)
	switch {
	case err == nil:
		e.store.ClearPending(id)
		if pushed.ID != "" && pushed.ID != id {
			e.store.ReassignID(id, pushed.ID)
			updated.ID = pushed.ID
		}
		return updated, nil
	case errors.Is(err, habit.ErrNotFound):
		// Identifier gone remotely. The local edit stands; nothing left
		// to retry.
		e.store.ClearPending(id)
		return updated, err
	case errors.Is(err, habit.ErrTransport):
		e.noteTransportFailure(ctx, err)
		return updated, nil
	default:
		return updated, err
	}
}

// Delete removes an event locally and remotely. Deleting an event whose
// create never reached the server needs no remote call at all.
func (e *Engine) Delete(ctx context.Context, id string) error {
	id = e.store.Resolve(id)
	if _, ok := e.store.Get(id); !ok {
		return &habit.NotFoundError{ID: id}
	}

	e.mu.Lock()
	pending := e.store.Pending()
	unpushedCreate := containsID(pending.Creates, id)
	e.store.RemoveLocal(id)
	if unpushedCreate {
		e.store.ClearPending(id)
		e.mu.Unlock()
		return nil
	}
	e.store.MarkPendingDelete(id)
	online := e.state == StateOnlineIdle
	e.mu.Unlock()

	if !online {
		return nil
	}
	err := e.gateway.Delete(ctx, id)
	switch {
	case err == nil:
		e.store.ClearPending(id)
		return nil
	case errors.Is(err, habit.ErrNotFound):
		e.store.ClearPending(id)
		return err
	case errors.Is(err, habit.ErrTransport):
		e.noteTransportFailure(ctx, err)
		return nil
	default:
		return err
	}
}

// SyncNow runs one full reconciliation: push pending writes, then pull
// server truth and replace the slot with it. A transport failure demotes
// to Offline only when the network is actually unreachable; a transient
// server error keeps the engine online and surfaces the error.
func (e *Engine) SyncNow(ctx context.Context) error {
	gen := e.generation.Add(1)
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	if gen != e.generation.Load() {
		// Another resync queued up behind the running cycle; let the
		// newest one do the work instead of repeating it.
		return nil
	}
	e.setState(StateSyncing)
	err := e.syncOnce(ctx, gen)
	if gen != e.generation.Load() {
		// A newer resync superseded this one and owns the state machine.
		return nil
	}
	if err != nil {
		if errors.Is(err, habit.ErrTransport) && !e.gateway.IsReachable(ctx) {
			e.setState(StateOffline)
		} else {
			e.setState(StateOnlineIdle)
		}
		return err
	}
	e.setState(StateOnlineIdle)
	return nil
}

// HandleConnectivity reacts to a connectivity transition. Regaining the
// network triggers a full resync; losing it demotes immediately.
func (e *Engine) HandleConnectivity(ctx context.Context, online bool) error {
	if !online {
		e.setState(StateOffline)
		return nil
	}
	return e.SyncNow(ctx)
}

// Resync is the shared handler for the remaining divergence guards:
// window focus, document visibility, slot rewrites by another process,
// and server change notifications.
func (e *Engine) Resync(ctx context.Context, reason string) error {
	e.logger.WithField("reason", reason).Debug("resync requested")
	if e.State() == StateOffline && !e.gateway.IsReachable(ctx) {
		return nil
	}
	return e.SyncNow(ctx)
}

func (e *Engine) syncOnce(ctx context.Context, gen uint64) error {
	if err := e.pushPending(ctx); err != nil {
		return err
	}
	var events []habit.ActivityEvent
	err := e.withRetry(ctx, func(ctx context.Context) error {
		var fetchErr error
		events, fetchErr = e.gateway.FetchAll(ctx)
		return fetchErr
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation.Load() {
		// Stale response; a newer resync already applied fresher truth.
		return nil
	}
	e.applyServerTruthLocked(events)
	return nil
}

// pushPending drains writes that never reached the server, in the order
// create, update, delete. Order across the offline transition is not
// guaranteed, but nothing is dropped.
func (e *Engine) pushPending(ctx context.Context) error {
	pending := e.store.Pending()

	for _, id := range pending.Creates {
		event, ok := e.store.Get(id)
		if !ok {
			e.store.ClearPending(id)
			continue
		}
		var pushed habit.ActivityEvent
		err := e.withRetry(ctx, func(ctx context.Context) error {
			var createErr error
			pushed, createErr = e.gateway.Create(ctx, event)
			return createErr
		})
		if err != nil {
			return err
		}
		e.store.ClearPending(id)
		if pushed.ID != "" && pushed.ID != id {
			e.store.ReassignID(id, pushed.ID)
		}
	}

	for _, id := range pending.Updates {
		event, ok := e.store.Get(id)
		if !ok {
			e.store.ClearPending(id)
			continue
		}
		err := e.withRetry(ctx, func(ctx context.Context) error {
			_, updateErr := e.gateway.Update(ctx, id, event)
			return updateErr
		})
		if errors.Is(err, habit.ErrNotFound) {
			e.logger.WithField("id", id).Warn("pending edit targets an activity the server no longer has")
			e.store.ClearPending(id)
			continue
		}
		if err != nil {
			return err
		}
		e.store.ClearPending(id)
	}

	for _, id := range pending.Deletes {
		err := e.withRetry(ctx, func(ctx context.Context) error {
			return e.gateway.Delete(ctx, id)
		})
		if errors.Is(err, habit.ErrNotFound) {
			e.store.ClearPending(id)
			continue
		}
		if err != nil {
			return err
		}
		e.store.ClearPending(id)
	}
	return nil
}

// applyServerTruthLocked replaces the slot with the fetched set: last
// fetch wins at the granularity of the whole set. Events still pending
// push keep their local version; identifiers pending delete stay gone.
func (e *Engine) applyServerTruthLocked(serverEvents []habit.ActivityEvent) {
	pending := e.store.Pending()
	keepLocal := map[string]bool{}
	for _, id := range pending.Creates {
		keepLocal[id] = true
	}
	for _, id := range pending.Updates {
		keepLocal[id] = true
	}
	dropped := map[string]bool{}
	for _, id := range pending.Deletes {
		dropped[id] = true
	}

	merged := make([]habit.ActivityEvent, 0, len(serverEvents))
	for _, event := range serverEvents {
		if dropped[event.ID] || keepLocal[event.ID] {
			continue
		}
		merged = append(merged, event)
	}
	for _, event := range e.store.Events() {
		if keepLocal[event.ID] {
			merged = append(merged, event)
		}
	}
	e.store.Replace(merged)
}

func (e *Engine) pushCreate(ctx context.Context, event habit.ActivityEvent) (habit.ActivityEvent, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	id := e.store.Resolve(event.ID)
	if !containsID(e.store.Pending().Creates, id) {
		// A sync cycle drained this create while we waited for the lock.
		if current, ok := e.store.Get(id); ok {
			return current, nil
		}
		return event, nil
	}
	event.ID = id
	pushed, err := e.gateway.Create(ctx, event)
	switch {
	case err == nil:
		e.store.ClearPending(event.ID)
		if pushed.ID != "" && pushed.ID != event.ID {
			e.store.ReassignID(event.ID, pushed.ID)
			event.ID = pushed.ID
		}
		if pushed.Timestamp != "" && pushed.Timestamp != event.Timestamp {
			event.Timestamp = pushed.Timestamp
			e.store.UpsertLocal(event)
		}
		return event, nil
	case errors.Is(err, habit.ErrTransport):
		e.noteTransportFailure(ctx, err)
		return event, nil
	default:
		return event, err
	}
}

func (e *Engine) noteTransportFailure(ctx context.Context, err error) {
	e.logger.WithError(err).Debug("push deferred, keeping local copy")
	if !e.gateway.IsReachable(ctx) {
		e.setState(StateOffline)
	}
}

func (e *Engine) setState(state State) {
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
}

// newClientIDLocked issues a monotonic-ish creation-time identifier,
// bumping past collisions from same-millisecond writes.
func (e *Engine) newClientIDLocked() string {
	candidate := e.now().UnixMilli()
	if candidate <= e.lastID {
		candidate = e.lastID + 1
	}
	for {
		id := strconv.FormatInt(candidate, 10)
		if _, exists := e.store.Get(id); !exists {
			e.lastID = candidate
			return id
		}
		candidate++
	}
}

func (e *Engine) withRetry(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			if waitErr := waitWithContext(ctx, e.retryDelay(attempt)); waitErr != nil {
				return waitErr
			}
		}
		err = op(ctx)
		if err == nil || !errors.Is(err, habit.ErrTransport) {
			return err
		}
	}
	return err
}

func (e *Engine) retryDelay(attempt int) time.Duration {
	delay := e.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= e.maxDelay {
			return e.maxDelay
		}
	}
	if delay > e.maxDelay {
		return e.maxDelay
	}
	return delay
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func containsID(list []string, id string) bool {
	for _, existing := range list {
		if existing == id {
			return true
		}
	}
	return false
}
