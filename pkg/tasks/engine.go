// Package tasks runs long operations in the background. Each task has a
// persisted record that moves pending -> processing -> completed, failed or
// cancelled. Bodies report progress and observe cancellation through a
// Reporter; nothing is ever preempted.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/internal/types"
	"github.com/xhad/ragdesk/pkg/logger"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrCancelled is returned by Reporter.Update once the task was cancelled.
	// Bodies return it (or wrap it) to stop early.
	ErrCancelled         = errors.New("task was cancelled")
	ErrInvalidTransition = errors.New("invalid task state transition")
	ErrShuttingDown      = errors.New("task engine is shutting down")
)

const (
	msgStarted   = "Task started."
	msgCompleted = "Task completed."
	msgCancelled = "Task cancelled."

	writeTimeout = 5 * time.Second
	drainTimeout = 5 * time.Second
)

// Body is the work of a task. The returned map becomes the record's result.
type Body func(ctx context.Context, rep Reporter) (map[string]any, error)

// Reporter is the capability a running body gets to talk to its record.
type Reporter interface {
	// Update writes progress and/or message. It returns ErrCancelled without
	// writing anything if the task has been cancelled.
	Update(opts ...UpdateOption) error
	IsCancelled() bool
}

type update struct {
	progress *int
	message  *string
}

type UpdateOption func(*update)

// Progress sets the percentage, clamped to [0, 100].
func Progress(p int) UpdateOption {
	return func(u *update) { u.progress = &p }
}

func Message(m string) UpdateOption {
	return func(u *update) { u.message = &m }
}

type Config struct {
	Workers int
	Now     func() time.Time
}

type Engine struct {
	store types.TaskStore
	sem   *semaphore.Weighted
	log   *logger.Logger
	now   func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	cancels map[string]context.CancelFunc
}

func NewEngine(store types.TaskStore, config Config, log *logger.Logger) *Engine {
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.Now == nil {
		config.Now = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = logger.Nop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Engine{
		store:   store,
		sem:     semaphore.NewWeighted(int64(config.Workers)),
		log:     log.With("component", "TaskEngine"),
		now:     config.Now,
		baseCtx: ctx,
		stop:    stop,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Submit stores a pending record and schedules body. It returns as soon as
// the record exists.
func (e *Engine) Submit(ctx context.Context, scope string, kind models.TaskKind, message string, body Body) (models.TaskRecord, error) {
	if !kind.Valid() {
		return models.TaskRecord{}, fmt.Errorf("unknown task kind %q", kind)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return models.TaskRecord{}, ErrShuttingDown
	}
	e.wg.Add(1)
	e.mu.Unlock()

	now := e.now()
	rec := models.TaskRecord{
		ID:        uuid.NewString(),
		Scope:     scope,
		Kind:      kind,
		Status:    models.TaskPending,
		Progress:  0,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Create(ctx, rec); err != nil {
		e.wg.Done()
		return models.TaskRecord{}, fmt.Errorf("create task: %w", err)
	}

	e.log.Info("task submitted", "task_id", rec.ID, "task_type", kind, "scope", scope)
	go e.run(rec.ID, body)
	return rec, nil
}

func (e *Engine) Get(ctx context.Context, id string) (models.TaskRecord, error) {
	return e.store.Get(ctx, id)
}

func (e *Engine) List(ctx context.Context, scope string, limit int) ([]models.TaskRecord, error) {
	return e.store.List(ctx, scope, limit)
}

// Cancel marks a pending or processing task cancelled. A running body sees
// it on its next Update or IsCancelled, and its context is cancelled.
func (e *Engine) Cancel(ctx context.Context, id string) (models.TaskRecord, error) {
	rec, err := e.store.Update(ctx, id, func(r *models.TaskRecord) error {
		if r.Status != models.TaskPending && r.Status != models.TaskProcessing {
			return fmt.Errorf("%w: task is %s", ErrInvalidTransition, r.Status)
		}
		now := e.now()
		if r.Status == models.TaskPending {
			r.FinishedAt = &now
		}
		r.Status = models.TaskCancelled
		r.Message = msgCancelled
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return rec, err
	}

	e.mu.Lock()
	if cancel, ok := e.cancels[id]; ok {
		cancel()
	}
	e.mu.Unlock()

	e.log.Info("task cancelled", "task_id", id)
	return rec, nil
}

func (e *Engine) run(id string, body Body) {
	defer e.wg.Done()

	if err := e.sem.Acquire(e.baseCtx, 1); err != nil {
		e.abandon(id)
		return
	}
	defer e.sem.Release(1)

	e.execute(id, body)
}

// writeCtx is used for lifecycle writes, which must land even after
// Shutdown has cancelled baseCtx.
func (e *Engine) writeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(e.baseCtx), writeTimeout)
}

func (e *Engine) execute(id string, body Body) {
	wctx, wcancel := e.writeCtx()
	defer wcancel()

	started := false
	_, err := e.store.Update(wctx, id, func(r *models.TaskRecord) error {
		now := e.now()
		switch r.Status {
		case models.TaskCancelled:
			if r.FinishedAt == nil {
				r.FinishedAt = &now
			}
			r.UpdatedAt = now
			return nil
		case models.TaskPending:
		default:
			return fmt.Errorf("%w: cannot start task in state %s", ErrInvalidTransition, r.Status)
		}
		r.Status = models.TaskProcessing
		r.StartedAt = &now
		if r.Message == "" {
			r.Message = msgStarted
		}
		r.UpdatedAt = now
		started = true
		return nil
	})
	if err != nil {
		e.log.Error("task could not start", "task_id", id, "error", err)
		return
	}
	if !started {
		e.log.Info("task cancelled before start", "task_id", id)
		return
	}

	ctx, cancel := context.WithCancel(e.baseCtx)
	e.mu.Lock()
	e.cancels[id] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, id)
		e.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	result, runErr := e.call(ctx, id, body)
	if runErr != nil && e.baseCtx.Err() != nil && !errors.Is(runErr, ErrCancelled) {
		runErr = fmt.Errorf("%w: %v", ErrShuttingDown, runErr)
	}
	e.finish(id, result, runErr)
	e.log.Info("task finished", "task_id", id, "took", time.Since(start), "error", runErr)
}

func (e *Engine) call(ctx context.Context, id string, body Body) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("task body panic", "task_id", id, "panic", r)
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return body(ctx, &reporter{engine: e, ctx: ctx, id: id})
}

func (e *Engine) finish(id string, result map[string]any, runErr error) {
	ctx, cancel := e.writeCtx()
	defer cancel()

	_, err := e.store.Update(ctx, id, func(r *models.TaskRecord) error {
		now := e.now()
		r.UpdatedAt = now

		// a cancel recorded while the body ran wins over whatever it returned
		if r.Status == models.TaskCancelled || errors.Is(runErr, ErrCancelled) {
			r.Status = models.TaskCancelled
			if r.FinishedAt == nil {
				r.FinishedAt = &now
			}
			return nil
		}

		r.FinishedAt = &now
		if runErr != nil {
			r.Status = models.TaskFailed
			r.Error = runErr.Error()
			return nil
		}

		if result == nil {
			result = map[string]any{}
		}
		r.Status = models.TaskCompleted
		r.Progress = 100
		r.Result = result
		r.Error = ""
		if r.Message == "" {
			r.Message = msgCompleted
		}
		return nil
	})
	if err != nil {
		e.log.Error("task result not recorded", "task_id", id, "error", err)
	}
}

// abandon fails a task that never got a worker because the engine stopped.
func (e *Engine) abandon(id string) {
	ctx, cancel := e.writeCtx()
	defer cancel()
	_, err := e.store.Update(ctx, id, func(r *models.TaskRecord) error {
		if r.Status.IsTerminal() {
			return nil
		}
		now := e.now()
		r.Status = models.TaskFailed
		r.Error = ErrShuttingDown.Error()
		r.FinishedAt = &now
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		e.log.Warn("abandoned task not recorded", "task_id", id, "error", err)
	}
}

// Shutdown stops accepting tasks and waits for scheduled ones. If ctx ends
// first, running bodies see their context cancelled and tasks still waiting
// for a worker are failed; Shutdown then waits up to drainTimeout more so
// those outcomes are recorded before the store is closed.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.stop()
		return nil
	case <-ctx.Done():
		e.stop()
	}

	select {
	case <-done:
	case <-time.After(drainTimeout):
		e.log.Warn("tasks still running after shutdown")
	}
	return ctx.Err()
}

// Watch emits the record whenever it changes, and closes the channel after
// a terminal state, on ctx end, or when the record cannot be read.
func (e *Engine) Watch(ctx context.Context, id string, interval time.Duration) <-chan models.TaskRecord {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ch := make(chan models.TaskRecord, 1)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last models.TaskRecord
		first := true
		for {
			rec, err := e.store.Get(ctx, id)
			if err != nil {
				return
			}
			if first || changed(last, rec) {
				select {
				case ch <- rec:
				case <-ctx.Done():
					return
				}
				last, first = rec, false
			}
			if rec.Status.IsTerminal() {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch
}

func changed(a, b models.TaskRecord) bool {
	return a.Status != b.Status || a.Progress != b.Progress ||
		a.Message != b.Message || !a.UpdatedAt.Equal(b.UpdatedAt)
}

type reporter struct {
	engine *Engine
	ctx    context.Context
	id     string
}

func (r *reporter) Update(opts ...UpdateOption) error {
	var u update
	for _, opt := range opts {
		opt(&u)
	}
	_, err := r.engine.store.Update(context.WithoutCancel(r.ctx), r.id, func(rec *models.TaskRecord) error {
		if rec.Status == models.TaskCancelled {
			return ErrCancelled
		}
		if u.progress != nil {
			rec.Progress = max(0, min(100, *u.progress))
		}
		if u.message != nil {
			rec.Message = *u.message
		}
		rec.UpdatedAt = r.engine.now()
		return nil
	})
	return err
}

func (r *reporter) IsCancelled() bool {
	rec, err := r.engine.store.Get(context.WithoutCancel(r.ctx), r.id)
	if err != nil {
		return false
	}
	return rec.Status == models.TaskCancelled
}
