// Package task runs background loads, periodic refreshes and file watches.
package task

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrSuperseded is returned by Handle.Wait when a newer task was submitted
	// before this one delivered its result.
	ErrSuperseded = errors.New("task superseded")

	// ErrStopped is returned by Handle.Wait when the runner stopped before the task ran.
	ErrStopped = errors.New("runner stopped")
)

// Func is a unit of background work.
type Func[T any] func(ctx context.Context) (T, error)

// Handle tracks one submitted task.
type Handle[T any] struct {
	id   string
	done chan struct{}

	value T
	err   error
}

func newHandle[T any]() *Handle[T] {
	return &Handle[T]{id: uuid.NewString(), done: make(chan struct{})}
}

// ID returns the unique task identifier.
func (h *Handle[T]) ID() string { return h.id }

// Done is closed once the task has a final outcome.
func (h *Handle[T]) Done() <-chan struct{} { return h.done }

// Wait blocks until the task finishes or ctx is done.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Superseded reports whether the task finished without delivering its result.
func (h *Handle[T]) Superseded() bool {
	select {
	case <-h.done:
		return errors.Is(h.err, ErrSuperseded)
	default:
		return false
	}
}

func (h *Handle[T]) finish(value T, err error) {
	h.value = value
	h.err = err
	close(h.done)
}

type job[T any] struct {
	handle *Handle[T]
	fn     Func[T]
}

// Runner executes tasks on a single worker goroutine with at most one task
// in flight. Submitting a task supersedes the previous one: a queued task is
// dropped, and a running task is allowed to finish but its result is discarded.
type Runner[T any] struct {
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	cancel  context.CancelFunc
	wakeCh  chan struct{}

	pending *job[T]
	current *Handle[T]

	onResult func(id string, value T, err error)
	logger   *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption[T any] func(*Runner[T])

// OnResult registers a callback invoked on the worker goroutine with the
// outcome of every task that was still current when it finished. The callback
// returns before the task's handle is marked done.
func OnResult[T any](fn func(id string, value T, err error)) RunnerOption[T] {
	return func(r *Runner[T]) {
		r.onResult = fn
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger[T any](logger *zap.Logger) RunnerOption[T] {
	return func(r *Runner[T]) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a stopped runner.
func NewRunner[T any](opts ...RunnerOption[T]) *Runner[T] {
	r := &Runner[T]{
		wakeCh: make(chan struct{}, 1),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the worker goroutine. Tasks submitted before Start run once it starts.
func (r *Runner[T]) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.run(runCtx, r.stopCh, r.doneCh)
	r.logger.Debug("runner started")
	return nil
}

// Stop cancels the in-flight task's context, waits for the worker to exit and
// fails any queued task with ErrStopped.
func (r *Runner[T]) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	stopCh, doneCh, cancel := r.stopCh, r.doneCh, r.cancel
	r.mu.Unlock()

	close(stopCh)
	cancel()
	<-doneCh

	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()
	if pending != nil {
		var zero T
		pending.handle.finish(zero, ErrStopped)
	}

	r.logger.Debug("runner stopped")
	return nil
}

// IsRunning returns whether the worker goroutine is active.
func (r *Runner[T]) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Submit queues fn and supersedes any earlier task.
func (r *Runner[T]) Submit(fn Func[T]) *Handle[T] {
	h := newHandle[T]()

	r.mu.Lock()
	dropped := r.pending
	r.pending = &job[T]{handle: h, fn: fn}
	r.current = h
	r.mu.Unlock()

	if dropped != nil {
		var zero T
		dropped.handle.finish(zero, ErrSuperseded)
		r.logger.Debug("queued task dropped", zap.String("task", dropped.handle.id))
	}

	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
	return h
}

// Current returns the most recently submitted handle, or nil.
func (r *Runner[T]) Current() *Handle[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Runner[T]) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-r.wakeCh:
		}
		if ctx.Err() != nil {
			return
		}

		r.mu.Lock()
		j := r.pending
		r.pending = nil
		r.mu.Unlock()
		if j == nil {
			continue
		}

		r.execute(ctx, j)
	}
}

func (r *Runner[T]) execute(ctx context.Context, j *job[T]) {
	r.logger.Debug("task started", zap.String("task", j.handle.id))
	value, err := j.fn(ctx)

	r.mu.Lock()
	current := r.current == j.handle
	r.mu.Unlock()

	if !current {
		var zero T
		j.handle.finish(zero, ErrSuperseded)
		r.logger.Debug("task result discarded", zap.String("task", j.handle.id))
		return
	}

	if r.onResult != nil {
		r.onResult(j.handle.id, value, err)
	}
	j.handle.finish(value, err)
	if err != nil {
		r.logger.Debug("task failed", zap.String("task", j.handle.id), zap.Error(err))
	}
}
