package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type result struct {
	id    string
	value int
	err   error
}

type recorder struct {
	mu      sync.Mutex
	results []result
}

func (r *recorder) record(id string, value int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result{id, value, err})
}

func (r *recorder) all() []result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]result(nil), r.results...)
}

func newRunner(t *testing.T, rec *recorder) *Runner[int] {
	t.Helper()
	r := NewRunner[int](OnResult(rec.record), WithRunnerLogger[int](zaptest.NewLogger(t)))
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Stop() })
	return r
}

func value(v int) Func[int] {
	return func(context.Context) (int, error) { return v, nil }
}

func TestRunnerDeliversResult(t *testing.T) {
	rec := &recorder{}
	r := newRunner(t, rec)

	h := r.Submit(value(7))
	got, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.False(t, h.Superseded())

	require.Len(t, rec.all(), 1)
	assert.Equal(t, result{h.ID(), 7, nil}, rec.all()[0])
}

func TestRunnerDeliversError(t *testing.T) {
	rec := &recorder{}
	r := newRunner(t, rec)
	boom := errors.New("boom")

	h := r.Submit(func(context.Context) (int, error) { return 0, boom })
	_, err := h.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
	require.Len(t, rec.all(), 1)
	assert.ErrorIs(t, rec.all()[0].err, boom)
}

func TestRunnerSupersedesInFlightTask(t *testing.T) {
	rec := &recorder{}
	r := newRunner(t, rec)

	started := make(chan struct{})
	release := make(chan struct{})
	first := r.Submit(func(context.Context) (int, error) {
		close(started)
		<-release
		return 1, nil
	})
	<-started

	second := r.Submit(value(2))
	close(release)

	_, err := first.Wait(context.Background())
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.True(t, first.Superseded())

	got, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	// Only the current task reaches the callback.
	results := rec.all()
	require.Len(t, results, 1)
	assert.Equal(t, second.ID(), results[0].id)
}

func TestRunnerDropsQueuedTask(t *testing.T) {
	rec := &recorder{}
	r := newRunner(t, rec)

	started := make(chan struct{})
	release := make(chan struct{})
	blocker := r.Submit(func(context.Context) (int, error) {
		close(started)
		<-release
		return 0, nil
	})
	<-started

	ran := make(chan struct{}, 1)
	queued := r.Submit(func(context.Context) (int, error) {
		ran <- struct{}{}
		return 1, nil
	})
	latest := r.Submit(value(3))

	// The queued task is dropped without running.
	_, err := queued.Wait(context.Background())
	assert.ErrorIs(t, err, ErrSuperseded)

	close(release)
	got, err := latest.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Empty(t, ran)

	_, err = blocker.Wait(context.Background())
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, latest, r.Current())
	assert.Len(t, rec.all(), 1)
}

func TestRunnerSubmitBeforeStart(t *testing.T) {
	r := NewRunner[int]()
	h := r.Submit(value(5))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	got, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner[int]()
	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.IsRunning())

	started := make(chan struct{})
	inFlight := r.Submit(func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	<-started
	queued := r.Submit(value(1))

	require.NoError(t, r.Stop())
	assert.False(t, r.IsRunning())
	require.NoError(t, r.Stop())

	_, err := queued.Wait(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	_, err = inFlight.Wait(context.Background())
	assert.ErrorIs(t, err, ErrSuperseded)
}
