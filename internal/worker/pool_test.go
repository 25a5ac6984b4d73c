package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p := New(cfg)
	t.Cleanup(func() { p.Shutdown(context.Background()) })
	return p
}

func TestRunBatchKeepsOrder(t *testing.T) {
	p := newTestPool(t, Config{Workers: 4, TaskTimeout: time.Second})

	tasks := make([]Task[int], 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (int, error) {
			time.Sleep(time.Duration(20-i) * time.Millisecond)
			return i * i, nil
		}
	}

	results := RunBatch(context.Background(), p, tasks)
	require.Len(t, results, 20)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, i, r.Index)
		assert.Equal(t, i*i, r.Value)
	}
}

func TestRunBatchBoundsConcurrency(t *testing.T) {
	p := newTestPool(t, Config{Workers: 3, TaskTimeout: time.Second})

	var running, peak atomic.Int32
	tasks := make([]Task[struct{}], 12)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (struct{}, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return struct{}{}, nil
		}
	}

	RunBatch(context.Background(), p, tasks)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

func TestTaskTimeout(t *testing.T) {
	p := newTestPool(t, Config{Workers: 2, TaskTimeout: 20 * time.Millisecond})

	tasks := []Task[string]{
		func(ctx context.Context) (string, error) { return "quick", nil },
		func(ctx context.Context) (string, error) {
			// ignores its context entirely
			time.Sleep(500 * time.Millisecond)
			return "late", nil
		},
		func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}

	start := time.Now()
	results := RunBatch(context.Background(), p, tasks)
	assert.Less(t, time.Since(start), 400*time.Millisecond, "the batch does not wait for a stuck task")

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "quick", results[0].Value)
	assert.ErrorIs(t, results[1].Err, ErrTaskTimeout)
	assert.ErrorIs(t, results[2].Err, ErrTaskTimeout)
}

func TestTaskPanic(t *testing.T) {
	p := newTestPool(t, Config{Workers: 1, TaskTimeout: time.Second})

	results := RunBatch(context.Background(), p, []Task[int]{
		func(ctx context.Context) (int, error) { panic("boom") },
		func(ctx context.Context) (int, error) { return 7, nil },
	})

	var panicErr *PanicError
	require.ErrorAs(t, results[0].Err, &panicErr)
	assert.Equal(t, "boom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)

	require.NoError(t, results[1].Err, "a panic does not take the worker down")
	assert.Equal(t, 7, results[1].Value)
}

func TestTaskErrorIsKept(t *testing.T) {
	p := newTestPool(t, Config{Workers: 1, TaskTimeout: time.Second})
	sentinel := errors.New("upstream said no")

	results := RunBatch(context.Background(), p, []Task[int]{
		func(ctx context.Context) (int, error) { return 0, sentinel },
	})
	assert.ErrorIs(t, results[0].Err, sentinel)
	assert.NotErrorIs(t, results[0].Err, ErrTaskTimeout)
}

func TestShutdownRejectsNewWork(t *testing.T) {
	p := New(Config{Workers: 1, TaskTimeout: time.Second, ShutdownGrace: time.Second})
	require.NoError(t, p.Shutdown(context.Background()))

	err := p.Submit(context.Background(), func(context.Context) {})
	assert.ErrorIs(t, err, ErrPoolClosed)

	results := RunBatch(context.Background(), p, []Task[int]{
		func(ctx context.Context) (int, error) { return 1, nil },
	})
	assert.ErrorIs(t, results[0].Err, ErrPoolClosed)

	assert.NoError(t, p.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestShutdownWaitsForRunningTasks(t *testing.T) {
	p := New(Config{Workers: 2, TaskTimeout: time.Second, ShutdownGrace: time.Second})

	var finished atomic.Bool
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		RunBatch(context.Background(), p, []Task[int]{
			func(ctx context.Context) (int, error) {
				close(started)
				time.Sleep(50 * time.Millisecond)
				finished.Store(true)
				return 1, nil
			},
		})
	}()

	<-started
	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, finished.Load())
	wg.Wait()
}

func TestShutdownForcesCancellationAfterGrace(t *testing.T) {
	p := New(Config{Workers: 1, TaskTimeout: time.Hour, ShutdownGrace: 30 * time.Millisecond})

	started := make(chan struct{})
	var results []Result[int]
	done := make(chan struct{})
	go func() {
		defer close(done)
		results = RunBatch(context.Background(), p, []Task[int]{
			func(ctx context.Context) (int, error) {
				close(started)
				<-ctx.Done()
				return 0, ctx.Err()
			},
		})
	}()

	<-started
	err := p.Shutdown(context.Background())
	assert.ErrorIs(t, err, ErrForcedShutdown)

	<-done
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func TestSubmitHonoursCallerContext(t *testing.T) {
	p := newTestPool(t, Config{Workers: 1, QueueSize: 1, TaskTimeout: time.Second})

	block := make(chan struct{})
	defer close(block)
	// occupy the worker and fill the queue
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { <-block }))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunBatchQueueWaitPastDeadlineIsTimeout(t *testing.T) {
	p := newTestPool(t, Config{Workers: 1, QueueSize: 1, TaskTimeout: time.Second})

	block := make(chan struct{})
	defer close(block)
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { <-block }))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results := RunBatch(ctx, p, []Task[int]{
		func(context.Context) (int, error) { return 1, nil },
	})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrTaskTimeout)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.TaskTimeout)
	assert.Equal(t, 60*time.Second, cfg.ShutdownGrace)
}
