// Package worker runs short blocking tasks on a fixed set of goroutines shared by the whole
// process. Callers hand in a batch and wait for every result; each task gets its own deadline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/logging"
	"github.com/AdamBeresnev/yumcup/internal/metrics"
)

var (
	ErrPoolClosed     = errors.New("worker pool is shut down")
	ErrTaskTimeout    = errors.New("task timed out")
	ErrForcedShutdown = errors.New("worker pool shutdown grace period expired, tasks cancelled")
)

// PanicError is returned for a task that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

type Config struct {
	Workers       int
	QueueSize     int
	TaskTimeout   time.Duration
	ShutdownGrace time.Duration
}

func DefaultConfig() Config {
	workers := runtime.NumCPU() * 2
	return Config{
		Workers:       workers,
		QueueSize:     workers * 4,
		TaskTimeout:   5 * time.Second,
		ShutdownGrace: 60 * time.Second,
	}
}

type job struct {
	ctx context.Context
	run func(ctx context.Context)
}

type Pool struct {
	cfg  Config
	jobs chan job

	// cancelled to force running tasks to stop
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	inflight sync.WaitGroup
	workers  sync.WaitGroup
}

func New(cfg Config) *Pool {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 4
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = def.ShutdownGrace
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:    cfg,
		jobs:   make(chan job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	p.workers.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}

	logging.Info().Int("workers", cfg.Workers).Dur("task_timeout", cfg.TaskTimeout).Msg("Worker pool started")
	return p
}

func (p *Pool) worker() {
	defer p.workers.Done()
	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	defer p.inflight.Done()
	defer metrics.WorkerPoolQueued.Dec()

	ctx, cancel := context.WithTimeout(j.ctx, p.cfg.TaskTimeout)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	j.run(ctx)
}

// Submit queues fn. It blocks while the queue is full and fails once the pool is shutting down.
// fn receives a context bounded by the task timeout.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.inflight.Add(1)
	p.mu.RUnlock()

	metrics.WorkerPoolQueued.Inc()
	select {
	case p.jobs <- job{ctx: ctx, run: fn}:
		return nil
	case <-ctx.Done():
	case <-p.ctx.Done():
	}

	metrics.WorkerPoolQueued.Dec()
	p.inflight.Done()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return ErrPoolClosed
}

// Shutdown stops accepting work and waits for queued and running tasks. Once the grace period
// (or ctx) runs out, every task still running has its context cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(drained)
	}()

	grace := time.NewTimer(p.cfg.ShutdownGrace)
	defer grace.Stop()

	var err error
	select {
	case <-drained:
	case <-grace.C:
		err = ErrForcedShutdown
	case <-ctx.Done():
		err = ErrForcedShutdown
	}

	if err != nil {
		logging.Warn().Msg("Worker pool did not drain in time, cancelling running tasks")
		p.cancel()
		<-drained
	}

	close(p.jobs)
	p.workers.Wait()
	p.cancel()

	logging.Info().Msg("Worker pool stopped")
	return err
}

// Task is one unit of work in a batch.
type Task[T any] func(ctx context.Context) (T, error)

type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// RunBatch submits every task and returns once all of them have finished, results in task order.
// A task that cannot be submitted reports the submission error, as ErrTaskTimeout when ctx
// expired first.
func RunBatch[T any](ctx context.Context, p *Pool, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		err := p.Submit(ctx, func(taskCtx context.Context) {
			defer wg.Done()
			v, err := execute(taskCtx, task)
			results[i] = Result[T]{Index: i, Value: v, Err: err}
		})
		if err != nil {
			// The batch deadline ran out while waiting for a queue slot
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %w", ErrTaskTimeout, err)
			}
			results[i] = Result[T]{Index: i, Err: err}
			wg.Done()
		}
	}
	wg.Wait()

	return results
}

// execute runs task and stops waiting for it when ctx ends, so a task that ignores its
// context cannot hold up the batch.
func execute[T any](ctx context.Context, task Task[T]) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
		}()
		v, err := task(ctx)
		done <- outcome{v: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			o.err = fmt.Errorf("%w: %w", ErrTaskTimeout, o.err)
		}
		return o.v, o.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTaskTimeout
		}
		return zero, ctx.Err()
	}
}
