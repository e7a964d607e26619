package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Sentinel errors for worker pool operations.
var (
	// ErrPoolAlreadyStarted indicates Start() was called on an already-started pool.
	ErrPoolAlreadyStarted = errors.New("worker pool already started")

	// ErrStopTimeout indicates the pool didn't stop within the timeout.
	ErrStopTimeout = errors.New("timeout waiting for workers to stop")
)

// Pool runs modifier computations on a fixed number of goroutines.
//
// The pool is an explicit resource owned by a dataset; nothing in the
// engine starts goroutines behind the caller's back. Jobs submitted before
// Start wait in the queue. The queue is unbounded because evaluation work
// must never be dropped while the pool is open.
type Pool struct {
	workers int
	queue   *jobQueue
	metrics *Metrics
	logger  *slog.Logger
	wg      sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	panicked  atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolMetrics records queue depth and job counts.
func WithPoolMetrics(m *Metrics) PoolOption {
	return func(p *Pool) {
		p.metrics = m
	}
}

// WithPoolLogger sets the logger used for panicking jobs.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = l
	}
}

// NewPool creates a pool with the given number of workers.
// workers <= 0 means one worker per CPU.
func NewPool(workers int, opts ...PoolOption) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		workers: workers,
		queue:   newJobQueue(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }

// Submit enqueues fn. Jobs submitted after Stop are dropped and logged.
func (p *Pool) Submit(fn func()) {
	if !p.queue.Enqueue(fn) {
		p.logger.Warn("worker pool stopped, job dropped")
		return
	}
	p.submitted.Add(1)
	p.metrics.poolDepth(p.queue.Len())
}

// Start launches the workers. They exit when ctx is cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.started = true
	return nil
}

// Stop closes the queue and waits up to timeout for queued jobs to finish.
func (p *Pool) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.stopped {
		return nil
	}
	p.queue.Close()
	if !p.started {
		p.stopped = true
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		p.stopped = true
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// PoolStats represents worker pool statistics.
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Panicked   int64 `json:"panicked"`
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueDepth: p.queue.Len(),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Panicked:   p.panicked.Load(),
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		if job, ok := p.queue.TryDequeue(); ok {
			p.metrics.poolDepth(p.queue.Len())
			p.run(job)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case _, open := <-p.queue.Wait():
			if !open && p.queue.Len() == 0 {
				return
			}
		}
	}
}

func (p *Pool) run(job func()) {
	panicked := false
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			p.panicked.Add(1)
			p.logger.Error("worker pool job panicked", "panic", fmt.Sprint(r))
		}
		p.processed.Add(1)
		p.metrics.poolJobDone(panicked)
	}()
	job()
}
