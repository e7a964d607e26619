package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// Coordinator is the single coordinating context of a dataset.
//
// It runs submitted jobs one at a time in FIFO order. Pipeline bookkeeping
// (committing cache entries, updating statuses, sending notifications) is
// submitted here, while heavy modifier kernels run on the worker Pool.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine
//   - Run() / RunPending(): call from exactly one goroutine at a time
type Coordinator struct {
	queue  *jobQueue
	logger *slog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the logger used for job failures.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// NewCoordinator creates a coordinator. It processes nothing until Run or
// RunPending is called.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		queue:  newJobQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit enqueues fn. Jobs submitted after Stop are dropped and logged.
func (c *Coordinator) Submit(fn func()) {
	if !c.queue.Enqueue(fn) {
		c.logger.Warn("coordinator stopped, job dropped")
	}
}

// Pending returns the number of queued jobs.
func (c *Coordinator) Pending() int {
	return c.queue.Len()
}

// Run processes jobs until ctx is cancelled or Stop is called.
//
// A panicking job is logged and processing continues; the loop never dies
// because of one bad continuation.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Debug("coordinator starting")

	for {
		if job, ok := c.queue.TryDequeue(); ok {
			c.runJob(job)
			continue
		}

		select {
		case <-ctx.Done():
			c.logger.Debug("coordinator stopping: context cancelled")
			c.queue.Close()
			return ctx.Err()

		case <-c.queue.Wait():
			// The signal channel closes with the queue; drain what is left.
			if c.queue.Closed() && c.queue.Len() == 0 {
				c.logger.Debug("coordinator stopping: queue closed")
				return nil
			}
		}
	}
}

// RunPending runs queued jobs on the calling goroutine until the queue is
// empty, including jobs enqueued by the jobs themselves. It returns the
// number of jobs run.
func (c *Coordinator) RunPending() int {
	n := 0
	for {
		job, ok := c.queue.TryDequeue()
		if !ok {
			return n
		}
		c.runJob(job)
		n++
	}
}

// Stop closes the queue. Run returns once the remaining jobs are done.
func (c *Coordinator) Stop() {
	c.queue.Close()
}

func (c *Coordinator) runJob(job func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("coordinator job panicked", "panic", fmt.Sprint(r))
		}
	}()
	job()
}
