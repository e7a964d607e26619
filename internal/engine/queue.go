package engine

import "sync"

// jobQueue is a thread-safe FIFO queue of functions.
//
// The queue is unbounded: continuations of pipeline evaluations may enqueue
// follow-up work from any goroutine and must never block or be dropped
// while the queue is open.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in run loops.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []func()
	closed bool
	signal chan struct{} // buffered, size 1
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs:   make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a job to the back of the queue.
// Returns false if the queue is closed.
func (q *jobQueue) Enqueue(job func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.jobs = append(q.jobs, job)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front job without blocking.
func (q *jobQueue) TryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}

	job := q.jobs[0]
	// Nil out the slot so the closure's captures can be collected.
	q.jobs[0] = nil

	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
		// Pass the wake-up on so other waiters pick up the rest.
		if !q.closed {
			select {
			case q.signal <- struct{}{}:
			default:
			}
		}
	}

	return job, true
}

// Wait returns a channel that signals when jobs may be available.
// The channel is closed when the queue is closed.
func (q *jobQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close signals that no more jobs will be enqueued and wakes waiters.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Closed reports whether Close has been called.
func (q *jobQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
