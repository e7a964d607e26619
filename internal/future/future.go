package future

import (
	"context"
	"sync/atomic"
)

// Future is one holder's handle onto a task.
type Future[T any] struct {
	t        *task[T]
	released atomic.Bool
}

func newHandle[T any](t *task[T]) *Future[T] {
	return &Future[T]{t: t}
}

// Share returns another handle onto the same task. The task stays alive
// until every handle has been cancelled or the task resolves.
func (f *Future[T]) Share() *Future[T] {
	f.t.addInterest(false)
	return newHandle(f.t)
}

// Cancel releases this handle's interest. When it was the last interested
// handle and the task has not resolved, the task is cancelled. Cancelling a
// handle twice has no further effect.
func (f *Future[T]) Cancel() {
	if f.released.CompareAndSwap(false, true) {
		f.t.release()
	}
}

// Done returns a channel closed once the task resolves.
func (f *Future[T]) Done() <-chan struct{} { return f.t.done }

// IsDone reports whether the task has resolved.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.t.done:
		return true
	default:
		return false
	}
}

// IsCanceled reports whether the task was cancelled.
func (f *Future[T]) IsCanceled() bool { return f.t.isCanceled() }

// Result returns the outcome without blocking, or ErrNotReady.
func (f *Future[T]) Result() (T, error) {
	v, err, _ := f.t.result()
	return v, err
}

// Wait blocks until the task resolves or ctx is done. Only consumers at the
// edge of the engine call Wait; engine code chains continuations instead.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.t.done:
		v, err, _ := f.t.result()
		return v, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// SameTask reports whether both handles observe the same task.
func (f *Future[T]) SameTask(other *Future[T]) bool { return f.t == other.t }

// Promise is the producer side of a task.
type Promise[T any] struct {
	t *task[T]
}

// NewPromise creates an unresolved task without any interested handle.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{t: newTask[T]()}
}

// Future returns a new handle onto the promise's task.
func (p *Promise[T]) Future() *Future[T] {
	p.t.addInterest(false)
	return newHandle(p.t)
}

// TryFuture returns a new handle unless the task has been cancelled.
func (p *Promise[T]) TryFuture() (*Future[T], bool) {
	if !p.t.addInterest(true) {
		return nil, false
	}
	return newHandle(p.t), true
}

// Context is cancelled when the task is cancelled. Long-running producers
// poll it and stop early.
func (p *Promise[T]) Context() context.Context { return p.t.ctx }

// SetResult resolves the task with a value. It reports false when the task
// had already resolved or been cancelled; the value is then discarded.
func (p *Promise[T]) SetResult(v T) bool { return p.t.resolve(v, nil) }

// SetError resolves the task with an error.
func (p *Promise[T]) SetError(err error) bool {
	var zero T
	return p.t.resolve(zero, err)
}

// Settle resolves the task with either outcome.
func (p *Promise[T]) Settle(v T, err error) bool {
	if err != nil {
		return p.SetError(err)
	}
	return p.SetResult(v)
}

// OnCancel registers fn to run if the task is cancelled. fn runs
// immediately if the task already was.
func (p *Promise[T]) OnCancel(fn func()) { p.t.addCancelHook(fn) }

// IsDone reports whether the task has resolved.
func (p *Promise[T]) IsDone() bool {
	select {
	case <-p.t.done:
		return true
	default:
		return false
	}
}

// IsCanceled reports whether the task was cancelled.
func (p *Promise[T]) IsCanceled() bool { return p.t.isCanceled() }
