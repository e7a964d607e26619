package future

import (
	"context"
	"fmt"
)

// PanicError wraps a panic raised by a continuation.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("future: continuation panicked: %v", e.Value) }

// call runs fn and converts a panic into a *PanicError.
func call[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}

// Resolved returns a future that has already resolved with v.
func Resolved[T any](v T) *Future[T] {
	p := NewPromise[T]()
	f := p.Future()
	p.SetResult(v)
	return f
}

// Failed returns a future that has already failed with err.
func Failed[T any](err error) *Future[T] {
	p := NewPromise[T]()
	f := p.Future()
	p.SetError(err)
	return f
}

// Go runs fn on exec and returns a future for its outcome. fn receives a
// context that is cancelled when the future is cancelled.
func Go[T any](exec Executor, fn func(ctx context.Context) (T, error)) *Future[T] {
	p := NewPromise[T]()
	f := p.Future()
	exec.Submit(func() {
		if p.IsDone() {
			return
		}
		v, err := call(func() (T, error) { return fn(p.Context()) })
		p.Settle(v, err)
	})
	return f
}

// OnComplete runs fn on exec after f resolves. Cancellation is reported as
// ErrCanceled. OnComplete does not take over f's handle.
func OnComplete[T any](exec Executor, f *Future[T], fn func(T, error)) {
	f.t.subscribe(func() {
		v, err, _ := f.t.result()
		exec.Submit(func() { fn(v, err) })
	})
}

// Then runs fn on exec with f's value once f resolves successfully and
// returns a future for fn's outcome. Errors and cancellation pass through
// without calling fn. Then takes over f's handle: cancelling the returned
// future cancels f.
func Then[T, U any](exec Executor, f *Future[T], fn func(ctx context.Context, v T) (U, error)) *Future[U] {
	p := NewPromise[U]()
	out := p.Future()
	p.OnCancel(f.Cancel)
	f.t.subscribe(func() {
		v, err, _ := f.t.result()
		if err != nil {
			p.SetError(err)
			return
		}
		exec.Submit(func() {
			if p.IsDone() {
				return
			}
			u, err := call(func() (U, error) { return fn(p.Context(), v) })
			p.Settle(u, err)
		})
	})
	return out
}

// ThenFuture is like Then for continuations that are themselves
// asynchronous. Cancelling the returned future cancels whichever of f and
// the inner future is still running.
func ThenFuture[T, U any](exec Executor, f *Future[T], fn func(ctx context.Context, v T) *Future[U]) *Future[U] {
	p := NewPromise[U]()
	out := p.Future()
	p.OnCancel(f.Cancel)
	f.t.subscribe(func() {
		v, err, _ := f.t.result()
		if err != nil {
			p.SetError(err)
			return
		}
		exec.Submit(func() {
			if p.IsDone() {
				return
			}
			inner, err := call(func() (*Future[U], error) { return fn(p.Context(), v), nil })
			if err != nil {
				p.SetError(err)
				return
			}
			p.OnCancel(inner.Cancel)
			inner.t.subscribe(func() {
				u, err, _ := inner.t.result()
				p.Settle(u, err)
			})
		})
	})
	return out
}

// Finally runs fn on exec after f resolves in any way and then passes f's
// outcome through. It takes over f's handle like Then.
func Finally[T any](exec Executor, f *Future[T], fn func()) *Future[T] {
	p := NewPromise[T]()
	out := p.Future()
	p.OnCancel(f.Cancel)
	f.t.subscribe(func() {
		v, err, _ := f.t.result()
		exec.Submit(func() {
			fn()
			p.Settle(v, err)
		})
	})
	return out
}

// Handle runs fn on exec with f's outcome, whatever it is, and returns a
// future for fn's outcome. Use it to turn expected failures into values.
// Cancellation of f is passed through without calling fn. Handle takes
// over f's handle like Then.
func Handle[T, U any](exec Executor, f *Future[T], fn func(ctx context.Context, v T, err error) (U, error)) *Future[U] {
	p := NewPromise[U]()
	out := p.Future()
	p.OnCancel(f.Cancel)
	f.t.subscribe(func() {
		v, err, _ := f.t.result()
		if f.t.isCanceled() {
			p.SetError(ErrCanceled)
			return
		}
		exec.Submit(func() {
			if p.IsDone() {
				return
			}
			u, err := call(func() (U, error) { return fn(p.Context(), v, err) })
			p.Settle(u, err)
		})
	})
	return out
}
