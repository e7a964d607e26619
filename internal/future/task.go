package future

import (
	"context"
	"errors"
	"sync"
)

// ErrCanceled is the error of a task whose last interested holder cancelled it.
var ErrCanceled = errors.New("future: canceled")

// ErrNotReady is returned by Result when the task has not resolved yet.
var ErrNotReady = errors.New("future: not ready")

// task is the shared state behind a promise and its futures.
type task[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	resolved  bool
	canceled  bool
	value     T
	err       error
	interest  int
	callbacks []func()
	onCancel  []func()

	ctx    context.Context
	cancel context.CancelFunc
}

func newTask[T any]() *task[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &task[T]{done: make(chan struct{}), ctx: ctx, cancel: cancel}
}

// resolve stores the outcome and runs callbacks. It reports false if the
// task had already resolved.
func (t *task[T]) resolve(value T, err error) bool {
	t.mu.Lock()
	if t.resolved {
		t.mu.Unlock()
		return false
	}
	t.resolved = true
	t.value, t.err = value, err
	callbacks := t.callbacks
	t.callbacks = nil
	t.onCancel = nil
	close(t.done)
	t.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
	return true
}

// addInterest registers one more handle. If requireLive is set, it fails on
// tasks that were cancelled.
func (t *task[T]) addInterest(requireLive bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if requireLive && t.canceled {
		return false
	}
	t.interest++
	return true
}

// release drops one handle's interest and cancels the task when it was the
// last one and the task is still running.
func (t *task[T]) release() {
	t.mu.Lock()
	t.interest--
	if t.interest > 0 || t.resolved {
		t.mu.Unlock()
		return
	}
	t.canceled = true
	t.resolved = true
	t.err = ErrCanceled
	callbacks := t.callbacks
	hooks := t.onCancel
	t.callbacks = nil
	t.onCancel = nil
	close(t.done)
	t.mu.Unlock()

	t.cancel()
	for _, h := range hooks {
		h()
	}
	for _, cb := range callbacks {
		cb()
	}
}

// subscribe runs cb once the task resolves, immediately if it already has.
func (t *task[T]) subscribe(cb func()) {
	t.mu.Lock()
	if !t.resolved {
		t.callbacks = append(t.callbacks, cb)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	cb()
}

func (t *task[T]) addCancelHook(fn func()) {
	t.mu.Lock()
	if !t.resolved {
		t.onCancel = append(t.onCancel, fn)
		t.mu.Unlock()
		return
	}
	canceled := t.canceled
	t.mu.Unlock()
	if canceled {
		fn()
	}
}

func (t *task[T]) result() (T, error, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.resolved {
		var zero T
		return zero, ErrNotReady, false
	}
	return t.value, t.err, true
}

func (t *task[T]) isCanceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}
