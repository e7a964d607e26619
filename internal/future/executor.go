package future

// Executor runs submitted functions. Implementations decide on which
// goroutine and in which order.
type Executor interface {
	Submit(fn func())
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(fn func())

// Submit calls f(fn).
func (f ExecutorFunc) Submit(fn func()) { f(fn) }

type inlineExecutor struct{}

func (inlineExecutor) Submit(fn func()) { fn() }

// Inline runs every function immediately on the submitting goroutine.
var Inline Executor = inlineExecutor{}

// Async runs every function on a new goroutine.
var Async Executor = ExecutorFunc(func(fn func()) { go fn() })
