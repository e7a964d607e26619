// Package future provides the asynchronous primitive of the evaluation engine.
//
// A task is a unit of work that resolves exactly once with a value or an
// error. Holders observe it through Future handles. Every handle counts as
// one unit of interest; Cancel releases a handle's interest, and when the
// last interested handle is released before the task has resolved, the task
// is cancelled: its context is cancelled, it resolves with ErrCanceled, and
// any result the producer delivers later is discarded.
//
// Continuations (Then, ThenFuture, OnComplete, Finally) always name the
// Executor they run on. Nothing in this package blocks except Wait.
package future
