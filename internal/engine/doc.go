// Package engine provides the execution resources of a dataset.
//
// ARCHITECTURE:
//
// Coordinator:
// A single-writer loop that runs submitted jobs one at a time in FIFO order.
// Pipeline caches commit results, update statuses and send notifications on
// the coordinator, so bookkeeping never interleaves.
//
// Pool:
// A fixed set of worker goroutines for modifier computations. Modifiers
// split heavy per-element work further with ParallelFor.
//
// Clock:
// Monotonic logical clock for evaluation generations and journal sequence
// numbers. Ordering never depends on wall-clock time.
//
// Both Coordinator and Pool implement future.Executor, so continuations
// always name where they run.
package engine
