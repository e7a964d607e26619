// Package pipeline implements demand-driven, cached evaluation of modifier
// chains over animation time.
//
// ARCHITECTURE:
//
// Nodes:
// A Source (or FrameSource) is the root of a pipeline. Each
// ModifierApplication reads one upstream node and applies a Modifier to
// its output. Evaluate never blocks; it returns a future.
//
// Cache:
// Every node owns a Cache holding one authoritative state plus the
// evaluations in flight. Requests for a cached time resolve immediately,
// requests for a time already being computed share that computation, and
// only the remaining ones start new work.
//
// Invalidation:
// Changes travel downstream as notify events. A receiving node shrinks its
// cache to the interval it can keep and clips what in-flight evaluations
// may later store, so a slow stale result never widens validity again.
// Objects that are mutated in place are caught by revision stamps.
//
// Errors:
// Expected modifier failures (*data.DomainError) become an error status on
// an otherwise valid state. Everything else, including *GraphError, fails
// the future.
package pipeline
