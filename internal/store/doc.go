// Package store keeps the evaluation journal in SQLite.
//
// A journal holds runs and their events. A run is one engine session and
// is keyed by a UUIDv7, or by a fixed id in scenario tests. An event
// records one thing a pipeline cache did for a request: hit, shared,
// started, committed, discarded, failed, invalidated or dropped.
//
// Nothing in evaluation reads the journal. A pipeline gives the same
// results with or without a Recorder attached.
//
// Events sort by seq, a stamp from engine.Clock taken when the event is
// recorded, and every query orders by it. Event ids come from ir.EventID,
// so recording a run a second time inserts nothing new.
//
// Open puts file databases in WAL mode so `flowstate trace` can read a
// journal while `flowstate eval` appends to it. The trace command opens
// with ReadOnly. OpenMemory serves scenario runs that read back their own
// events and discard them afterwards.
package store
