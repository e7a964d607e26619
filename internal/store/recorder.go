package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/flowstate/internal/engine"
	"github.com/roach88/flowstate/internal/ir"
	"github.com/roach88/flowstate/internal/pipeline"
)

// Recorder is a pipeline.Journal that buffers cache events in memory and
// writes them to the store on Flush.
//
// Record is called from inside the caches and must not block on I/O, so
// writes are batched. Every event gets the next value of the recorder's
// clock as its seq.
//
// Thread-safety: Recorder is safe for concurrent use.
type Recorder struct {
	store  *Store
	run    Run
	clock  *engine.Clock
	logger *slog.Logger

	flushMu sync.Mutex
	mu      sync.Mutex
	pending []Event
}

// RecorderOption configures a Recorder.
type RecorderOption func(*recorderConfig)

type recorderConfig struct {
	ids    engine.RunIDGenerator
	clock  *engine.Clock
	logger *slog.Logger
	label  string
	hash   string
}

// WithRunIDGenerator sets the generator for the run id. Default UUIDv7.
func WithRunIDGenerator(g engine.RunIDGenerator) RecorderOption {
	return func(c *recorderConfig) { c.ids = g }
}

// WithRecorderClock sets the clock event seqs are drawn from.
func WithRecorderClock(clock *engine.Clock) RecorderOption {
	return func(c *recorderConfig) { c.clock = clock }
}

// WithRecorderLogger sets the logger for write failures.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(c *recorderConfig) { c.logger = l }
}

// WithLabel attaches a free-form label to the run.
func WithLabel(label string) RecorderOption {
	return func(c *recorderConfig) { c.label = label }
}

// WithPipelineHash records the identity of the definitions the run evaluates.
func WithPipelineHash(hash string) RecorderOption {
	return func(c *recorderConfig) { c.hash = hash }
}

// NewRecorder starts a new run in the store and returns its recorder.
func (s *Store) NewRecorder(ctx context.Context, opts ...RecorderOption) (*Recorder, error) {
	cfg := recorderConfig{
		ids:    engine.UUIDv7Generator{},
		clock:  engine.NewClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	run := Run{ID: cfg.ids.Generate(), Label: cfg.label, PipelineHash: cfg.hash}
	if err := s.WriteRun(ctx, run); err != nil {
		return nil, err
	}
	return &Recorder{store: s, run: run, clock: cfg.clock, logger: cfg.logger}, nil
}

// RunID returns the id of the run being recorded.
func (r *Recorder) RunID() string { return r.run.ID }

// Record implements pipeline.Journal.
func (r *Recorder) Record(ev pipeline.JournalEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq := r.clock.Next()
	r.pending = append(r.pending, Event{
		ID:         ir.MustEventID(r.run.ID, seq, ev.Node),
		RunID:      r.run.ID,
		Seq:        seq,
		Node:       ev.Node,
		Kind:       ev.Kind,
		Time:       ev.Time,
		Validity:   ev.Validity,
		Generation: ev.Generation,
		Status:     ev.Status,
		Digest:     ev.Digest,
		Reason:     ev.Reason,
	})
}

// Pending returns the number of events not yet written.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush writes the buffered events. On failure the events stay buffered
// and the next Flush retries them.
func (r *Recorder) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	batch := slices.Clone(r.pending)
	r.mu.Unlock()

	if err := r.store.WriteEvents(ctx, batch); err != nil {
		r.logger.Error("journal flush failed", "run", r.run.ID, "events", len(batch), "error", err)
		return fmt.Errorf("flush run %s: %w", r.run.ID, err)
	}

	r.mu.Lock()
	r.pending = r.pending[len(batch):]
	r.mu.Unlock()
	r.logger.Debug("journal flushed", "run", r.run.ID, "events", len(batch))
	return nil
}
