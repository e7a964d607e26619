package store

import (
	"context"
	"fmt"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
)

// Run is one engine session recorded in the journal.
type Run struct {
	ID           string `json:"id"`
	Label        string `json:"label,omitempty"`
	PipelineHash string `json:"pipeline_hash,omitempty"`
	Events       int    `json:"events"`
}

// Event is one stored cache event.
type Event struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	Seq        int64          `json:"seq"`
	Node       string         `json:"node"`
	Kind       string         `json:"kind"`
	Time       anim.TimePoint `json:"time"`
	Validity   anim.Interval  `json:"validity"`
	Generation int64          `json:"generation"`
	Status     data.Status    `json:"status"`
	Digest     string         `json:"digest,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, label, pipeline_hash)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Label, run.PipelineHash)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteEvents inserts events in one transaction. Events already stored
// (same id) are silently skipped.
//
// Note: The run referenced by each event must exist (foreign key constraint).
func (s *Store) WriteEvents(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
		(id, run_id, seq, node, kind, time, validity_start, validity_end, generation, status_type, status_text, digest, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		_, err := stmt.ExecContext(ctx,
			ev.ID,
			ev.RunID,
			ev.Seq,
			ev.Node,
			ev.Kind,
			int64(ev.Time),
			int64(ev.Validity.Start),
			int64(ev.Validity.End),
			ev.Generation,
			ev.Status.Type.String(),
			ev.Status.Text,
			ev.Digest,
			ev.Reason,
		)
		if err != nil {
			return fmt.Errorf("write event %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}
