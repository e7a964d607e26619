package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// ReadRuns returns every run with its event count, oldest first.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.label, r.pipeline_hash, COUNT(e.id)
		FROM runs r
		LEFT JOIN events e ON e.run_id = r.id
		GROUP BY r.id
		ORDER BY r.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Label, &r.PipelineHash, &r.Events); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns one run. Returns ErrRunNotFound for an unknown id.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.label, r.pipeline_hash, (SELECT COUNT(*) FROM events e WHERE e.run_id = r.id)
		FROM runs r
		WHERE r.id = ?
	`, id).Scan(&r.ID, &r.Label, &r.PipelineHash, &r.Events)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("query run: %w", err)
	}
	return r, nil
}

// LatestRun returns the most recently created run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY id COLLATE BINARY DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("query latest run: %w", err)
	}
	return s.ReadRun(ctx, id)
}

// EventFilter narrows ReadEvents. Empty fields match everything.
type EventFilter struct {
	Node string
	Kind string
}

// ReadEvents returns the events of a run in seq order.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ReadEvents(ctx context.Context, runID string, filter EventFilter) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, seq, node, kind, time, validity_start, validity_end, generation, status_type, status_text, digest, reason
		FROM events
		WHERE run_id = ?
		  AND (? = '' OR node = ?)
		  AND (? = '' OR kind = ?)
		ORDER BY seq ASC
	`, runID, filter.Node, filter.Node, filter.Kind, filter.Kind)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// CountByKind returns how many events of each kind a run recorded.
func (s *Store) CountByKind(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM events WHERE run_id = ? GROUP BY kind
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query event counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[kind] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event counts: %w", err)
	}
	return counts, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		ev            Event
		t, start, end int64
		statusType    string
	)
	err := rows.Scan(&ev.ID, &ev.RunID, &ev.Seq, &ev.Node, &ev.Kind, &t, &start, &end,
		&ev.Generation, &statusType, &ev.Status.Text, &ev.Digest, &ev.Reason)
	if err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Time = anim.TimePoint(t)
	ev.Validity = anim.Interval{Start: anim.TimePoint(start), End: anim.TimePoint(end)}
	if ev.Status.Type, err = data.ParseStatusType(statusType); err != nil {
		return Event{}, fmt.Errorf("scan event %d: %w", ev.Seq, err)
	}
	return ev, nil
}
