package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CycleRecord is the durable form of one decision cycle, flattened for
// querying with the full summary kept as a JSON blob.
type CycleRecord struct {
	ID         string          `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	Trigger    string          `json:"trigger"`
	Path       string          `json:"path"`
	Action     string          `json:"action"`
	Success    bool            `json:"success"`
	DurationMs int64           `json:"duration_ms"`
	Detail     json.RawMessage `json:"detail"`
}

// AppendCycleResult inserts a cycle record and trims the table to the audit
// cap, oldest rows first.
func (s *Store) AppendCycleResult(ctx context.Context, rec CycleRecord) error {
	detail := rec.Detail
	if detail == nil {
		detail = json.RawMessage("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycle_results (id, created_at, trigger_src, path, action, success, duration_ms, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UTC(), rec.Trigger, rec.Path, rec.Action,
		rec.Success, rec.DurationMs, string(detail),
	)
	if err != nil {
		return fmt.Errorf("insert cycle result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM cycle_results WHERE id NOT IN (
			SELECT id FROM cycle_results ORDER BY created_at DESC, id DESC LIMIT ?
		)`, s.auditCap)
	if err != nil {
		return fmt.Errorf("trim cycle results: %w", err)
	}
	return nil
}

// RecentCycles returns the latest n cycle records, newest first.
func (s *Store) RecentCycles(ctx context.Context, n int) ([]CycleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, trigger_src, path, action, success, duration_ms, detail
		FROM cycle_results ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query cycle results: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		var detail string
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Trigger, &rec.Path,
			&rec.Action, &rec.Success, &rec.DurationMs, &detail); err != nil {
			return nil, fmt.Errorf("scan cycle result: %w", err)
		}
		rec.Detail = json.RawMessage(detail)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CycleCount returns the number of retained cycle records.
func (s *Store) CycleCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cycle_results").Scan(&n); err != nil {
		return 0, fmt.Errorf("count cycle results: %w", err)
	}
	return n, nil
}
