package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/normanking/impetus/internal/habit"
)

// SaveHabit inserts or replaces a habit row.
func (s *Store) SaveHabit(ctx context.Context, h *habit.State) error {
	windows, err := json.Marshal(h.PreferredWindows)
	if err != nil {
		return fmt.Errorf("marshal windows: %w", err)
	}
	outcomes, err := json.Marshal(h.RecentOutcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}
	metadata, err := json.Marshal(h.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var lastCompletion any
	if h.LastCompletion != nil {
		lastCompletion = h.LastCompletion.UTC()
	}
	var cooldown any
	if !h.CooldownUntil.IsZero() {
		cooldown = h.CooldownUntil.UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO habits (
			id, name, category, difficulty, streak_count, last_completion,
			completion_rate, resistance, friction, momentum, cooldown_until,
			windows, outcomes, metadata, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			difficulty = excluded.difficulty,
			streak_count = excluded.streak_count,
			last_completion = excluded.last_completion,
			completion_rate = excluded.completion_rate,
			resistance = excluded.resistance,
			friction = excluded.friction,
			momentum = excluded.momentum,
			cooldown_until = excluded.cooldown_until,
			windows = excluded.windows,
			outcomes = excluded.outcomes,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		h.ID, h.Name, h.Category, h.Difficulty, h.StreakCount, lastCompletion,
		h.CompletionRate7d, h.ResistanceScore, h.FrictionScore, h.MomentumScore, cooldown,
		string(windows), string(outcomes), string(metadata), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save habit %s: %w", h.ID, err)
	}
	return nil
}

// GetHabit loads one habit, or nil when absent.
func (s *Store) GetHabit(ctx context.Context, id string) (*habit.State, error) {
	row := s.db.QueryRowContext(ctx, habitSelect+" WHERE id = ?", id)
	h, err := scanHabit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return h, err
}

// GetAllHabits loads every habit sorted by id.
func (s *Store) GetAllHabits(ctx context.Context) ([]*habit.State, error) {
	rows, err := s.db.QueryContext(ctx, habitSelect+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query habits: %w", err)
	}
	defer rows.Close()

	var out []*habit.State
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteHabit removes a habit row.
func (s *Store) DeleteHabit(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM habits WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete habit %s: %w", id, err)
	}
	return nil
}

const habitSelect = `
	SELECT id, name, category, difficulty, streak_count, last_completion,
	       completion_rate, resistance, friction, momentum, cooldown_until,
	       windows, outcomes, metadata
	FROM habits`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHabit(row rowScanner) (*habit.State, error) {
	var h habit.State
	var lastCompletion, cooldown sql.NullTime
	var windows, outcomes, metadata string

	err := row.Scan(
		&h.ID, &h.Name, &h.Category, &h.Difficulty, &h.StreakCount, &lastCompletion,
		&h.CompletionRate7d, &h.ResistanceScore, &h.FrictionScore, &h.MomentumScore, &cooldown,
		&windows, &outcomes, &metadata,
	)
	if err != nil {
		return nil, err
	}

	if lastCompletion.Valid {
		ts := lastCompletion.Time
		h.LastCompletion = &ts
	}
	if cooldown.Valid {
		h.CooldownUntil = cooldown.Time
	}
	if err := json.Unmarshal([]byte(windows), &h.PreferredWindows); err != nil {
		return nil, fmt.Errorf("unmarshal windows for %s: %w", h.ID, err)
	}
	if err := json.Unmarshal([]byte(outcomes), &h.RecentOutcomes); err != nil {
		return nil, fmt.Errorf("unmarshal outcomes for %s: %w", h.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &h.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata for %s: %w", h.ID, err)
	}
	return &h, nil
}
