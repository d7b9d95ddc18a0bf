package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/impetus/internal/habit"
)

func openTestStore(t *testing.T, auditCap int) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), auditCap)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHabitRoundTrip(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()

	last := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	in := &habit.State{
		ID:               "h1",
		Name:             "stretch",
		Category:         "health",
		Difficulty:       3,
		StreakCount:      7,
		LastCompletion:   &last,
		CompletionRate7d: 0.6,
		ResistanceScore:  0.2,
		FrictionScore:    0.1,
		MomentumScore:    46,
		CooldownUntil:    last.Add(2 * time.Hour),
		PreferredWindows: []habit.TimeWindow{
			{Days: []time.Weekday{time.Monday}, StartHour: 7, EndHour: 9, Weight: 1},
		},
		RecentOutcomes: []habit.NudgeRecord{
			{Timestamp: last, Tone: "gentle", Message: "hi", Outcome: habit.OutcomeCompleted},
		},
		Metadata: map[string]any{"observation": "prefers mornings"},
	}
	require.NoError(t, s.SaveHabit(ctx, in))

	out, err := s.GetHabit(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Difficulty, out.Difficulty)
	assert.Equal(t, in.StreakCount, out.StreakCount)
	require.NotNil(t, out.LastCompletion)
	assert.True(t, out.LastCompletion.Equal(last))
	assert.True(t, out.CooldownUntil.Equal(in.CooldownUntil))
	assert.InDelta(t, in.CompletionRate7d, out.CompletionRate7d, 1e-9)
	assert.Equal(t, in.MomentumScore, out.MomentumScore)
	require.Len(t, out.PreferredWindows, 1)
	assert.Equal(t, 7, out.PreferredWindows[0].StartHour)
	require.Len(t, out.RecentOutcomes, 1)
	assert.Equal(t, habit.OutcomeCompleted, out.RecentOutcomes[0].Outcome)
	assert.Equal(t, "prefers mornings", out.Metadata["observation"])
}

func TestHabitUpsertAndDelete(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()

	h := &habit.State{ID: "h1", Name: "before"}
	require.NoError(t, s.SaveHabit(ctx, h))
	h.Name = "after"
	h.StreakCount = 2
	require.NoError(t, s.SaveHabit(ctx, h))

	all, err := s.GetAllHabits(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "after", all[0].Name)
	assert.Equal(t, 2, all[0].StreakCount)

	require.NoError(t, s.DeleteHabit(ctx, "h1"))
	got, err := s.GetHabit(ctx, "h1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCycleAuditCap(t *testing.T) {
	s := openTestStore(t, 5)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		rec := CycleRecord{
			ID:        fmt.Sprintf("c%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Trigger:   "interval",
			Path:      "local",
			Action:    "defer_action",
			Success:   true,
			Detail:    json.RawMessage(`{"n":` + fmt.Sprint(i) + `}`),
		}
		require.NoError(t, s.AppendCycleResult(ctx, rec))
	}

	n, err := s.CycleCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "oldest rows are trimmed past the cap")

	recent, err := s.RecentCycles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, "c7", recent[0].ID, "newest first")
	assert.Equal(t, "c3", recent[4].ID, "c0-c2 trimmed")
}

func TestSettings(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()

	v, err := s.GetSetting(ctx, "missing", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	require.NoError(t, s.SetSetting(ctx, "interval_minutes", "45"))
	require.NoError(t, s.SetSetting(ctx, "interval_minutes", "60"))

	v, err = s.GetSetting(ctx, "interval_minutes", "")
	require.NoError(t, err)
	assert.Equal(t, "60", v)

	all, err := s.AllSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"interval_minutes": "60"}, all)
}

func TestHealthAndReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)
	require.NoError(t, s.Health())
	require.NoError(t, s.SaveHabit(context.Background(), &habit.State{ID: "h1", Name: "n"}))
	require.NoError(t, s.Close())

	// Schema migration is idempotent and data survives reopen.
	s2, err := Open(dir, 0)
	require.NoError(t, err)
	defer s2.Close()
	h, err := s2.GetHabit(context.Background(), "h1")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "n", h.Name)
}
