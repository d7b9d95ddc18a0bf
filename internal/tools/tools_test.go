package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/impetus/internal/habit"
	"github.com/normanking/impetus/internal/scoring"
)

func countingTool(name string, params []Parameter, calls *int) *Tool {
	return &Tool{
		Name:        name,
		Description: "test tool",
		Parameters:  params,
		Handler: func(ctx context.Context, args map[string]any) *Result {
			*calls++
			return Ok(name, map[string]any{"args": args})
		},
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	require.NoError(t, reg.Register(countingTool("send_nudge", nil, &calls)))
	require.NoError(t, reg.Register(countingTool("defer_action", nil, &calls)))

	res := reg.Execute(context.Background(), &Call{Name: "launch_rocket"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "send_nudge")
	assert.Contains(t, res.Error, "defer_action")
	assert.Zero(t, calls, "no handler may run for an unknown tool")
}

func TestExecuteMissingRequiredParam(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	require.NoError(t, reg.Register(countingTool("send_nudge", []Parameter{
		{Name: "habit_id", Type: "string", Required: true},
	}, &calls)))

	res := reg.Execute(context.Background(), &Call{Name: "send_nudge", Arguments: map[string]any{}})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "habit_id")
	assert.Zero(t, calls, "handler must not run on validation failure")
}

func TestExecuteCoercion(t *testing.T) {
	reg := NewRegistry()
	var got map[string]any
	require.NoError(t, reg.Register(&Tool{
		Name: "probe",
		Parameters: []Parameter{
			{Name: "delay", Type: "number", Required: true},
			{Name: "count", Type: "integer", Required: true},
			{Name: "flag", Type: "boolean", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) *Result {
			got = args
			return Ok("probe", nil)
		},
	}))

	res := reg.Execute(context.Background(), &Call{Name: "probe", Arguments: map[string]any{
		"delay": "12.5",
		"count": 3.0, // JSON numbers arrive as float64
		"flag":  "true",
	}})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, 12.5, got["delay"])
	assert.Equal(t, 3, got["count"])
	assert.Equal(t, true, got["flag"])
}

func TestExecuteEnumViolation(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	require.NoError(t, reg.Register(countingTool("nudge", []Parameter{
		{Name: "tone", Type: "string", Enum: Tones, Required: true},
	}, &calls)))

	res := reg.Execute(context.Background(), &Call{Name: "nudge", Arguments: map[string]any{
		"tone": "sarcastic",
	}})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "sarcastic")
	assert.Zero(t, calls)
}

func TestExecuteRecoversPanic(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Tool{
		Name: "boom",
		Handler: func(ctx context.Context, args map[string]any) *Result {
			panic("kaboom")
		},
	}))

	res := reg.Execute(context.Background(), &Call{Name: "boom"})
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "kaboom")
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	require.NoError(t, reg.Register(countingTool("dup", nil, &calls)))
	assert.Error(t, reg.Register(countingTool("dup", nil, &calls)))
}

// ═══════════════════════════════════════════════════════════════════════════════
// BUILTIN HANDLERS
// ═══════════════════════════════════════════════════════════════════════════════

type delivered struct {
	habitID, tone, message string
}

func builtinFixture(t *testing.T, now time.Time, notify Notifier) (*Registry, *habit.Registry) {
	t.Helper()

	habits := habit.NewRegistry()
	habits.Put(&habit.State{ID: "h1", Name: "stretch", Category: "health", Difficulty: 2})

	deps := Deps{
		Habits:  habits,
		Scoring: scoring.New(habits),
		Notify:  NewDispatcher(notify),
		Now:     func() time.Time { return now },
	}
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg, deps))
	return reg, habits
}

func TestSendNudge(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ch := make(chan delivered, 1)
	reg, habits := builtinFixture(t, now, FuncNotifier(
		func(ctx context.Context, habitID, tone, message string, at time.Time) error {
			ch <- delivered{habitID, tone, message}
			return nil
		}))

	res := reg.Execute(context.Background(), &Call{Name: "send_nudge", Arguments: map[string]any{
		"habit_id": "h1",
		"tone":     "encouraging",
		"message":  "quick stretch?",
	}})
	require.True(t, res.Success, res.Error)

	// The handler reports the requested cooldown; applying it is the
	// orchestrator's job.
	until, err := time.Parse(time.RFC3339, res.Data["cooldown_until"].(string))
	require.NoError(t, err)
	assert.Equal(t, now.Add(DefaultNudgeCooldown), until.UTC())
	assert.True(t, habits.Get("h1").CooldownUntil.IsZero())

	// An unresolved record lands in the outcome ring.
	h := habits.Get("h1")
	require.Len(t, h.RecentOutcomes, 1)
	assert.Equal(t, habit.Outcome(""), h.RecentOutcomes[0].Outcome)

	select {
	case d := <-ch:
		assert.Equal(t, delivered{"h1", "encouraging", "quick stretch?"}, d)
	case <-time.After(2 * time.Second):
		t.Fatal("notification never delivered")
	}
}

func TestSendNudgeOnCooldown(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	reg, habits := builtinFixture(t, now, FuncNotifier(
		func(ctx context.Context, habitID, tone, message string, at time.Time) error {
			t.Error("must not deliver while on cooldown")
			return nil
		}))
	habits.Get("h1").CooldownUntil = now.Add(time.Hour)

	res := reg.Execute(context.Background(), &Call{Name: "send_nudge", Arguments: map[string]any{
		"habit_id": "h1", "tone": "gentle", "message": "hi",
	}})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "cooldown")
}

func TestSendNudgeWithoutChannel(t *testing.T) {
	reg, _ := builtinFixture(t, time.Now(), nil)

	res := reg.Execute(context.Background(), &Call{Name: "send_nudge", Arguments: map[string]any{
		"habit_id": "h1", "tone": "gentle", "message": "hi",
	}})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "notification channel")
}

func TestAdjustDifficultyClamps(t *testing.T) {
	reg, habits := builtinFixture(t, time.Now(), nil)

	res := reg.Execute(context.Background(), &Call{Name: "adjust_difficulty", Arguments: map[string]any{
		"habit_id": "h1", "delta": 10.0,
	}})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 5, habits.Get("h1").Difficulty)
	assert.Equal(t, 2, res.Data["old_difficulty"])
	assert.Equal(t, 5, res.Data["new_difficulty"])
}

func TestRescheduleNudgeBounds(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	reg, habits := builtinFixture(t, now, nil)

	for _, tc := range []struct {
		minutes float64
		want    time.Duration
	}{
		{1, 5 * time.Minute},    // floor
		{30, 30 * time.Minute},  // in range
		{10000, 24 * time.Hour}, // ceiling
	} {
		res := reg.Execute(context.Background(), &Call{Name: "reschedule_nudge", Arguments: map[string]any{
			"habit_id": "h1", "delay_minutes": tc.minutes,
		}})
		require.True(t, res.Success, res.Error)
		until, err := time.Parse(time.RFC3339, res.Data["cooldown_until"].(string))
		require.NoError(t, err)
		assert.Equal(t, now.Add(tc.want), until.UTC(), "minutes=%v", tc.minutes)
	}
	assert.True(t, habits.Get("h1").CooldownUntil.IsZero())
}

func TestUpdateHabitField(t *testing.T) {
	reg, habits := builtinFixture(t, time.Now(), nil)

	t.Run("name", func(t *testing.T) {
		res := reg.Execute(context.Background(), &Call{Name: "update_habit_field", Arguments: map[string]any{
			"habit_id": "h1", "field": "name", "value": "morning stretch",
		}})
		require.True(t, res.Success, res.Error)
		assert.Equal(t, "morning stretch", habits.Get("h1").Name)
	})

	t.Run("difficulty parses integer", func(t *testing.T) {
		res := reg.Execute(context.Background(), &Call{Name: "update_habit_field", Arguments: map[string]any{
			"habit_id": "h1", "field": "difficulty", "value": "4",
		}})
		require.True(t, res.Success, res.Error)
		assert.Equal(t, 4, habits.Get("h1").Difficulty)
	})

	t.Run("non-editable field rejected by schema", func(t *testing.T) {
		res := reg.Execute(context.Background(), &Call{Name: "update_habit_field", Arguments: map[string]any{
			"habit_id": "h1", "field": "momentum_score", "value": "99",
		}})
		assert.False(t, res.Success)
	})
}

func TestRecordObservation(t *testing.T) {
	reg, habits := builtinFixture(t, time.Now(), nil)

	res := reg.Execute(context.Background(), &Call{Name: "record_observation", Arguments: map[string]any{
		"habit_id": "h1", "note": "prefers evenings lately",
	}})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "prefers evenings lately", habits.Get("h1").Metadata["observation"])
}

func TestDeferAction(t *testing.T) {
	reg, _ := builtinFixture(t, time.Now(), nil)

	res := reg.Execute(context.Background(), &Call{Name: "defer_action", Arguments: map[string]any{
		"reason": "user is driving",
	}})
	require.True(t, res.Success)
	assert.Equal(t, "user is driving", res.Data["reason"])

	res = reg.Execute(context.Background(), &Call{Name: "defer_action"})
	require.True(t, res.Success)
	assert.NotEmpty(t, res.Data["reason"])
}

func TestUnknownHabitFails(t *testing.T) {
	reg, _ := builtinFixture(t, time.Now(), nil)
	for _, name := range []string{"adjust_difficulty", "record_observation"} {
		args := map[string]any{"habit_id": "ghost", "delta": 1.0, "note": "x"}
		res := reg.Execute(context.Background(), &Call{Name: name, Arguments: args})
		assert.False(t, res.Success, name)
		assert.True(t, strings.Contains(res.Error, "ghost"), name)
	}
}
