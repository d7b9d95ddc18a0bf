package scoring

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/impetus/internal/habit"
	"github.com/normanking/impetus/internal/signal"
)

var wednesdayNoon = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func newEngine(habits ...*habit.State) (*Engine, *habit.Registry) {
	reg := habit.NewRegistry()
	for _, h := range habits {
		reg.Put(h)
	}
	return New(reg), reg
}

// ═══════════════════════════════════════════════════════════════════════════════
// MOMENTUM
// ═══════════════════════════════════════════════════════════════════════════════

func TestMomentumWorkedExample(t *testing.T) {
	// streak=7, last completion 18h ago, rate=0.6, friction=0.1,
	// resistance=0.2: raw ≈ 0.4571, momentum = 46.
	last := wednesdayNoon.Add(-18 * time.Hour)

	assert.Equal(t, 0.5, StreakFactor(7))
	assert.InDelta(t, 0.7071, RecencyFactor(&last, wednesdayNoon), 0.0005)
	assert.Equal(t, 46, Momentum(7, &last, 0.6, 0.1, 0.2, wednesdayNoon))
}

func TestStreakFactorMonotonicAndSaturating(t *testing.T) {
	prev := -1.0
	for streak := 0; streak <= 30; streak++ {
		f := StreakFactor(streak)
		assert.GreaterOrEqual(t, f, prev, "streak=%d", streak)
		prev = f
	}
	assert.Equal(t, 1.0, StreakFactor(14))
	assert.Equal(t, 1.0, StreakFactor(200))
}

func TestRecencyFactorHalfLife(t *testing.T) {
	for _, baseHours := range []float64{0, 5, 18, 36, 100} {
		lastA := wednesdayNoon.Add(-time.Duration(baseHours * float64(time.Hour)))
		lastB := wednesdayNoon.Add(-time.Duration((baseHours + 36) * float64(time.Hour)))
		a := RecencyFactor(&lastA, wednesdayNoon)
		b := RecencyFactor(&lastB, wednesdayNoon)
		assert.InDelta(t, a/2, b, 1e-9, "base=%v", baseHours)
	}
}

func TestRecencyFactorEdges(t *testing.T) {
	assert.Equal(t, 0.0, RecencyFactor(nil, wednesdayNoon))

	future := wednesdayNoon.Add(2 * time.Hour)
	assert.Equal(t, 1.0, RecencyFactor(&future, wednesdayNoon)) // clock skew tolerance
}

func TestScoreBoundsProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	outcomes := []habit.Outcome{
		habit.OutcomeCompleted, habit.OutcomeDismissed,
		habit.OutcomeIgnored, habit.OutcomeSnoozed, "",
	}

	for i := 0; i < 2000; i++ {
		var last *time.Time
		if rng.Intn(4) > 0 {
			ts := wednesdayNoon.Add(time.Duration(rng.Intn(400)-50) * time.Hour)
			last = &ts
		}
		var records []habit.NudgeRecord
		for j := rng.Intn(25); j > 0; j-- {
			records = append(records, habit.NudgeRecord{Outcome: outcomes[rng.Intn(len(outcomes))]})
		}

		res := Resistance(records)
		assert.GreaterOrEqual(t, res, 0.0)
		assert.LessOrEqual(t, res, 1.0)

		ctx := signal.Context{
			Now: wednesdayNoon.Add(time.Duration(rng.Intn(168)) * time.Hour),
			Calendar: signal.CalendarSnapshot{InMeeting: rng.Intn(2) == 0},
			Motion:   signal.MotionSnapshot{Driving: rng.Intn(2) == 0},
		}
		fr := Friction(ctx, &habit.State{}, rng.Float64())
		assert.GreaterOrEqual(t, fr, 0.0)
		assert.LessOrEqual(t, fr, 1.0)

		m := Momentum(rng.Intn(40), last, rng.Float64(), fr, res, wednesdayNoon)
		assert.GreaterOrEqual(t, m, 0)
		assert.LessOrEqual(t, m, 100)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// RESISTANCE
// ═══════════════════════════════════════════════════════════════════════════════

func TestResistanceDefaultsWithoutHistory(t *testing.T) {
	assert.Equal(t, DefaultResistance, Resistance(nil))

	// Unresolved records don't count as history.
	unresolved := []habit.NudgeRecord{{Message: "pending"}}
	assert.Equal(t, DefaultResistance, Resistance(unresolved))
}

func TestResistanceOrderingSensitivity(t *testing.T) {
	// Same multiset of outcomes, different chronological order: recent
	// dismissals must weigh more than old ones.
	recentBad := []habit.NudgeRecord{
		{Outcome: habit.OutcomeCompleted},
		{Outcome: habit.OutcomeCompleted},
		{Outcome: habit.OutcomeDismissed},
		{Outcome: habit.OutcomeDismissed},
	}
	oldBad := []habit.NudgeRecord{
		{Outcome: habit.OutcomeDismissed},
		{Outcome: habit.OutcomeDismissed},
		{Outcome: habit.OutcomeCompleted},
		{Outcome: habit.OutcomeCompleted},
	}

	assert.Greater(t, Resistance(recentBad), Resistance(oldBad))
}

func TestResistanceExtremes(t *testing.T) {
	allGood := make([]habit.NudgeRecord, 10)
	allBad := make([]habit.NudgeRecord, 10)
	for i := range allGood {
		allGood[i].Outcome = habit.OutcomeCompleted
		allBad[i].Outcome = habit.OutcomeDismissed
	}

	assert.InDelta(t, 0.0, Resistance(allGood), 1e-9)
	assert.InDelta(t, 1.0, Resistance(allBad), 1e-9)
}

func TestResistanceUsesOnlyLastTen(t *testing.T) {
	// Ten dismissals preceded by ten completions: the completions fall
	// outside the window, so resistance is full.
	var records []habit.NudgeRecord
	for i := 0; i < 10; i++ {
		records = append(records, habit.NudgeRecord{Outcome: habit.OutcomeCompleted})
	}
	for i := 0; i < 10; i++ {
		records = append(records, habit.NudgeRecord{Outcome: habit.OutcomeDismissed})
	}
	assert.InDelta(t, 1.0, Resistance(records), 1e-9)
}

// ═══════════════════════════════════════════════════════════════════════════════
// FRICTION
// ═══════════════════════════════════════════════════════════════════════════════

func TestFrictionContextTerms(t *testing.T) {
	h := &habit.State{}
	calm := signal.Context{Now: wednesdayNoon}
	busy := signal.Context{
		Now:      wednesdayNoon,
		Calendar: signal.CalendarSnapshot{InMeeting: true},
		Motion:   signal.MotionSnapshot{Driving: true},
	}

	assert.Greater(t, Friction(busy, h, 0), Friction(calm, h, 0))
}

func TestFrictionPreferredWindowSubtracts(t *testing.T) {
	inWindow := &habit.State{PreferredWindows: []habit.TimeWindow{
		{StartHour: 11, EndHour: 13, Weight: 1},
	}}
	outWindow := &habit.State{}
	ctx := signal.Context{Now: wednesdayNoon}

	assert.Less(t, Friction(ctx, inWindow, 0), Friction(ctx, outWindow, 0))
}

func TestFrictionWindowWeightScalesSubtraction(t *testing.T) {
	full := &habit.State{PreferredWindows: []habit.TimeWindow{
		{StartHour: 11, EndHour: 13, Weight: 1},
	}}
	half := &habit.State{PreferredWindows: []habit.TimeWindow{
		{StartHour: 11, EndHour: 13, Weight: 0.5},
	}}
	unweighted := &habit.State{PreferredWindows: []habit.TimeWindow{
		{StartHour: 11, EndHour: 13},
	}}
	overlapping := &habit.State{PreferredWindows: []habit.TimeWindow{
		{StartHour: 11, EndHour: 13, Weight: 0.3},
		{StartHour: 10, EndHour: 14, Weight: 0.9},
	}}
	// A meeting keeps every result clear of the zero clamp.
	ctx := signal.Context{
		Now:      wednesdayNoon,
		Calendar: signal.CalendarSnapshot{InMeeting: true},
	}

	base := Friction(ctx, &habit.State{}, 0)
	assert.InDelta(t, base-0.20, Friction(ctx, full, 0), 1e-9)
	assert.InDelta(t, base-0.10, Friction(ctx, half, 0), 1e-9)

	// A window without an explicit weight subtracts in full.
	assert.Equal(t, Friction(ctx, full, 0), Friction(ctx, unweighted, 0))

	// Overlapping windows: the strongest match wins.
	assert.InDelta(t, base-0.18, Friction(ctx, overlapping, 0), 1e-9)
}

func TestFrictionDepletionBoost(t *testing.T) {
	h := &habit.State{}
	ctx := signal.Context{Now: wednesdayNoon}

	base := Friction(ctx, h, 0)
	boosted := Friction(ctx, h, 0.5)
	assert.InDelta(t, math.Min(base+0.5, 1.0), boosted, 1e-9)
}

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE BOOKKEEPING
// ═══════════════════════════════════════════════════════════════════════════════

func TestRecordCompletionStreakRules(t *testing.T) {
	t.Run("gap within 36h extends streak", func(t *testing.T) {
		last := wednesdayNoon.Add(-20 * time.Hour)
		e, _ := newEngine(&habit.State{ID: "h1", StreakCount: 4, LastCompletion: &last})

		h := e.RecordCompletion("h1", wednesdayNoon)
		require.NotNil(t, h)
		assert.Equal(t, 5, h.StreakCount)
	})

	t.Run("gap beyond 36h resets streak", func(t *testing.T) {
		last := wednesdayNoon.Add(-72 * time.Hour)
		e, _ := newEngine(&habit.State{ID: "h1", StreakCount: 9, LastCompletion: &last})

		h := e.RecordCompletion("h1", wednesdayNoon)
		require.NotNil(t, h)
		assert.Equal(t, 1, h.StreakCount)
	})

	t.Run("first completion starts streak at 1", func(t *testing.T) {
		e, _ := newEngine(&habit.State{ID: "h1"})
		h := e.RecordCompletion("h1", wednesdayNoon)
		require.NotNil(t, h)
		assert.Equal(t, 1, h.StreakCount)
		require.NotNil(t, h.LastCompletion)
		assert.Equal(t, wednesdayNoon, *h.LastCompletion)
	})
}

func TestRecordCompletionSmoothsRate(t *testing.T) {
	e, _ := newEngine(&habit.State{ID: "h1", CompletionRate7d: 0.4})
	h := e.RecordCompletion("h1", wednesdayNoon)
	require.NotNil(t, h)
	assert.InDelta(t, 0.4*0.85+0.15, h.CompletionRate7d, 1e-9)
}

func TestUnknownHabitIsNoOp(t *testing.T) {
	e, reg := newEngine()
	assert.Nil(t, e.RecordCompletion("ghost", wednesdayNoon))
	assert.Nil(t, e.RecordNudgeOutcome("ghost", habit.NudgeRecord{}))
	assert.Equal(t, 0, reg.Len())
}

func TestRecalculateAllAppliesDepletionBoost(t *testing.T) {
	plain := &habit.State{ID: "a"}
	depleted := &habit.State{ID: "b", Metadata: map[string]any{
		habit.MetadataKeyInventory: habit.Inventory{Stock: 0, PerUse: 1},
	}}
	e, _ := newEngine(plain, depleted)

	e.RecalculateAll(signal.Context{Now: wednesdayNoon})

	assert.Greater(t, depleted.FrictionScore, plain.FrictionScore)
}

func TestRecordNudgeOutcomeUpdatesResistance(t *testing.T) {
	e, _ := newEngine(&habit.State{ID: "h1"})

	h := e.RecordNudgeOutcome("h1", habit.NudgeRecord{
		Timestamp: wednesdayNoon,
		Outcome:   habit.OutcomeDismissed,
	})
	require.NotNil(t, h)
	assert.Greater(t, h.ResistanceScore, DefaultResistance)
}
