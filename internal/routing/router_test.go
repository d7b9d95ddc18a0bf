package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/normanking/impetus/internal/habit"
	"github.com/normanking/impetus/internal/signal"
)

func onlineCtx() signal.Context {
	return signal.Context{
		Battery:      signal.BatterySnapshot{Level: 0.8},
		Connectivity: signal.ConnectivitySnapshot{Online: true},
	}
}

func TestOfflineAlwaysLocal(t *testing.T) {
	r := NewRouter(DefaultConfig(), NewStats())
	ctx := onlineCtx()
	ctx.Connectivity.Online = false

	// Offline wins regardless of any other input.
	for _, complexity := range []float64{0, 0.5, 1.0} {
		d := r.Route(ctx, complexity)
		assert.Equal(t, PathLocal, d.Path, "complexity=%v", complexity)
	}
}

func TestLowBatteryRoutesLocal(t *testing.T) {
	r := NewRouter(DefaultConfig(), NewStats())
	ctx := onlineCtx()
	ctx.Battery.Level = 0.14

	d := r.Route(ctx, 0.9)
	assert.Equal(t, PathLocal, d.Path)
}

func TestLowComplexityHealthyLocal(t *testing.T) {
	stats := NewStats()
	r := NewRouter(DefaultConfig(), stats)

	d := r.Route(onlineCtx(), 0.2)
	assert.Equal(t, PathLocal, d.Path)

	// A recent local failure pushes the same request off the shortcut.
	stats.Report(PathLocal, time.Second, false)
	d = r.Route(onlineCtx(), 0.2)
	assert.Equal(t, PathCloud, d.Path)
}

func TestHighComplexityRoutesCloud(t *testing.T) {
	r := NewRouter(DefaultConfig(), NewStats())
	d := r.Route(onlineCtx(), 0.85)
	assert.Equal(t, PathCloud, d.Path)
}

func TestLatencyComparisonMidBand(t *testing.T) {
	t.Run("local must be meaningfully faster", func(t *testing.T) {
		stats := NewStats()
		stats.Report(PathLocal, 600*time.Millisecond, true)
		stats.Report(PathCloud, 1000*time.Millisecond, true)
		r := NewRouter(DefaultConfig(), stats)

		// 600ms is not < 70% of 1000ms.
		d := r.Route(onlineCtx(), 0.5)
		assert.Equal(t, PathCloud, d.Path)
	})

	t.Run("clearly faster local wins", func(t *testing.T) {
		stats := NewStats()
		stats.Report(PathLocal, 300*time.Millisecond, true)
		stats.Report(PathCloud, 1000*time.Millisecond, true)
		r := NewRouter(DefaultConfig(), stats)

		d := r.Route(onlineCtx(), 0.5)
		assert.Equal(t, PathLocal, d.Path)
	})

	t.Run("empty windows default to parity", func(t *testing.T) {
		r := NewRouter(DefaultConfig(), NewStats())
		d := r.Route(onlineCtx(), 0.5)
		assert.Equal(t, PathCloud, d.Path) // 5000ms vs 5000ms, not meaningfully faster
	})
}

func TestStatsRollingWindow(t *testing.T) {
	stats := NewStats()
	for i := 0; i < 25; i++ {
		stats.Report(PathLocal, time.Duration(i+1)*time.Second, true)
	}

	assert.Equal(t, WindowSize, stats.SampleCount(PathLocal))
	// Window holds samples 16..25s, mean 20.5s.
	assert.Equal(t, 20500*time.Millisecond, stats.AverageLatency(PathLocal))
}

func TestStatsFailureCounterBoundedAtZero(t *testing.T) {
	stats := NewStats()
	stats.Report(PathCloud, 0, false)
	stats.Report(PathCloud, 0, false)
	assert.Equal(t, 2, stats.Failures(PathCloud))

	for i := 0; i < 5; i++ {
		stats.Report(PathCloud, time.Second, true)
	}
	assert.Equal(t, 0, stats.Failures(PathCloud))
}

func TestComplexityScore(t *testing.T) {
	base := ComplexityScore(signal.Context{}, nil)
	assert.InDelta(t, 0.2, base, 1e-9)

	loaded := signal.Context{
		Calendar:      signal.CalendarSnapshot{HasEvents: true, MeetingJustEnded: true},
		Health:        signal.HealthSnapshot{Present: true, MilestoneReached: true},
		DoomScrolling: true,
	}
	habits := []*habit.State{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
		{ID: "d", StreakCount: 1, CompletionRate7d: 0.5}, // recovering
	}

	score := ComplexityScore(loaded, habits)
	assert.Equal(t, 1.0, score) // capped
}

func TestComplexityCapAtOne(t *testing.T) {
	// Even a fully loaded context never exceeds 1.0.
	ctx := signal.Context{
		Calendar:      signal.CalendarSnapshot{HasEvents: true, MeetingJustEnded: true},
		Health:        signal.HealthSnapshot{Present: true, MilestoneReached: true},
		DoomScrolling: true,
	}
	var habits []*habit.State
	for i := 0; i < 10; i++ {
		habits = append(habits, &habit.State{StreakCount: 1, CompletionRate7d: 0.9})
	}
	assert.LessOrEqual(t, ComplexityScore(ctx, habits), 1.0)
}
