// Package routing picks an inference path for each decision cycle using a
// small deterministic decision tree over connectivity, battery, prompt
// complexity, and rolling per-path latency/failure history.
package routing

import (
	"fmt"

	"github.com/normanking/impetus/internal/habit"
	"github.com/normanking/impetus/internal/logging"
	"github.com/normanking/impetus/internal/signal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PATHS AND DECISIONS
// ═══════════════════════════════════════════════════════════════════════════════

// Path identifies an inference backend path.
type Path string

const (
	PathLocal Path = "local" // pure on-device inference
	PathCloud Path = "cloud" // direct remote REST call
	PathMock  Path = "mock"  // deterministic offline fallback
)

// Decision is the routing outcome for one cycle.
type Decision struct {
	Path       Path    `json:"path"`
	Reason     string  `json:"reason"`
	Complexity float64 `json:"complexity"`
}

// Config holds the routing thresholds.
type Config struct {
	LowBattery     float64 // below this, always local
	LowComplexity  float64 // below this, local if healthy
	HighComplexity float64 // above this, cloud
	LocalRatio     float64 // local wins latency comparison below this fraction of cloud
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		LowBattery:     0.15,
		LowComplexity:  0.30,
		HighComplexity: 0.70,
		LocalRatio:     0.70,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMPLEXITY SCORING
// ═══════════════════════════════════════════════════════════════════════════════

// Complexity feature increments, capped at 1.0.
const (
	complexityBase       = 0.20
	complexityHealth     = 0.10
	complexityCalendar   = 0.15
	complexityMeetingEnd = 0.15
	complexityDoomScroll = 0.20
	complexityManyHabits = 0.10
	complexityRecovering = 0.15
	complexityMilestone  = 0.10
)

// ComplexityScore sums fixed increments per present context feature.
func ComplexityScore(ctx signal.Context, habits []*habit.State) float64 {
	score := complexityBase

	if ctx.Health.Present {
		score += complexityHealth
	}
	if ctx.Calendar.HasEvents {
		score += complexityCalendar
	}
	if ctx.Calendar.MeetingJustEnded {
		score += complexityMeetingEnd
	}
	if ctx.DoomScrolling {
		score += complexityDoomScroll
	}
	if len(habits) > 3 {
		score += complexityManyHabits
	}
	if hasRecovering(habits) {
		score += complexityRecovering
	}
	if ctx.Health.MilestoneReached {
		score += complexityMilestone
	}

	if score > 1 {
		return 1
	}
	return score
}

// hasRecovering reports whether any habit looks like a restarted streak: a
// short current streak on a habit with meaningful historical consistency.
func hasRecovering(habits []*habit.State) bool {
	for _, h := range habits {
		if h.StreakCount >= 1 && h.StreakCount <= 2 && h.CompletionRate7d >= 0.3 {
			return true
		}
	}
	return false
}

// ═══════════════════════════════════════════════════════════════════════════════
// ROUTER
// ═══════════════════════════════════════════════════════════════════════════════

// Router applies the decision tree for one cycle.
type Router struct {
	cfg   Config
	stats *Stats
	log   *logging.Logger
}

// NewRouter creates a router over shared rolling stats.
func NewRouter(cfg Config, stats *Stats) *Router {
	return &Router{
		cfg:   cfg,
		stats: stats,
		log:   logging.Global().WithComponent("Router"),
	}
}

// Stats exposes the shared stats tracker so callers can report attempt
// outcomes after inference.
func (r *Router) Stats() *Stats {
	return r.stats
}

// Route picks the inference path for the cycle. The order is fixed:
// disconnected and low-battery constraints first, then complexity bands,
// then the rolling latency comparison.
func (r *Router) Route(ctx signal.Context, complexity float64) Decision {
	d := Decision{Complexity: complexity}

	if !ctx.Connectivity.Online {
		d.Path = PathLocal
		d.Reason = "offline"
		r.log.Info("route=%s (%s)", d.Path, d.Reason)
		return d
	}

	if ctx.Battery.Level < r.cfg.LowBattery {
		d.Path = PathLocal
		d.Reason = fmt.Sprintf("battery %.0f%% below threshold", ctx.Battery.Level*100)
		r.log.Info("route=%s (%s)", d.Path, d.Reason)
		return d
	}

	if complexity < r.cfg.LowComplexity && r.stats.Failures(PathLocal) == 0 {
		d.Path = PathLocal
		d.Reason = fmt.Sprintf("low complexity %.2f, local healthy", complexity)
		r.log.Info("route=%s (%s)", d.Path, d.Reason)
		return d
	}

	if complexity > r.cfg.HighComplexity {
		d.Path = PathCloud
		d.Reason = fmt.Sprintf("high complexity %.2f", complexity)
		r.log.Info("route=%s (%s)", d.Path, d.Reason)
		return d
	}

	localAvg := r.stats.AverageLatency(PathLocal)
	cloudAvg := r.stats.AverageLatency(PathCloud)

	if float64(localAvg) < r.cfg.LocalRatio*float64(cloudAvg) && r.stats.Failures(PathLocal) == 0 {
		d.Path = PathLocal
		d.Reason = fmt.Sprintf("local meaningfully faster (%v vs %v)", localAvg, cloudAvg)
	} else {
		d.Path = PathCloud
		d.Reason = fmt.Sprintf("latency comparison favors cloud (%v vs %v, local failures=%d)",
			localAvg, cloudAvg, r.stats.Failures(PathLocal))
	}

	r.log.Info("route=%s (%s)", d.Path, d.Reason)
	return d
}
