// Package scoring computes the derived per-habit scores: friction (transient
// contextual difficulty), resistance (learned aversion from past nudge
// outcomes), and momentum (the 0-100 composite). It is the sole writer of
// those three fields; streak and completion-rate bookkeeping happens here on
// explicit completion events and never reads momentum back.
package scoring

import (
	"math"
	"time"

	"github.com/normanking/impetus/internal/forecast"
	"github.com/normanking/impetus/internal/habit"
	"github.com/normanking/impetus/internal/logging"
	"github.com/normanking/impetus/internal/signal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ═══════════════════════════════════════════════════════════════════════════════

const (
	// StreakSaturationDays is where streakFactor reaches 1.0.
	StreakSaturationDays = 14

	// RecencyHalfLifeHours halves the recency factor every 36 hours.
	RecencyHalfLifeHours = 36.0

	// StreakGapHours is the maximum gap between completions that still
	// extends a streak; beyond it the streak resets to 1.
	StreakGapHours = 36.0

	// DefaultResistance applies when a habit has no resolved nudge outcomes.
	DefaultResistance = 0.2

	// ResistanceWindow is how many of the most recent outcomes count.
	ResistanceWindow = 10

	// RateSmoothing is the exponential factor for completion_rate_7d.
	RateSmoothing = 0.85
)

// Friction term weights. Contextual difficulty adds; being in a preferred
// window or on a weekend subtracts.
const (
	frictionBase       = 0.10
	frictionMeeting    = 0.35
	frictionDriving    = 0.40
	frictionLateNight  = 0.30
	frictionDoomScroll = 0.10
	frictionWindow     = -0.20
	frictionWeekend    = -0.10
)

// Momentum composite weights.
const (
	weightStreak     = 0.25
	weightRecency    = 0.30
	weightRate       = 0.25
	weightFriction   = -0.10
	weightResistance = -0.10
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ═══════════════════════════════════════════════════════════════════════════════

// Engine recomputes derived scores against a shared habit registry.
type Engine struct {
	habits *habit.Registry
	log    *logging.Logger
}

// New creates a scoring engine over the given registry.
func New(habits *habit.Registry) *Engine {
	return &Engine{
		habits: habits,
		log:    logging.Global().WithComponent("Scoring"),
	}
}

// RecalculateAll recomputes friction, resistance, and momentum for every
// habit against the cycle's context snapshot, and returns the habits.
func (e *Engine) RecalculateAll(ctx signal.Context) []*habit.State {
	all := e.habits.All()
	for _, h := range all {
		boost := 0.0
		if inv, ok := habit.InventoryFromMetadata(h.Metadata); ok {
			boost = forecast.Project(inv, ctx.Now).Urgency.FrictionBoost()
		}

		h.FrictionScore = Friction(ctx, h, boost)
		h.ResistanceScore = Resistance(h.RecentOutcomes)
		h.MomentumScore = Momentum(h.StreakCount, h.LastCompletion,
			h.CompletionRate7d, h.FrictionScore, h.ResistanceScore, ctx.Now)

		e.log.Debug("habit %s: friction=%.2f resistance=%.2f momentum=%d",
			h.ID, h.FrictionScore, h.ResistanceScore, h.MomentumScore)
	}
	return all
}

// RecordCompletion applies a completion event: streak bookkeeping, completion
// rate smoothing, and an immediate momentum recompute. A missing habit id is
// a no-op returning nil.
func (e *Engine) RecordCompletion(id string, now time.Time) *habit.State {
	h := e.habits.Get(id)
	if h == nil {
		e.log.Warn("completion for unknown habit %q ignored", id)
		return nil
	}

	if h.LastCompletion != nil && now.Sub(*h.LastCompletion).Hours() <= StreakGapHours {
		h.StreakCount++
	} else {
		h.StreakCount = 1
	}

	ts := now
	h.LastCompletion = &ts
	h.CompletionRate7d = h.CompletionRate7d*RateSmoothing + (1 - RateSmoothing)

	h.MomentumScore = Momentum(h.StreakCount, h.LastCompletion,
		h.CompletionRate7d, h.FrictionScore, h.ResistanceScore, now)

	e.log.Info("habit %s completed: streak=%d rate=%.2f momentum=%d",
		h.ID, h.StreakCount, h.CompletionRate7d, h.MomentumScore)
	return h
}

// RecordNudgeOutcome appends a nudge record to the habit's bounded ring and
// recomputes resistance (and momentum, which depends on it). A missing habit
// id is a no-op returning nil.
func (e *Engine) RecordNudgeOutcome(id string, rec habit.NudgeRecord) *habit.State {
	h := e.habits.Get(id)
	if h == nil {
		e.log.Warn("nudge outcome for unknown habit %q ignored", id)
		return nil
	}

	h.AppendOutcome(rec)
	h.ResistanceScore = Resistance(h.RecentOutcomes)
	h.MomentumScore = Momentum(h.StreakCount, h.LastCompletion,
		h.CompletionRate7d, h.FrictionScore, h.ResistanceScore, rec.Timestamp)
	return h
}

// ═══════════════════════════════════════════════════════════════════════════════
// SCORE FUNCTIONS (pure)
// ═══════════════════════════════════════════════════════════════════════════════

// Friction computes the transient contextual difficulty for a habit,
// including any depletion-urgency boost from the forecaster.
func Friction(ctx signal.Context, h *habit.State, depletionBoost float64) float64 {
	f := frictionBase

	if ctx.Calendar.InMeeting {
		f += frictionMeeting
	}
	if ctx.Motion.Driving {
		f += frictionDriving
	}
	if ctx.LateNight() {
		f += frictionLateNight
	}
	if ctx.DoomScrolling {
		f += frictionDoomScroll
	}
	if w := preferredWindowWeight(h, ctx.Now); w > 0 {
		f += frictionWindow * w
	}
	if ctx.Weekend() {
		f += frictionWeekend
	}

	return clamp01(f + depletionBoost)
}

// Resistance computes the recency-weighted aversion score from the last
// ResistanceWindow resolved nudge outcomes. Later outcomes weigh heavier
// ((i+1)/N); dismissed and ignored count negative, completed positive,
// snoozed neutral. No resolved history yields DefaultResistance.
func Resistance(records []habit.NudgeRecord) float64 {
	resolved := make([]habit.Outcome, 0, len(records))
	for _, r := range records {
		if r.Outcome != "" {
			resolved = append(resolved, r.Outcome)
		}
	}
	if len(resolved) > ResistanceWindow {
		resolved = resolved[len(resolved)-ResistanceWindow:]
	}
	if len(resolved) == 0 {
		return DefaultResistance
	}

	n := float64(len(resolved))
	var num, den float64
	for i, o := range resolved {
		w := float64(i+1) / n
		den += w
		switch o {
		case habit.OutcomeCompleted:
			num += w
		case habit.OutcomeDismissed, habit.OutcomeIgnored:
			num -= w
		case habit.OutcomeSnoozed:
			// neutral: dilutes via the denominator only
		}
	}

	// num/den is in [-1,1] with +1 = all completed. Map so that full
	// aversion is 1 and full compliance is 0.
	return clamp01((1 - num/den) / 2)
}

// StreakFactor saturates at StreakSaturationDays.
func StreakFactor(streak int) float64 {
	if streak <= 0 {
		return 0
	}
	f := float64(streak) / StreakSaturationDays
	if f > 1 {
		return 1
	}
	return f
}

// RecencyFactor halves every RecencyHalfLifeHours since the last completion.
// Never completed yields 0; a future timestamp (clock skew) yields 1.
func RecencyFactor(last *time.Time, now time.Time) float64 {
	if last == nil {
		return 0
	}
	hours := now.Sub(*last).Hours()
	if hours <= 0 {
		return 1
	}
	return math.Pow(0.5, hours/RecencyHalfLifeHours)
}

// Momentum computes the 0-100 composite score.
func Momentum(streak int, last *time.Time, rate, friction, resistance float64, now time.Time) int {
	raw := weightStreak*StreakFactor(streak) +
		weightRecency*RecencyFactor(last, now) +
		weightRate*rate +
		weightFriction*friction +
		weightResistance*resistance

	scaled := raw * 100
	if scaled < 0 {
		scaled = 0
	}
	if scaled > 100 {
		scaled = 100
	}
	return int(math.Round(scaled))
}

// preferredWindowWeight returns the strongest matching window's weight, or 0
// when now falls outside every window. A zero or out-of-range weight on a
// matching window counts as 1 so plain unweighted windows keep full effect.
func preferredWindowWeight(h *habit.State, now time.Time) float64 {
	best := 0.0
	for _, w := range h.PreferredWindows {
		if !w.Contains(now) {
			continue
		}
		weight := w.Weight
		if weight <= 0 || weight > 1 {
			weight = 1
		}
		if weight > best {
			best = weight
		}
	}
	return best
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
