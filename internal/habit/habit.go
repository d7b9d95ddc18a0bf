// Package habit defines the habit state model shared by the scoring engine,
// the decision orchestrator, and the persistence layer.
package habit

import (
	"time"
)

// MaxRecentOutcomes bounds the per-habit nudge outcome ring.
const MaxRecentOutcomes = 20

// Outcome describes how the user responded to a nudge.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeDismissed Outcome = "dismissed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeSnoozed   Outcome = "snoozed"
)

// NudgeRecord is one issued nudge and its (eventually resolved) outcome.
// Records are append-only per habit and trimmed to MaxRecentOutcomes.
type NudgeRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Tone      string    `json:"tone"`
	Message   string    `json:"message"`
	Outcome   Outcome   `json:"outcome,omitempty"` // empty until the user responds
}

// TimeWindow is a weighted day/hour range in which a habit is preferred.
type TimeWindow struct {
	Days      []time.Weekday `json:"days"`
	StartHour int            `json:"start_hour"` // inclusive, 0-23
	EndHour   int            `json:"end_hour"`   // exclusive, 1-24
	Weight    float64        `json:"weight"`
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	h := t.Hour()
	if h < w.StartHour || h >= w.EndHour {
		return false
	}
	if len(w.Days) == 0 {
		return true
	}
	for _, d := range w.Days {
		if t.Weekday() == d {
			return true
		}
	}
	return false
}

// State holds everything the engine knows about one habit.
//
// MomentumScore is always a pure function of the other fields at the time of
// last recomputation. Streak and completion-rate logic must never read it.
// FrictionScore is recomputed every cycle and is not authoritative between
// cycles.
type State struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Category         string         `json:"category"`
	Difficulty       int            `json:"difficulty"` // 1 (easy) .. 5 (hard)
	StreakCount      int            `json:"streak_count"`
	LastCompletion   *time.Time     `json:"last_completion,omitempty"`
	CompletionRate7d float64        `json:"completion_rate_7d"` // exponentially decayed, [0,1]
	PreferredWindows []TimeWindow   `json:"preferred_windows,omitempty"`
	ResistanceScore  float64        `json:"resistance_score"` // [0,1]
	FrictionScore    float64        `json:"friction_score"`   // [0,1]
	MomentumScore    int            `json:"momentum_score"`   // [0,100], derived
	CooldownUntil    time.Time      `json:"cooldown_until"`
	RecentOutcomes   []NudgeRecord  `json:"recent_outcomes,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// AppendOutcome appends a nudge record, trimming the ring to MaxRecentOutcomes.
func (s *State) AppendOutcome(rec NudgeRecord) {
	s.RecentOutcomes = append(s.RecentOutcomes, rec)
	if len(s.RecentOutcomes) > MaxRecentOutcomes {
		s.RecentOutcomes = s.RecentOutcomes[len(s.RecentOutcomes)-MaxRecentOutcomes:]
	}
}

// OnCooldown reports whether the habit is still cooling down at now.
func (s *State) OnCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// ExtendCooldown moves CooldownUntil forward to until. While a cooldown is
// active it only ever moves forward; an earlier timestamp is ignored.
func (s *State) ExtendCooldown(until time.Time, now time.Time) {
	if s.OnCooldown(now) && until.Before(s.CooldownUntil) {
		return
	}
	s.CooldownUntil = until
}

// Clone returns a deep copy, used for per-cycle audit snapshots.
func (s *State) Clone() *State {
	c := *s
	if s.LastCompletion != nil {
		ts := *s.LastCompletion
		c.LastCompletion = &ts
	}
	c.PreferredWindows = append([]TimeWindow(nil), s.PreferredWindows...)
	c.RecentOutcomes = append([]NudgeRecord(nil), s.RecentOutcomes...)
	if s.Metadata != nil {
		c.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
