// Package forecast projects consumable-resource exhaustion for
// inventory-backed habits. The projection walks scheduled-use days over a
// fixed lookahead window and maps the first exhaustion day to an urgency
// class, which the scoring engine consumes as a friction boost.
package forecast

import (
	"time"

	"github.com/normanking/impetus/internal/habit"
)

// LookaheadDays is the projection window. Depletion beyond it is "safe".
const LookaheadDays = 14

// Urgency classifies how soon the resource runs out.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
	UrgencyNone     Urgency = "none"
)

// FrictionBoost maps the urgency class to the friction term consumed by the
// scoring engine.
func (u Urgency) FrictionBoost() float64 {
	switch u {
	case UrgencyCritical:
		return 0.5
	case UrgencyHigh:
		return 0.3
	case UrgencyMedium:
		return 0.15
	case UrgencyLow:
		return 0.05
	default:
		return 0
	}
}

// Forecast is one depletion projection.
type Forecast struct {
	DaysUntilDepletion  int     `json:"days_until_depletion"`
	RecommendedActionIn int     `json:"recommended_action_in"` // days from now, floored at 0
	Urgency             Urgency `json:"urgency"`
}

// Project walks forward day by day from now. Each scheduled-use day consumes
// PerUse from the remaining stock; the first day offset at which stock reaches
// zero (or below) is the depletion day. No depletion inside the window means
// LookaheadDays, i.e. safe.
func Project(inv habit.Inventory, now time.Time) Forecast {
	days := LookaheadDays

	if inv.Stock <= 0 {
		days = 0
	} else {
		remaining := inv.Stock
		for offset := 1; offset <= LookaheadDays; offset++ {
			day := now.AddDate(0, 0, offset)
			if !scheduled(inv.ScheduledDays, day.Weekday()) {
				continue
			}
			remaining -= inv.PerUse
			if remaining <= 0 {
				days = offset
				break
			}
		}
	}

	buffer := 1
	if days > 3 {
		buffer = 2
	}
	action := days - buffer
	if action < 0 {
		action = 0
	}

	return Forecast{
		DaysUntilDepletion:  days,
		RecommendedActionIn: action,
		Urgency:             classify(days),
	}
}

func classify(days int) Urgency {
	switch {
	case days <= 0:
		return UrgencyCritical
	case days <= 1:
		return UrgencyHigh
	case days <= 3:
		return UrgencyMedium
	case days <= 5:
		return UrgencyLow
	default:
		return UrgencyNone
	}
}

func scheduled(days []time.Weekday, d time.Weekday) bool {
	for _, sd := range days {
		if sd == d {
			return true
		}
	}
	return false
}
