package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/normanking/impetus/internal/habit"
	"github.com/normanking/impetus/internal/routing"
	"github.com/normanking/impetus/internal/signal"
	"github.com/normanking/impetus/internal/tools"
)

// Trigger sources.
const (
	TriggerInterval  = "interval"
	TriggerThreshold = "doom_scroll_threshold"
	TriggerExternal  = "external"
	TriggerManual    = "manual"
)

// CycleResult is the full audit record of one decision cycle: the trigger,
// the context and habit snapshot the decision was made against, the prompt
// and raw model output, and the executed action. Every cycle produces one,
// degraded or not; step failures land in Errors instead of aborting.
type CycleResult struct {
	ID        string        `json:"id"`
	Trigger   string        `json:"trigger"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Context    signal.Context   `json:"context"`
	Habits     []*habit.State   `json:"habits,omitempty"`
	Complexity float64          `json:"complexity"`
	Decision   routing.Decision `json:"decision"`

	Prompt        string  `json:"prompt,omitempty"`
	Backend       string  `json:"backend"`
	RawOutput     string  `json:"raw_output,omitempty"`
	Confidence    float64 `json:"confidence"`
	ServedLocally bool    `json:"served_locally"`

	Action     string        `json:"action"`
	ToolResult *tools.Result `json:"tool_result,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

// Succeeded reports whether the chosen action executed cleanly.
func (r *CycleResult) Succeeded() bool {
	return r.ToolResult != nil && r.ToolResult.Success
}

func (r *CycleResult) recordError(step string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", step, err))
}

// ═══════════════════════════════════════════════════════════════════════════════
// PROMPT BUILDING
// ═══════════════════════════════════════════════════════════════════════════════

const systemPrompt = `You are the decision core of a habit companion. Each cycle you see the
user's current context and their habits with derived scores. Choose exactly
one action by calling exactly one tool. Prefer doing nothing over nudging at
a bad moment: never nudge someone who is driving, in a meeting, or whose
habit is on cooldown. Momentum above 60 means the habit is healthy; below 30
it needs support. High friction means now is a costly moment to act.`

// buildPrompt renders the cycle context and habit summaries for the model.
func buildPrompt(ctx signal.Context, habits []*habit.State) string {
	var b strings.Builder

	b.WriteString("Current context:\n")
	fmt.Fprintf(&b, "- time: %s (%s)\n", ctx.Now.Format("Mon 15:04"), dayPart(ctx))
	fmt.Fprintf(&b, "- connectivity: online=%t battery=%.0f%%\n",
		ctx.Connectivity.Online, ctx.Battery.Level*100)
	if ctx.Calendar.InMeeting {
		b.WriteString("- user is in a meeting\n")
	}
	if ctx.Calendar.MeetingJustEnded {
		b.WriteString("- a meeting just ended\n")
	}
	if ctx.Motion.Driving {
		b.WriteString("- user is driving\n")
	}
	if ctx.DoomScrolling {
		fmt.Fprintf(&b, "- user has been scrolling continuously for %ds\n",
			ctx.Scroll.ContinuousSeconds)
	}
	if ctx.Health.MilestoneReached {
		b.WriteString("- a health milestone was just reached\n")
	}

	b.WriteString("\nHabits:\n")
	sorted := append([]*habit.State(nil), habits...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MomentumScore > sorted[j].MomentumScore
	})
	for _, h := range sorted {
		fmt.Fprintf(&b, "- %s (%s): momentum=%d streak=%d friction=%.2f resistance=%.2f",
			h.ID, h.Name, h.MomentumScore, h.StreakCount, h.FrictionScore, h.ResistanceScore)
		if h.OnCooldown(ctx.Now) {
			fmt.Fprintf(&b, " ON COOLDOWN until %s", h.CooldownUntil.Format("15:04"))
		}
		b.WriteString("\n")
	}
	if len(sorted) == 0 {
		b.WriteString("- none configured\n")
	}

	b.WriteString("\nPick exactly one tool call.")
	return b.String()
}

func dayPart(ctx signal.Context) string {
	switch {
	case ctx.LateNight():
		return "late night"
	case ctx.Weekend():
		return "weekend"
	default:
		return "weekday"
	}
}
