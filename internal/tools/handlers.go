package tools

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/normanking/impetus/internal/habit"
	"github.com/normanking/impetus/internal/scoring"
)

// DefaultNudgeCooldown is the cooldown suggested after a delivered nudge.
const DefaultNudgeCooldown = 2 * time.Hour

// Tones accepted by the nudge tools.
var Tones = []string{"gentle", "encouraging", "firm", "playful"}

// Deps are the collaborators the builtin handlers act on. The handlers never
// write cooldown_until themselves; they return the requested timestamp under
// Data["cooldown_until"] (RFC3339) and the orchestrator, as the sole cooldown
// writer, applies it.
type Deps struct {
	Habits  *habit.Registry
	Scoring *scoring.Engine
	Notify  *Dispatcher
	Now     func() time.Time

	// Cooldown overrides DefaultNudgeCooldown when positive.
	Cooldown time.Duration
}

// RegisterBuiltins registers the full impetus action set.
func RegisterBuiltins(reg *Registry, deps Deps) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Cooldown <= 0 {
		deps.Cooldown = DefaultNudgeCooldown
	}

	builtins := []*Tool{
		{
			Name:        "send_nudge",
			Description: "Send the user a nudge for a habit. Use when context and momentum favor acting now.",
			Parameters: []Parameter{
				{Name: "habit_id", Type: "string", Description: "Target habit id", Required: true},
				{Name: "tone", Type: "string", Description: "Voice of the nudge", Enum: Tones, Required: true},
				{Name: "message", Type: "string", Description: "The nudge text, one short sentence", Required: true},
			},
			Handler: deps.sendNudge,
		},
		{
			Name:        "adjust_difficulty",
			Description: "Raise or lower a habit's difficulty when the user is over- or under-challenged.",
			Parameters: []Parameter{
				{Name: "habit_id", Type: "string", Description: "Target habit id", Required: true},
				{Name: "delta", Type: "integer", Description: "Difficulty change, e.g. -1 to ease off", Required: true},
			},
			Handler: deps.adjustDifficulty,
		},
		{
			Name:        "reschedule_nudge",
			Description: "Push the next possible nudge for a habit into the future. Use when now is a bad moment.",
			Parameters: []Parameter{
				{Name: "habit_id", Type: "string", Description: "Target habit id", Required: true},
				{Name: "delay_minutes", Type: "number", Description: "How long to wait, 5-1440 minutes", Required: true},
			},
			Handler: deps.rescheduleNudge,
		},
		{
			Name:        "update_habit_field",
			Description: "Update one editable habit field.",
			Parameters: []Parameter{
				{Name: "habit_id", Type: "string", Description: "Target habit id", Required: true},
				{Name: "field", Type: "string", Description: "Field to change", Enum: []string{"name", "category", "difficulty"}, Required: true},
				{Name: "value", Type: "string", Description: "New value", Required: true},
			},
			Handler: deps.updateHabitField,
		},
		{
			Name:        "record_observation",
			Description: "Store a short observation about a habit for future cycles, without user-visible effect.",
			Parameters: []Parameter{
				{Name: "habit_id", Type: "string", Description: "Target habit id", Required: true},
				{Name: "note", Type: "string", Description: "The observation", Required: true},
			},
			Handler: deps.recordObservation,
		},
		{
			Name:        "defer_action",
			Description: "Explicitly do nothing this cycle, with a reason.",
			Parameters: []Parameter{
				{Name: "reason", Type: "string", Description: "Why no action is taken", Required: false},
			},
			Handler: deps.deferAction,
		},
	}

	for _, t := range builtins {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("register builtin %s: %w", t.Name, err)
		}
	}
	return nil
}

func (d Deps) habitArg(args map[string]any) (*habit.State, *Result) {
	id := StringArg(args, "habit_id", "")
	h := d.Habits.Get(id)
	if h == nil {
		return nil, Failure("", "no habit with id %q", id)
	}
	return h, nil
}

func (d Deps) sendNudge(ctx context.Context, args map[string]any) *Result {
	h, fail := d.habitArg(args)
	if fail != nil {
		return fail
	}

	now := d.Now()
	if h.OnCooldown(now) {
		return Failure("", "habit %s is on cooldown until %s", h.ID, h.CooldownUntil.Format(time.RFC3339))
	}
	if !d.Notify.Ready() {
		return Failure("", "no notification channel configured")
	}

	tone := StringArg(args, "tone", "gentle")
	message := StringArg(args, "message", "")

	d.Notify.Dispatch(h.ID, tone, message, now)
	d.Scoring.RecordNudgeOutcome(h.ID, habit.NudgeRecord{
		Timestamp: now,
		Tone:      tone,
		Message:   message,
		// Outcome stays empty until the user responds.
	})

	return Ok("", map[string]any{
		"habit_id":       h.ID,
		"tone":           tone,
		"cooldown_until": now.Add(d.Cooldown).Format(time.RFC3339),
	})
}

func (d Deps) adjustDifficulty(ctx context.Context, args map[string]any) *Result {
	h, fail := d.habitArg(args)
	if fail != nil {
		return fail
	}

	delta := int(NumberArg(args, "delta", 0))
	if delta == 0 {
		return Failure("", "delta must be a non-zero integer")
	}

	old := h.Difficulty
	upd := habit.FieldUpdate{Field: habit.FieldDifficulty, Int: old + delta}
	if err := upd.Apply(h, d.Now()); err != nil {
		return Failure("", "apply difficulty change: %v", err)
	}

	return Ok("", map[string]any{
		"habit_id":       h.ID,
		"old_difficulty": old,
		"new_difficulty": h.Difficulty,
	})
}

func (d Deps) rescheduleNudge(ctx context.Context, args map[string]any) *Result {
	h, fail := d.habitArg(args)
	if fail != nil {
		return fail
	}

	minutes := NumberArg(args, "delay_minutes", 0)
	if minutes < 5 {
		minutes = 5
	}
	if minutes > 1440 {
		minutes = 1440
	}

	until := d.Now().Add(time.Duration(minutes) * time.Minute)
	return Ok("", map[string]any{
		"habit_id":       h.ID,
		"cooldown_until": until.Format(time.RFC3339),
	})
}

func (d Deps) updateHabitField(ctx context.Context, args map[string]any) *Result {
	h, fail := d.habitArg(args)
	if fail != nil {
		return fail
	}

	field := StringArg(args, "field", "")
	value := StringArg(args, "value", "")

	var upd habit.FieldUpdate
	switch field {
	case "name":
		upd = habit.FieldUpdate{Field: habit.FieldName, String: value}
	case "category":
		upd = habit.FieldUpdate{Field: habit.FieldCategory, String: value}
	case "difficulty":
		n, err := strconv.Atoi(value)
		if err != nil {
			return Failure("", "difficulty value %q is not an integer", value)
		}
		upd = habit.FieldUpdate{Field: habit.FieldDifficulty, Int: n}
	default:
		return Failure("", "field %q is not editable", field)
	}

	if err := upd.Apply(h, d.Now()); err != nil {
		return Failure("", "update %s: %v", field, err)
	}
	return Ok("", map[string]any{"habit_id": h.ID, "field": field, "value": value})
}

func (d Deps) recordObservation(ctx context.Context, args map[string]any) *Result {
	h, fail := d.habitArg(args)
	if fail != nil {
		return fail
	}

	note := StringArg(args, "note", "")
	upd := habit.FieldUpdate{Field: habit.FieldMetadata, Key: "observation", Value: note}
	if err := upd.Apply(h, d.Now()); err != nil {
		return Failure("", "record observation: %v", err)
	}
	return Ok("", map[string]any{"habit_id": h.ID})
}

func (d Deps) deferAction(ctx context.Context, args map[string]any) *Result {
	return Ok("", map[string]any{
		"reason": StringArg(args, "reason", "no action warranted"),
	})
}
