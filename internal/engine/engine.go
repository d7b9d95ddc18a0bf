// Package engine is the decision orchestrator: it owns the trigger sources,
// runs the cycle pipeline end to end, and is the sole writer of habit
// cooldowns. A cycle never aborts; every step failure is recorded in the
// CycleResult and the pipeline carries on to a well-formed decision.
package engine

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/normanking/impetus/internal/bus"
	"github.com/normanking/impetus/internal/habit"
	"github.com/normanking/impetus/internal/inference"
	"github.com/normanking/impetus/internal/logging"
	"github.com/normanking/impetus/internal/routing"
	"github.com/normanking/impetus/internal/scoring"
	"github.com/normanking/impetus/internal/signal"
	"github.com/normanking/impetus/internal/store"
	"github.com/normanking/impetus/internal/tools"
)

// Config holds the orchestrator timings and inference shape.
type Config struct {
	Interval      time.Duration // base cycle interval
	Jitter        float64       // ± fraction of Interval, default 0.2
	ThresholdPoll time.Duration // doom-scroll poll cadence
	Temperature   float64
	MaxTokens     int
}

// DefaultConfig returns the stock orchestrator timings.
func DefaultConfig() Config {
	return Config{
		Interval:      45 * time.Minute,
		Jitter:        0.2,
		ThresholdPoll: 30 * time.Second,
		Temperature:   0.3,
		MaxTokens:     512,
	}
}

// Engine wires the cycle pipeline together. All collaborators are injected;
// the engine holds no package-level state.
type Engine struct {
	cfg     Config
	habits  *habit.Registry
	scoring *scoring.Engine
	signals *signal.Aggregator
	router  *routing.Router
	client  *inference.Client
	tools   *tools.Registry
	store   *store.Store // nil disables persistence
	bus     *bus.Bus
	log     *logging.Logger

	// Overlapping triggers collapse onto one in-flight cycle.
	group    singleflight.Group
	external chan string
}

// New creates the orchestrator. The store may be nil (in-memory only).
func New(cfg Config, habits *habit.Registry, sc *scoring.Engine, signals *signal.Aggregator,
	router *routing.Router, client *inference.Client, reg *tools.Registry,
	st *store.Store, b *bus.Bus) *Engine {

	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Jitter <= 0 {
		cfg.Jitter = 0.2
	}
	if cfg.ThresholdPoll <= 0 {
		cfg.ThresholdPoll = 30 * time.Second
	}

	return &Engine{
		cfg:      cfg,
		habits:   habits,
		scoring:  sc,
		signals:  signals,
		router:   router,
		client:   client,
		tools:    reg,
		store:    st,
		bus:      b,
		log:      logging.Global().WithComponent("Engine"),
		external: make(chan string, 8),
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRIGGERS
// ═══════════════════════════════════════════════════════════════════════════════

// Run drives the trigger loops until ctx is cancelled: the jittered interval
// timer, the doom-scroll threshold poll, and the external trigger channel.
func (e *Engine) Run(ctx context.Context) {
	e.log.Info("engine running: interval=%v ±%.0f%%, threshold poll=%v",
		e.cfg.Interval, e.cfg.Jitter*100, e.cfg.ThresholdPoll)

	intervalTimer := time.NewTimer(e.nextInterval())
	defer intervalTimer.Stop()

	pollTicker := time.NewTicker(e.cfg.ThresholdPoll)
	defer pollTicker.Stop()

	wasDoomScrolling := false

	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped: %v", ctx.Err())
			return

		case <-intervalTimer.C:
			e.RunCycle(ctx, TriggerInterval)
			intervalTimer.Reset(e.nextInterval())

		case <-pollTicker.C:
			// Edge-triggered: fire once when the threshold is crossed,
			// not on every poll while it stays crossed.
			snap := e.signals.Collect(time.Now())
			if snap.DoomScrolling && !wasDoomScrolling {
				e.RunCycle(ctx, TriggerThreshold)
			}
			wasDoomScrolling = snap.DoomScrolling

		case reason := <-e.external:
			e.log.Info("external trigger: %s", reason)
			e.RunCycle(ctx, TriggerExternal)
		}
	}
}

// nextInterval jitters the base interval by ±Jitter so cycles do not align
// with other periodic work on the device.
func (e *Engine) nextInterval() time.Duration {
	spread := 1 - e.cfg.Jitter + 2*e.cfg.Jitter*rand.Float64()
	return time.Duration(float64(e.cfg.Interval) * spread)
}

// Trigger requests a cycle from an external event source. Non-blocking; a
// full queue drops the request (the interval timer will cover it).
func (e *Engine) Trigger(reason string) {
	select {
	case e.external <- reason:
	default:
		e.log.Warn("external trigger queue full, dropping %q", reason)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// CYCLE PIPELINE
// ═══════════════════════════════════════════════════════════════════════════════

// RunCycle executes one full decision cycle. Triggers arriving while a cycle
// is in flight share its result instead of racing a second pipeline over the
// same habit state.
func (e *Engine) RunCycle(ctx context.Context, trigger string) *CycleResult {
	v, _, shared := e.group.Do("cycle", func() (any, error) {
		return e.runCycle(ctx, trigger), nil
	})
	res := v.(*CycleResult)
	if shared {
		e.log.Debug("trigger %s joined in-flight cycle %s", trigger, res.ID)
	}
	return res
}

func (e *Engine) runCycle(ctx context.Context, trigger string) *CycleResult {
	start := time.Now()
	res := &CycleResult{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: start,
	}

	ev := bus.NewEvent(bus.EventTrigger)
	ev.CycleID = res.ID
	ev.Trigger = trigger
	e.publish(ev)

	// 1. Collect context.
	sctx := e.signals.Collect(start)
	res.Context = sctx

	// 2. Recompute all habit scores, then snapshot for the audit trail.
	// Deep copies, so later mutation never rewrites a past record.
	habits := e.scoring.RecalculateAll(sctx)
	res.Habits = e.habits.Snapshot()

	// 3-4. Complexity and routing decision.
	res.Complexity = routing.ComplexityScore(sctx, habits)
	res.Decision = e.router.Route(sctx, res.Complexity)

	// 5. Build the prompt.
	req := &inference.Request{
		System:      systemPrompt,
		Prompt:      buildPrompt(sctx, habits),
		Tools:       e.tools.Schemas(),
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	}
	res.Prompt = req.Prompt

	// 6. Inference. The client absorbs all backend failure.
	resp := e.client.Infer(ctx, res.Decision, sctx.Connectivity.Online, req)
	res.Backend = resp.Backend
	res.RawOutput = resp.Text // raw model text, or the raw-error string on a degraded defer
	res.Confidence = resp.Confidence
	res.ServedLocally = resp.ServedLocally

	// 7. Validate and execute exactly one action.
	call := e.chooseCall(resp)
	res.Action = call.Name
	res.ToolResult = e.tools.Execute(ctx, call)
	if !res.ToolResult.Success {
		res.Errors = append(res.Errors, "execute: "+res.ToolResult.Error)
	}
	e.applyCooldown(res.ToolResult, start)

	// 8. Persist, best effort.
	e.persist(ctx, res)

	// 9. Notify subscribers. Emitted even when persistence failed.
	res.Duration = time.Since(start)
	e.emit(res)

	e.log.Info("cycle %s: trigger=%s path=%s action=%s ok=%t in %v",
		res.ID[:8], trigger, res.Decision.Path, res.Action, res.Succeeded(), res.Duration)
	return res
}

// chooseCall picks the single action from the response. A response with no
// usable call degrades to an explicit defer.
func (e *Engine) chooseCall(resp *inference.Response) *tools.Call {
	if len(resp.Calls) == 0 {
		return &tools.Call{
			Name:      "defer_action",
			Arguments: map[string]any{"reason": "model returned no action"},
		}
	}
	if len(resp.Calls) > 1 {
		e.log.Warn("model proposed %d calls, taking the first", len(resp.Calls))
	}
	c := resp.Calls[0]
	if c.Arguments == nil {
		c.Arguments = make(map[string]any)
	}
	return &c
}

// applyCooldown applies a cooldown a tool requested through its result data.
// The orchestrator is the only writer of cooldown_until; handlers just ask.
func (e *Engine) applyCooldown(result *tools.Result, now time.Time) {
	if result == nil || !result.Success || result.Data == nil {
		return
	}
	raw, ok := result.Data["cooldown_until"].(string)
	if !ok {
		return
	}
	id, ok := result.Data["habit_id"].(string)
	if !ok {
		return
	}
	until, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		e.log.Warn("tool %s returned unparseable cooldown %q: %v", result.Tool, raw, err)
		return
	}
	h := e.habits.Get(id)
	if h == nil {
		return
	}
	upd := habit.FieldUpdate{Field: habit.FieldCooldown, Time: until}
	if err := upd.Apply(h, now); err != nil {
		e.log.Warn("apply cooldown for %s: %v", id, err)
	}
}

// persist writes habit state and the cycle record. Failures are recorded in
// the result and logged, never fatal.
func (e *Engine) persist(ctx context.Context, res *CycleResult) {
	if e.store == nil {
		return
	}

	for _, h := range e.habits.All() {
		if err := e.store.SaveHabit(ctx, h); err != nil {
			res.recordError("persist habit", err)
			e.log.Error("save habit %s: %v", h.ID, err)
		}
	}

	detail, err := json.Marshal(res)
	if err != nil {
		res.recordError("persist cycle", err)
		return
	}
	rec := store.CycleRecord{
		ID:         res.ID,
		CreatedAt:  res.StartedAt,
		Trigger:    res.Trigger,
		Path:       string(res.Decision.Path),
		Action:     res.Action,
		Success:    res.Succeeded(),
		DurationMs: time.Since(res.StartedAt).Milliseconds(),
		Detail:     detail,
	}
	if err := e.store.AppendCycleResult(ctx, rec); err != nil {
		res.recordError("persist cycle", err)
		e.log.Error("append cycle result: %v", err)
	}
}

func (e *Engine) emit(res *CycleResult) {
	ev := bus.NewEvent(bus.EventCycleCompleted)
	ev.CycleID = res.ID
	ev.Trigger = res.Trigger
	ev.Path = string(res.Decision.Path)
	ev.Action = res.Action
	ev.Confidence = res.Confidence
	ev.DurationMs = res.Duration.Milliseconds()
	if len(res.Errors) > 0 {
		ev.Error = res.Errors[0]
	}
	if res.ToolResult != nil {
		ev.Payload = res.ToolResult.Data
	}
	e.publish(ev)

	if res.Action == "send_nudge" && res.Succeeded() {
		nudge := bus.NewEvent(bus.EventNudgeSent)
		nudge.CycleID = res.ID
		if id, ok := res.ToolResult.Data["habit_id"].(string); ok {
			nudge.HabitID = id
		}
		e.publish(nudge)
	}
}

func (e *Engine) publish(ev bus.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ev); err != nil {
		e.log.Debug("publish %s: %v", ev.Type, err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// USER EVENTS
// ═══════════════════════════════════════════════════════════════════════════════

// Complete records a user completion: streak and rate bookkeeping, resolving
// the most recent open nudge, persistence, and the HabitCompleted event.
func (e *Engine) Complete(ctx context.Context, id string, now time.Time) *habit.State {
	h := e.scoring.RecordCompletion(id, now)
	if h == nil {
		return nil
	}
	e.resolveOpenNudge(h, habit.OutcomeCompleted)

	if e.store != nil {
		if err := e.store.SaveHabit(ctx, h); err != nil {
			e.log.Error("save habit %s after completion: %v", id, err)
		}
	}

	ev := bus.NewEvent(bus.EventHabitCompleted)
	ev.HabitID = id
	ev.Payload = map[string]any{"streak": h.StreakCount, "momentum": h.MomentumScore}
	e.publish(ev)
	return h
}

// ResolveNudge marks the most recent unresolved nudge for a habit with the
// user's response and recomputes the derived scores.
func (e *Engine) ResolveNudge(ctx context.Context, id string, outcome habit.Outcome) *habit.State {
	h := e.habits.Get(id)
	if h == nil {
		e.log.Warn("nudge resolution for unknown habit %q ignored", id)
		return nil
	}
	if !e.resolveOpenNudge(h, outcome) {
		e.log.Warn("habit %s has no open nudge to resolve", id)
		return h
	}

	if e.store != nil {
		if err := e.store.SaveHabit(ctx, h); err != nil {
			e.log.Error("save habit %s after nudge resolution: %v", id, err)
		}
	}
	return h
}

func (e *Engine) resolveOpenNudge(h *habit.State, outcome habit.Outcome) bool {
	for i := len(h.RecentOutcomes) - 1; i >= 0; i-- {
		if h.RecentOutcomes[i].Outcome == "" {
			h.RecentOutcomes[i].Outcome = outcome
			h.ResistanceScore = scoring.Resistance(h.RecentOutcomes)
			h.MomentumScore = scoring.Momentum(h.StreakCount, h.LastCompletion,
				h.CompletionRate7d, h.FrictionScore, h.ResistanceScore, time.Now())
			return true
		}
	}
	return false
}
