package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/normanking/impetus/internal/bus"
	"github.com/normanking/impetus/internal/habit"
	"github.com/normanking/impetus/internal/inference"
	"github.com/normanking/impetus/internal/logging"
	"github.com/normanking/impetus/internal/routing"
	"github.com/normanking/impetus/internal/store"
)

// Orchestrator is the subset of the decision engine the server drives.
type Orchestrator interface {
	Trigger(reason string)
	Complete(ctx context.Context, id string, now time.Time) *habit.State
	ResolveNudge(ctx context.Context, id string, outcome habit.Outcome) *habit.State
}

// Server serves the status API and the WebSocket event feed.
type Server struct {
	cfg    Config
	habits *habit.Registry
	stats  *routing.Stats
	client *inference.Client
	engine Orchestrator
	store  *store.Store
	bus    *bus.Bus
	log    *logging.Logger

	httpServer *http.Server
	startedAt  time.Time
}

// New creates a server. The store may be nil when persistence is disabled.
func New(cfg Config, habits *habit.Registry, stats *routing.Stats, client *inference.Client,
	engine Orchestrator, st *store.Store, b *bus.Bus) *Server {
	return &Server{
		cfg:       cfg,
		habits:    habits,
		stats:     stats,
		client:    client,
		engine:    engine,
		store:     st,
		bus:       b,
		log:       logging.Global().WithComponent("Server"),
		startedAt: time.Now(),
	}
}

// Handler builds the route table. Exposed separately so tests can mount it
// on an httptest server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/habits", s.handleHabits)
	mux.HandleFunc("GET /api/v1/cycles", s.handleCycles)
	mux.HandleFunc("GET /api/v1/settings", s.handleSettings)
	mux.HandleFunc("PUT /api/v1/settings/{key}", s.handleUpdateSetting)
	mux.HandleFunc("POST /api/v1/cycle", s.handleTrigger)
	mux.HandleFunc("POST /api/v1/habits/{id}/complete", s.handleComplete)
	mux.HandleFunc("POST /api/v1/habits/{id}/resolve", s.handleResolve)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Info("listening on %s", s.cfg.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ═══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "version": Version})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	paths := make(map[string]PathStats, 3)
	for _, p := range []routing.Path{routing.PathLocal, routing.PathCloud, routing.PathMock} {
		paths[string(p)] = PathStats{
			AvgLatencyMs: s.stats.AverageLatency(p).Milliseconds(),
			Failures:     s.stats.Failures(p),
			Samples:      s.stats.SampleCount(p),
		}
	}

	resp := StatusResponse{
		Version:      Version,
		StartedAt:    s.startedAt,
		Uptime:       time.Since(s.startedAt).Round(time.Second).String(),
		HabitCount:   s.habits.Len(),
		Subscribers:  s.bus.SubscriptionCount(),
		Capabilities: s.client.Capabilities(),
		Paths:        paths,
	}
	if s.store != nil {
		if n, err := s.store.CycleCount(r.Context()); err == nil {
			resp.CycleCount = n
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleHabits(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	all := s.habits.All()
	out := make([]HabitSummary, 0, len(all))
	for _, h := range all {
		sum := HabitSummary{
			ID:               h.ID,
			Name:             h.Name,
			Category:         h.Category,
			Difficulty:       h.Difficulty,
			StreakCount:      h.StreakCount,
			CompletionRate7d: h.CompletionRate7d,
			MomentumScore:    h.MomentumScore,
			ResistanceScore:  h.ResistanceScore,
			FrictionScore:    h.FrictionScore,
			OnCooldown:       h.OnCooldown(now),
		}
		if !h.CooldownUntil.IsZero() {
			t := h.CooldownUntil
			sum.CooldownUntil = &t
		}
		out = append(out, sum)
	}
	writeJSON(w, HabitsResponse{Habits: out, Total: len(out)})
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 200 {
			http.Error(w, "limit must be 1-200", http.StatusBadRequest)
			return
		}
		limit = n
	}
	recent, err := s.store.RecentCycles(r.Context(), limit)
	if err != nil {
		s.log.Error("recent cycles: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"cycles": recent, "total": len(recent)})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}
	settings, err := s.store.AllSettings(r.Context())
	if err != nil {
		s.log.Error("load settings: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"settings": settings})
}

func (s *Server) handleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}
	key := r.PathValue("key")
	var req UpdateSettingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.store.SetSetting(r.Context(), key, req.Value); err != nil {
		s.log.Error("set setting %s: %v", key, err)
		http.Error(w, "write failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"key": key, "value": req.Value})
}

// handleTrigger queues one external decision cycle. The cycle runs
// asynchronously; its outcome arrives on the event feed.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if r.Body != nil {
		// An empty body is a valid no-reason trigger.
		_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "api"
	}
	s.engine.Trigger(req.Reason)
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "queued", "reason": req.Reason})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h := s.engine.Complete(r.Context(), id, time.Now())
	if h == nil {
		http.Error(w, "habit not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"id": h.ID, "streak_count": h.StreakCount, "momentum_score": h.MomentumScore})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req ResolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	outcome := habit.Outcome(req.Outcome)
	switch outcome {
	case habit.OutcomeCompleted, habit.OutcomeDismissed, habit.OutcomeIgnored, habit.OutcomeSnoozed:
	default:
		http.Error(w, "unknown outcome", http.StatusBadRequest)
		return
	}
	h := s.engine.ResolveNudge(r.Context(), id, outcome)
	if h == nil {
		http.Error(w, "habit not found or no open nudge", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"id": h.ID, "outcome": req.Outcome, "resistance_score": h.ResistanceScore})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
