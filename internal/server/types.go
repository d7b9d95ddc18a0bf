// Package server exposes the engine over HTTP: a small JSON status API plus
// a WebSocket feed of cycle events for external presentation layers.
package server

import (
	"time"

	"github.com/normanking/impetus/internal/inference"
)

// Version is reported by the status endpoint. Overridden at build time.
var Version = "dev"

// ═══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds the HTTP server configuration.
type Config struct {
	// Addr is the listen address (default: 127.0.0.1:7890)
	Addr string

	// ShutdownTimeout is the graceful shutdown timeout (default: 5s)
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible defaults for a local-only server.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:7890",
		ShutdownTimeout: 5 * time.Second,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// API RESPONSE TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`

	HabitCount  int `json:"habit_count"`
	CycleCount  int `json:"cycle_count"`
	Subscribers int `json:"subscribers"`

	Capabilities inference.Capabilities `json:"capabilities"`
	Paths        map[string]PathStats   `json:"paths"`
}

// PathStats summarizes the rolling routing stats for one inference path.
type PathStats struct {
	AvgLatencyMs int64 `json:"avg_latency_ms"`
	Failures     int   `json:"failures"`
	Samples      int   `json:"samples"`
}

// HabitSummary is one habit with its derived scores.
type HabitSummary struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Category         string     `json:"category"`
	Difficulty       int        `json:"difficulty"`
	StreakCount      int        `json:"streak_count"`
	CompletionRate7d float64    `json:"completion_rate_7d"`
	MomentumScore    int        `json:"momentum_score"`
	ResistanceScore  float64    `json:"resistance_score"`
	FrictionScore    float64    `json:"friction_score"`
	OnCooldown       bool       `json:"on_cooldown"`
	CooldownUntil    *time.Time `json:"cooldown_until,omitempty"`
}

// HabitsResponse is returned by GET /api/v1/habits.
type HabitsResponse struct {
	Habits []HabitSummary `json:"habits"`
	Total  int            `json:"total"`
}

// TriggerRequest is the request body for POST /api/v1/cycle.
type TriggerRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ResolveRequest is the request body for POST /api/v1/habits/{id}/resolve.
type ResolveRequest struct {
	Outcome string `json:"outcome"`
}

// UpdateSettingRequest is the request body for PUT /api/v1/settings/{key}.
type UpdateSettingRequest struct {
	Value string `json:"value"`
}
