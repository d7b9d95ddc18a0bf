// Package bus is the event distribution system connecting the decision
// orchestrator to its subscribers: the websocket feed, the CLI, and tests.
// Thread-safe pub/sub with wildcard support and bounded replay history.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies an engine event.
type EventType string

const (
	// EventCycleCompleted fires after every decision cycle, successful or
	// degraded, with the cycle summary attached.
	EventCycleCompleted EventType = "cycle_completed"

	// EventNudgeSent fires when a nudge is dispatched to the user.
	EventNudgeSent EventType = "nudge_sent"

	// EventHabitCompleted fires on an explicit user completion.
	EventHabitCompleted EventType = "habit_completed"

	// EventHabitUpdated fires when a tool mutates a habit field.
	EventHabitUpdated EventType = "habit_updated"

	// EventTrigger fires when a trigger source requests a cycle, before the
	// pipeline runs.
	EventTrigger EventType = "trigger"
)

// Event is one engine event flowing through the bus.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	CycleID string `json:"cycle_id,omitempty"`
	HabitID string `json:"habit_id,omitempty"`

	// Decision context
	Trigger    string  `json:"trigger,omitempty"`
	Path       string  `json:"path,omitempty"`
	Action     string  `json:"action,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`

	Content string         `json:"content,omitempty"`
	Error   string         `json:"error,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// NewEvent creates an event with a fresh ID and the current timestamp.
func NewEvent(eventType EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}
