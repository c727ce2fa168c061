package models

import "time"

// EventType identifies the kind of progress event emitted during a run.
type EventType string

const (
	EventInfo           EventType = "info"
	EventPhase          EventType = "phase"
	EventStep           EventType = "step"
	EventAgentCreated   EventType = "agent_created"
	EventAgentRunning   EventType = "agent_running"
	EventAgentCompleted EventType = "agent_completed"
	EventAgentError     EventType = "agent_error"
	EventAgentTurn      EventType = "agent_turn"
	EventComplete       EventType = "complete"
	EventError          EventType = "error"
	// EventEnd is the stream-terminator frame. It is produced by the SSE
	// handler, never stored in a session's event log.
	EventEnd EventType = "end"
)

// ProgressEvent is a single entry in a session's ordered progress log.
// Timestamp is wall-clock HH:MM:SS for direct display in dashboards.
type ProgressEvent struct {
	Timestamp string         `json:"timestamp"`
	Type      EventType      `json:"type"`
	Agent     string         `json:"agent,omitempty"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewProgressEvent stamps an event with the current wall-clock time.
func NewProgressEvent(typ EventType, agent, message string, data map[string]any) ProgressEvent {
	return ProgressEvent{
		Timestamp: time.Now().Format("15:04:05"),
		Type:      typ,
		Agent:     agent,
		Message:   message,
		Data:      data,
	}
}
