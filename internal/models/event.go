package models

import (
	"time"
)

// Event represents an application occurrence published into the engine.
// Events are ephemeral: they are not persisted independently of the delivery
// attempts they spawn, so receivers must dedupe on ID for at-least-once
// delivery.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source,omitempty"`
	Data      map[string]interface{} `json:"data"`
	UserID    string                 `json:"user_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	ProjectID string                 `json:"project_id,omitempty"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventEnvelope is the wire form producers publish, over HTTP or the source
// queue. Producers name the type field event_type; the envelope normalizes
// it into the internal Event.
type EventEnvelope struct {
	ID        string                 `json:"id,omitempty"`
	Type      string                 `json:"event_type"`
	Source    string                 `json:"source,omitempty"`
	Data      map[string]interface{} `json:"data"`
	UserID    string                 `json:"user_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	ProjectID string                 `json:"project_id,omitempty"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Event converts the envelope into the internal event
func (e *EventEnvelope) Event() *Event {
	return &Event{
		ID:        e.ID,
		Type:      e.Type,
		Source:    e.Source,
		Data:      e.Data,
		UserID:    e.UserID,
		SessionID: e.SessionID,
		ProjectID: e.ProjectID,
		Metadata:  e.Metadata,
		Timestamp: e.Timestamp,
	}
}
