// Package events defines the notifications emitted by the hot-reload pipeline.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

// Event types.
const (
	EventTypeWatcherStarted = "watcher.started"
	EventTypeWatcherStopped = "watcher.stopped"
	EventTypeReloaded       = "reload.succeeded"
	EventTypeReloadFailed   = "reload.failed"
	EventTypeReloadSkipped  = "reload.skipped"
)

// Event is one notification about the watcher or a plugin reload.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Plugin     string            `json:"plugin,omitempty"`
	CycleID    string            `json:"cycle_id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	DurationMS int64             `json:"duration_ms,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Handler receives published events.
type Handler func(e *Event) error

// Publisher distributes events to subscribers.
type Publisher interface {
	Publish(e *Event) error
}

// New creates an event with a fresh id and the current time.
func New(eventType string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

// FromResult converts a reload result into an event.
func FromResult(r plugin.ReloadResult) *Event {
	var eventType string
	switch r.Outcome {
	case plugin.OutcomeReloaded:
		eventType = EventTypeReloaded
	case plugin.OutcomeSkipped:
		eventType = EventTypeReloadSkipped
	default:
		eventType = EventTypeReloadFailed
	}

	e := New(eventType)
	e.Plugin = string(r.Plugin)
	e.CycleID = r.CycleID
	e.DurationMS = r.Duration.Milliseconds()
	e.Error = r.Message()
	if !r.Started.IsZero() {
		e.Timestamp = r.Started.Add(r.Duration)
	}
	return e
}

// IsReload reports whether the event describes a plugin reload attempt.
func (e *Event) IsReload() bool {
	switch e.Type {
	case EventTypeReloaded, EventTypeReloadFailed, EventTypeReloadSkipped:
		return true
	}
	return false
}
