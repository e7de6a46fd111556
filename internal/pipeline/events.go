package pipeline

import (
	"lekhaslides/internal/pkg/errors"
)

// EventType is the kind of a batch stream event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one frame of a batch generation stream. File is base64 on the wire.
type Event struct {
	Type    EventType `json:"type"`
	Current int       `json:"current,omitempty"`
	Total   int       `json:"total,omitempty"`
	File    []byte    `json:"file,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Terminal reports whether e ends a stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// Sink receives events in order. It is called from a single goroutine at a time.
type Sink func(Event)

func progressEvent(current, total int) Event {
	return Event{Type: EventProgress, Current: current, Total: total}
}

func completeEvent(file []byte) Event {
	return Event{Type: EventComplete, File: file}
}

func errorEvent(err error) Event {
	return Event{Type: EventError, Message: errors.GetMessage(err)}
}
