package pipeline

import "encoding/json"

// EventType tags a progress event pushed to the client.
type EventType string

const (
	// EventLog carries a human-readable progress message.
	EventLog EventType = "log"
	// EventState carries one stage's output as soon as it is available.
	EventState EventType = "state"
	// EventFinal carries the incident report and terminates the stream.
	EventFinal EventType = "final"
	// EventError carries a failure message and terminates the stream.
	EventError EventType = "error"
)

// Event is one line-delimited JSON envelope in the progress stream.
// Exactly one terminal event (final or error) closes a run's stream.
type Event struct {
	Type    EventType       `json:"type"`
	Message string          `json:"message,omitempty"`
	Agent   string          `json:"agent,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Report  json.RawMessage `json:"report,omitempty"`
}

// LogEvent builds a log event.
func LogEvent(message string) Event {
	return Event{Type: EventLog, Message: message}
}

// StateEvent builds a state event for one stage's completed output.
func StateEvent(agent string, data json.RawMessage) Event {
	return Event{Type: EventState, Agent: agent, Data: data}
}

// FinalEvent builds the success terminal event.
func FinalEvent(report json.RawMessage) Event {
	return Event{Type: EventFinal, Report: report}
}

// ErrorEvent builds the failure terminal event.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// Sink receives progress events as stages complete. Implementations must
// be safe for concurrent use: fan-out branches emit from their own
// goroutines in completion order.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }
