// Package plugin discovers and runs cue hooks: external executables that
// react to workout events, for example by speaking feedback aloud.
package plugin

import "encoding/json"

// Event names a moment in a workout that hooks can subscribe to.
type Event string

const (
	EventRepCompleted     Event = "rep_completed"
	EventRepFailed        Event = "rep_failed"
	EventSessionCompleted Event = "session_completed"
)

// Events lists every event in a stable order.
var Events = []Event{EventRepCompleted, EventRepFailed, EventSessionCompleted}

// Valid reports whether e is a known event.
func (e Event) Valid() bool {
	for _, known := range Events {
		if e == known {
			return true
		}
	}
	return false
}

// Manifest describes a plugin's metadata and the events it handles.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Events       []Event         `json:"events"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Handles reports whether the manifest subscribes to e.
func (m Manifest) Handles(e Event) bool {
	return containsEvent(m.Events, e)
}

// Request is written to the plugin's stdin as JSON.
type Request struct {
	Event    Event           `json:"event"`
	Session  string          `json:"session"`
	Exercise string          `json:"exercise"`
	Reps     int             `json:"reps"`
	Message  string          `json:"message"`
	Config   json.RawMessage `json:"config,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
