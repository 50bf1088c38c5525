// Package events provides the typed, structured event stream the session
// store and the try-on orchestrator use to make pipeline behavior
// observable. Events are append-only records emitted to the structured log
// and aggregated into Prometheus series; nothing in the system reads them
// back.
//
// Emission is strictly fire-and-forget: it never returns an error, never
// panics into the caller, and never blocks a user-facing operation. A nil
// *Emitter is valid and drops everything, which keeps tests and optional
// wiring simple.
package events

import "time"

// Type enumerates the stable event taxonomy. Values are part of the external
// aggregation contract; renaming one breaks dashboards.
type Type string

const (
	SessionCreated      Type = "SESSION_CREATED"
	SessionDeleted      Type = "SESSION_DELETED"
	PhotoUploaded       Type = "PHOTO_UPLOADED"
	GenerationStarted   Type = "GENERATION_STARTED"
	GenerationCompleted Type = "GENERATION_COMPLETED"
	GenerationFailed    Type = "GENERATION_FAILED"
	StorageCleanup      Type = "STORAGE_CLEANUP"
	ModelRequest        Type = "MODEL_REQUEST"
	ModelResponse       Type = "MODEL_RESPONSE"
	Error               Type = "ERROR"
)

// Event is one immutable pipeline record. SessionID may be empty for events
// that are not tied to a session (e.g. a cleanup sweep). Fields carries the
// structured payload; values should be scalars so aggregators need not parse
// free text.
type Event struct {
	Type          Type           `json:"event_type"`
	Timestamp     time.Time      `json:"timestamp"`
	SessionID     string         `json:"session_id,omitempty"`
	Origin        string         `json:"origin"`
	CorrelationID string         `json:"correlation_id"`
	Fields        map[string]any `json:"fields,omitempty"`
}
