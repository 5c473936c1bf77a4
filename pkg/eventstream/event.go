package eventstream

import (
	"time"

	"github.com/engramlabs/engram/pkg/fact"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeWindowProcessed is emitted after a pipeline run reaches a
	// terminal state.
	EventTypeWindowProcessed = "engram.window.processed"
)

// WindowProcessedEvent is a transport-neutral record of one pipeline run.
type WindowProcessedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	Owner         string    `json:"owner"`
	Run           RunMeta   `json:"run"`

	// Inserted holds the facts the run committed; Transitioned the ids it
	// marked outdated. Both empty on failed or empty runs.
	Inserted     []fact.Fact `json:"inserted,omitempty"`
	Transitioned []string    `json:"transitioned,omitempty"`
}

// RunMeta captures run lifecycle metadata for the event.
type RunMeta struct {
	Stage       string    `json:"stage"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Turns       int       `json:"turns"`
	Candidates  int       `json:"candidates"`
	Failed      int       `json:"failed"`
	Error       string    `json:"error,omitempty"`
}
