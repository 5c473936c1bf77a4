// Package reasoning defines the language model interface the pipeline uses
// for fact extraction and consolidation, plus a typed inference gateway
// that enforces the JSON shape of model responses.
package reasoning

import "context"

// Reasoner produces a single completion for a prompt. Implementations ask
// the underlying model for JSON output; Infer enforces the response shape.
type Reasoner interface {
	// Complete sends the prompt as a single user message and returns the
	// model's raw response text.
	Complete(ctx context.Context, prompt string) (string, error)

	// Close releases resources held by the reasoner.
	Close() error
}
