package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultSchemaRetries is how many times Infer re-asks the model after a
// malformed response before giving up.
const DefaultSchemaRetries = 2

// Validator is implemented by response payloads that can check their own
// shape beyond what JSON decoding enforces.
type Validator interface {
	Validate() error
}

// Infer calls the reasoner and decodes its response into T. Malformed
// responses are re-asked up to schemaRetries more times; transport failures
// are returned as-is so the caller's retry policy applies. When the retry
// budget is exhausted the last decode failure is returned wrapped in
// ErrSchemaViolation.
func Infer[T Validator](ctx context.Context, r Reasoner, prompt string, schemaRetries int) (T, error) {
	var zero T
	if schemaRetries < 0 {
		schemaRetries = DefaultSchemaRetries
	}

	var lastErr error
	for attempt := 0; attempt <= schemaRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		raw, err := r.Complete(ctx, prompt)
		if err != nil {
			return zero, err
		}

		out, err := decodeResponse[T](raw)
		if err != nil {
			lastErr = err
			continue
		}
		return out, nil
	}

	return zero, fmt.Errorf("%w: %v", ErrSchemaViolation, lastErr)
}

func decodeResponse[T Validator](raw string) (T, error) {
	var out T

	// Extract JSON from the response (may be wrapped in markdown code blocks)
	jsonStr := raw
	if idx := strings.Index(raw, "{"); idx >= 0 {
		endIdx := strings.LastIndex(raw, "}")
		if endIdx > idx {
			jsonStr = raw[idx : endIdx+1]
		}
	}

	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return out, fmt.Errorf("unmarshal response JSON: %w", err)
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("validate response: %w", err)
	}

	return out, nil
}
