package reasoning

import "errors"

var (
	// ErrUnavailable indicates the model endpoint could not be reached or
	// failed at the transport level. The call may be retried.
	ErrUnavailable = errors.New("reasoning unavailable")

	// ErrSchemaViolation indicates the model kept producing output that
	// does not match the expected JSON shape. Retrying will not help.
	ErrSchemaViolation = errors.New("reasoning schema violation")
)
