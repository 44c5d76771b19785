package entities

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a lookup miss. It drives create branches and is never
// returned to HTTP callers.
var ErrNotFound = errors.New("not found")

// UpstreamError is a failed call to the CRM or the chat provider.
type UpstreamError struct {
	Service string // "hubspot", "stream"
	Op      string
	Status  int // 0 when the request never got a response
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: http %d: %v", e.Service, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ValidationError is a missing or malformed registration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
