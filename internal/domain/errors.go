package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("operation already in flight")
	ErrDeviceUnavailable = errors.New("microphone unavailable")
	ErrTransport         = errors.New("transport failure")
	ErrMalformedResponse = errors.New("malformed response")
)

// UpstreamError reports a non-success response from a collaborator.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: upstream returned status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: upstream returned status %d: %s", e.Op, e.Status, e.Body)
}

// Validation wraps ErrValidation with a detail message.
func Validation(detail string) error {
	return fmt.Errorf("%w: %s", ErrValidation, detail)
}

// Conflict wraps ErrConflict with the operation that is already running.
func Conflict(detail string) error {
	return fmt.Errorf("%w: %s", ErrConflict, detail)
}
