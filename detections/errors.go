package detections

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrModelLoad   = errors.New("model load failed")
	ErrDecode      = errors.New("image decode failed")
	ErrInference   = errors.New("inference failed")
	ErrUnavailable = errors.New("inference unavailable")

	ErrPoolClosed   = fmt.Errorf("%w: pool is closed", ErrUnavailable)
	ErrQueueTimeout = fmt.Errorf("%w: timeout waiting for available worker", ErrUnavailable)
)

type ProcessingError struct {
	Kind    error
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

func (e *ProcessingError) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

func newError(kind error, message string, cause error) *ProcessingError {
	return &ProcessingError{Kind: kind, Message: message, Cause: cause}
}
