package domain

import "errors"

// ErrShiftNotFound is returned when a shift cannot be located.
var ErrShiftNotFound = errors.New("shift not found")

// RejectionError signals that the state machine understood a request and
// refused it on business grounds. Rejections are terminal: replaying the
// same request cannot succeed, so callers must never retry them.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

// Reject builds a RejectionError with a human-readable message.
func Reject(message string) error {
	return &RejectionError{Message: message}
}

// IsRejection reports whether err is an application-level rejection.
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}
