package generate

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without content.
var ErrEmptyResponse = errors.New("generator returned empty response")

// PermanentError marks an error that will not resolve with retries
// (malformed request, unrecoverable upstream failure). Everything else,
// cancellation aside, is treated as transient.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError wraps err as permanent.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsTransient reports whether err is worth retrying. Context cancellation
// and deadline expiry are not transient: the caller is going away.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pErr *PermanentError
	return !errors.As(err, &pErr)
}
