package transcript

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth marks an authentication failure. It is terminal: the
	// connector moves to the error state and does not retry.
	ErrAuth = errors.New("authentication failed")

	// ErrNotFound is returned for operations on an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrNotConnected is returned when an operation is attempted on a
	// closed or unstarted source.
	ErrNotConnected = errors.New("source not connected")

	// ErrMissingCredentials is returned at session-start time when the
	// selected backend has no credentials configured.
	ErrMissingCredentials = errors.New("missing credentials for source")
)

// ConnectError wraps a transport-level failure. Connect errors are
// retryable; everything the connector cannot classify is treated as one.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect: %v", e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// NewConnectError wraps err as a retryable connection failure.
func NewConnectError(err error) error {
	if err == nil {
		return nil
	}
	return &ConnectError{Err: err}
}
