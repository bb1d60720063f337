package session

import (
	"context"
	"errors"
	"fmt"
)

// Error exposes methods useful for categorizing session failures.
type Error interface {
	error

	// Temporary returns true if the failure might be the result of a
	// transient condition, such as a connect timeout while the peripheral
	// is out of range.
	Temporary() bool
}

// ErrNotConnected indicates a send was attempted without a Connected
// session.
var ErrNotConnected = errors.New("session: not connected")

// ErrClosed indicates the manager has been shut down.
var ErrClosed = errors.New("session: manager closed")

// ConnectError reports why a session could not be established.
type ConnectError struct {
	Reason error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("session: connect failed: %s", e.Reason)
}

func (e *ConnectError) Unwrap() error {
	return e.Reason
}

func (e *ConnectError) Temporary() bool {
	return errors.Is(e.Reason, context.DeadlineExceeded)
}

// WriteError reports a failure while writing to an established stream. The
// peripheral may have received part of the payload.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("session: write failed: %s", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func (e *WriteError) Temporary() bool {
	return false
}

// Temporary returns true if err is a session Error with a transient cause.
func Temporary(err error) bool {
	var sessionErr Error
	if errors.As(err, &sessionErr) {
		return sessionErr.Temporary()
	}
	return false
}
