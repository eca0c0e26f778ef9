package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/samber/oops"
)

var (
	// error for when we have no transports available to use
	ErrNoTransportAvailable = oops.New("no transports available")

	// ErrCancelled is delivered to the completion of a cancelled send.
	ErrCancelled = oops.New("transport send cancelled")

	// ErrNilRequest is delivered when Send is called without a request.
	ErrNilRequest = oops.New("nil transport request")

	// ErrEmptyResponse is delivered when a round trip produced neither a
	// response nor an error.
	ErrEmptyResponse = oops.New("transport returned no response")

	// ErrResponseTooLarge is delivered when a response body exceeds the
	// transport's size cap. The truncated body is never handed out.
	ErrResponseTooLarge = oops.New("transport response body too large")
)

// Compile-time check that TimeoutError is classified like a network timeout
var _ net.Error = (*TimeoutError)(nil)

// TimeoutError reports a send that did not complete in time.
// Only this class of failure drives demotion in the Registry.
type TimeoutError struct {
	// Transport is the name of the transport that timed out
	Transport string
	// Err is the underlying cause, if any
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: transport timed out", e.Transport)
	}
	return fmt.Sprintf("%s: transport timed out: %s", e.Transport, e.Err.Error())
}

func (e *TimeoutError) Unwrap() error   { return e.Err }
func (e *TimeoutError) Timeout() bool   { return true }
func (e *TimeoutError) Temporary() bool { return true }

// WrapTimeout marks err as a timeout of the named transport.
func WrapTimeout(err error, name string) error {
	return &TimeoutError{Transport: name, Err: err}
}

// IsTimeout reports whether err classifies as a transport timeout.
// Deadline expiry of a context and any net.Error reporting Timeout() count.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
