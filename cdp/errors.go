package cdp

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed is returned when the WebSocket dial or handshake
	// with the browser's debugging endpoint fails.
	ErrConnectionFailed = errors.New("connecting to browser endpoint failed")

	// ErrConnectionClosed is returned by sends issued after Close.
	ErrConnectionClosed = errors.New("session is closed")

	// ErrConnectionLost resolves calls that were pending when the
	// connection went away.
	ErrConnectionLost = errors.New("connection lost")

	// ErrTimeout is returned when no response arrives within the send
	// timeout. The request may still complete on the wire; its late
	// response is dropped as an orphan.
	ErrTimeout = errors.New("no response received within timeout")
)

// ProtocolError is an error field returned by the browser in response to
// a command.
type ProtocolError struct {
	Code    int64
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error [%d]: %s", e.Code, e.Message)
}

// IsConnectionError returns true if err indicates the session's
// connection is unusable. Connection errors abort a whole execution
// regardless of per-action policy.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrConnectionClosed) ||
		errors.Is(err, ErrConnectionLost)
}
