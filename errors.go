package gostomp

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/batchcorp/gostomp/frame"
)

// Sentinel errors a caller can match against with errors.Is.
var (
	// ErrClosed is returned by any frame-sending operation attempted
	// after the connection has been closed (its last handle Closed), and
	// by a receipted send whose waiter was failed before its RECEIPT
	// arrived.
	ErrClosed = errors.New("gostomp: connection closed")
	// ErrNotConnected is returned by operations that require an
	// established session when none is currently up, e.g. while the
	// supervisor is reconnecting after a dropped session.
	ErrNotConnected = errors.New("gostomp: not connected")
	// ErrReceiptTimeout is returned when a receipted operation's RECEIPT
	// frame did not arrive within the configured timeout.
	ErrReceiptTimeout = errors.New("gostomp: timed out waiting for receipt")
	// ErrHandshakeTimeout is returned when the broker did not send a
	// CONNECTED frame within the configured timeout.
	ErrHandshakeTimeout = errors.New("gostomp: timed out waiting for CONNECTED")
	// ErrUnsupportedVersion is returned when the broker's CONNECTED frame
	// names a protocol version this library does not speak.
	ErrUnsupportedVersion = errors.New("gostomp: broker negotiated an unsupported STOMP version")
	// errHeartbeatTimeout is the internal reason a session is torn down
	// when the receive watchdog fires; it never reaches a caller
	// directly since the supervisor folds it into a reconnect instead of
	// surfacing it from any blocking call.
	errHeartbeatTimeout = errors.New("gostomp: no data received within heartbeat grace period")
)

// Error wraps a STOMP ERROR frame received from the broker. Its Frame
// field carries the frame verbatim so a caller can inspect headers the
// broker set beyond the message summary (e.g. a receipt-id identifying
// which in-flight request failed).
type Error struct {
	Frame   *frame.Frame
	Message string
}

func newError(f *frame.Frame) *Error {
	msg := f.Header.Get(frame.Message)
	if msg == "" && len(f.Body) > 0 {
		msg = string(f.Body)
	}
	return &Error{Frame: f, Message: msg}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "gostomp: broker sent ERROR"
	}
	return fmt.Sprintf("gostomp: broker sent ERROR: %s", e.Message)
}
