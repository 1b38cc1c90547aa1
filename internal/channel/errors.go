package channel

import "errors"

// Domain errors for acknowledged channels.
var (
	// ErrConnectionFailed is returned when a channel cannot be established.
	ErrConnectionFailed = errors.New("channel: connection failed")

	// ErrConnectionClosed is returned when the channel is closed or is
	// closed because of a transport failure.
	ErrConnectionClosed = errors.New("channel: connection closed")

	// ErrAckTimeout is returned when no acknowledgment arrives in time.
	// The channel stays open.
	ErrAckTimeout = errors.New("channel: acknowledgment timeout")

	// ErrConfirmationTimeout is returned when no confirmation arrives in time.
	ErrConfirmationTimeout = errors.New("channel: confirmation timeout")

	// ErrNegativeConfirmation is returned when the gateway confirms a
	// request as failed.
	ErrNegativeConfirmation = errors.New("channel: negative confirmation")

	// ErrUnsupported is returned for operations the protocol does not
	// support. No data is sent.
	ErrUnsupported = errors.New("channel: unsupported operation")

	// ErrVersionMismatch is the close cause when a peer sends frames with
	// the wrong protocol version.
	ErrVersionMismatch = errors.New("channel: protocol version mismatch")
)
