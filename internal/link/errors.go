package link

import "errors"

var (
	// ErrInvalidCommand is returned for command payloads that cannot be
	// parsed or name an unknown kind, mode or target.
	ErrInvalidCommand = errors.New("link: invalid command")

	// ErrNotConnected is returned when a command arrives while no channel
	// is open.
	ErrNotConnected = errors.New("link: no open channel")

	// ErrReconnectExhausted is returned by Run when the configured number
	// of connect attempts failed in a row.
	ErrReconnectExhausted = errors.New("link: reconnect attempts exhausted")
)
