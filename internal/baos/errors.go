package baos

import "errors"

// ErrInvalidMessage is returned when a message cannot be encoded or decoded.
var ErrInvalidMessage = errors.New("baos: invalid message")
