package knxnet

import "errors"

// ErrInvalidFrame is returned when a frame or structure is malformed.
var ErrInvalidFrame = errors.New("knxnet: invalid frame")
