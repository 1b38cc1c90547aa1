package dpt

import "errors"

// Domain errors.
var (
	// ErrUnknownDPT is returned for identifiers this package cannot handle.
	ErrUnknownDPT = errors.New("dpt: unknown datapoint type")

	// ErrEncodingFailed is returned when a value cannot be encoded.
	ErrEncodingFailed = errors.New("dpt: encoding failed")

	// ErrDecodingFailed is returned when data cannot be decoded.
	ErrDecodingFailed = errors.New("dpt: decoding failed")
)
