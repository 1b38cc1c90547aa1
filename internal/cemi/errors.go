package cemi

import "errors"

var (
	// ErrInvalidFrame is returned when a cEMI frame cannot be decoded.
	ErrInvalidFrame = errors.New("cemi: invalid frame")

	// ErrInvalidGroupAddress is returned when a group address string is malformed.
	ErrInvalidGroupAddress = errors.New("cemi: invalid group address")

	// ErrInvalidIndividualAddress is returned when an individual address string is malformed.
	ErrInvalidIndividualAddress = errors.New("cemi: invalid individual address")
)
