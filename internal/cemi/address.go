package cemi

import (
	"fmt"
	"strconv"
	"strings"
)

// GroupAddress is a KNX group address in 3-level format.
//
// Layout: MMMM MIII SSSS SSSS
//   - Main:   0-31 (5 bits)
//   - Middle: 0-7  (3 bits)
//   - Sub:    0-255 (8 bits)
type GroupAddress uint16

const (
	maxMain   = 31
	maxMiddle = 7
	maxSub    = 255
)

// NewGroupAddress builds a group address from its three levels.
// Values outside the level ranges are masked.
func NewGroupAddress(main, middle, sub uint8) GroupAddress {
	return GroupAddress(uint16(main&maxMain)<<11 | uint16(middle&maxMiddle)<<8 | uint16(sub))
}

// ParseGroupAddress parses a "main/middle/sub" string.
//
// Parameters:
//   - s: Group address string, e.g. "1/2/3"
//
// Returns:
//   - GroupAddress: Parsed address
//   - error: ErrInvalidGroupAddress if any level is missing or out of range
func ParseGroupAddress(s string) (GroupAddress, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 { //nolint:mnd // three address levels
		return 0, fmt.Errorf("%w: expected main/middle/sub, got %q", ErrInvalidGroupAddress, s)
	}

	limits := [3]uint64{maxMain, maxMiddle, maxSub}
	var levels [3]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil || v > limits[i] {
			return 0, fmt.Errorf("%w: level %d must be 0-%d, got %q", ErrInvalidGroupAddress, i+1, limits[i], p)
		}
		levels[i] = uint8(v)
	}
	return NewGroupAddress(levels[0], levels[1], levels[2]), nil
}

// Main returns the main group (0-31).
func (ga GroupAddress) Main() uint8 { return uint8(ga>>11) & maxMain } //nolint:gosec // masked

// Middle returns the middle group (0-7).
func (ga GroupAddress) Middle() uint8 { return uint8(ga>>8) & maxMiddle } //nolint:gosec // masked

// Sub returns the sub group (0-255).
func (ga GroupAddress) Sub() uint8 { return uint8(ga) } //nolint:gosec // low byte

// String returns the address in 3-level format, e.g. "1/2/3".
func (ga GroupAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", ga.Main(), ga.Middle(), ga.Sub())
}

// IndividualAddress identifies a physical device: area.line.device.
type IndividualAddress uint16

// ParseIndividualAddress parses an "area.line.device" string.
func ParseIndividualAddress(s string) (IndividualAddress, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 { //nolint:mnd // three address levels
		return 0, fmt.Errorf("%w: expected area.line.device, got %q", ErrInvalidIndividualAddress, s)
	}
	area, errA := strconv.ParseUint(parts[0], 10, 4)
	line, errL := strconv.ParseUint(parts[1], 10, 4)
	dev, errD := strconv.ParseUint(parts[2], 10, 8)
	if errA != nil || errL != nil || errD != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIndividualAddress, s)
	}
	return IndividualAddress(area<<12 | line<<8 | dev), nil
}

// String returns the address in area.line.device format, e.g. "1.1.10".
func (ia IndividualAddress) String() string {
	return fmt.Sprintf("%d.%d.%d", (ia>>12)&0x0F, (ia>>8)&0x0F, ia&0xFF)
}
