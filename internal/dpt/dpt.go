package dpt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Encoding constants.
const (
	dpt5MaxValue     = 255
	dpt5AngleMax     = 360
	dpt9MaxExponent  = 15
	dpt9MantissaMask = 0x07FF
	dpt9Invalid      = 0x7FFF
	sceneMax         = 63
	sceneMask        = 0x3F
	sceneLearnBit    = 0x80
	stepDirectionBit = 0x08
	stepMask         = 0x07
	rgbBytes         = 3
)

// ID is a datapoint type identifier, "main.sub" (e.g. "9.001").
type ID string

// Common identifiers.
const (
	Switch       ID = "1.001"
	Dimming      ID = "3.007"
	Percentage   ID = "5.001"
	Angle        ID = "5.003"
	Unsigned8    ID = "5.010"
	Temperature  ID = "9.001"
	Lux          ID = "9.004"
	SceneNumber  ID = "17.001"
	SceneControl ID = "18.001"
	ColourRGB    ID = "232.600"
)

// Main returns the main type number.
func (id ID) Main() (int, error) {
	main, _, _ := strings.Cut(string(id), ".")
	n, err := strconv.Atoi(main)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDPT, string(id))
	}
	return n, nil
}

// Short reports whether values of id fit in six bits and travel packed
// into the APCI byte of a group telegram.
func (id ID) Short() bool {
	main, err := id.Main()
	return err == nil && (main == 1 || main == 2 || main == 3)
}

// Known reports whether Encode and Decode support id.
func (id ID) Known() bool {
	main, err := id.Main()
	if err != nil {
		return false
	}
	switch main {
	case 1, 3, 5, 9, 17, 18, 232:
		return true
	}
	return false
}

// Step is a DPT 3 dimming or blind control value. Steps 0 means stop.
type Step struct {
	Increase bool  `json:"increase"`
	Steps    uint8 `json:"steps"`
}

// Scene is a DPT 18 scene control value.
type Scene struct {
	Number uint8 `json:"number"`
	Learn  bool  `json:"learn"`
}

// RGB is a DPT 232.600 colour.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Encode parses value as text and encodes it for id.
//
// Accepted forms:
//   - 1.x: true/false, on/off, 1/0
//   - 3.x: "+N" or "-N" (N steps 0-7, sign is the direction)
//   - 5.001, 5.003: percent or degrees; other 5.x: raw 0-255
//   - 9.x: decimal number
//   - 17.x: scene 0-63
//   - 18.x: scene 0-63, "N:learn" to store
//   - 232.x: "#rrggbb" or "r,g,b"
//
// Returns:
//   - []byte: DPT payload
//   - error: ErrUnknownDPT or ErrEncodingFailed
func Encode(id ID, value string) ([]byte, error) {
	main, err := id.Main()
	if err != nil {
		return nil, err
	}
	value = strings.TrimSpace(value)

	switch main {
	case 1:
		b, err := parseBool(value)
		if err != nil {
			return nil, err
		}
		if b {
			return []byte{0x01}, nil
		}
		return []byte{0x00}, nil

	case 3:
		return encodeStep(value)

	case 5:
		return encodeUnsigned8(id, value)

	case 9:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q is not a number", ErrEncodingFailed, id, value)
		}
		return encodeFloat16(f)

	case 17:
		n, err := parseScene(value)
		if err != nil {
			return nil, err
		}
		return []byte{n}, nil

	case 18:
		num, learn := strings.CutSuffix(value, ":learn")
		n, err := parseScene(num)
		if err != nil {
			return nil, err
		}
		if learn {
			n |= sceneLearnBit
		}
		return []byte{n}, nil

	case 232:
		rgb, err := parseRGB(value)
		if err != nil {
			return nil, err
		}
		return []byte{rgb.R, rgb.G, rgb.B}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownDPT, string(id))
}

// Decode converts a DPT payload to a Go value: bool (1), Step (3),
// float64 (5.001, 5.003, 9), uint8 (other 5, 17), Scene (18) or RGB (232).
func Decode(id ID, data []byte) (any, error) {
	main, err := id.Main()
	if err != nil {
		return nil, err
	}
	need := 1
	switch main {
	case 9:
		need = 2
	case 232:
		need = rgbBytes
	}
	if len(data) < need {
		return nil, fmt.Errorf("%w: %s requires %d bytes, got %d", ErrDecodingFailed, id, need, len(data))
	}

	switch main {
	case 1:
		return data[0]&0x01 != 0, nil
	case 3:
		return Step{Increase: data[0]&stepDirectionBit != 0, Steps: data[0] & stepMask}, nil
	case 5:
		switch id {
		case Percentage:
			return float64(data[0]) * 100 / dpt5MaxValue, nil
		case Angle:
			return float64(data[0]) * dpt5AngleMax / dpt5MaxValue, nil
		}
		return data[0], nil
	case 9:
		return decodeFloat16(data)
	case 17:
		return data[0] & sceneMask, nil
	case 18:
		return Scene{Number: data[0] & sceneMask, Learn: data[0]&sceneLearnBit != 0}, nil
	case 232:
		return RGB{R: data[0], G: data[1], B: data[2]}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownDPT, string(id))
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "1", "true", "on":
		return true, nil
	case "0", "false", "off":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not a boolean", ErrEncodingFailed, value)
}

func encodeStep(value string) ([]byte, error) {
	if len(value) < 2 || (value[0] != '+' && value[0] != '-') {
		return nil, fmt.Errorf("%w: step %q must be +N or -N", ErrEncodingFailed, value)
	}
	n, err := strconv.ParseUint(value[1:], 10, 8)
	if err != nil || n > stepMask {
		return nil, fmt.Errorf("%w: step count must be 0-7, got %q", ErrEncodingFailed, value[1:])
	}
	b := byte(n)
	if value[0] == '+' {
		b |= stepDirectionBit
	}
	return []byte{b}, nil
}

func encodeUnsigned8(id ID, value string) ([]byte, error) {
	switch id {
	case Percentage, Angle:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q is not a number", ErrEncodingFailed, id, value)
		}
		limit := 100.0
		if id == Angle {
			limit = dpt5AngleMax
		}
		if math.IsNaN(f) || f < 0 || f > limit {
			return nil, fmt.Errorf("%w: %s must be 0-%g, got %g", ErrEncodingFailed, id, limit, f)
		}
		return []byte{uint8(math.Round(f * dpt5MaxValue / limit))}, nil
	}

	n, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be 0-255, got %q", ErrEncodingFailed, id, value)
	}
	return []byte{byte(n)}, nil
}

// encodeFloat16 encodes the KNX 2-byte float:
//
//	Byte 0: SEEE EMMM (sign, exponent, mantissa high)
//	Byte 1: MMMM MMMM (mantissa low)
//
// Value = 0.01 × M × 2^E, with M an 11-bit two's complement mantissa.
func encodeFloat16(value float64) ([]byte, error) {
	if math.IsNaN(value) {
		return nil, fmt.Errorf("%w: 9.x value is not a number", ErrEncodingFailed)
	}
	if value < -671088.64 || value > 670760.96 {
		return nil, fmt.Errorf("%w: 9.x value %.2f out of range (-671088.64 to 670760.96)", ErrEncodingFailed, value)
	}

	mantissa := math.Round(value * 100)
	exp := 0
	for mantissa < -2048 || mantissa > 2047 {
		mantissa = math.Round(mantissa / 2)
		exp++
	}
	if exp > dpt9MaxExponent {
		return nil, fmt.Errorf("%w: 9.x exponent overflow for %.2f", ErrEncodingFailed, value)
	}

	m := int16(mantissa)
	var sign uint16
	if m < 0 {
		sign = 0x8000
	}
	encoded := sign | uint16(exp)<<11 | uint16(m)&dpt9MantissaMask //nolint:gosec // exp <= 15, mantissa is 11 bits
	return []byte{byte(encoded >> 8), byte(encoded)}, nil
}

func decodeFloat16(data []byte) (float64, error) {
	raw := uint16(data[0])<<8 | uint16(data[1])
	if raw == dpt9Invalid {
		return 0, fmt.Errorf("%w: 9.x invalid value 0x7FFF (sensor error or not available)", ErrDecodingFailed)
	}

	exp := (raw >> 11) & 0x0F
	mantissa := int16(raw & dpt9MantissaMask) //nolint:gosec // 11-bit value fits in int16
	if raw&0x8000 != 0 {
		mantissa |= -0x800
	}
	return float64(mantissa) * 0.01 * math.Pow(2, float64(exp)), nil
}

func parseScene(value string) (uint8, error) {
	n, err := strconv.ParseUint(value, 10, 8)
	if err != nil || n > sceneMax {
		return 0, fmt.Errorf("%w: scene must be 0-%d, got %q", ErrEncodingFailed, sceneMax, value)
	}
	return uint8(n), nil
}

func parseRGB(value string) (RGB, error) {
	if hex, ok := strings.CutPrefix(value, "#"); ok {
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil || len(hex) != 6 {
			return RGB{}, fmt.Errorf("%w: colour %q must be #rrggbb", ErrEncodingFailed, value)
		}
		return RGB{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n)}, nil //nolint:gosec // masked by truncation
	}

	parts := strings.Split(value, ",")
	if len(parts) != rgbBytes {
		return RGB{}, fmt.Errorf("%w: colour %q must be #rrggbb or r,g,b", ErrEncodingFailed, value)
	}
	var c [rgbBytes]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return RGB{}, fmt.Errorf("%w: colour component %q must be 0-255", ErrEncodingFailed, p)
		}
		c[i] = uint8(n)
	}
	return RGB{R: c[0], G: c[1], B: c[2]}, nil
}
