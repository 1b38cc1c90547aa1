package dpt

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		id      ID
		value   string
		want    []byte
		wantErr error
	}{
		{"switch on", Switch, "on", []byte{0x01}, nil},
		{"switch false", Switch, "false", []byte{0x00}, nil},
		{"switch 1", "1.008", "1", []byte{0x01}, nil},
		{"switch garbage", Switch, "maybe", nil, ErrEncodingFailed},
		{"dim up 3", Dimming, "+3", []byte{0x0B}, nil},
		{"dim stop", Dimming, "-0", []byte{0x00}, nil},
		{"dim too many steps", Dimming, "+8", nil, ErrEncodingFailed},
		{"dim no sign", Dimming, "3", nil, ErrEncodingFailed},
		{"percent 100", Percentage, "100", []byte{0xFF}, nil},
		{"percent 50", Percentage, "50", []byte{0x80}, nil},
		{"percent over", Percentage, "101", nil, ErrEncodingFailed},
		{"angle 360", Angle, "360", []byte{0xFF}, nil},
		{"raw 5.x", Unsigned8, "42", []byte{0x2A}, nil},
		{"raw 5.x overflow", Unsigned8, "256", nil, ErrEncodingFailed},
		{"temperature 21.5", Temperature, "21.5", []byte{0x0C, 0x33}, nil},
		{"temperature zero", Temperature, "0", []byte{0x00, 0x00}, nil},
		{"temperature negative", Temperature, "-5", []byte{0x86, 0x0C}, nil},
		{"temperature out of range", Temperature, "700000", nil, ErrEncodingFailed},
		{"temperature NaN", Temperature, "NaN", nil, ErrEncodingFailed},
		{"temperature infinity", Temperature, "-Inf", nil, ErrEncodingFailed},
		{"percentage NaN", Percentage, "nan", nil, ErrEncodingFailed},
		{"temperature not a number", Temperature, "warm", nil, ErrEncodingFailed},
		{"scene 5", SceneNumber, "5", []byte{0x05}, nil},
		{"scene 64", SceneNumber, "64", nil, ErrEncodingFailed},
		{"scene learn", SceneControl, "5:learn", []byte{0x85}, nil},
		{"scene recall", SceneControl, "63", []byte{0x3F}, nil},
		{"rgb hex", ColourRGB, "#ff8000", []byte{0xFF, 0x80, 0x00}, nil},
		{"rgb list", ColourRGB, "1, 2, 3", []byte{0x01, 0x02, 0x03}, nil},
		{"rgb short hex", ColourRGB, "#fff", nil, ErrEncodingFailed},
		{"unsupported main", "14.068", "1", nil, ErrUnknownDPT},
		{"malformed id", "temp", "1", nil, ErrUnknownDPT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.id, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Encode(%s, %q) error = %v, want %v", tt.id, tt.value, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Encode(%s, %q) error = %v", tt.id, tt.value, err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode(%s, %q) = % X, want % X", tt.id, tt.value, got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		id      ID
		data    []byte
		want    any
		wantErr bool
	}{
		{"switch lsb", Switch, []byte{0xFF}, true, false},
		{"switch off", Switch, []byte{0x80}, false, false},
		{"dimming", Dimming, []byte{0x0B}, Step{Increase: true, Steps: 3}, false},
		{"raw 5.x", Unsigned8, []byte{0x2A}, uint8(42), false},
		{"scene", SceneNumber, []byte{0xC5}, uint8(5), false},
		{"scene control", SceneControl, []byte{0x85}, Scene{Number: 5, Learn: true}, false},
		{"rgb", ColourRGB, []byte{1, 2, 3}, RGB{R: 1, G: 2, B: 3}, false},
		{"empty", Switch, nil, nil, true},
		{"float too short", Temperature, []byte{0x0C}, nil, true},
		{"float invalid marker", Temperature, []byte{0x7F, 0xFF}, nil, true},
		{"rgb too short", ColourRGB, []byte{1, 2}, nil, true},
		{"unknown", "14.068", []byte{0, 0, 0, 0}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.id, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode(%s, % X) error = %v, wantErr %v", tt.id, tt.data, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Decode(%s, % X) = %#v, want %#v", tt.id, tt.data, got, tt.want)
			}
		})
	}
}

func TestFloatRoundTrip(t *testing.T) {
	for _, v := range []float64{-273, -20.48, -0.5, 0.01, 21.5, 100, 1000.5, 65000, 670760} {
		data, err := encodeFloat16(v)
		if err != nil {
			t.Fatalf("encodeFloat16(%v) error = %v", v, err)
		}
		got, err := decodeFloat16(data)
		if err != nil {
			t.Fatalf("decodeFloat16(% X) error = %v", data, err)
		}
		// Precision halves with each exponent step.
		tolerance := math.Max(0.01, math.Abs(v)*0.001)
		if math.Abs(got-v) > tolerance {
			t.Errorf("round trip %v = %v (% X)", v, got, data)
		}
	}
}

func TestScaledDecode(t *testing.T) {
	got, err := Decode(Percentage, []byte{0xFF})
	if err != nil || got.(float64) != 100 {
		t.Errorf("Decode(5.001, FF) = %v, %v, want 100", got, err)
	}
	got, err = Decode(Angle, []byte{0x00})
	if err != nil || got.(float64) != 0 {
		t.Errorf("Decode(5.003, 00) = %v, %v, want 0", got, err)
	}
}

func TestIDHelpers(t *testing.T) {
	tests := []struct {
		id    ID
		main  int
		short bool
		known bool
	}{
		{Switch, 1, true, true},
		{Dimming, 3, true, true},
		{Percentage, 5, false, true},
		{Temperature, 9, false, true},
		{ColourRGB, 232, false, true},
		{"14.068", 14, false, false},
		{"x.1", 0, false, false},
	}

	for _, tt := range tests {
		main, _ := tt.id.Main()
		if main != tt.main || tt.id.Short() != tt.short || tt.id.Known() != tt.known {
			t.Errorf("%s: main %d short %v known %v, want %d %v %v",
				tt.id, main, tt.id.Short(), tt.id.Known(), tt.main, tt.short, tt.known)
		}
	}
}
