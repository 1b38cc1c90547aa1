package cemi

import (
	"bytes"
	"errors"
	"testing"
)

func TestLDataEncode(t *testing.T) {
	ga := NewGroupAddress(1, 2, 3)

	tests := []struct {
		name  string
		frame LData
		want  []byte
	}{
		{
			name:  "short write",
			frame: NewGroupWrite(ga, []byte{0x01}),
			want:  []byte{0x11, 0x00, 0xBC, 0xE0, 0x00, 0x00, 0x0A, 0x03, 0x01, 0x00, 0x81},
		},
		{
			name:  "long write",
			frame: NewGroupWrite(ga, []byte{0x0C, 0x1A}),
			want:  []byte{0x11, 0x00, 0xBC, 0xE0, 0x00, 0x00, 0x0A, 0x03, 0x03, 0x00, 0x80, 0x0C, 0x1A},
		},
		{
			name:  "read",
			frame: NewGroupRead(ga),
			want:  []byte{0x11, 0x00, 0xBC, 0xE0, 0x00, 0x00, 0x0A, 0x03, 0x01, 0x00, 0x00},
		},
		{
			name:  "write of value above six bits uses long form",
			frame: NewGroupWrite(ga, []byte{0x80}),
			want:  []byte{0x11, 0x00, 0xBC, 0xE0, 0x00, 0x00, 0x0A, 0x03, 0x02, 0x00, 0x80, 0x80},
		},
		{
			name: "long form keeps a small byte after the APCI",
			frame: func() LData {
				f := NewGroupWrite(ga, []byte{0x05})
				f.LongForm = true
				return f
			}(),
			want: []byte{0x11, 0x00, 0xBC, 0xE0, 0x00, 0x00, 0x0A, 0x03, 0x02, 0x00, 0x80, 0x05},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.frame.Encode()
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode() = %X, want %X", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("indication with additional info", func(t *testing.T) {
		raw := []byte{
			0x29, 0x02, 0xAA, 0xBB, // two bytes of additional info
			0xBC, 0xE0, 0x11, 0x05, 0x0A, 0x03, 0x03, 0x00, 0x80, 0x0C, 0x1A,
		}
		f, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		if f.Code != LDataInd || f.Source.String() != "1.1.5" || f.Group().String() != "1/2/3" {
			t.Errorf("Decode() = %s", f)
		}
		if f.APCI != APCIGroupWrite || !bytes.Equal(f.Data, []byte{0x0C, 0x1A}) {
			t.Errorf("APCI/Data = 0x%02X/%X", f.APCI, f.Data)
		}
		if !f.GroupDestination() {
			t.Error("GroupDestination() = false")
		}
	})

	t.Run("short response", func(t *testing.T) {
		f, err := Decode([]byte{0x29, 0x00, 0xBC, 0xE0, 0x11, 0x05, 0x0A, 0x03, 0x01, 0x00, 0x41})
		if err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		if f.APCI != APCIGroupResponse || !bytes.Equal(f.Data, []byte{0x01}) {
			t.Errorf("APCI/Data = 0x%02X/%X", f.APCI, f.Data)
		}
	})

	t.Run("confirmation", func(t *testing.T) {
		req := NewGroupWrite(NewGroupAddress(1, 2, 3), []byte{0x01}).Encode()
		req[0] = byte(LDataCon)
		f, err := Decode(req)
		if err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		if !f.ConfirmOK() {
			t.Error("ConfirmOK() = false for positive confirmation")
		}
		req[2] |= 0x01
		f, _ = Decode(req)
		if f.ConfirmOK() {
			t.Error("ConfirmOK() = true for negative confirmation")
		}
	})

	bad := map[string][]byte{
		"empty":          {},
		"unknown code":   {0xFC, 0x00, 0xBC, 0xE0, 0x00, 0x00, 0x0A, 0x03, 0x01, 0x00, 0x00},
		"truncated":      {0x29, 0x00, 0xBC, 0xE0, 0x11},
		"npdu too large": {0x29, 0x00, 0xBC, 0xE0, 0x11, 0x05, 0x0A, 0x03, 0x05, 0x00, 0x80},
	}
	for name, raw := range bad {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(raw); !errors.Is(err, ErrInvalidFrame) {
				t.Errorf("Decode() error = %v, want ErrInvalidFrame", err)
			}
		})
	}
}
