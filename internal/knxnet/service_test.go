package knxnet

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeServiceRequest(t *testing.T) {
	payload := []byte{0xF0, 0x01, 0x00, 0x09, 0x00, 0x01}
	got := EncodeServiceRequest(VersionObjectServer, ServiceObjectServerRequest, 2, 5, payload)
	want := []byte{
		0x06, 0x20, 0xF0, 0x80, 0x00, 0x10, // header, total 16
		0x04, 0x02, 0x05, 0x00, // channel 2, seq 5
		0xF0, 0x01, 0x00, 0x09, 0x00, 0x01,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeServiceRequest() = %X, want %X", got, want)
	}
}

func TestEncodeServiceAck(t *testing.T) {
	got := EncodeServiceAck(Version10, ServiceTunnelingAck, 7, 255, StatusVersionNotSupported)
	want := []byte{0x06, 0x10, 0x04, 0x21, 0x00, 0x0A, 0x04, 0x07, 0xFF, 0x02}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeServiceAck() = %X, want %X", got, want)
	}
}

func TestParseConnHeader(t *testing.T) {
	ch, rest, err := ParseConnHeader([]byte{0x04, 0x03, 0x09, 0x00, 0x29, 0x00})
	if err != nil {
		t.Fatalf("ParseConnHeader() error: %v", err)
	}
	if ch.ChannelID != 3 || ch.Sequence != 9 || ch.Status != StatusNoError {
		t.Errorf("ParseConnHeader() = %+v", ch)
	}
	if !bytes.Equal(rest, []byte{0x29, 0x00}) {
		t.Errorf("rest = %X, want 2900", rest)
	}

	if _, _, err := ParseConnHeader([]byte{0x04, 0x03}); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("short header error = %v, want ErrInvalidFrame", err)
	}
	if _, _, err := ParseConnHeader([]byte{0x05, 0x03, 0x09, 0x00}); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("bad length error = %v, want ErrInvalidFrame", err)
	}
}

func TestStatusString(t *testing.T) {
	if StatusNoError.String() != "no error" {
		t.Errorf("StatusNoError.String() = %q", StatusNoError.String())
	}
	if !StatusNoError.OK() || StatusNoMoreConnections.OK() {
		t.Error("OK() reports wrong result")
	}
	if got := Status(0x99).String(); got != "status 0x99" {
		t.Errorf("String() = %q, want status 0x99", got)
	}
}
