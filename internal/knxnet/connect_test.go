package knxnet

import (
	"bytes"
	"errors"
	"net"
	"net/netip"
	"testing"
)

func TestConnectRequestEncode(t *testing.T) {
	local := netip.MustParseAddrPort("192.168.1.20:50000")
	req := ConnectRequest{
		Control: HPAI{Protocol: IPv4UDP, Addr: local},
		Data:    HPAI{Protocol: IPv4UDP, Addr: local},
		CRI:     TunnelCRI(),
	}

	got := req.Encode()
	want := []byte{
		0x06, 0x10, 0x02, 0x05, 0x00, 0x1A,
		0x08, 0x01, 192, 168, 1, 20, 0xC3, 0x50,
		0x08, 0x01, 192, 168, 1, 20, 0xC3, 0x50,
		0x04, 0x04, 0x02, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = %X\nwant      %X", got, want)
	}

	_, body, err := ParseFrame(got)
	if err != nil {
		t.Fatalf("ParseFrame() error: %v", err)
	}
	parsed, err := ParseConnectRequest(body)
	if err != nil {
		t.Fatalf("ParseConnectRequest() error: %v", err)
	}
	if parsed.Control.Addr != local || parsed.CRI.ConnectionType != ConnectionTypeTunnel {
		t.Errorf("ParseConnectRequest() = %+v", parsed)
	}
}

func TestParseConnectResponse(t *testing.T) {
	t.Run("success with tunnel CRD", func(t *testing.T) {
		body := []byte{
			0x15, 0x00,
			0x08, 0x01, 192, 168, 1, 10, 0x0E, 0x57,
			0x04, 0x04, 0x11, 0x0A,
		}
		resp, err := ParseConnectResponse(body)
		if err != nil {
			t.Fatalf("ParseConnectResponse() error: %v", err)
		}
		if resp.ChannelID != 0x15 || !resp.Status.OK() {
			t.Errorf("ChannelID/Status = %d/%v", resp.ChannelID, resp.Status)
		}
		if resp.Data.Addr != netip.MustParseAddrPort("192.168.1.10:3671") {
			t.Errorf("Data = %v", resp.Data)
		}
		addr, ok := resp.CRD.IndividualAddress()
		if !ok || addr != 0x110A {
			t.Errorf("IndividualAddress() = 0x%04X, %v; want 0x110A, true", addr, ok)
		}
	})

	t.Run("error status has no endpoint", func(t *testing.T) {
		resp, err := ParseConnectResponse([]byte{0x00, byte(StatusNoMoreConnections)})
		if err != nil {
			t.Fatalf("ParseConnectResponse() error: %v", err)
		}
		if resp.Status != StatusNoMoreConnections {
			t.Errorf("Status = %v, want %v", resp.Status, StatusNoMoreConnections)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := ParseConnectResponse([]byte{0x01, 0x00, 0x08, 0x01})
		if !errors.Is(err, ErrInvalidFrame) {
			t.Errorf("error = %v, want ErrInvalidFrame", err)
		}
	})
}

func TestDisconnectFrames(t *testing.T) {
	req := DisconnectRequest{ChannelID: 4, Control: NATHPAI(IPv4UDP)}
	h, body, err := ParseFrame(req.Encode())
	if err != nil {
		t.Fatalf("ParseFrame() error: %v", err)
	}
	if h.Service != ServiceDisconnectRequest {
		t.Errorf("Service = %v", h.Service)
	}
	parsed, err := ParseDisconnectRequest(body)
	if err != nil {
		t.Fatalf("ParseDisconnectRequest() error: %v", err)
	}
	if parsed.ChannelID != 4 || !parsed.Control.IsRouteBack() {
		t.Errorf("ParseDisconnectRequest() = %+v", parsed)
	}

	_, body, _ = ParseFrame(DisconnectResponse{ChannelID: 4}.Encode())
	resp, err := ParseDisconnectResponse(body)
	if err != nil || resp.ChannelID != 4 || !resp.Status.OK() {
		t.Errorf("ParseDisconnectResponse() = %+v, %v", resp, err)
	}
}

func TestHPAIFromUDPAddr(t *testing.T) {
	h, err := HPAIFromUDPAddr(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 3671})
	if err != nil {
		t.Fatalf("HPAIFromUDPAddr() error: %v", err)
	}
	if h.String() != "udp://10.0.0.2:3671" {
		t.Errorf("String() = %q", h.String())
	}
	if h.IsRouteBack() {
		t.Error("IsRouteBack() = true for a concrete endpoint")
	}

	if _, err := HPAIFromUDPAddr(&net.UDPAddr{IP: net.ParseIP("::1"), Port: 1}); err == nil {
		t.Error("HPAIFromUDPAddr() accepted an IPv6 address")
	}
}
