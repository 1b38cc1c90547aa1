package knxnet

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
)

// HPAISize is the size of an IPv4 host protocol address information block.
const HPAISize = 8

// HostProtocol is the transport protocol code carried in an HPAI.
type HostProtocol byte

// Host protocol codes.
const (
	IPv4UDP HostProtocol = 0x01
	IPv4TCP HostProtocol = 0x02
)

// HPAI (Host Protocol Address Information) describes a communication endpoint.
type HPAI struct {
	Protocol HostProtocol
	Addr     netip.AddrPort
}

// NATHPAI returns the route-back endpoint (0.0.0.0:0), which tells the
// server to reply to the source address of the request.
func NATHPAI(proto HostProtocol) HPAI {
	return HPAI{Protocol: proto, Addr: netip.AddrPortFrom(netip.IPv4Unspecified(), 0)}
}

// HPAIFromUDPAddr builds an IPv4 UDP HPAI from a socket address.
func HPAIFromUDPAddr(addr *net.UDPAddr) (HPAI, error) {
	ap := addr.AddrPort()
	ip := ap.Addr().Unmap()
	if !ip.Is4() {
		return HPAI{}, fmt.Errorf("%w: HPAI requires an IPv4 address, got %s", ErrInvalidFrame, addr)
	}
	return HPAI{Protocol: IPv4UDP, Addr: netip.AddrPortFrom(ip, ap.Port())}, nil
}

// IsRouteBack reports whether the HPAI is the NAT route-back endpoint.
func (h HPAI) IsRouteBack() bool {
	return h.Addr.Addr().IsUnspecified() || h.Addr.Port() == 0
}

// UDPAddr returns the endpoint as a UDP socket address.
func (h HPAI) UDPAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(h.Addr)
}

// Encode returns the 8-byte wire representation.
func (h HPAI) Encode() []byte {
	buf := make([]byte, HPAISize)
	buf[0] = HPAISize
	buf[1] = byte(h.Protocol)
	ip := h.Addr.Addr().Unmap()
	if !ip.Is4() {
		ip = netip.IPv4Unspecified()
	}
	ip4 := ip.As4()
	copy(buf[2:6], ip4[:])
	binary.BigEndian.PutUint16(buf[6:8], h.Addr.Port())
	return buf
}

// ParseHPAI decodes an HPAI from the start of data.
func ParseHPAI(data []byte) (HPAI, error) {
	if len(data) < HPAISize {
		return HPAI{}, fmt.Errorf("%w: HPAI too short (%d bytes)", ErrInvalidFrame, len(data))
	}
	if data[0] != HPAISize {
		return HPAI{}, fmt.Errorf("%w: HPAI length 0x%02X", ErrInvalidFrame, data[0])
	}
	ip := netip.AddrFrom4([4]byte{data[2], data[3], data[4], data[5]})
	return HPAI{
		Protocol: HostProtocol(data[1]),
		Addr:     netip.AddrPortFrom(ip, binary.BigEndian.Uint16(data[6:8])),
	}, nil
}

// String returns the endpoint in host:port form.
func (h HPAI) String() string {
	proto := "udp"
	if h.Protocol == IPv4TCP {
		proto = "tcp"
	}
	return fmt.Sprintf("%s://%s", proto, h.Addr)
}
