package knxnet

import (
	"encoding/binary"
	"fmt"
)

// Structure sizes.
const (
	// HeaderSize is the size of the KNXnet/IP frame header.
	HeaderSize = 6

	// ConnHeaderSize is the size of the connection header.
	ConnHeaderSize = 4
)

// Protocol version bytes carried in the frame header.
const (
	// Version10 is the KNXnet/IP protocol version 1.0.
	Version10 byte = 0x10

	// VersionObjectServer is the protocol version used by object server
	// (BAOS) frames tunnelled over KNXnet/IP.
	VersionObjectServer byte = 0x20
)

// ServiceType identifies a KNXnet/IP service.
type ServiceType uint16

// KNXnet/IP service types used by connection-oriented channels.
const (
	ServiceConnectRequest          ServiceType = 0x0205
	ServiceConnectResponse         ServiceType = 0x0206
	ServiceConnectionStateRequest  ServiceType = 0x0207
	ServiceConnectionStateResponse ServiceType = 0x0208
	ServiceDisconnectRequest       ServiceType = 0x0209
	ServiceDisconnectResponse      ServiceType = 0x020A
	ServiceTunnelingRequest        ServiceType = 0x0420
	ServiceTunnelingAck            ServiceType = 0x0421
	ServiceObjectServerRequest     ServiceType = 0xF080
	ServiceObjectServerAck         ServiceType = 0xF081
)

var serviceNames = map[ServiceType]string{
	ServiceConnectRequest:          "CONNECT_REQUEST",
	ServiceConnectResponse:         "CONNECT_RESPONSE",
	ServiceConnectionStateRequest:  "CONNECTIONSTATE_REQUEST",
	ServiceConnectionStateResponse: "CONNECTIONSTATE_RESPONSE",
	ServiceDisconnectRequest:       "DISCONNECT_REQUEST",
	ServiceDisconnectResponse:      "DISCONNECT_RESPONSE",
	ServiceTunnelingRequest:        "TUNNELING_REQUEST",
	ServiceTunnelingAck:            "TUNNELING_ACK",
	ServiceObjectServerRequest:     "OBJSERVER_REQUEST",
	ServiceObjectServerAck:         "OBJSERVER_ACK",
}

// String returns the symbolic service name, or the hex value if unknown.
func (s ServiceType) String() string {
	if name, ok := serviceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", uint16(s))
}

// Header is the 6-byte KNXnet/IP frame header.
type Header struct {
	// Version is the protocol version byte.
	Version byte

	// Service is the service type carried by the frame.
	Service ServiceType

	// TotalLength is the frame length including the header itself.
	TotalLength uint16
}

// NewHeader creates a header for a frame whose body is bodyLen bytes long.
func NewHeader(version byte, service ServiceType, bodyLen int) Header {
	return Header{
		Version:     version,
		Service:     service,
		TotalLength: uint16(HeaderSize + bodyLen), //nolint:gosec // frames are far below 64 KiB
	}
}

// Encode returns the 6-byte wire representation of the header.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	h.put(buf)
	return buf
}

func (h Header) put(buf []byte) {
	buf[0] = HeaderSize
	buf[1] = h.Version
	binary.BigEndian.PutUint16(buf[2:4], uint16(h.Service))
	binary.BigEndian.PutUint16(buf[4:6], h.TotalLength)
}

// ParseHeader decodes the header at the start of data.
//
// The declared total length must be at least HeaderSize and must not exceed
// len(data). Trailing bytes beyond the declared length are ignored by
// ParseFrame.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header too short (%d bytes)", ErrInvalidFrame, len(data))
	}
	if data[0] != HeaderSize {
		return Header{}, fmt.Errorf("%w: header length 0x%02X", ErrInvalidFrame, data[0])
	}

	h := Header{
		Version:     data[1],
		Service:     ServiceType(binary.BigEndian.Uint16(data[2:4])),
		TotalLength: binary.BigEndian.Uint16(data[4:6]),
	}
	if h.TotalLength < HeaderSize {
		return Header{}, fmt.Errorf("%w: total length %d below header size", ErrInvalidFrame, h.TotalLength)
	}
	if int(h.TotalLength) > len(data) {
		return Header{}, fmt.Errorf("%w: total length %d exceeds %d available bytes",
			ErrInvalidFrame, h.TotalLength, len(data))
	}
	return h, nil
}

// ParseFrame decodes the header and returns it with the frame body.
func ParseFrame(data []byte) (Header, []byte, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return Header{}, nil, err
	}
	return h, data[HeaderSize:h.TotalLength], nil
}

// EncodeFrame prefixes body with a header and returns the complete frame.
func EncodeFrame(version byte, service ServiceType, body []byte) []byte {
	buf := make([]byte, HeaderSize+len(body))
	NewHeader(version, service, len(body)).put(buf)
	copy(buf[HeaderSize:], body)
	return buf
}
