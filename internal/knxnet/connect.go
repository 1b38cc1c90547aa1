package knxnet

import (
	"encoding/binary"
	"fmt"
)

// Connection type codes used in CRI and CRD blocks.
const (
	ConnectionTypeTunnel       byte = 0x04
	ConnectionTypeObjectServer byte = 0x08
)

// TunnelLinkLayer is the tunneling KNX layer for data link layer access.
const TunnelLinkLayer byte = 0x02

// CRI (Connection Request Information) describes the requested connection.
type CRI struct {
	ConnectionType byte

	// Data holds the connection-type specific bytes.
	Data []byte
}

// TunnelCRI returns the CRI for a link layer tunnel connection.
func TunnelCRI() CRI {
	return CRI{ConnectionType: ConnectionTypeTunnel, Data: []byte{TunnelLinkLayer, 0x00}}
}

// Encode returns the wire representation of the CRI.
func (c CRI) Encode() []byte {
	buf := make([]byte, 2+len(c.Data))
	buf[0] = byte(len(buf))
	buf[1] = c.ConnectionType
	copy(buf[2:], c.Data)
	return buf
}

// CRD (Connection Response Data) is the server's answer to a CRI.
type CRD struct {
	ConnectionType byte
	Data           []byte
}

// ParseCRD decodes a CRD from the start of data.
func ParseCRD(data []byte) (CRD, error) {
	if len(data) < 2 {
		return CRD{}, fmt.Errorf("%w: CRD too short (%d bytes)", ErrInvalidFrame, len(data))
	}
	size := int(data[0])
	if size < 2 || size > len(data) {
		return CRD{}, fmt.Errorf("%w: CRD length %d with %d bytes available", ErrInvalidFrame, size, len(data))
	}
	crd := CRD{ConnectionType: data[1]}
	if size > 2 {
		crd.Data = append([]byte(nil), data[2:size]...)
	}
	return crd, nil
}

// Encode returns the wire representation of the CRD.
func (c CRD) Encode() []byte {
	buf := make([]byte, 2+len(c.Data))
	buf[0] = byte(len(buf))
	buf[1] = c.ConnectionType
	copy(buf[2:], c.Data)
	return buf
}

// IndividualAddress returns the address assigned to a tunnel connection.
// ok is false for connection types that carry no address.
func (c CRD) IndividualAddress() (addr uint16, ok bool) {
	if c.ConnectionType != ConnectionTypeTunnel || len(c.Data) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(c.Data[:2]), true
}

// ConnectRequest opens a logical channel.
type ConnectRequest struct {
	Control HPAI
	Data    HPAI
	CRI     CRI
}

// Encode returns the complete CONNECT_REQUEST frame.
func (r ConnectRequest) Encode() []byte {
	body := make([]byte, 0, 2*HPAISize+2+len(r.CRI.Data))
	body = append(body, r.Control.Encode()...)
	body = append(body, r.Data.Encode()...)
	body = append(body, r.CRI.Encode()...)
	return EncodeFrame(Version10, ServiceConnectRequest, body)
}

// ParseConnectRequest decodes a CONNECT_REQUEST body.
func ParseConnectRequest(body []byte) (ConnectRequest, error) {
	if len(body) < 2*HPAISize+2 {
		return ConnectRequest{}, fmt.Errorf("%w: connect request too short (%d bytes)", ErrInvalidFrame, len(body))
	}
	ctrl, err := ParseHPAI(body)
	if err != nil {
		return ConnectRequest{}, err
	}
	data, err := ParseHPAI(body[HPAISize:])
	if err != nil {
		return ConnectRequest{}, err
	}
	crd, err := ParseCRD(body[2*HPAISize:])
	if err != nil {
		return ConnectRequest{}, err
	}
	return ConnectRequest{Control: ctrl, Data: data, CRI: CRI(crd)}, nil
}

// ConnectResponse is the server's answer to a ConnectRequest.
type ConnectResponse struct {
	ChannelID byte
	Status    Status

	// Data and CRD are only present when Status is StatusNoError.
	Data HPAI
	CRD  CRD
}

// Encode returns the complete CONNECT_RESPONSE frame.
func (r ConnectResponse) Encode() []byte {
	body := []byte{r.ChannelID, byte(r.Status)}
	if r.Status.OK() {
		body = append(body, r.Data.Encode()...)
		body = append(body, r.CRD.Encode()...)
	}
	return EncodeFrame(Version10, ServiceConnectResponse, body)
}

// ParseConnectResponse decodes a CONNECT_RESPONSE body.
func ParseConnectResponse(body []byte) (ConnectResponse, error) {
	if len(body) < 2 {
		return ConnectResponse{}, fmt.Errorf("%w: connect response too short (%d bytes)", ErrInvalidFrame, len(body))
	}
	resp := ConnectResponse{ChannelID: body[0], Status: Status(body[1])}
	if !resp.Status.OK() {
		return resp, nil
	}

	data, err := ParseHPAI(body[2:])
	if err != nil {
		return ConnectResponse{}, err
	}
	crd, err := ParseCRD(body[2+HPAISize:])
	if err != nil {
		return ConnectResponse{}, err
	}
	resp.Data = data
	resp.CRD = crd
	return resp, nil
}

// DisconnectRequest tears down a channel.
type DisconnectRequest struct {
	ChannelID byte
	Control   HPAI
}

// Encode returns the complete DISCONNECT_REQUEST frame.
func (r DisconnectRequest) Encode() []byte {
	body := append([]byte{r.ChannelID, 0x00}, r.Control.Encode()...)
	return EncodeFrame(Version10, ServiceDisconnectRequest, body)
}

// ParseDisconnectRequest decodes a DISCONNECT_REQUEST body.
func ParseDisconnectRequest(body []byte) (DisconnectRequest, error) {
	if len(body) < 2+HPAISize {
		return DisconnectRequest{}, fmt.Errorf("%w: disconnect request too short (%d bytes)", ErrInvalidFrame, len(body))
	}
	ctrl, err := ParseHPAI(body[2:])
	if err != nil {
		return DisconnectRequest{}, err
	}
	return DisconnectRequest{ChannelID: body[0], Control: ctrl}, nil
}

// DisconnectResponse confirms a DisconnectRequest.
type DisconnectResponse struct {
	ChannelID byte
	Status    Status
}

// Encode returns the complete DISCONNECT_RESPONSE frame.
func (r DisconnectResponse) Encode() []byte {
	return EncodeFrame(Version10, ServiceDisconnectResponse, []byte{r.ChannelID, byte(r.Status)})
}

// ParseDisconnectResponse decodes a DISCONNECT_RESPONSE body.
func ParseDisconnectResponse(body []byte) (DisconnectResponse, error) {
	if len(body) < 2 {
		return DisconnectResponse{}, fmt.Errorf("%w: disconnect response too short (%d bytes)", ErrInvalidFrame, len(body))
	}
	return DisconnectResponse{ChannelID: body[0], Status: Status(body[1])}, nil
}
