package knxnet

import "fmt"

// ConnHeader is the connection header that prefixes service requests and
// acknowledgments on an established channel.
type ConnHeader struct {
	// ChannelID identifies the logical connection.
	ChannelID byte

	// Sequence is the modulo-256 frame counter.
	Sequence byte

	// Status is reserved (zero) in requests and carries the result code in
	// acknowledgments.
	Status Status
}

// Encode returns the 4-byte wire representation.
func (c ConnHeader) Encode() []byte {
	return []byte{ConnHeaderSize, c.ChannelID, c.Sequence, byte(c.Status)}
}

// ParseConnHeader decodes a connection header from the start of body and
// returns the bytes that follow it.
func ParseConnHeader(body []byte) (ConnHeader, []byte, error) {
	if len(body) < ConnHeaderSize {
		return ConnHeader{}, nil, fmt.Errorf("%w: connection header too short (%d bytes)", ErrInvalidFrame, len(body))
	}
	if body[0] != ConnHeaderSize {
		return ConnHeader{}, nil, fmt.Errorf("%w: connection header length 0x%02X", ErrInvalidFrame, body[0])
	}
	ch := ConnHeader{
		ChannelID: body[1],
		Sequence:  body[2],
		Status:    Status(body[3]),
	}
	return ch, body[ConnHeaderSize:], nil
}

// EncodeServiceRequest builds a complete service request frame:
// header + connection header + payload.
func EncodeServiceRequest(version byte, service ServiceType, channelID, seq byte, payload []byte) []byte {
	body := make([]byte, ConnHeaderSize+len(payload))
	copy(body, ConnHeader{ChannelID: channelID, Sequence: seq}.Encode())
	copy(body[ConnHeaderSize:], payload)
	return EncodeFrame(version, service, body)
}

// EncodeServiceAck builds a service acknowledgment frame:
// header + connection header carrying the status.
func EncodeServiceAck(version byte, service ServiceType, channelID, seq byte, status Status) []byte {
	return EncodeFrame(version, service, ConnHeader{
		ChannelID: channelID,
		Sequence:  seq,
		Status:    status,
	}.Encode())
}
