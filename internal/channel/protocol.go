package channel

import (
	"github.com/nerrad567/gray-logic-knxlink/internal/knxnet"
)

// Service is a decoded protocol payload: a cEMI frame for tunneling or an
// object server message.
type Service interface {
	String() string
}

// Codec translates between services and frame payloads for one protocol.
type Codec interface {
	// Encode returns the payload for svc. Services the protocol cannot
	// carry yield an error wrapping ErrUnsupported.
	Encode(svc Service) ([]byte, error)

	// Decode parses the payload that follows the connection header.
	Decode(payload []byte) (Service, error)

	// Deliverable reports whether a decoded inbound service is handed to
	// service listeners. Other services are logged and dropped.
	Deliverable(svc Service) bool

	// Confirms reports whether got confirms the request req. A non-nil
	// error marks a negative confirmation.
	Confirms(req, got Service) (bool, error)

	// Probe returns the keep-alive request sent on stream transports, or
	// nil if the protocol needs none.
	Probe() Service
}

// Protocol describes one acknowledged-channel protocol.
type Protocol struct {
	// Name is used in logs and statistics.
	Name string

	// RequestService and AckService are the frame service types of the
	// request/acknowledgment exchange.
	RequestService knxnet.ServiceType
	AckService     knxnet.ServiceType

	// Version is the protocol version carried in and expected from
	// request and ack frame headers.
	Version byte

	// CRI is sent in the CONNECT_REQUEST on UDP.
	CRI knxnet.CRI

	// SupportsConfirmation enables the WaitForCon send mode.
	SupportsConfirmation bool

	Codec Codec
}
