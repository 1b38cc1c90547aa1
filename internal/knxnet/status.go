package knxnet

import "fmt"

// Status is a KNXnet/IP status or error code.
type Status byte

// Status codes returned in acknowledgments and connect responses.
const (
	StatusNoError             Status = 0x00
	StatusHostProtocolType    Status = 0x01
	StatusVersionNotSupported Status = 0x02
	StatusSequenceNumber      Status = 0x04
	StatusConnectionID        Status = 0x21
	StatusConnectionType      Status = 0x22
	StatusConnectionOption    Status = 0x23
	StatusNoMoreConnections   Status = 0x24
	StatusDataConnection      Status = 0x26
	StatusKNXConnection       Status = 0x27
	StatusTunnelingLayer      Status = 0x29
)

var statusNames = map[Status]string{
	StatusNoError:             "no error",
	StatusHostProtocolType:    "host protocol type not supported",
	StatusVersionNotSupported: "protocol version not supported",
	StatusSequenceNumber:      "out of order sequence number",
	StatusConnectionID:        "no active connection with channel id",
	StatusConnectionType:      "connection type not supported",
	StatusConnectionOption:    "connection option not supported",
	StatusNoMoreConnections:   "no more connections accepted",
	StatusDataConnection:      "data connection error",
	StatusKNXConnection:       "KNX subnetwork connection error",
	StatusTunnelingLayer:      "tunneling layer not supported",
}

// String returns a human-readable description of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status 0x%02X", byte(s))
}

// OK reports whether the status signals success.
func (s Status) OK() bool {
	return s == StatusNoError
}
