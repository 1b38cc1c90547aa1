package baos

import "fmt"

// MainService is the first byte of every object server message.
const MainService byte = 0xF0

// Subservice identifies the object server operation.
type Subservice byte

// Sub-service codes.
const (
	GetServerItemReq           Subservice = 0x01
	GetDatapointDescriptionReq Subservice = 0x03
	GetDatapointValueReq       Subservice = 0x05
	SetDatapointValueReq       Subservice = 0x06
	GetParameterByteReq        Subservice = 0x07

	GetServerItemRes           Subservice = 0x81
	GetDatapointDescriptionRes Subservice = 0x83
	GetDatapointValueRes       Subservice = 0x85
	SetDatapointValueRes       Subservice = 0x86
	GetParameterByteRes        Subservice = 0x87

	DatapointValueInd Subservice = 0xC1
	ServerItemInd     Subservice = 0xC2
)

const responseBit Subservice = 0x80

var subserviceNames = map[Subservice]string{
	GetServerItemReq:           "GetServerItem.Req",
	GetDatapointDescriptionReq: "GetDatapointDescription.Req",
	GetDatapointValueReq:       "GetDatapointValue.Req",
	SetDatapointValueReq:       "SetDatapointValue.Req",
	GetParameterByteReq:        "GetParameterByte.Req",
	GetServerItemRes:           "GetServerItem.Res",
	GetDatapointDescriptionRes: "GetDatapointDescription.Res",
	GetDatapointValueRes:       "GetDatapointValue.Res",
	SetDatapointValueRes:       "SetDatapointValue.Res",
	GetParameterByteRes:        "GetParameterByte.Res",
	DatapointValueInd:          "DatapointValue.Ind",
	ServerItemInd:              "ServerItem.Ind",
}

// String returns the service name, or the hex code if unknown.
func (s Subservice) String() string {
	if name, ok := subserviceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", byte(s))
}

// Known reports whether the sub-service is one this package can decode.
func (s Subservice) Known() bool {
	_, ok := subserviceNames[s]
	return ok
}

// IsResponse reports whether s answers a request.
func (s Subservice) IsResponse() bool {
	return s&0xC0 == responseBit
}

// IsIndication reports whether s is an unsolicited indication.
func (s Subservice) IsIndication() bool {
	return s == DatapointValueInd || s == ServerItemInd
}

// Response returns the response code matching request s.
func (s Subservice) Response() Subservice {
	return s | responseBit
}

// ErrorCode is the status byte carried by error responses.
type ErrorCode byte

// Error codes returned by the object server.
const (
	ErrCodeNone             ErrorCode = 0x00
	ErrCodeInternal         ErrorCode = 0x01
	ErrCodeNoItem           ErrorCode = 0x02
	ErrCodeBufferTooSmall   ErrorCode = 0x03
	ErrCodeNotWritable      ErrorCode = 0x04
	ErrCodeNotSupported     ErrorCode = 0x05
	ErrCodeBadParameter     ErrorCode = 0x06
	ErrCodeBadID            ErrorCode = 0x07
	ErrCodeBadCommand       ErrorCode = 0x08
	ErrCodeBadLength        ErrorCode = 0x09
	ErrCodeInconsistent     ErrorCode = 0x0A
	ErrCodeObjectServerBusy ErrorCode = 0x0B
)

var errorCodeNames = map[ErrorCode]string{
	ErrCodeNone:             "no error",
	ErrCodeInternal:         "internal error",
	ErrCodeNoItem:           "no item found",
	ErrCodeBufferTooSmall:   "buffer too small",
	ErrCodeNotWritable:      "item not writable",
	ErrCodeNotSupported:     "service not supported",
	ErrCodeBadParameter:     "bad service parameter",
	ErrCodeBadID:            "bad id",
	ErrCodeBadCommand:       "bad command or value",
	ErrCodeBadLength:        "bad length",
	ErrCodeInconsistent:     "message inconsistent",
	ErrCodeObjectServerBusy: "object server busy",
}

// String returns a readable description of the code.
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error 0x%02X", byte(c))
}

// Server item ids.
const (
	ItemHardwareType    uint16 = 1
	ItemFirmwareVersion uint16 = 3
	ItemSerialNumber    uint16 = 8
	ItemTimeSinceReset  uint16 = 9
	ItemBusConnected    uint16 = 10
)

// Datapoint value commands for SetDatapointValue.
const (
	CmdNone       byte = 0x00
	CmdSetValue   byte = 0x01
	CmdSendValue  byte = 0x02
	CmdSetAndSend byte = 0x03
	CmdReadValue  byte = 0x04
	CmdClearState byte = 0x05
)

// Datapoint filters for GetDatapointValue.
const (
	FilterAll     byte = 0x00
	FilterValid   byte = 0x01
	FilterUpdated byte = 0x02
)
