package cemi

import (
	"encoding/binary"
	"fmt"
)

// MessageCode identifies the cEMI service primitive.
type MessageCode byte

// L_Data message codes.
const (
	LDataReq MessageCode = 0x11
	LDataCon MessageCode = 0x2E
	LDataInd MessageCode = 0x29
)

// String returns the primitive name.
func (m MessageCode) String() string {
	switch m {
	case LDataReq:
		return "L_Data.req"
	case LDataCon:
		return "L_Data.con"
	case LDataInd:
		return "L_Data.ind"
	default:
		return fmt.Sprintf("0x%02X", byte(m))
	}
}

// APCI codes for group communication.
const (
	APCIGroupRead     byte = 0x00
	APCIGroupResponse byte = 0x40
	APCIGroupWrite    byte = 0x80

	apciMask  = 0xC0
	shortMask = 0x3F
)

// Control field defaults for outgoing standard frames.
const (
	// Standard frame, do not repeat, broadcast, low priority.
	defaultCtrl1 byte = 0xBC

	// Group destination, hop count 6.
	defaultCtrl2 byte = 0xE0

	// ctrl1 bit set in an L_Data.con when the request failed.
	ctrl1ConfirmError byte = 0x01

	// ctrl2 bit set when the destination is a group address.
	ctrl2GroupDest byte = 0x80
)

// minFrameSize covers msgcode through the APCI byte with no additional info.
const minFrameSize = 11

// LData is a cEMI L_Data frame.
type LData struct {
	Code        MessageCode
	Ctrl1       byte
	Ctrl2       byte
	Source      IndividualAddress
	Destination uint16

	// APCI is the group service (read, response or write).
	APCI byte

	// Data is the application payload. Single values of six bits or less
	// are packed into the APCI byte unless LongForm is set.
	Data []byte

	// LongForm sends a one-byte Data after the APCI byte even when it would
	// fit in six bits. Datapoint types wider than six bits (5.x, 17.x)
	// need it.
	LongForm bool
}

// NewGroupWrite builds an L_Data.req writing data to a group address.
//
// Parameters:
//   - dest: Target group address
//   - data: DPT-encoded payload
//
// Returns:
//   - LData: Ready to encode and send
func NewGroupWrite(dest GroupAddress, data []byte) LData {
	return LData{
		Code:        LDataReq,
		Ctrl1:       defaultCtrl1,
		Ctrl2:       defaultCtrl2,
		Destination: uint16(dest),
		APCI:        APCIGroupWrite,
		Data:        data,
	}
}

// NewGroupRead builds an L_Data.req reading a group address.
func NewGroupRead(dest GroupAddress) LData {
	return LData{
		Code:        LDataReq,
		Ctrl1:       defaultCtrl1,
		Ctrl2:       defaultCtrl2,
		Destination: uint16(dest),
		APCI:        APCIGroupRead,
	}
}

// GroupDestination reports whether Destination is a group address.
func (f LData) GroupDestination() bool {
	return f.Ctrl2&ctrl2GroupDest != 0
}

// Group returns the destination as a group address.
func (f LData) Group() GroupAddress {
	return GroupAddress(f.Destination)
}

// ConfirmOK reports whether an L_Data.con signals success.
func (f LData) ConfirmOK() bool {
	return f.Code == LDataCon && f.Ctrl1&ctrl1ConfirmError == 0
}

// Encode returns the wire representation without additional info.
func (f LData) Encode() []byte {
	short := len(f.Data) == 0 || (len(f.Data) == 1 && f.Data[0] <= shortMask && !f.LongForm)

	size := minFrameSize
	if !short {
		size += len(f.Data)
	}
	buf := make([]byte, size)
	buf[0] = byte(f.Code)
	buf[1] = 0x00 // no additional info
	buf[2] = f.Ctrl1
	buf[3] = f.Ctrl2
	binary.BigEndian.PutUint16(buf[4:6], uint16(f.Source))
	binary.BigEndian.PutUint16(buf[6:8], f.Destination)
	buf[9] = 0x00 // TPCI: unnumbered data
	if short {
		buf[8] = 1
		buf[10] = f.APCI
		if len(f.Data) == 1 {
			buf[10] |= f.Data[0] & shortMask
		}
		return buf
	}
	buf[8] = byte(1 + len(f.Data)) //nolint:gosec // bounded by frame size
	buf[10] = f.APCI
	copy(buf[11:], f.Data)
	return buf
}

// Decode parses an L_Data frame. Additional info blocks are skipped.
func Decode(data []byte) (LData, error) {
	if len(data) < 2 {
		return LData{}, fmt.Errorf("%w: too short (%d bytes)", ErrInvalidFrame, len(data))
	}
	code := MessageCode(data[0])
	switch code {
	case LDataReq, LDataCon, LDataInd:
	default:
		return LData{}, fmt.Errorf("%w: unsupported message code %s", ErrInvalidFrame, code)
	}

	off := 2 + int(data[1])
	if len(data) < off+minFrameSize-2 {
		return LData{}, fmt.Errorf("%w: too short (%d bytes, additional info %d)", ErrInvalidFrame, len(data), data[1])
	}
	f := LData{
		Code:        code,
		Ctrl1:       data[off],
		Ctrl2:       data[off+1],
		Source:      IndividualAddress(binary.BigEndian.Uint16(data[off+2 : off+4])),
		Destination: binary.BigEndian.Uint16(data[off+4 : off+6]),
	}
	npdu := int(data[off+6])
	apdu := data[off+7:]
	if len(apdu) < npdu+1 {
		return LData{}, fmt.Errorf("%w: npdu length %d with %d bytes available", ErrInvalidFrame, npdu, len(apdu))
	}

	// Upper TPCI bits carry the high APCI bits, which are zero for group services.
	f.APCI = apdu[1] & apciMask
	switch {
	case npdu > 1:
		f.Data = append([]byte(nil), apdu[2:npdu+1]...)
	case f.APCI == APCIGroupWrite || f.APCI == APCIGroupResponse:
		f.Data = []byte{apdu[1] & shortMask}
	}
	return f, nil
}

// String returns a compact human-readable form.
func (f LData) String() string {
	dest := fmt.Sprintf("%d", f.Destination)
	if f.GroupDestination() {
		dest = f.Group().String()
	}
	apci := "UNKNOWN"
	switch f.APCI {
	case APCIGroupRead:
		apci = "READ"
	case APCIGroupResponse:
		apci = "RESPONSE"
	case APCIGroupWrite:
		apci = "WRITE"
	}
	return fmt.Sprintf("%s{%s -> %s, %s, Data:%X}", f.Code, f.Source, dest, apci, f.Data)
}
