package baos

import (
	"encoding/binary"
	"fmt"
)

const headerSize = 6

// Item is one entry of a server item or datapoint value list.
type Item struct {
	ID uint16

	// Flags is the state byte in DatapointValue responses and indications,
	// the command byte in SetDatapointValue requests, and unused for
	// server items.
	Flags byte

	Data []byte
}

// Description is one entry of a GetDatapointDescription response.
type Description struct {
	ID          uint16
	ValueType   byte
	ConfigFlags byte
	DPT         byte
}

// Message is a decoded object server message.
type Message struct {
	Subservice Subservice
	StartItem  uint16
	ItemCount  uint16

	// Filter selects datapoints in a GetDatapointValue request.
	Filter byte

	// Items holds server items or datapoint values, depending on Subservice.
	Items []Item

	// Descriptions holds GetDatapointDescription response entries.
	Descriptions []Description

	// Parameters holds GetParameterByte response bytes.
	Parameters []byte

	// Error is set on error responses; zero means success.
	Error ErrorCode
}

// NewGetServerItem requests count server items starting at start.
func NewGetServerItem(start, count uint16) Message {
	return Message{Subservice: GetServerItemReq, StartItem: start, ItemCount: count}
}

// NewGetDatapointValue requests count datapoint values starting at start.
func NewGetDatapointValue(start, count uint16, filter byte) Message {
	return Message{Subservice: GetDatapointValueReq, StartItem: start, ItemCount: count, Filter: filter}
}

// NewGetDatapointDescription requests count datapoint descriptions.
func NewGetDatapointDescription(start, count uint16) Message {
	return Message{Subservice: GetDatapointDescriptionReq, StartItem: start, ItemCount: count}
}

// NewGetParameterByte requests count parameter bytes starting at start.
func NewGetParameterByte(start, count uint16) Message {
	return Message{Subservice: GetParameterByteReq, StartItem: start, ItemCount: count}
}

// NewSetDatapointValue sets one or more datapoints. Start item is taken
// from the first item.
func NewSetDatapointValue(items ...Item) Message {
	m := Message{Subservice: SetDatapointValueReq, Items: items}
	if len(items) > 0 {
		m.StartItem = items[0].ID
	}
	m.ItemCount = uint16(len(items)) //nolint:gosec // item lists are short
	return m
}

// IsError reports whether m is an error response.
func (m Message) IsError() bool {
	return m.Subservice.IsResponse() && m.Error != ErrCodeNone
}

// Err returns nil for successful messages, or an error describing the code.
func (m Message) Err() error {
	if !m.IsError() {
		return nil
	}
	return fmt.Errorf("%s: %s", m.Subservice, m.Error)
}

// Encode returns the wire representation of m.
func (m Message) Encode() ([]byte, error) {
	buf := make([]byte, headerSize, headerSize+16)
	buf[0] = MainService
	buf[1] = byte(m.Subservice)
	binary.BigEndian.PutUint16(buf[2:4], m.StartItem)

	count := m.ItemCount
	switch m.Subservice {
	case GetServerItemReq, GetDatapointDescriptionReq, GetParameterByteReq:
	case GetDatapointValueReq:
		buf = append(buf, m.Filter)
	case SetDatapointValueReq, GetDatapointValueRes, DatapointValueInd:
		count = uint16(len(m.Items)) //nolint:gosec // item lists are short
		for _, it := range m.Items {
			if len(it.Data) > 0xFF {
				return nil, fmt.Errorf("%w: item %d data too long (%d bytes)", ErrInvalidMessage, it.ID, len(it.Data))
			}
			buf = binary.BigEndian.AppendUint16(buf, it.ID)
			buf = append(buf, it.Flags, byte(len(it.Data)))
			buf = append(buf, it.Data...)
		}
	case GetServerItemRes, ServerItemInd:
		count = uint16(len(m.Items)) //nolint:gosec // item lists are short
		for _, it := range m.Items {
			if len(it.Data) > 0xFF {
				return nil, fmt.Errorf("%w: item %d data too long (%d bytes)", ErrInvalidMessage, it.ID, len(it.Data))
			}
			buf = binary.BigEndian.AppendUint16(buf, it.ID)
			buf = append(buf, byte(len(it.Data)))
			buf = append(buf, it.Data...)
		}
	case GetDatapointDescriptionRes:
		count = uint16(len(m.Descriptions)) //nolint:gosec // item lists are short
		for _, d := range m.Descriptions {
			buf = binary.BigEndian.AppendUint16(buf, d.ID)
			buf = append(buf, d.ValueType, d.ConfigFlags, d.DPT)
		}
	case GetParameterByteRes:
		count = uint16(len(m.Parameters)) //nolint:gosec // bounded by request
		buf = append(buf, m.Parameters...)
	case SetDatapointValueRes:
		count = 0
		buf = append(buf, byte(m.Error))
	default:
		return nil, fmt.Errorf("%w: cannot encode sub-service %s", ErrInvalidMessage, m.Subservice)
	}

	if m.IsError() {
		count = 0
		buf = append(buf[:headerSize], byte(m.Error))
	}
	binary.BigEndian.PutUint16(buf[4:6], count)
	return buf, nil
}

// Decode parses an object server message.
func Decode(data []byte) (Message, error) {
	if len(data) < headerSize {
		return Message{}, fmt.Errorf("%w: too short (%d bytes)", ErrInvalidMessage, len(data))
	}
	if data[0] != MainService {
		return Message{}, fmt.Errorf("%w: main service 0x%02X", ErrInvalidMessage, data[0])
	}

	m := Message{
		Subservice: Subservice(data[1]),
		StartItem:  binary.BigEndian.Uint16(data[2:4]),
		ItemCount:  binary.BigEndian.Uint16(data[4:6]),
	}
	if !m.Subservice.Known() {
		return Message{}, fmt.Errorf("%w: unknown sub-service %s", ErrInvalidMessage, m.Subservice)
	}
	body := data[headerSize:]

	if m.Subservice.IsResponse() && m.ItemCount == 0 {
		if len(body) < 1 {
			return Message{}, fmt.Errorf("%w: %s without items or error code", ErrInvalidMessage, m.Subservice)
		}
		m.Error = ErrorCode(body[0])
		return m, nil
	}

	var err error
	switch m.Subservice {
	case GetServerItemReq, GetDatapointDescriptionReq, GetParameterByteReq:
	case GetDatapointValueReq:
		if len(body) < 1 {
			return Message{}, fmt.Errorf("%w: missing filter", ErrInvalidMessage)
		}
		m.Filter = body[0]
	case SetDatapointValueReq, GetDatapointValueRes, DatapointValueInd:
		m.Items, err = decodeItems(body, int(m.ItemCount), true)
	case GetServerItemRes, ServerItemInd:
		m.Items, err = decodeItems(body, int(m.ItemCount), false)
	case GetDatapointDescriptionRes:
		m.Descriptions, err = decodeDescriptions(body, int(m.ItemCount))
	case GetParameterByteRes:
		if len(body) < int(m.ItemCount) {
			return Message{}, fmt.Errorf("%w: %d parameter bytes, %d available", ErrInvalidMessage, m.ItemCount, len(body))
		}
		m.Parameters = append([]byte(nil), body[:m.ItemCount]...)
	case SetDatapointValueRes:
		// handled by the zero-count branch above
	}
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

func decodeItems(body []byte, count int, withFlags bool) ([]Item, error) {
	fixed := 3
	if withFlags {
		fixed = 4
	}
	items := make([]Item, 0, min(count, len(body)/fixed))
	for i := 0; i < count; i++ {
		if len(body) < fixed {
			return nil, fmt.Errorf("%w: item %d truncated", ErrInvalidMessage, i)
		}
		it := Item{ID: binary.BigEndian.Uint16(body[0:2])}
		if withFlags {
			it.Flags = body[2]
		}
		n := int(body[fixed-1])
		body = body[fixed:]
		if len(body) < n {
			return nil, fmt.Errorf("%w: item %d declares %d data bytes, %d available", ErrInvalidMessage, it.ID, n, len(body))
		}
		it.Data = append([]byte(nil), body[:n]...)
		body = body[n:]
		items = append(items, it)
	}
	return items, nil
}

func decodeDescriptions(body []byte, count int) ([]Description, error) {
	const size = 5
	if len(body) < count*size {
		return nil, fmt.Errorf("%w: %d descriptions need %d bytes, %d available", ErrInvalidMessage, count, count*size, len(body))
	}
	out := make([]Description, count)
	for i := range out {
		b := body[i*size:]
		out[i] = Description{
			ID:          binary.BigEndian.Uint16(b[0:2]),
			ValueType:   b[2],
			ConfigFlags: b[3],
			DPT:         b[4],
		}
	}
	return out, nil
}

// String returns a compact description for logs.
func (m Message) String() string {
	if m.IsError() {
		return fmt.Sprintf("%s{start:%d error:%s}", m.Subservice, m.StartItem, m.Error)
	}
	return fmt.Sprintf("%s{start:%d count:%d}", m.Subservice, m.StartItem, m.ItemCount)
}
