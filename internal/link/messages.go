package link

import (
	"encoding/hex"
	"time"

	"github.com/nerrad567/gray-logic-knxlink/internal/baos"
	"github.com/nerrad567/gray-logic-knxlink/internal/cemi"
)

// MQTT payloads published and consumed by a link. All timestamps are UTC.

// CommandKind names the operation a CommandMessage requests.
type CommandKind string

// Command kinds. Group kinds need a tunneling link, the others an object
// server link.
const (
	KindGroupWrite    CommandKind = "group_write"
	KindGroupRead     CommandKind = "group_read"
	KindSetDatapoint  CommandKind = "set_datapoint"
	KindGetDatapoint  CommandKind = "get_datapoint"
	KindGetServerItem CommandKind = "get_server_item"
)

// CommandMessage asks the link to send one service.
// Topic: knxlink/{link}/command
type CommandMessage struct {
	// ID correlates the response. Generated when empty.
	ID string `json:"id"`

	Kind CommandKind `json:"kind"`

	// Target is a group address ("1/2/3") for group kinds, or a datapoint
	// or server item id ("12") for object server kinds.
	Target string `json:"target"`

	// Data is the hex-encoded value for writes ("01", "0c1a").
	Data string `json:"data,omitempty"`

	// DPT and Value are the alternative to Data: Value as text, encoded
	// for the datapoint type ("9.001", "21.5").
	DPT   string `json:"dpt,omitempty"`
	Value string `json:"value,omitempty"`

	// Count is the number of items to read. Default: 1.
	Count uint16 `json:"count,omitempty"`

	// Mode is "non-blocking", "wait-for-ack" or "wait-for-con".
	// Default: "wait-for-ack".
	Mode string `json:"mode,omitempty"`
}

// ResponseStatus is the outcome of a command.
type ResponseStatus string

// Response statuses.
const (
	// StatusSent: the frame was written (non-blocking mode).
	StatusSent ResponseStatus = "sent"

	// StatusAcknowledged: the gateway acknowledged the request.
	StatusAcknowledged ResponseStatus = "acknowledged"

	// StatusConfirmed: the gateway confirmed the request on the bus.
	StatusConfirmed ResponseStatus = "confirmed"

	// StatusFailed: the command was not carried out.
	StatusFailed ResponseStatus = "failed"
)

// Error codes carried in failed responses.
const (
	ErrCodeInvalidCommand       = "INVALID_COMMAND"
	ErrCodeUnsupported          = "UNSUPPORTED"
	ErrCodeNotConnected         = "NOT_CONNECTED"
	ErrCodeAckTimeout           = "ACK_TIMEOUT"
	ErrCodeConfirmationTimeout  = "CONFIRMATION_TIMEOUT"
	ErrCodeNegativeConfirmation = "NEGATIVE_CONFIRMATION"
	ErrCodeSendFailed           = "SEND_FAILED"
)

// ResponseMessage reports the outcome of a CommandMessage.
// Topic: knxlink/{link}/response/{id}
type ResponseMessage struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      CommandKind    `json:"kind"`
	Target    string         `json:"target"`
	Status    ResponseStatus `json:"status"`
	Error     *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes why a command failed.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GroupMessage is a cEMI L_Data frame received on a tunneling link.
// Topic: knxlink/{link}/group/{main}/{middle}/{sub}
type GroupMessage struct {
	Link        string    `json:"link"`
	Timestamp   time.Time `json:"timestamp"`
	Code        string    `json:"code"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Service     string    `json:"service"`
	Data        string    `json:"data,omitempty"`
	Sequence    uint8     `json:"sequence"`

	// Value is Data decoded with the configured datapoint type, if any.
	Value any `json:"value,omitempty"`
}

// DatapointMessage is one datapoint value from an object server link.
// Topic: knxlink/{link}/datapoint/{id}
type DatapointMessage struct {
	Link       string    `json:"link"`
	Timestamp  time.Time `json:"timestamp"`
	Subservice string    `json:"subservice"`
	ID         uint16    `json:"id"`
	State      byte      `json:"state"`
	Data       string    `json:"data"`
	Value      any       `json:"value,omitempty"`
}

// ServiceMessage carries any other decoded service (server items, error
// responses, parameter bytes, confirmations).
// Topic: knxlink/{link}/service
type ServiceMessage struct {
	Link      string    `json:"link"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Error     string    `json:"error,omitempty"`
}

// Channel events.
const (
	EventOpen   = "open"
	EventClosed = "closed"
)

// ChannelMessage reports a channel lifecycle event.
// Topic: knxlink/{link}/channel (retained)
type ChannelMessage struct {
	Link      string    `json:"link"`
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Session   string    `json:"session"`
	Protocol  string    `json:"protocol"`
	Transport string    `json:"transport"`
	Gateway   string    `json:"gateway"`
	ChannelID uint8     `json:"channel_id"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// HealthStatus represents the operational status of a link.
type HealthStatus string

const (
	// HealthHealthy: channel open and MQTT connected.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded: running with the channel or MQTT down.
	HealthDegraded HealthStatus = "degraded"

	// HealthStopping: final message before shutdown.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published at the health interval.
// Topic: knxlink/{link}/health (retained)
type HealthMessage struct {
	Link          string         `json:"link"`
	Timestamp     time.Time      `json:"timestamp"`
	Status        HealthStatus   `json:"status"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Reconnects    uint64         `json:"reconnects"`
	Channel       *ChannelStatus `json:"channel,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}

// ChannelStatus describes the open channel. It is also served by the
// HTTP API.
type ChannelStatus struct {
	Session         string            `json:"session"`
	State           string            `json:"state"`
	Protocol        string            `json:"protocol"`
	Transport       string            `json:"transport"`
	Gateway         string            `json:"gateway"`
	ChannelID       uint8             `json:"channel_id"`
	SendSequence    uint8             `json:"send_sequence"`
	ReceiveSequence uint8             `json:"receive_sequence"`
	OpenedAt        time.Time         `json:"opened_at"`
	LastActivity    *time.Time        `json:"last_activity,omitempty"`
	Counters        map[string]uint64 `json:"counters"`
}

// NewGroupMessage converts a received L_Data frame.
func NewGroupMessage(linkID string, f cemi.LData, seq uint8, at time.Time) GroupMessage {
	msg := GroupMessage{
		Link:        linkID,
		Timestamp:   at.UTC(),
		Code:        f.Code.String(),
		Source:      f.Source.String(),
		Destination: f.Group().String(),
		Service:     groupServiceName(f.APCI),
		Sequence:    seq,
	}
	if len(f.Data) > 0 {
		msg.Data = hex.EncodeToString(f.Data)
	}
	return msg
}

// NewDatapointMessages converts every item of a datapoint value response or
// indication.
func NewDatapointMessages(linkID string, m baos.Message, at time.Time) []DatapointMessage {
	msgs := make([]DatapointMessage, 0, len(m.Items))
	for _, it := range m.Items {
		msgs = append(msgs, DatapointMessage{
			Link:       linkID,
			Timestamp:  at.UTC(),
			Subservice: m.Subservice.String(),
			ID:         it.ID,
			State:      it.Flags,
			Data:       hex.EncodeToString(it.Data),
		})
	}
	return msgs
}

func groupServiceName(apci byte) string {
	switch apci {
	case cemi.APCIGroupRead:
		return "read"
	case cemi.APCIGroupResponse:
		return "response"
	case cemi.APCIGroupWrite:
		return "write"
	default:
		return "unknown"
	}
}
