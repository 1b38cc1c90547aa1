package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by knxlink.
const (
	MeasurementChannel      = "knx_channel"
	MeasurementChannelEvent = "knx_channel_event"
)

// ChannelSample is one statistics snapshot of a KNXnet/IP channel.
// Counters are cumulative for the channel session identified by Session.
type ChannelSample struct {
	LinkID    string
	Protocol  string
	Transport string
	Session   string
	State     string

	ChannelID       uint8
	SendSequence    uint8
	ReceiveSequence uint8

	Counters map[string]uint64

	At time.Time
}

// WriteChannelSample writes a channel statistics point. Non-blocking.
func (c *Client) WriteChannelSample(s ChannelSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(channelPoint(s))
}

// WriteChannelEvent records a lifecycle event ("open", "closed") with an
// optional close reason.
func (c *Client) WriteChannelEvent(linkID, session, event, reason string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(eventPoint(linkID, session, event, reason, at))
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func channelPoint(s ChannelSample) *write.Point {
	fields := make(map[string]any, len(s.Counters)+3)
	for name, v := range s.Counters {
		// Line protocol integers are signed.
		fields[name] = int64(v) //nolint:gosec // G115: counters stay far below 2^63
	}
	fields["channel_id"] = int64(s.ChannelID)
	fields["send_sequence"] = int64(s.SendSequence)
	fields["receive_sequence"] = int64(s.ReceiveSequence)

	at := s.At
	if at.IsZero() {
		at = time.Now()
	}

	return write.NewPoint(MeasurementChannel, map[string]string{
		"link":      s.LinkID,
		"protocol":  s.Protocol,
		"transport": s.Transport,
		"session":   s.Session,
		"state":     s.State,
	}, fields, at)
}

func eventPoint(linkID, session, event, reason string, at time.Time) *write.Point {
	tags := map[string]string{
		"link":  linkID,
		"event": event,
	}
	if reason != "" {
		tags["reason"] = reason
	}
	return write.NewPoint(MeasurementChannelEvent, tags, map[string]any{"session": session}, at)
}
