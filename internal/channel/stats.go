package channel

import (
	"sync/atomic"
	"time"
)

// Stats is a snapshot of channel counters.
type Stats struct {
	Protocol  string
	ChannelID uint8
	State     State

	SendSequence    uint8
	ReceiveSequence uint8

	FramesTx          uint64
	FramesRx          uint64
	AcksTx            uint64
	AcksRx            uint64
	Duplicates        uint64
	OutOfOrder        uint64
	ChannelMismatches uint64
	FormatErrors      uint64
	AckTimeouts       uint64
	Undeliverable     uint64 // decoded services dropped by the protocol policy
	HeartbeatsSent    uint64

	LastActivity time.Time
}

// counters are updated atomically by the send and receive paths.
type counters struct {
	framesTx          atomic.Uint64
	framesRx          atomic.Uint64
	acksTx            atomic.Uint64
	acksRx            atomic.Uint64
	duplicates        atomic.Uint64
	outOfOrder        atomic.Uint64
	channelMismatches atomic.Uint64
	formatErrors      atomic.Uint64
	ackTimeouts       atomic.Uint64
	undeliverable     atomic.Uint64
	heartbeatsSent    atomic.Uint64
	lastActivity      atomic.Int64 // unix nanoseconds
}

func (c *counters) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// Counters returns the cumulative counters keyed by snake_case name, the
// form exported to metrics, InfluxDB and the session journal.
func (s Stats) Counters() map[string]uint64 {
	return map[string]uint64{
		"frames_tx":          s.FramesTx,
		"frames_rx":          s.FramesRx,
		"acks_tx":            s.AcksTx,
		"acks_rx":            s.AcksRx,
		"duplicates":         s.Duplicates,
		"out_of_order":       s.OutOfOrder,
		"channel_mismatches": s.ChannelMismatches,
		"format_errors":      s.FormatErrors,
		"ack_timeouts":       s.AckTimeouts,
		"undeliverable":      s.Undeliverable,
		"heartbeats_sent":    s.HeartbeatsSent,
	}
}

// Stats returns current channel statistics. LastActivity is zero until the
// first frame is sent or received.
func (c *Channel) Stats() Stats {
	var last time.Time
	if ns := c.stats.lastActivity.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return Stats{
		Protocol:          c.proto.Name,
		ChannelID:         c.channelID,
		State:             c.State(),
		SendSequence:      c.seq.NextSend(),
		ReceiveSequence:   c.seq.Receive(),
		FramesTx:          c.stats.framesTx.Load(),
		FramesRx:          c.stats.framesRx.Load(),
		AcksTx:            c.stats.acksTx.Load(),
		AcksRx:            c.stats.acksRx.Load(),
		Duplicates:        c.stats.duplicates.Load(),
		OutOfOrder:        c.stats.outOfOrder.Load(),
		ChannelMismatches: c.stats.channelMismatches.Load(),
		FormatErrors:      c.stats.formatErrors.Load(),
		AckTimeouts:       c.stats.ackTimeouts.Load(),
		Undeliverable:     c.stats.undeliverable.Load(),
		HeartbeatsSent:    c.stats.heartbeatsSent.Load(),
		LastActivity:      last,
	}
}
