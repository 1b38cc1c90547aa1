package channel

import (
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-knxlink/internal/knxnet"
)

// readLoop feeds inbound frames to handleFrame until the transport fails
// or the channel closes.
func (c *Channel) readLoop() {
	defer c.wg.Done()

	for {
		frame, err := c.transport.ReadFrame()
		if err != nil {
			select {
			case <-c.done.Done():
				return
			default:
			}
			if errors.Is(err, knxnet.ErrInvalidFrame) {
				c.stats.formatErrors.Add(1)
				c.closeInternal("stream out of sync", err)
				return
			}
			c.closeInternal("transport read failed", err)
			return
		}
		c.handleFrame(frame)
	}
}

// handleFrame routes one inbound frame by service type.
func (c *Channel) handleFrame(frame []byte) {
	h, body, err := knxnet.ParseFrame(frame)
	if err != nil {
		c.stats.formatErrors.Add(1)
		c.logWarn("dropping malformed frame", "error", err, "frame", frame)
		return
	}
	c.stats.touch()

	switch h.Service {
	case c.proto.RequestService:
		c.handleRequest(h, body, frame)
	case c.proto.AckService:
		c.handleAck(h, body)
	case knxnet.ServiceDisconnectRequest:
		c.handleDisconnectRequest(body)
	case knxnet.ServiceDisconnectResponse:
		c.handleDisconnectResponse(body)
	default:
		c.logDebug("dropping unexpected service", "service", h.Service.String())
	}
}

// handleRequest runs the receive half of the exchange: decode, channel
// check, sequence validation, acknowledgment and delivery.
func (c *Channel) handleRequest(h knxnet.Header, body, frame []byte) {
	ch, payload, err := knxnet.ParseConnHeader(body)
	if err != nil {
		c.stats.formatErrors.Add(1)
		c.logWarn("dropping malformed request", "error", err)
		return
	}
	svc, err := c.proto.Codec.Decode(payload)
	if err != nil {
		c.stats.formatErrors.Add(1)
		c.logWarn("dropping undecodable request", "error", err, "seq", ch.Sequence)
		return
	}
	if ch.ChannelID != c.channelID {
		c.stats.channelMismatches.Add(1)
		c.logWarn("ignoring request for other channel", "channel_id", ch.ChannelID, "expected", c.channelID)
		return
	}
	if c.State() != StateOpen {
		c.logDebug("ignoring request on closing channel", "seq", ch.Sequence)
		return
	}

	versionOK := h.Version == c.proto.Version
	status := knxnet.StatusNoError
	if !versionOK {
		status = knxnet.StatusVersionNotSupported
	}
	if c.transport.Connectionless() {
		switch c.seq.Classify(ch.Sequence) {
		case SeqDuplicate:
			c.stats.duplicates.Add(1)
			c.logDebug("repeating acknowledgment for duplicate", "seq", ch.Sequence, "status", status.String())
			c.sendAck(ch.Sequence, status)
			return
		case SeqOutOfOrder:
			c.stats.outOfOrder.Add(1)
			c.logWarn("ignoring out of order request", "seq", ch.Sequence, "expected", c.seq.Receive())
			return
		case SeqExpected:
		}

		c.sendAck(ch.Sequence, status)
		c.seq.AdvanceReceive()
	}

	if !versionOK {
		c.closeInternal("protocol version mismatch", ErrVersionMismatch)
		return
	}

	c.stats.framesRx.Add(1)
	c.listeners.frame(FrameEvent{Header: h, ConnHeader: ch, Frame: frame})

	c.resolveCon(svc)
	if !c.proto.Codec.Deliverable(svc) {
		c.stats.undeliverable.Add(1)
		c.logDebug("dropping unexpected service", "service", svc.String())
		return
	}
	c.listeners.service(ServiceEvent{Service: svc, Sequence: ch.Sequence, Received: time.Now()})
}

func (c *Channel) sendAck(seq uint8, status knxnet.Status) {
	ack := knxnet.EncodeServiceAck(c.proto.Version, c.proto.AckService, c.channelID, seq, status)
	if err := c.transport.Send(ack, DataEndpoint); err != nil {
		c.closeInternal("acknowledgment send failed", err)
		return
	}
	c.stats.acksTx.Add(1)
}

// handleAck advances the send sequence and releases a waiting sender.
// Stream transports are not sequenced, so their acks are ignored.
func (c *Channel) handleAck(h knxnet.Header, body []byte) {
	if !c.transport.Connectionless() {
		c.logDebug("ignoring acknowledgment on stream transport")
		return
	}
	if h.Version != c.proto.Version {
		c.stats.formatErrors.Add(1)
		c.logWarn("ignoring acknowledgment with wrong protocol version", "version", h.Version, "expected", c.proto.Version)
		return
	}
	ch, _, err := knxnet.ParseConnHeader(body)
	if err != nil {
		c.stats.formatErrors.Add(1)
		c.logWarn("dropping malformed acknowledgment", "error", err)
		return
	}
	if ch.ChannelID != c.channelID {
		c.stats.channelMismatches.Add(1)
		c.logWarn("ignoring acknowledgment for other channel", "channel_id", ch.ChannelID, "expected", c.channelID)
		return
	}
	c.stats.acksRx.Add(1)

	if ch.Status.OK() && !c.seq.AckSend(ch.Sequence) {
		c.logDebug("ignoring stale acknowledgment", "seq", ch.Sequence, "expected", c.seq.NextSend())
	}
	c.resolveAck(ch.Sequence, ch.Status)

	if !ch.Status.OK() {
		c.closeInternal("negative acknowledgment", errors.New(ch.Status.String()))
	}
}

func (c *Channel) handleDisconnectRequest(body []byte) {
	req, err := knxnet.ParseDisconnectRequest(body)
	if err != nil {
		c.stats.formatErrors.Add(1)
		c.logWarn("dropping malformed disconnect request", "error", err)
		return
	}
	if req.ChannelID != c.channelID {
		c.stats.channelMismatches.Add(1)
		return
	}

	resp := knxnet.DisconnectResponse{ChannelID: c.channelID}
	if err := c.transport.Send(resp.Encode(), ControlEndpoint); err != nil {
		c.logDebug("disconnect response failed", "error", err)
	}
	c.closeWith(ReasonRemoteEndpoint, "disconnected by gateway", nil, false)
}

func (c *Channel) handleDisconnectResponse(body []byte) {
	resp, err := knxnet.ParseDisconnectResponse(body)
	if err != nil {
		c.stats.formatErrors.Add(1)
		return
	}
	if resp.ChannelID == c.channelID {
		c.disconnected.Close()
	}
}
