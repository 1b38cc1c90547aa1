package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-knxlink/internal/knxnet"
)

// Mode selects how long Send blocks.
type Mode int

// Send modes.
const (
	// NonBlocking returns once the frame is written.
	NonBlocking Mode = iota

	// WaitForAck blocks until the gateway acknowledges the request (UDP),
	// for at most AckTimeout. On TCP it behaves like NonBlocking.
	WaitForAck

	// WaitForCon additionally waits for the protocol's confirmation.
	// Protocols without confirmations reject it with ErrUnsupported.
	WaitForCon
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case NonBlocking:
		return "non-blocking"
	case WaitForAck:
		return "wait-for-ack"
	case WaitForCon:
		return "wait-for-con"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

type pendingAck struct {
	seq    uint8
	result chan knxnet.Status
}

type pendingCon struct {
	req    Service
	result chan error
}

// Send transmits svc as a service request.
//
// Usage errors (ErrUnsupported) are returned before anything is written.
// A transport failure closes the channel and returns ErrConnectionClosed.
// A missing acknowledgment returns ErrAckTimeout and leaves the channel
// open; retrying is up to the caller.
//
// Parameters:
//   - ctx: Context for cancellation while waiting
//   - svc: Service to send (cEMI frame or object server message)
//   - mode: How long to block
//
// Returns:
//   - error: nil once the mode's condition is met
func (c *Channel) Send(ctx context.Context, svc Service, mode Mode) error {
	if mode == WaitForCon && !c.proto.SupportsConfirmation {
		return fmt.Errorf("%w: %s does not support confirmations", ErrUnsupported, c.proto.Name)
	}
	payload, err := c.proto.Codec.Encode(svc)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return err
		}
		return fmt.Errorf("%w: encode %s: %w", ErrUnsupported, svc, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if c.State() != StateOpen {
		return ErrConnectionClosed
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.State() != StateOpen {
		return ErrConnectionClosed
	}

	connectionless := c.transport.Connectionless()
	var seq uint8
	if connectionless {
		seq = c.seq.NextSend()
	}
	frame := knxnet.EncodeServiceRequest(c.proto.Version, c.proto.RequestService, c.channelID, seq, payload)

	var ack *pendingAck
	if connectionless && mode != NonBlocking {
		ack = &pendingAck{seq: seq, result: make(chan knxnet.Status, 1)}
	}
	var con *pendingCon
	if mode == WaitForCon {
		con = &pendingCon{req: svc, result: make(chan error, 1)}
	}
	c.setPending(ack, con)
	defer c.setPending(nil, nil)

	if err := c.transport.Send(frame, DataEndpoint); err != nil {
		c.closeInternal("send failed", err)
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	c.stats.framesTx.Add(1)
	c.stats.touch()
	c.logDebug("request sent", "service", svc.String(), "seq", seq, "mode", mode.String())

	if ack != nil {
		if err := c.awaitAck(ctx, ack); err != nil {
			return err
		}
	}
	if con != nil {
		return c.awaitCon(ctx, con)
	}
	return nil
}

func (c *Channel) awaitAck(ctx context.Context, p *pendingAck) error {
	timer := time.NewTimer(c.timing.ack)
	defer timer.Stop()

	select {
	case st := <-p.result:
		if !st.OK() {
			return fmt.Errorf("%w: negative acknowledgment for seq %d: %s", ErrConnectionClosed, p.seq, st)
		}
		return nil
	case <-timer.C:
		c.stats.ackTimeouts.Add(1)
		c.logWarn("acknowledgment timeout", "channel_id", c.channelID, "seq", p.seq)
		return fmt.Errorf("%w: seq %d after %s", ErrAckTimeout, p.seq, c.timing.ack)
	case <-c.done.Done():
		return ErrConnectionClosed
	case <-ctx.Done():
		return fmt.Errorf("await acknowledgment: %w", ctx.Err())
	}
}

func (c *Channel) awaitCon(ctx context.Context, p *pendingCon) error {
	timer := time.NewTimer(c.timing.confirmation)
	defer timer.Stop()

	select {
	case err := <-p.result:
		return err
	case <-timer.C:
		return fmt.Errorf("%w: %s after %s", ErrConfirmationTimeout, p.req, c.timing.confirmation)
	case <-c.done.Done():
		return ErrConnectionClosed
	case <-ctx.Done():
		return fmt.Errorf("await confirmation: %w", ctx.Err())
	}
}

func (c *Channel) setPending(ack *pendingAck, con *pendingCon) {
	c.pendingMu.Lock()
	c.pendingAck = ack
	c.pendingCon = con
	c.pendingMu.Unlock()
}

// resolveAck hands an acknowledgment status to the waiting sender, if it
// waits for seq.
func (c *Channel) resolveAck(seq uint8, st knxnet.Status) {
	c.pendingMu.Lock()
	p := c.pendingAck
	if p == nil || p.seq != seq {
		c.pendingMu.Unlock()
		return
	}
	c.pendingAck = nil
	c.pendingMu.Unlock()

	p.result <- st
}

// resolveCon hands a matching confirmation to the waiting sender.
func (c *Channel) resolveCon(svc Service) {
	c.pendingMu.Lock()
	p := c.pendingCon
	c.pendingMu.Unlock()
	if p == nil {
		return
	}

	matched, err := c.proto.Codec.Confirms(p.req, svc)
	if !matched {
		return
	}

	c.pendingMu.Lock()
	if c.pendingCon != p {
		c.pendingMu.Unlock()
		return
	}
	c.pendingCon = nil
	c.pendingMu.Unlock()

	p.result <- err
}
