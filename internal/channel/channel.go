package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-knxlink/internal/knxnet"
)

// Protocol timing. These values are fixed by the KNXnet/IP exchange and
// are not configurable.
const (
	// AckTimeout bounds the wait for a service acknowledgment.
	AckTimeout = time.Second

	// ConfirmationTimeout bounds the wait for a tunneling L_Data.con.
	ConfirmationTimeout = 3 * time.Second

	// HeartbeatDelay is the delay before the first keep-alive probe.
	HeartbeatDelay = 2 * time.Second

	// HeartbeatPeriod is the interval between keep-alive probes.
	HeartbeatPeriod = 60 * time.Second

	// DisconnectTimeout bounds the wait for a DISCONNECT_RESPONSE.
	DisconnectTimeout = time.Second

	// DefaultConnectTimeout bounds the UDP connect handshake.
	DefaultConnectTimeout = 10 * time.Second
)

type timing struct {
	ack             time.Duration
	confirmation    time.Duration
	heartbeatDelay  time.Duration
	heartbeatPeriod time.Duration
	disconnect      time.Duration
}

var defaultTiming = timing{
	ack:             AckTimeout,
	confirmation:    ConfirmationTimeout,
	heartbeatDelay:  HeartbeatDelay,
	heartbeatPeriod: HeartbeatPeriod,
	disconnect:      DisconnectTimeout,
}

// State is the lifecycle state of a channel.
type State int32

// Lifecycle states.
const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Channel is one acknowledged KNXnet/IP channel.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Only one acknowledged send
// (WaitForAck or WaitForCon) is in flight at a time; concurrent callers
// queue behind it.
type Channel struct {
	proto     Protocol
	transport Transport
	channelID uint8
	control   knxnet.HPAI
	timing    timing

	seq   Sequencer
	state atomic.Int32

	// sendMu serialises transmission and the single pending-ack slot.
	sendMu     sync.Mutex
	pendingMu  sync.Mutex
	pendingAck *pendingAck
	pendingCon *pendingCon

	listeners dispatcher
	hb        *heartbeat

	done         *closeOnce
	disconnected *closeOnce
	wg           sync.WaitGroup

	closeMu    sync.Mutex
	closeEvent *CloseEvent

	logger   Logger
	loggerMu sync.RWMutex

	stats counters
}

// Open starts a channel over an established transport.
//
// For connectionless transports channelID is the id assigned by the
// gateway's CONNECT_RESPONSE. Stream transports use channel id 0. The
// channel takes ownership of the transport and starts its reader
// goroutine and, where the protocol defines a probe, the heartbeat.
func Open(t Transport, proto Protocol, channelID uint8) *Channel {
	c := newChannel(t, proto, channelID, defaultTiming)
	c.start()
	return c
}

func newChannel(t Transport, proto Protocol, channelID uint8, tm timing) *Channel {
	c := &Channel{
		proto:        proto,
		transport:    t,
		channelID:    channelID,
		control:      knxnet.NATHPAI(knxnet.IPv4UDP),
		timing:       tm,
		done:         newCloseOnce(),
		disconnected: newCloseOnce(),
	}
	if !t.Connectionless() {
		c.channelID = 0
	}
	c.state.Store(int32(StateConnecting))
	c.listeners.onPanic = func(err error) { c.logError("listener failed", err) }
	return c
}

// start moves the channel to Open and launches its goroutines.
func (c *Channel) start() {
	c.stats.touch()
	c.state.Store(int32(StateOpen))

	if !c.transport.Connectionless() {
		if probe := c.proto.Codec.Probe(); probe != nil {
			c.hb = startHeartbeat(c.timing.heartbeatDelay, c.timing.heartbeatPeriod, func() {
				c.sendProbe(probe)
			})
		}
	}

	c.wg.Add(1)
	go c.readLoop()

	c.logInfo("channel open", "protocol", c.proto.Name, "channel_id", c.channelID,
		"connectionless", c.transport.Connectionless())
}

// sendProbe sends one keep-alive request. A closed channel is not an error
// here; the heartbeat is being cancelled.
func (c *Channel) sendProbe(probe Service) {
	err := c.Send(context.Background(), probe, NonBlocking)
	switch {
	case err == nil:
		c.stats.heartbeatsSent.Add(1)
	case errors.Is(err, ErrConnectionClosed):
	default:
		c.logWarn("heartbeat probe failed", "error", err)
	}
}

// AddListener registers l and returns a function that removes it.
func (c *Channel) AddListener(l Listener) (remove func()) {
	id := c.listeners.add(l)
	return func() { c.listeners.remove(id) }
}

// ChannelID returns the id assigned at connect time (0 on TCP).
func (c *Channel) ChannelID() uint8 { return c.channelID }

// Protocol returns the protocol the channel speaks.
func (c *Channel) Protocol() Protocol { return c.proto }

// State returns the lifecycle state.
func (c *Channel) State() State { return State(c.state.Load()) }

// SendSequence returns the sequence number of the next outbound request.
func (c *Channel) SendSequence() uint8 { return c.seq.NextSend() }

// ReceiveSequence returns the sequence number expected next from the peer.
func (c *Channel) ReceiveSequence() uint8 { return c.seq.Receive() }

// Done is closed when the channel starts closing.
func (c *Channel) Done() <-chan struct{} { return c.done.Done() }

// CloseEvent returns the close event once the channel is closed.
func (c *Channel) CloseEvent() (CloseEvent, bool) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closeEvent == nil {
		return CloseEvent{}, false
	}
	return *c.closeEvent, true
}

// Close closes the channel at the user's request.
//
// On UDP a DISCONNECT_REQUEST is sent and the DISCONNECT_RESPONSE awaited
// for up to DisconnectTimeout. Closing an already closed channel is a no-op.
//
// Returns:
//   - error: nil (closing is best-effort)
func (c *Channel) Close() error {
	c.closeWith(ReasonUserRequested, "closed by user", nil, true)
	return nil
}

// CloseWith closes the channel with an explicit reason and cause.
func (c *Channel) CloseWith(reason CloseReason, cause error) error {
	msg := string(reason)
	if cause != nil {
		msg = cause.Error()
	}
	c.closeWith(reason, msg, cause, true)
	return nil
}

// closeInternal is used by the reader, heartbeat and send paths. It never
// waits for goroutines, since it may run on one of them.
func (c *Channel) closeInternal(msg string, cause error) {
	c.closeWith(ReasonInternalError, msg, cause, false)
}

func (c *Channel) closeWith(reason CloseReason, msg string, cause error, join bool) {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) &&
		!c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing)) {
		return
	}

	if c.hb != nil {
		c.hb.cancel()
	}

	// Release waiting senders before talking to the gateway.
	c.done.Close()

	if c.transport.Connectionless() && reason != ReasonRemoteEndpoint {
		c.disconnect(reason == ReasonUserRequested && join)
	}

	if err := c.transport.Close(); err != nil {
		c.logDebug("transport close failed", "error", err)
	}
	c.state.Store(int32(StateClosed))

	ev := CloseEvent{Reason: reason, Message: msg, Cause: cause, At: time.Now()}
	c.closeMu.Lock()
	c.closeEvent = &ev
	c.closeMu.Unlock()

	if reason == ReasonInternalError {
		c.logError("channel closed", cause, "reason", reason, "message", msg)
	} else {
		c.logInfo("channel closed", "reason", reason, "message", msg)
	}
	c.listeners.closed(ev)

	if join {
		if c.hb != nil {
			c.hb.wait()
		}
		c.wg.Wait()
	}
}

// disconnect sends a DISCONNECT_REQUEST and optionally waits for the
// response.
func (c *Channel) disconnect(wait bool) {
	req := knxnet.DisconnectRequest{ChannelID: c.channelID, Control: c.control}
	if err := c.transport.Send(req.Encode(), ControlEndpoint); err != nil {
		c.logDebug("disconnect request failed", "error", err)
		return
	}
	if !wait {
		return
	}
	select {
	case <-c.disconnected.Done():
	case <-time.After(c.timing.disconnect):
		c.logWarn("no disconnect response", "channel_id", c.channelID, "timeout", c.timing.disconnect.String())
	}
}

// SetLogger sets the logger for this channel.
func (c *Channel) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Channel) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Channel) logDebug(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (c *Channel) logInfo(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (c *Channel) logWarn(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (c *Channel) logError(msg string, err error, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
