package channel

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-knxlink/internal/knxnet"
)

// CloseReason explains why a channel was closed.
type CloseReason string

// Close reasons.
const (
	ReasonUserRequested  CloseReason = "user-requested"
	ReasonInternalError  CloseReason = "internal-error"
	ReasonRemoteEndpoint CloseReason = "remote-endpoint"
)

// FrameEvent carries an accepted inbound request frame before payload
// interpretation.
type FrameEvent struct {
	Header     knxnet.Header
	ConnHeader knxnet.ConnHeader

	// Frame is the complete raw frame.
	Frame []byte
}

// ServiceEvent carries a decoded service that passed validation.
type ServiceEvent struct {
	Service  Service
	Sequence uint8
	Received time.Time
}

// CloseEvent is delivered once when the channel closes.
type CloseEvent struct {
	Reason  CloseReason
	Message string

	// Cause is the error that triggered an internal-error close, if any.
	Cause error
	At    time.Time
}

// Listener receives channel events. Only the non-nil callbacks are
// registered, so a listener that wants frames alone sets just Frame.
//
// Callbacks run synchronously on the channel's reader goroutine (Frame,
// Service) or on the goroutine that closes the channel (Closed). They must
// return quickly and must not call Channel.Close; use a separate goroutine
// for that.
type Listener struct {
	Frame   func(FrameEvent)
	Service func(ServiceEvent)
	Closed  func(CloseEvent)
}

type listenerEntry struct {
	id uint64
	Listener
}

// dispatcher keeps listeners in registration order.
type dispatcher struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []listenerEntry
	onPanic func(error)
}

func (d *dispatcher) add(l Listener) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.entries = append(d.entries, listenerEntry{id: d.nextID, Listener: l})
	return d.nextID
}

func (d *dispatcher) remove(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.entries {
		if e.id == id {
			d.entries = append(d.entries[:i:i], d.entries[i+1:]...)
			return
		}
	}
}

func (d *dispatcher) snapshot() []listenerEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.entries
}

func (d *dispatcher) frame(ev FrameEvent) {
	for _, e := range d.snapshot() {
		if e.Frame != nil {
			d.invoke(func() { e.Frame(ev) })
		}
	}
}

func (d *dispatcher) service(ev ServiceEvent) {
	for _, e := range d.snapshot() {
		if e.Service != nil {
			d.invoke(func() { e.Service(ev) })
		}
	}
}

func (d *dispatcher) closed(ev CloseEvent) {
	for _, e := range d.snapshot() {
		if e.Closed != nil {
			d.invoke(func() { e.Closed(ev) })
		}
	}
}

func (d *dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil && d.onPanic != nil {
			d.onPanic(fmt.Errorf("listener panic: %v", r))
		}
	}()
	fn()
}
