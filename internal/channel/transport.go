package channel

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-knxlink/internal/knxnet"
)

// Endpoint selects the remote endpoint a frame is sent to.
type Endpoint int

// Remote endpoints. Stream transports have a single endpoint and ignore
// the distinction.
const (
	ControlEndpoint Endpoint = iota
	DataEndpoint
)

// maxFrameSize bounds inbound frames; KNXnet/IP frames fit well within it.
const maxFrameSize = 512

// writeTimeout bounds a single stream write.
const writeTimeout = 5 * time.Second

// Transport moves raw KNXnet/IP frames between the channel and a gateway.
//
// ReadFrame is called from a single goroutine. Send may be called
// concurrently with ReadFrame.
type Transport interface {
	// Send writes one complete frame to the given endpoint.
	Send(frame []byte, ep Endpoint) error

	// ReadFrame blocks until one complete frame has been received.
	ReadFrame() ([]byte, error)

	// Connectionless reports whether frames are sequenced and
	// acknowledged by the channel (UDP) or by the transport (TCP).
	Connectionless() bool

	// Close releases the transport and unblocks ReadFrame.
	Close() error
}

// udpTransport sends datagrams to the gateway's control and data endpoints.
// Datagrams from any other source are discarded.
type udpTransport struct {
	conn    *net.UDPConn
	control *net.UDPAddr

	// responder answered the connect request; it may differ from control
	// on multi-homed gateways.
	responder *net.UDPAddr

	mu   sync.RWMutex
	data *net.UDPAddr
}

func (t *udpTransport) Send(frame []byte, ep Endpoint) error {
	addr := t.control
	if ep == DataEndpoint {
		t.mu.RLock()
		addr = t.data
		t.mu.RUnlock()
	}
	if _, err := t.conn.WriteToUDP(frame, addr); err != nil {
		return fmt.Errorf("write to %s: %w", addr, err)
	}
	return nil
}

func (t *udpTransport) ReadFrame() ([]byte, error) {
	buf := make([]byte, maxFrameSize)
	for {
		n, src, err := t.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if t.fromGateway(src) {
			return buf[:n], nil
		}
	}
}

// fromGateway reports whether src is one of the gateway's endpoints.
func (t *udpTransport) fromGateway(src netip.AddrPort) bool {
	src = netip.AddrPortFrom(src.Addr().Unmap(), src.Port())

	t.mu.RLock()
	data := t.data
	t.mu.RUnlock()

	for _, addr := range []*net.UDPAddr{t.control, data, t.responder} {
		if addr == nil {
			continue
		}
		ap := addr.AddrPort()
		if netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()) == src {
			return true
		}
	}
	return false
}

func (t *udpTransport) Connectionless() bool { return true }

func (t *udpTransport) Close() error { return t.conn.Close() }

func (t *udpTransport) setData(addr *net.UDPAddr) {
	t.mu.Lock()
	t.data = addr
	t.mu.Unlock()
}

// tcpTransport frames a byte stream using the header's total length.
type tcpTransport struct {
	conn    net.Conn
	writeMu sync.Mutex
	header  [knxnet.HeaderSize]byte
}

func (t *tcpTransport) Send(frame []byte, _ Endpoint) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := t.conn.Write(frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// ReadFrame reads the fixed header, then the remainder of the frame.
// A malformed header means the stream is out of sync and is returned as
// knxnet.ErrInvalidFrame, which the channel treats as fatal.
func (t *tcpTransport) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(t.conn, t.header[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if t.header[0] != knxnet.HeaderSize {
		return nil, fmt.Errorf("%w: stream desync, header length 0x%02X", knxnet.ErrInvalidFrame, t.header[0])
	}
	total := int(binary.BigEndian.Uint16(t.header[4:6]))
	if total < knxnet.HeaderSize || total > maxFrameSize {
		return nil, fmt.Errorf("%w: stream desync, total length %d", knxnet.ErrInvalidFrame, total)
	}

	frame := make([]byte, total)
	copy(frame, t.header[:])
	if _, err := io.ReadFull(t.conn, frame[knxnet.HeaderSize:]); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return frame, nil
}

func (t *tcpTransport) Connectionless() bool { return false }

func (t *tcpTransport) Close() error { return t.conn.Close() }
