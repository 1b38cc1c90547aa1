package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/nerrad567/gray-logic-knxlink/internal/knxnet"
)

// UDPConfig holds the settings for a UDP channel.
type UDPConfig struct {
	// Gateway is the gateway control endpoint, e.g. "192.168.1.10:3671".
	Gateway string

	// LocalAddr is the local UDP address to bind. Empty binds any
	// address on an ephemeral port.
	LocalAddr string

	// NAT sends route-back HPAIs (0.0.0.0:0) so the gateway replies to
	// the source address of our datagrams.
	NAT bool

	// ConnectTimeout bounds the handshake. Default: 10 seconds.
	ConnectTimeout time.Duration

	// Logger is attached before the channel starts. Optional.
	Logger Logger
}

// TCPConfig holds the settings for a TCP channel.
type TCPConfig struct {
	// Address is the gateway address, e.g. "192.168.1.10:3671".
	Address string

	// ConnectTimeout bounds the dial. Default: 10 seconds.
	ConnectTimeout time.Duration

	// Logger is attached before the channel starts. Optional.
	Logger Logger
}

// DialUDP opens a channel to a gateway over UDP.
//
// A CONNECT_REQUEST carrying the protocol's CRI is sent to the gateway
// and the CONNECT_RESPONSE must report success within the connect
// timeout. The response assigns the channel id and the data endpoint.
// On any failure the socket is closed and no channel is left behind.
//
// Parameters:
//   - ctx: Context for cancellation (used for the handshake)
//   - cfg: Endpoint configuration
//   - proto: Tunneling() or ObjectServer()
//
// Returns:
//   - *Channel: Open channel
//   - error: ErrConnectionFailed wrapping the cause
func DialUDP(ctx context.Context, cfg UDPConfig, proto Protocol) (*Channel, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	remote, err := net.ResolveUDPAddr("udp4", cfg.Gateway)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve gateway: %w", ErrConnectionFailed, err)
	}
	var local *net.UDPAddr
	if cfg.LocalAddr != "" {
		if local, err = net.ResolveUDPAddr("udp4", cfg.LocalAddr); err != nil {
			return nil, fmt.Errorf("%w: resolve local address: %w", ErrConnectionFailed, err)
		}
	}

	conn, err := net.ListenUDP("udp4", local)
	if err != nil {
		return nil, fmt.Errorf("%w: listen: %w", ErrConnectionFailed, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	hpai, err := localHPAI(conn, remote, cfg.NAT)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	resp, from, err := connectHandshake(connectCtx, conn, remote, hpai, proto)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", ErrConnectionFailed, err)
	}

	data := from
	if !cfg.NAT && !resp.Data.IsRouteBack() {
		data = resp.Data.UDPAddr()
	}

	t := &udpTransport{conn: conn, control: remote, responder: from}
	t.setData(data)

	c := newChannel(t, proto, resp.ChannelID, defaultTiming)
	c.control = hpai
	if cfg.Logger != nil {
		c.SetLogger(cfg.Logger)
	}
	c.start()
	return c, nil
}

// localHPAI returns the endpoint announced to the gateway.
func localHPAI(conn *net.UDPConn, remote *net.UDPAddr, nat bool) (knxnet.HPAI, error) {
	if nat {
		return knxnet.NATHPAI(knxnet.IPv4UDP), nil
	}

	la, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return knxnet.HPAI{}, fmt.Errorf("unexpected local address %v", conn.LocalAddr())
	}
	if la.IP == nil || la.IP.IsUnspecified() {
		// Let the routing table pick the interface that reaches the gateway.
		probe, err := net.DialUDP("udp4", nil, remote)
		if err != nil {
			return knxnet.HPAI{}, fmt.Errorf("determine local address: %w", err)
		}
		ip := probe.LocalAddr().(*net.UDPAddr).IP //nolint:errcheck,forcetypeassert // DialUDP always yields *UDPAddr
		probe.Close()
		la = &net.UDPAddr{IP: ip, Port: la.Port}
	}
	return knxnet.HPAIFromUDPAddr(la)
}

// connectHandshake sends CONNECT_REQUEST and waits for a successful
// CONNECT_RESPONSE. Unrelated datagrams are skipped.
func connectHandshake(ctx context.Context, conn *net.UDPConn, remote *net.UDPAddr,
	hpai knxnet.HPAI, proto Protocol) (knxnet.ConnectResponse, *net.UDPAddr, error) {
	req := knxnet.ConnectRequest{Control: hpai, Data: hpai, CRI: proto.CRI}
	if _, err := conn.WriteToUDP(req.Encode(), remote); err != nil {
		return knxnet.ConnectResponse{}, nil, fmt.Errorf("write connect request: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return knxnet.ConnectResponse{}, nil, fmt.Errorf("set read deadline: %w", err)
		}
	}
	// Unblock the read when the context is cancelled before its deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()
	defer conn.SetReadDeadline(time.Time{}) //nolint:errcheck // best-effort reset

	buf := make([]byte, maxFrameSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return knxnet.ConnectResponse{}, nil, fmt.Errorf("no connect response: %w", ctxErr)
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// The read deadline is the context deadline.
				return knxnet.ConnectResponse{}, nil, fmt.Errorf("no connect response: %w", context.DeadlineExceeded)
			}
			return knxnet.ConnectResponse{}, nil, fmt.Errorf("read connect response: %w", err)
		}

		h, body, err := knxnet.ParseFrame(buf[:n])
		if err != nil || h.Service != knxnet.ServiceConnectResponse {
			continue
		}
		resp, err := knxnet.ParseConnectResponse(body)
		if err != nil {
			return knxnet.ConnectResponse{}, nil, err
		}
		if !resp.Status.OK() {
			return knxnet.ConnectResponse{}, nil, fmt.Errorf("gateway refused connection: %s", resp.Status)
		}
		return resp, from, nil
	}
}

// DialTCP opens a channel to a gateway over TCP.
//
// The stream needs no handshake; the channel id is 0 and, for protocols
// with a keep-alive probe, the heartbeat starts immediately.
func DialTCP(ctx context.Context, cfg TCPConfig, proto Protocol) (*Channel, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial failed: %w", ErrConnectionFailed, err)
	}

	c := newChannel(&tcpTransport{conn: conn}, proto, 0, defaultTiming)
	if cfg.Logger != nil {
		c.SetLogger(cfg.Logger)
	}
	c.start()
	return c, nil
}
