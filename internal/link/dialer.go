package link

import (
	"context"

	"github.com/nerrad567/gray-logic-knxlink/internal/channel"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/config"
)

// Dialer opens one channel. The service calls it again after every close.
type Dialer func(ctx context.Context) (*channel.Channel, error)

// ProtocolFor returns the channel protocol named in the configuration.
func ProtocolFor(name string) channel.Protocol {
	if name == config.ProtocolObjectServer {
		return channel.ObjectServer()
	}
	return channel.Tunneling()
}

// NewDialer returns a Dialer for the configured transport and protocol.
//
// Parameters:
//   - cfg: Validated link configuration
//   - logger: Attached to every channel before it starts (optional)
func NewDialer(cfg config.LinkConfig, logger channel.Logger) Dialer {
	proto := ProtocolFor(cfg.Protocol)

	if cfg.Transport == config.TransportTCP {
		tcp := channel.TCPConfig{
			Address:        cfg.Gateway,
			ConnectTimeout: cfg.GetConnectTimeout(),
			Logger:         logger,
		}
		return func(ctx context.Context) (*channel.Channel, error) {
			return channel.DialTCP(ctx, tcp, proto)
		}
	}

	udp := channel.UDPConfig{
		Gateway:        cfg.Gateway,
		LocalAddr:      cfg.LocalAddr,
		NAT:            cfg.NAT,
		ConnectTimeout: cfg.GetConnectTimeout(),
		Logger:         logger,
	}
	return func(ctx context.Context) (*channel.Channel, error) {
		return channel.DialUDP(ctx, udp, proto)
	}
}
