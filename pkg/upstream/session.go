// Package upstream dials and maintains outbound links to relay targets. Each
// transport (QUIC, WebSocket, TCP) is wrapped in a Session that yields plain
// net.Conn values, so callers relay bytes the same way regardless of carrier.
package upstream

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/palisade/palisade/pkg/profile"
)

const defaultDialTimeout = 10 * time.Second

// Session is a dialable upstream link. Open yields one fresh conn per call and
// the caller owns it; Close releases any cached transport state.
type Session interface {
	Open(ctx context.Context) (net.Conn, error)
	Close() error
	RemoteAddr() netip.AddrPort
}

// Options tune how sessions dial and keep their links.
type Options struct {
	TLS         *tls.Config
	DialTimeout time.Duration
	KeepAlive   time.Duration
	IdleTimeout time.Duration
	Socks5Proxy string
	Logger      *slog.Logger
}

func (o Options) dialTimeout() time.Duration {
	if o.DialTimeout <= 0 {
		return defaultDialTimeout
	}
	return o.DialTimeout
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// New builds the session for one profile upstream entry.
func New(target profile.Upstream, opts Options) (Session, error) {
	if target.Socks5Proxy != "" {
		opts.Socks5Proxy = target.Socks5Proxy
	}
	switch target.Transport {
	case profile.TransportQUIC:
		return NewQUICDialer(target.URL, opts), nil
	case profile.TransportWebSocket:
		return NewWSDialer(target.URL, opts)
	case profile.TransportTCP:
		return NewTCPDialer(target.URL, opts), nil
	default:
		return nil, fmt.Errorf("upstream %q: unknown transport %q", target.URL, target.Transport)
	}
}

// resolveAddrPort parses a literal ip:port. Hostnames yield the zero value;
// RemoteAddr is best effort and resolution belongs to the dial path.
func resolveAddrPort(hostport string) netip.AddrPort {
	ap, err := netip.ParseAddrPort(hostport)
	if err != nil {
		return netip.AddrPort{}
	}
	return ap
}

func addrPortOf(addr net.Addr) netip.AddrPort {
	if addr == nil {
		return netip.AddrPort{}
	}
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.AddrPort()
	case *net.TCPAddr:
		return a.AddrPort()
	}
	return resolveAddrPort(addr.String())
}
