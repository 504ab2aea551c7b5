package upstream

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/proxy"
)

// TCPDialer opens plain TCP conns, optionally through a SOCKS5 proxy.
type TCPDialer struct {
	addr   string
	socks5 string
	dialer *net.Dialer
}

func NewTCPDialer(addr string, opts Options) *TCPDialer {
	return &TCPDialer{
		addr:   addr,
		socks5: opts.Socks5Proxy,
		dialer: &net.Dialer{
			Timeout:   opts.dialTimeout(),
			KeepAlive: opts.KeepAlive,
		},
	}
}

func (d *TCPDialer) Open(ctx context.Context) (net.Conn, error) {
	if d.socks5 == "" {
		return d.dialer.DialContext(ctx, "tcp", d.addr)
	}
	socksDialer, err := proxy.SOCKS5("tcp", d.socks5, nil, d.dialer)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", d.socks5, err)
	}
	ctxDialer, ok := socksDialer.(proxy.ContextDialer)
	if !ok {
		return socksDialer.Dial("tcp", d.addr)
	}
	return ctxDialer.DialContext(ctx, "tcp", d.addr)
}

func (d *TCPDialer) Close() error { return nil }

func (d *TCPDialer) RemoteAddr() netip.AddrPort {
	return resolveAddrPort(d.addr)
}
