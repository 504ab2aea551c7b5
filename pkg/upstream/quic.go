package upstream

import (
	"context"
	"crypto/tls"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPN is the protocol id offered on QUIC dials.
const ALPN = "palisade/1"

type quicConnection interface {
	OpenStreamSync(ctx context.Context) (quic.Stream, error)
	Context() context.Context
	CloseWithError(code quic.ApplicationErrorCode, msg string) error
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
}

// QUICDialer keeps one QUIC connection per target and opens a stream per
// Open call. A failed stream open tears the connection down and redials once.
type QUICDialer struct {
	addr string
	opts Options

	mu   sync.Mutex
	conn quicConnection

	dial func(ctx context.Context) (quicConnection, error)
}

func NewQUICDialer(addr string, opts Options) *QUICDialer {
	d := &QUICDialer{addr: addr, opts: opts}
	d.dial = d.dialQUIC
	return d
}

func (d *QUICDialer) Open(ctx context.Context) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.dialTimeout())
	defer cancel()

	conn, err := d.getConn(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err == nil {
		return &streamConn{Stream: stream, local: conn.LocalAddr(), remote: conn.RemoteAddr()}, nil
	}

	d.reset("open stream failed")
	conn, dialErr := d.getConn(ctx)
	if dialErr != nil {
		return nil, err
	}
	stream, err = conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &streamConn{Stream: stream, local: conn.LocalAddr(), remote: conn.RemoteAddr()}, nil
}

func (d *QUICDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		_ = d.conn.CloseWithError(0, "session closed")
		d.conn = nil
	}
	return nil
}

func (d *QUICDialer) RemoteAddr() netip.AddrPort {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return addrPortOf(d.conn.RemoteAddr())
	}
	return resolveAddrPort(d.addr)
}

func (d *QUICDialer) getConn(ctx context.Context) (quicConnection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil && d.conn.Context().Err() == nil {
		return d.conn, nil
	}
	if d.conn != nil {
		_ = d.conn.CloseWithError(0, "reconnect")
		d.conn = nil
	}

	conn, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
	d.conn = conn
	return conn, nil
}

func (d *QUICDialer) dialQUIC(ctx context.Context) (quicConnection, error) {
	tlsConf := d.opts.TLS
	if tlsConf == nil {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	} else {
		tlsConf = tlsConf.Clone()
	}
	if len(tlsConf.NextProtos) == 0 {
		tlsConf.NextProtos = []string{ALPN}
	}
	quicConf := &quic.Config{
		KeepAlivePeriod: d.opts.KeepAlive,
		MaxIdleTimeout:  d.opts.IdleTimeout,
	}
	conn, err := quic.DialAddr(ctx, d.addr, tlsConf, quicConf)
	if err != nil {
		return nil, err
	}
	d.opts.logger().Debug("quic connection up", "addr", d.addr)
	return conn, nil
}

func (d *QUICDialer) reset(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		_ = d.conn.CloseWithError(0, reason)
		d.conn = nil
	}
}

// streamConn turns a QUIC stream into a net.Conn with the parent connection's
// addresses.
type streamConn struct {
	quic.Stream
	local  net.Addr
	remote net.Addr
}

func (c *streamConn) LocalAddr() net.Addr  { return c.local }
func (c *streamConn) RemoteAddr() net.Addr { return c.remote }

// CloseWrite half-closes the send direction so relays can signal EOF.
func (c *streamConn) CloseWrite() error { return c.Stream.Close() }

func (c *streamConn) Close() error {
	c.Stream.CancelRead(0)
	return c.Stream.Close()
}

var _ net.Conn = (*streamConn)(nil)

// setStreamDeadline is a helper for callers that bound handshake exchanges on
// a fresh stream.
func setStreamDeadline(conn net.Conn, deadline time.Time) {
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)
}
