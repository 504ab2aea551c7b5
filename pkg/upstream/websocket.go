package upstream

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// WSDialer opens one WebSocket per Open call. Binary messages carry the byte
// stream; text and control frames are skipped on read.
type WSDialer struct {
	rawURL string
	host   string
	dialer *websocket.Dialer
}

func NewWSDialer(rawURL string, opts Options) (*WSDialer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("upstream url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("upstream url %q: scheme must be ws or wss", rawURL)
	}
	return &WSDialer{
		rawURL: rawURL,
		host:   u.Host,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.dialTimeout(),
			TLSClientConfig:  opts.TLS,
		},
	}, nil
}

func (d *WSDialer) Open(ctx context.Context) (net.Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, d.rawURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: status %d: %w", d.rawURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", d.rawURL, err)
	}
	return &wsConn{ws: ws}, nil
}

func (d *WSDialer) Close() error { return nil }

func (d *WSDialer) RemoteAddr() netip.AddrPort {
	return resolveAddrPort(d.host)
}

// wsConn bridges a websocket connection to net.Conn. Writes emit one binary
// message per call; reads drain binary messages in order.
type wsConn struct {
	ws     *websocket.Conn
	reader io.Reader
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			msgType, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

var _ net.Conn = (*wsConn)(nil)
