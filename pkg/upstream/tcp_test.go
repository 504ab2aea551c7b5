package upstream

import (
	"context"
	"io"
	"net"
	"net/netip"
	"testing"
)

// deadAddr returns a loopback address with nothing listening on it.
func deadAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()
	return addr
}

func TestTCPDialerOpen(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	d := NewTCPDialer(listener.Addr().String(), Options{})
	conn, err := d.Open(context.Background())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer conn.Close()

	server := <-accepted
	defer server.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("received %q, want ping", buf)
	}

	want := netip.MustParseAddrPort(listener.Addr().String())
	if got := d.RemoteAddr(); got != want {
		t.Fatalf("remote addr = %v, want %v", got, want)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestTCPDialerOpenFailure(t *testing.T) {
	d := NewTCPDialer(deadAddr(t), Options{})
	if _, err := d.Open(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestTCPDialerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewTCPDialer("192.0.2.1:443", Options{})
	if _, err := d.Open(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestTCPDialerSocks5Unreachable(t *testing.T) {
	target := deadAddr(t)
	d := NewTCPDialer(target, Options{Socks5Proxy: deadAddr(t)})
	if _, err := d.Open(context.Background()); err == nil {
		t.Fatalf("expected proxy dial error")
	}
}

func TestTCPDialerRemoteAddrHostname(t *testing.T) {
	d := NewTCPDialer("relay.example.com:443", Options{})
	if got := d.RemoteAddr(); got != (netip.AddrPort{}) {
		t.Fatalf("remote addr = %v, want zero for hostnames", got)
	}
}
