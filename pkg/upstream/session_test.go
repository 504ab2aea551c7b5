package upstream

import (
	"testing"

	"github.com/palisade/palisade/pkg/profile"
)

func TestNewSessionDispatch(t *testing.T) {
	cases := []struct {
		name    string
		target  profile.Upstream
		want    string
		wantErr bool
	}{
		{
			name:   "quic",
			target: profile.Upstream{URL: "relay.example.com:4433", Transport: profile.TransportQUIC},
			want:   "*upstream.QUICDialer",
		},
		{
			name:   "websocket",
			target: profile.Upstream{URL: "wss://relay.example.com/tunnel", Transport: profile.TransportWebSocket},
			want:   "*upstream.WSDialer",
		},
		{
			name:   "tcp",
			target: profile.Upstream{URL: "relay.example.com:443", Transport: profile.TransportTCP},
			want:   "*upstream.TCPDialer",
		},
		{
			name:    "websocket bad url",
			target:  profile.Upstream{URL: "https://relay.example.com", Transport: profile.TransportWebSocket},
			wantErr: true,
		},
		{
			name:    "unknown transport",
			target:  profile.Upstream{URL: "relay.example.com:443", Transport: "smtp"},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session, err := New(tc.target, Options{})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("new session failed: %v", err)
			}
			defer session.Close()

			var got string
			switch session.(type) {
			case *QUICDialer:
				got = "*upstream.QUICDialer"
			case *WSDialer:
				got = "*upstream.WSDialer"
			case *TCPDialer:
				got = "*upstream.TCPDialer"
			}
			if got != tc.want {
				t.Fatalf("session type = %T, want %s", session, tc.want)
			}
		})
	}
}

func TestNewSessionProxyOverride(t *testing.T) {
	target := profile.Upstream{
		URL:         "relay.example.com:443",
		Transport:   profile.TransportTCP,
		Socks5Proxy: "127.0.0.1:1080",
	}
	session, err := New(target, Options{Socks5Proxy: "127.0.0.1:9999"})
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	defer session.Close()

	d, ok := session.(*TCPDialer)
	if !ok {
		t.Fatalf("session type = %T, want *TCPDialer", session)
	}
	if d.socks5 != "127.0.0.1:1080" {
		t.Fatalf("socks5 = %q, want the upstream entry's proxy", d.socks5)
	}
}
