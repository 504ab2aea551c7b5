package conntrack

import (
	"net/netip"
	"time"

	"github.com/palisade/palisade/pkg/codec"
	"github.com/palisade/palisade/pkg/wire"
)

// ConnID is the process-unique handle of a tracked connection. IDs are
// assigned monotonically and never reused.
type ConnID uint64

// TrackSpec describes a connection to track. The socket itself stays with
// the I/O layer; the engine identifies the session by its endpoints.
type TrackSpec struct {
	Remote netip.AddrPort
	Local  netip.AddrPort
	// Hint pre-binds a protocol when the caller already knows it, skipping
	// detection. Leave as TagUndetermined to classify from first bytes.
	Hint wire.Tag
	// Eligible marks the connection as auto-reconnectable after failure.
	// Outbound upstream links set it; inbound client sockets do not.
	Eligible bool
}

// ConnInfo is a point-in-time snapshot of a tracked connection. Callbacks
// and lookups receive snapshots, never live records.
type ConnInfo struct {
	ID                ConnID
	Tag               wire.Tag
	State             State
	Remote            netip.AddrPort
	Local             netip.AddrPort
	ConnectedAt       time.Time
	LastActivity      time.Time
	BytesSent         uint64
	BytesReceived     uint64
	ErrorCount        int
	LastError         wire.ErrorKind
	ReconnectAttempts int
	Encrypted         bool
	Authenticated     bool
	Eligible          bool
}

// timerHandle lets tests swap the reconnect scheduler.
type timerHandle interface {
	Stop() bool
}

// conn is one arena slot. All access happens under the engine mutex.
type conn struct {
	id    ConnID
	tag   wire.Tag
	proto codec.State
	state State

	remote netip.AddrPort
	local  netip.AddrPort

	connectedAt  time.Time
	lastActivity time.Time

	bytesSent     uint64
	bytesReceived uint64

	errorCount        int
	lastError         wire.ErrorKind
	reconnectAttempts int

	encrypted     bool
	authenticated bool
	eligible      bool

	// wasEstablished marks a connection that reached Established at least
	// once; it drives the success/failure tallies.
	wasEstablished bool

	reconnectTimer timerHandle
}

func (c *conn) snapshot() ConnInfo {
	return ConnInfo{
		ID:                c.id,
		Tag:               c.tag,
		State:             c.state,
		Remote:            c.remote,
		Local:             c.local,
		ConnectedAt:       c.connectedAt,
		LastActivity:      c.lastActivity,
		BytesSent:         c.bytesSent,
		BytesReceived:     c.bytesReceived,
		ErrorCount:        c.errorCount,
		LastError:         c.lastError,
		ReconnectAttempts: c.reconnectAttempts,
		Encrypted:         c.encrypted,
		Authenticated:     c.authenticated,
		Eligible:          c.eligible,
	}
}

func (c *conn) stopReconnectTimer() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}
