// Package conntrack is the connection reliability core: a capacity-bounded
// registry of tracked connections, a per-connection state machine, an error
// policy with differentiated recoverability, a periodic health sweep, and a
// bounded auto-reconnect policy with aggregated statistics. The Engine is an
// explicit value constructed at startup and shared by the I/O workers and
// the sweep task; one mutex guards the connection table and the stats.
package conntrack

import "fmt"

// State is a node in the connection reliability machine.
type State uint8

const (
	// StateUnknown is the zero value; no tracked connection holds it.
	StateUnknown State = iota
	// StateConnecting covers dialing and redialing.
	StateConnecting
	// StateHandshake covers a protocol handshake in flight.
	StateHandshake
	// StateEstablished is a healthy transporting connection.
	StateEstablished
	// StateDegraded is a connection accumulating recoverable errors.
	StateDegraded
	// StateError is a failed connection awaiting reconnect or teardown.
	StateError
	// StateClosed is terminal; the record leaves the registry.
	StateClosed
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateConnecting:
		return "connecting"
	case StateHandshake:
		return "handshake"
	case StateEstablished:
		return "established"
	case StateDegraded:
		return "degraded"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// validTransition reports whether from → to is an edge of the machine.
// Closing is always legal. Connecting → Error covers dial failures, which
// the reconnect loop depends on.
func validTransition(from, to State) bool {
	if to == StateClosed {
		return from != StateClosed
	}
	switch from {
	case StateUnknown:
		return to == StateConnecting
	case StateConnecting:
		return to == StateHandshake || to == StateEstablished || to == StateError
	case StateHandshake:
		return to == StateEstablished || to == StateError
	case StateEstablished:
		return to == StateDegraded || to == StateError
	case StateDegraded:
		return to == StateEstablished || to == StateError
	case StateError:
		return to == StateConnecting
	default:
		return false
	}
}
