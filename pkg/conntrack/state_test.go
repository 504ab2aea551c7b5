package conntrack

import "testing"

func TestValidTransition(t *testing.T) {
	all := []State{
		StateUnknown, StateConnecting, StateHandshake,
		StateEstablished, StateDegraded, StateError, StateClosed,
	}
	legal := map[State][]State{
		StateUnknown:     {StateConnecting, StateClosed},
		StateConnecting:  {StateHandshake, StateEstablished, StateError, StateClosed},
		StateHandshake:   {StateEstablished, StateError, StateClosed},
		StateEstablished: {StateDegraded, StateError, StateClosed},
		StateDegraded:    {StateEstablished, StateError, StateClosed},
		StateError:       {StateConnecting, StateClosed},
		StateClosed:      {},
	}

	for _, from := range all {
		allowed := map[State]bool{}
		for _, to := range legal[from] {
			allowed[to] = true
		}
		for _, to := range all {
			if got := validTransition(from, to); got != allowed[to] {
				t.Fatalf("validTransition(%s, %s) = %v, want %v", from, to, got, allowed[to])
			}
		}
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{
		StateUnknown:     "unknown",
		StateConnecting:  "connecting",
		StateHandshake:   "handshake",
		StateEstablished: "established",
		StateDegraded:    "degraded",
		StateError:       "error",
		StateClosed:      "closed",
	}
	for s, name := range want {
		if s.String() != name {
			t.Fatalf("%d.String() = %q, want %q", s, s.String(), name)
		}
	}
}
