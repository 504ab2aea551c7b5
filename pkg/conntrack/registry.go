package conntrack

import (
	"time"
)

// registry is the capacity-bounded connection table: a slot arena allocated
// once at construction, an id→index map for O(1) lookup, and a free list of
// reclaimed slots. Slots are reused; ids are not. The engine synchronizes
// every call.
type registry struct {
	slots  []conn
	free   []uint32
	index  map[ConnID]uint32
	nextID ConnID
}

func newRegistry(capacity int) *registry {
	r := &registry{
		slots: make([]conn, capacity),
		free:  make([]uint32, capacity),
		index: make(map[ConnID]uint32, capacity),
	}
	// Pop from the tail, so slot 0 is handed out first.
	for i := range r.free {
		r.free[i] = uint32(capacity - 1 - i)
	}
	return r
}

// insert claims a slot for spec. It returns nil when the table is full.
func (r *registry) insert(spec TrackSpec, now time.Time) *conn {
	if len(r.free) == 0 {
		return nil
	}
	idx := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]

	r.nextID++
	c := &r.slots[idx]
	*c = conn{
		id:           r.nextID,
		tag:          spec.Hint,
		state:        StateConnecting,
		remote:       spec.Remote,
		local:        spec.Local,
		connectedAt:  now,
		lastActivity: now,
		eligible:     spec.Eligible,
	}
	r.index[c.id] = idx
	return c
}

func (r *registry) get(id ConnID) (*conn, bool) {
	idx, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return &r.slots[idx], true
}

// remove releases the slot back to the free list. Only the codec state and
// timer handle are cleared; the remaining fields stay readable until the
// slot is reused, so a close cascade can still snapshot the record it just
// removed. insert overwrites the slot wholesale.
func (r *registry) remove(id ConnID) {
	idx, ok := r.index[id]
	if !ok {
		return
	}
	delete(r.index, id)
	r.slots[idx].proto = nil
	r.slots[idx].reconnectTimer = nil
	r.free = append(r.free, idx)
}

func (r *registry) len() int {
	return len(r.index)
}

// ids returns the live connection ids. The sweep iterates this stable list
// so raising errors may remove connections mid-scan.
func (r *registry) ids() []ConnID {
	out := make([]ConnID, 0, len(r.index))
	for id := range r.index {
		out = append(out, id)
	}
	return out
}

// clear removes every connection, stopping reconnect timers.
func (r *registry) clear() {
	for id, idx := range r.index {
		r.slots[idx].stopReconnectTimer()
		r.slots[idx].proto = nil
		r.free = append(r.free, idx)
		delete(r.index, id)
	}
}
