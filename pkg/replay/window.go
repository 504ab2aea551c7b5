package replay

type lane uint64

const (
	laneShift   = 6
	laneBits    = 1 << laneShift
	ringLanes   = 1 << 7
	windowSpan  = (ringLanes - 1) * laneBits
	ringMask    = ringLanes - 1
	counterMask = laneBits - 1
)

// MaxCounter is the largest frame counter a connection may use before it
// must re-handshake.
const MaxCounter = 1<<64 - 1<<13 - 1

// Window rejects replayed frame counters by tracking a sliding bitmap over
// the most recent counters. The zero value is ready for use. Not safe for
// concurrent use; each connection's codec state owns its own window.
type Window struct {
	greatest uint64
	ring     [ringLanes]lane
}

// Reset clears the window back to its zero state.
func (w *Window) Reset() {
	w.greatest = 0
	w.ring[0] = 0
}

// Validate accepts counter exactly once: it returns true when the counter
// is inside the window and has not been seen, marking it seen. Counters at
// or above limit, counters behind the window, and duplicates are rejected.
func (w *Window) Validate(counter, limit uint64) bool {
	if counter >= limit {
		return false
	}
	indexLane := counter >> laneShift
	if counter > w.greatest {
		current := w.greatest >> laneShift
		diff := indexLane - current
		if diff > ringLanes {
			diff = ringLanes
		}
		for i := current + 1; i <= current+diff; i++ {
			w.ring[i&ringMask] = 0
		}
		w.greatest = counter
	} else if w.greatest-counter > windowSpan {
		return false
	}
	indexLane &= ringMask
	indexBit := counter & counterMask
	old := w.ring[indexLane]
	marked := old | 1<<indexBit
	w.ring[indexLane] = marked
	return old != marked
}
