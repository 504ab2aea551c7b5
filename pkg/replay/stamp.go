package replay

import (
	"bytes"
	"encoding/binary"
	"time"
)

// StampSize is the encoded size of a Stamp.
const StampSize = 12

// stampBase offsets Unix seconds into the TAI64 label range so encoded
// stamps sort bytewise.
const stampBase = 1 << 62

// whitenerMask rounds stamps down to 10 ms so they do not leak a precise
// clock to the peer.
const whitenerMask = uint32(10*time.Millisecond - 1)

// Stamp is a coarse monotonic timestamp carried inside handshakes. Two
// stamps taken less than 10 ms apart compare equal.
type Stamp [StampSize]byte

// StampAt encodes t as a stamp.
func StampAt(t time.Time) Stamp {
	var s Stamp
	binary.BigEndian.PutUint64(s[:8], stampBase+uint64(t.Unix()))
	binary.BigEndian.PutUint32(s[8:], uint32(t.Nanosecond())&^whitenerMask)
	return s
}

// NowStamp encodes the current time.
func NowStamp() Stamp {
	return StampAt(time.Now())
}

// After reports whether s is strictly later than other.
func (s Stamp) After(other Stamp) bool {
	return bytes.Compare(s[:], other[:]) > 0
}

// Time decodes the stamp back to wall time at stamp granularity.
func (s Stamp) Time() time.Time {
	secs := int64(binary.BigEndian.Uint64(s[:8]) - stampBase)
	nanos := int64(binary.BigEndian.Uint32(s[8:]))
	return time.Unix(secs, nanos)
}

// Stale reports whether the stamp is older than validity relative to now.
// Handshakes carrying stale stamps are rejected before the fingerprint
// cache is consulted.
func (s Stamp) Stale(now time.Time, validity time.Duration) bool {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return now.Sub(s.Time()) > validity
}
