package replay

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2s"
)

// Fingerprint digests the given parts into a cache key. Each part is length
// prefixed so distinct splits of the same bytes produce distinct keys.
func Fingerprint(parts ...[]byte) [32]byte {
	size := 0
	for _, p := range parts {
		size += 4 + len(p)
	}
	buf := make([]byte, 0, size)
	var l [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(l[:], uint32(len(p)))
		buf = append(buf, l[:]...)
		buf = append(buf, p...)
	}
	return blake2s.Sum256(buf)
}
