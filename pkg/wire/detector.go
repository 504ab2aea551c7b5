package wire

import "encoding/binary"

const (
	// MaxFrameLen is the largest payload length a framed RPC header may
	// declare.
	MaxFrameLen = 0x1000000
	// MsgIDFloor is the smallest second-word value the framed RPC sniff
	// accepts. Real message identifiers sit above it; small control values
	// do not.
	MsgIDFloor = 0x10000000
)

// ValidAddrTag reports whether b is one of the fixed address-length tags of
// the obfuscating proxy header.
func ValidAddrTag(b byte) bool {
	switch b {
	case 1, 4, 8, 16:
		return true
	default:
		return false
	}
}

// Rule matches one protocol against the first delivered bytes.
type Rule struct {
	Tag   Tag
	Match func(buf []byte) bool
}

// Detector classifies a new connection from the bytes available so far.
// Rules are evaluated in order, first match wins; when none matches the
// detector returns its fallback tag. Classification is a best-effort sniff,
// not a validating parse: false positives are possible and surface later as
// handshake failures, never here.
type Detector struct {
	rules    []Rule
	fallback Tag
}

// NewDetector returns a detector with the built-in rules and the framed RPC
// fallback. The fallback mirrors the upstream behavior of treating anything
// unrecognized as the primary protocol; override it with SetFallback where
// that is too permissive.
func NewDetector() *Detector {
	return &Detector{
		rules: []Rule{
			{Tag: TagFramedRPC, Match: MatchFramedRPC},
			{Tag: TagObfSocks, Match: MatchObfSocks},
		},
		fallback: TagFramedRPC,
	}
}

// Register appends a rule behind the built-in ones. Registering a rule for a
// new protocol plus a codec for the same tag is the whole integration
// surface; nothing else changes.
func (d *Detector) Register(r Rule) {
	if r.Match == nil {
		return
	}
	d.rules = append(d.rules, r)
}

// SetFallback overrides the tag returned when no rule matches.
func (d *Detector) SetFallback(t Tag) {
	d.fallback = t
}

// Fallback returns the tag used when no rule matches.
func (d *Detector) Fallback() Tag {
	return d.fallback
}

// Detect classifies buf. It is a pure function of the bytes passed in: no
// state is kept between calls and no multi-read reassembly happens, so the
// caller must hand over the first chunk exactly as delivered.
func (d *Detector) Detect(buf []byte) Tag {
	for _, r := range d.rules {
		if r.Match(buf) {
			return r.Tag
		}
	}
	return d.fallback
}

// MatchFramedRPC sniffs the length-prefixed RPC protocol: a plausible
// little-endian length in the first word and a message identifier above
// MsgIDFloor in the second.
func MatchFramedRPC(buf []byte) bool {
	if len(buf) < 8 {
		return false
	}
	l := binary.LittleEndian.Uint32(buf[0:4])
	if l == 0 || l > MaxFrameLen {
		return false
	}
	if int(l)+4 > len(buf) {
		return false
	}
	m := binary.LittleEndian.Uint32(buf[4:8])
	return m > MsgIDFloor
}

// MatchObfSocks sniffs the address-header proxy protocol: a known
// address-length tag followed by enough bytes for the address and a 2-byte
// port.
func MatchObfSocks(buf []byte) bool {
	if len(buf) < 2 {
		return false
	}
	tag := buf[0]
	if !ValidAddrTag(tag) {
		return false
	}
	return len(buf) >= 1+int(tag)+2
}
