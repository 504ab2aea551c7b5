// Package wire defines the protocol tags, the error taxonomy, and the
// first-bytes protocol detector shared by the codec and conntrack layers.
package wire

import "fmt"

// Tag identifies which wire protocol a connection speaks.
type Tag uint8

const (
	// TagUndetermined marks a connection whose protocol has not been
	// classified yet.
	TagUndetermined Tag = iota
	// TagFramedRPC is the length-prefixed binary RPC protocol.
	TagFramedRPC
	// TagObfSocks is the address-header obfuscating proxy protocol.
	TagObfSocks
)

// String returns the tag name used in logs and profiles.
func (t Tag) String() string {
	switch t {
	case TagUndetermined:
		return "undetermined"
	case TagFramedRPC:
		return "framedrpc"
	case TagObfSocks:
		return "obfsocks"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// MarshalText renders the tag name, so JSON and TOML carry names instead of
// raw numbers.
func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a tag name.
func (t *Tag) UnmarshalText(text []byte) error {
	parsed, err := ParseTag(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTag maps a profile or config string back to a tag.
func ParseTag(s string) (Tag, error) {
	switch s {
	case "undetermined", "":
		return TagUndetermined, nil
	case "framedrpc":
		return TagFramedRPC, nil
	case "obfsocks":
		return TagObfSocks, nil
	default:
		return TagUndetermined, fmt.Errorf("unknown protocol tag %q", s)
	}
}
