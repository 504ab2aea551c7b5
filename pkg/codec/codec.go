// Package codec defines the dispatch contract every wire protocol
// implementation satisfies, a tag-keyed registry, and the two built-in
// protocols: the length-prefixed framed RPC and the address-header
// obfuscating proxy. The built-ins frame and mask bytes; neither implements
// real cryptography, which belongs to external codec implementations.
package codec

import (
	"github.com/palisade/palisade/pkg/wire"
)

// State is the opaque per-connection protocol state a codec hands out from
// NewState and receives back on every call. Each codec defines its own
// concrete type; the tag method ties the state to its protocol so a state
// can never be fed to the wrong codec.
type State interface {
	ProtocolTag() wire.Tag
}

// HandshakeResult reports what a completed handshake established about the
// connection.
type HandshakeResult struct {
	Encrypted     bool
	Authenticated bool
}

// Codec implements handshake, encrypt, and decrypt for one wire protocol.
// Failures are returned as *wire.Error values so the caller can translate
// them into the error taxonomy without inspecting protocol specifics.
type Codec interface {
	// Tag identifies the protocol this codec implements.
	Tag() wire.Tag
	// NeedsHandshake reports whether connections must complete a
	// handshake before transport. Protocols without one go straight to
	// established.
	NeedsHandshake() bool
	// NewState allocates fresh per-connection state.
	NewState() State
	// Handshake processes the peer's handshake bytes.
	Handshake(st State, data []byte) (HandshakeResult, error)
	// Encrypt transforms outbound plaintext into wire bytes.
	Encrypt(st State, plaintext []byte) ([]byte, error)
	// Decrypt transforms wire bytes back into plaintext.
	Decrypt(st State, ciphertext []byte) ([]byte, error)
}
