package codec

import (
	"encoding/binary"
	"time"

	"golang.org/x/crypto/blake2s"

	"github.com/palisade/palisade/pkg/replay"
	"github.com/palisade/palisade/pkg/wire"
)

const obfMaskLabel = "obfsocks-mask---"

// ObfSocks is the address-header obfuscating proxy protocol. The handshake
// is a header of one address-length tag byte, the address, and a 2-byte
// port, optionally followed by a freshness stamp. Transport bytes are
// masked with a rolling keystream derived from the header and a shared
// seed. Masking hides structure on the wire; it is not encryption, and the
// handshake proves freshness, not identity.
type ObfSocks struct {
	seed     []byte
	cache    *replay.Cache
	validity time.Duration
	now      func() time.Time
}

// NewObfSocks returns the codec. The seed goes into every connection's mask
// key; both sides must configure the same one. The cache rejects replayed
// handshakes and may be shared across codecs; nil disables replay checks.
func NewObfSocks(seed []byte, cache *replay.Cache) *ObfSocks {
	return &ObfSocks{
		seed:     append([]byte(nil), seed...),
		cache:    cache,
		validity: replay.DefaultValidity,
		now:      time.Now,
	}
}

// Tag implements Codec.
func (*ObfSocks) Tag() wire.Tag {
	return wire.TagObfSocks
}

// NeedsHandshake implements Codec.
func (*ObfSocks) NeedsHandshake() bool {
	return true
}

type obfState struct {
	key         [32]byte
	sendPos     uint64
	recvPos     uint64
	established bool
}

func (*obfState) ProtocolTag() wire.Tag {
	return wire.TagObfSocks
}

// NewState implements Codec.
func (*ObfSocks) NewState() State {
	return &obfState{}
}

// Handshake implements Codec. It validates the address header, checks the
// optional freshness stamp, rejects replays, and derives the mask key.
func (o *ObfSocks) Handshake(st State, data []byte) (HandshakeResult, error) {
	os, err := obfStateOf(st)
	if err != nil {
		return HandshakeResult{}, err
	}
	if len(data) < 3 {
		return HandshakeResult{}, wire.Errorf(wire.KindBufferOverflow, "handshake of %d bytes cannot hold a header", len(data))
	}
	tag := data[0]
	if !wire.ValidAddrTag(tag) {
		return HandshakeResult{}, wire.Errorf(wire.KindInvalidHeader, "address tag %#x not in {1,4,8,16}", tag)
	}
	headerLen := 1 + int(tag) + 2
	if len(data) < headerLen {
		return HandshakeResult{}, wire.Errorf(wire.KindBufferOverflow, "header needs %d bytes, got %d", headerLen, len(data))
	}
	port := binary.BigEndian.Uint16(data[headerLen-2 : headerLen])
	if port == 0 {
		return HandshakeResult{}, wire.Errorf(wire.KindInvalidHeader, "port must be nonzero")
	}

	frame := data[:headerLen]
	if len(data) >= headerLen+replay.StampSize {
		var stamp replay.Stamp
		copy(stamp[:], data[headerLen:headerLen+replay.StampSize])
		if stamp.Stale(o.now(), o.validity) {
			return HandshakeResult{}, wire.Errorf(wire.KindAuthFailed, "handshake stamp expired")
		}
		frame = data[:headerLen+replay.StampSize]
	}
	if o.cache != nil {
		fp := replay.Fingerprint(frame)
		if replayed, _ := o.cache.Seen(fp); replayed {
			return HandshakeResult{}, wire.Errorf(wire.KindAuthFailed, "replayed handshake")
		}
	}

	os.key = o.deriveKey(frame)
	os.sendPos = 0
	os.recvPos = 0
	os.established = true
	return HandshakeResult{Encrypted: true, Authenticated: false}, nil
}

// Encrypt implements Codec: it masks outbound bytes with the send
// keystream.
func (*ObfSocks) Encrypt(st State, plaintext []byte) ([]byte, error) {
	os, err := obfStateOf(st)
	if err != nil {
		return nil, err
	}
	if !os.established {
		return nil, wire.Errorf(wire.KindCryptoError, "handshake not complete")
	}
	out := append([]byte(nil), plaintext...)
	maskBytes(&os.key, os.sendPos, out)
	os.sendPos += uint64(len(out))
	return out, nil
}

// Decrypt implements Codec: it unmasks inbound bytes with the receive
// keystream.
func (*ObfSocks) Decrypt(st State, ciphertext []byte) ([]byte, error) {
	os, err := obfStateOf(st)
	if err != nil {
		return nil, err
	}
	if !os.established {
		return nil, wire.Errorf(wire.KindCryptoError, "handshake not complete")
	}
	out := append([]byte(nil), ciphertext...)
	maskBytes(&os.key, os.recvPos, out)
	os.recvPos += uint64(len(out))
	return out, nil
}

func (o *ObfSocks) deriveKey(header []byte) [32]byte {
	data := make([]byte, 0, len(obfMaskLabel)+len(o.seed)+len(header))
	data = append(data, obfMaskLabel...)
	data = append(data, o.seed...)
	data = append(data, header...)
	return blake2s.Sum256(data)
}

// maskBytes XORs buf in place with the keystream starting at pos. Masking
// twice at the same position restores the input.
func maskBytes(key *[32]byte, pos uint64, buf []byte) {
	for i := range buf {
		p := pos + uint64(i)
		buf[i] ^= key[p&31] ^ byte(p)
	}
}

func obfStateOf(st State) (*obfState, error) {
	os, ok := st.(*obfState)
	if !ok {
		return nil, wire.Errorf(wire.KindCryptoError, "state is %T, not obfsocks", st)
	}
	return os, nil
}
