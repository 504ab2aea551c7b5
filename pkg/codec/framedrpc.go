package codec

import (
	"encoding/binary"

	"github.com/palisade/palisade/pkg/replay"
	"github.com/palisade/palisade/pkg/wire"
)

const (
	rpcHeaderSize = 8
	// rpcMaxSeq keeps message identifiers inside the uint32 header word.
	rpcMaxSeq = uint64(^uint32(0)) - wire.MsgIDFloor
)

// FramedRPC is the length-prefixed binary RPC protocol: a little-endian
// length word followed by a message identifier word and the payload. It
// needs no handshake. Message identifiers carry a monotonic sequence offset
// above wire.MsgIDFloor, so framed output re-classifies as this protocol
// and replayed frames are caught by a sliding window.
type FramedRPC struct{}

// NewFramedRPC returns the framed RPC codec.
func NewFramedRPC() *FramedRPC {
	return &FramedRPC{}
}

// Tag implements Codec.
func (*FramedRPC) Tag() wire.Tag {
	return wire.TagFramedRPC
}

// NeedsHandshake implements Codec. Framed RPC connections are established
// as soon as they classify.
func (*FramedRPC) NeedsHandshake() bool {
	return false
}

type rpcState struct {
	seq    uint64
	window replay.Window
}

func (*rpcState) ProtocolTag() wire.Tag {
	return wire.TagFramedRPC
}

// NewState implements Codec.
func (*FramedRPC) NewState() State {
	return &rpcState{}
}

// Handshake implements Codec. The protocol has no handshake; being asked to
// run one means the caller classified the connection wrong.
func (*FramedRPC) Handshake(st State, data []byte) (HandshakeResult, error) {
	if _, err := rpcStateOf(st); err != nil {
		return HandshakeResult{}, err
	}
	return HandshakeResult{}, wire.Errorf(wire.KindVersionMismatch, "framedrpc has no handshake")
}

// Encrypt implements Codec: it frames plaintext with the next sequence
// identifier. The name matches the dispatch contract; no secrecy is added.
func (*FramedRPC) Encrypt(st State, plaintext []byte) ([]byte, error) {
	rs, err := rpcStateOf(st)
	if err != nil {
		return nil, err
	}
	if len(plaintext)+4 > wire.MaxFrameLen {
		return nil, wire.Errorf(wire.KindBufferOverflow, "payload %d exceeds frame limit", len(plaintext))
	}
	if rs.seq >= rpcMaxSeq {
		return nil, wire.Errorf(wire.KindCryptoError, "sequence space exhausted")
	}
	rs.seq++

	frame := make([]byte, rpcHeaderSize+len(plaintext))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(4+len(plaintext)))
	binary.LittleEndian.PutUint32(frame[4:8], wire.MsgIDFloor+uint32(rs.seq))
	copy(frame[rpcHeaderSize:], plaintext)
	return frame, nil
}

// Decrypt implements Codec: it validates one whole frame and returns its
// payload. The frame must arrive exactly as encoded; the I/O layer owns
// reassembly.
func (*FramedRPC) Decrypt(st State, ciphertext []byte) ([]byte, error) {
	rs, err := rpcStateOf(st)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < rpcHeaderSize {
		return nil, wire.Errorf(wire.KindInvalidHeader, "frame truncated at %d bytes", len(ciphertext))
	}
	l := binary.LittleEndian.Uint32(ciphertext[0:4])
	if l > wire.MaxFrameLen {
		return nil, wire.Errorf(wire.KindBufferOverflow, "declared length %d exceeds frame limit", l)
	}
	if l < 4 || int(l)+4 != len(ciphertext) {
		return nil, wire.Errorf(wire.KindInvalidHeader, "declared length %d does not match frame of %d bytes", l, len(ciphertext))
	}
	msgID := binary.LittleEndian.Uint32(ciphertext[4:8])
	if msgID <= wire.MsgIDFloor {
		return nil, wire.Errorf(wire.KindVersionMismatch, "message id %#x below supported range", msgID)
	}
	seq := uint64(msgID - wire.MsgIDFloor)
	if !rs.window.Validate(seq, rpcMaxSeq) {
		return nil, wire.Errorf(wire.KindCryptoError, "replayed or out-of-window sequence %d", seq)
	}

	payload := make([]byte, len(ciphertext)-rpcHeaderSize)
	copy(payload, ciphertext[rpcHeaderSize:])
	return payload, nil
}

func rpcStateOf(st State) (*rpcState, error) {
	rs, ok := st.(*rpcState)
	if !ok {
		return nil, wire.Errorf(wire.KindCryptoError, "state is %T, not framedrpc", st)
	}
	return rs, nil
}
