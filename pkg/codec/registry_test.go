package codec

import (
	"testing"

	"github.com/palisade/palisade/pkg/wire"
)

type stubCodec struct {
	tag wire.Tag
}

func (s *stubCodec) Tag() wire.Tag        { return s.tag }
func (s *stubCodec) NeedsHandshake() bool { return false }
func (s *stubCodec) NewState() State      { return nil }

func (s *stubCodec) Handshake(State, []byte) (HandshakeResult, error) {
	return HandshakeResult{}, nil
}
func (s *stubCodec) Encrypt(_ State, b []byte) ([]byte, error) { return b, nil }
func (s *stubCodec) Decrypt(_ State, b []byte) ([]byte, error) { return b, nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(nil); err == nil {
		t.Fatalf("expected error for nil codec")
	}
	if err := r.Register(&stubCodec{tag: wire.TagUndetermined}); err == nil {
		t.Fatalf("expected error for reserved tag")
	}

	if err := r.Register(NewObfSocks(nil, nil)); err != nil {
		t.Fatalf("Register obfsocks: %v", err)
	}
	if err := r.Register(NewFramedRPC()); err != nil {
		t.Fatalf("Register framedrpc: %v", err)
	}
	if err := r.Register(&stubCodec{tag: wire.TagFramedRPC}); err == nil {
		t.Fatalf("expected error for duplicate tag")
	}

	c, ok := r.Lookup(wire.TagObfSocks)
	if !ok {
		t.Fatalf("Lookup missed registered codec")
	}
	if c.Tag() != wire.TagObfSocks {
		t.Fatalf("Lookup returned codec for %s", c.Tag())
	}
	if _, ok := r.Lookup(wire.TagUndetermined); ok {
		t.Fatalf("Lookup returned codec for reserved tag")
	}

	tags := r.Tags()
	if len(tags) != 2 || tags[0] != wire.TagFramedRPC || tags[1] != wire.TagObfSocks {
		t.Fatalf("Tags() = %v", tags)
	}
}
