package codec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/palisade/palisade/pkg/wire"
)

// Registry maps protocol tags to their codecs. Safe for concurrent use;
// registration normally happens once at startup, lookups happen on every
// dispatch.
type Registry struct {
	mu     sync.RWMutex
	codecs map[wire.Tag]Codec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[wire.Tag]Codec),
	}
}

// Register adds a codec. Registering a second codec for the same tag is an
// error; replacing a protocol in flight is never intended.
func (r *Registry) Register(c Codec) error {
	if c == nil {
		return fmt.Errorf("register codec: nil codec")
	}
	tag := c.Tag()
	if tag == wire.TagUndetermined {
		return fmt.Errorf("register codec: tag %s is reserved", tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codecs[tag]; ok {
		return fmt.Errorf("register codec: tag %s already registered", tag)
	}
	r.codecs[tag] = c
	return nil
}

// Lookup returns the codec bound to tag.
func (r *Registry) Lookup(tag wire.Tag) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[tag]
	return c, ok
}

// Tags returns the registered tags in stable order.
func (r *Registry) Tags() []wire.Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]wire.Tag, 0, len(r.codecs))
	for tag := range r.codecs {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
