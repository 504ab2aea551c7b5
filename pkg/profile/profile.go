package profile

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/palisade/palisade/pkg/commons/config"
	"github.com/palisade/palisade/pkg/wire"
)

// Transport names accepted in Upstream.Transport.
const (
	TransportQUIC      = "quic"
	TransportWebSocket = "ws"
	TransportTCP       = "tcp"
)

// Profile is the portable engine/transport profile shared by operators and tooling.
type Profile struct {
	ID        string         `json:"id" toml:"id"`
	Name      string         `json:"name" toml:"name"`
	Engine    EngineSettings `json:"engine" toml:"engine"`
	Wire      WireSettings   `json:"wire" toml:"wire"`
	Upstreams []Upstream     `json:"upstreams" toml:"upstreams"`
}

// EngineSettings are the tracking engine knobs in serializable form.
type EngineSettings struct {
	Capacity             int             `json:"capacity" toml:"capacity"`
	HealthCheckInterval  config.Duration `json:"health_check_interval" toml:"health_check_interval"`
	ProtocolTimeout      config.Duration `json:"protocol_timeout" toml:"protocol_timeout"`
	DegradedThreshold    int             `json:"degraded_threshold" toml:"degraded_threshold"`
	DisableAutoReconnect bool            `json:"disable_auto_reconnect" toml:"disable_auto_reconnect"`
	MaxReconnectAttempts int             `json:"max_reconnect_attempts" toml:"max_reconnect_attempts"`
	ReconnectDelay       config.Duration `json:"reconnect_delay" toml:"reconnect_delay"`
	ReconnectDelayMax    config.Duration `json:"reconnect_delay_max" toml:"reconnect_delay_max"`
	EventQueueSize       int             `json:"event_queue_size" toml:"event_queue_size"`
	AdmitPerSecond       int             `json:"admit_per_second" toml:"admit_per_second"`
	AdmitBurst           int             `json:"admit_burst" toml:"admit_burst"`
}

// WireSettings configure protocol classification and the obfsocks codec.
type WireSettings struct {
	Fallback        string          `json:"fallback" toml:"fallback"`
	MaskSeed        string          `json:"mask_seed" toml:"mask_seed"`
	ReplayCacheSize int             `json:"replay_cache_size" toml:"replay_cache_size"`
	StampValidity   config.Duration `json:"stamp_validity" toml:"stamp_validity"`
}

// Upstream describes one relay target.
type Upstream struct {
	Name        string `json:"name" toml:"name"`
	URL         string `json:"url" toml:"url"`
	Transport   string `json:"transport" toml:"transport"`
	Socks5Proxy string `json:"socks5_proxy,omitempty" toml:"socks5_proxy,omitempty"`
}

// New returns a named profile with a fresh id and no overrides, so encoding it
// yields the most compact form.
func New(name string) Profile {
	return Profile{
		ID:   uuid.NewString(),
		Name: name,
	}
}

// DefaultEngineSettings returns the engine's stock settings in profile form.
func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		Capacity:             65536,
		HealthCheckInterval:  config.Duration{Duration: 5 * time.Second},
		ProtocolTimeout:      config.Duration{Duration: 30 * time.Second},
		DegradedThreshold:    3,
		MaxReconnectAttempts: 5,
		ReconnectDelay:       config.Duration{Duration: time.Second},
		ReconnectDelayMax:    config.Duration{Duration: 30 * time.Second},
		EventQueueSize:       1024,
	}
}

// DefaultWireSettings returns the stock classification and codec settings.
func DefaultWireSettings() WireSettings {
	return WireSettings{
		Fallback:        wire.TagFramedRPC.String(),
		ReplayCacheSize: 4096,
		StampValidity:   config.Duration{Duration: 90 * time.Second},
	}
}

// ValidTransport reports whether s names a supported upstream transport.
func ValidTransport(s string) bool {
	switch s {
	case TransportQUIC, TransportWebSocket, TransportTCP:
		return true
	}
	return false
}

// Validate checks field ranges and cross-field constraints without filling
// defaults. Zero values mean "use the engine default" and always pass.
func (p Profile) Validate() error {
	if p.ID != "" {
		if _, err := uuid.Parse(p.ID); err != nil {
			return fmt.Errorf("id: %w", err)
		}
	}
	if err := p.Engine.validate(); err != nil {
		return err
	}
	if err := p.Wire.validate(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(p.Upstreams))
	for i, u := range p.Upstreams {
		if err := u.validate(); err != nil {
			return fmt.Errorf("upstreams[%d]: %w", i, err)
		}
		if u.Name != "" {
			if _, dup := seen[u.Name]; dup {
				return fmt.Errorf("upstreams[%d]: duplicate name %q", i, u.Name)
			}
			seen[u.Name] = struct{}{}
		}
	}
	return nil
}

func (e EngineSettings) validate() error {
	if e.Capacity < 0 {
		return fmt.Errorf("engine.capacity must be >= 0")
	}
	if e.HealthCheckInterval.Duration < 0 {
		return fmt.Errorf("engine.health_check_interval must be >= 0")
	}
	if e.ProtocolTimeout.Duration < 0 {
		return fmt.Errorf("engine.protocol_timeout must be >= 0")
	}
	if e.DegradedThreshold < 0 {
		return fmt.Errorf("engine.degraded_threshold must be >= 0")
	}
	if e.MaxReconnectAttempts < 0 {
		return fmt.Errorf("engine.max_reconnect_attempts must be >= 0")
	}
	if e.ReconnectDelay.Duration < 0 || e.ReconnectDelayMax.Duration < 0 {
		return fmt.Errorf("engine.reconnect delays must be >= 0")
	}
	if e.ReconnectDelayMax.Duration > 0 && e.ReconnectDelayMax.Duration < e.ReconnectDelay.Duration {
		return fmt.Errorf("engine.reconnect_delay_max must be >= engine.reconnect_delay")
	}
	if e.EventQueueSize < 0 {
		return fmt.Errorf("engine.event_queue_size must be >= 0")
	}
	if e.AdmitPerSecond < 0 || e.AdmitBurst < 0 {
		return fmt.Errorf("engine.admit rates must be >= 0")
	}
	return nil
}

func (w WireSettings) validate() error {
	if w.Fallback != "" {
		tag, err := wire.ParseTag(w.Fallback)
		if err != nil {
			return fmt.Errorf("wire.fallback: %w", err)
		}
		if tag == wire.TagUndetermined {
			return fmt.Errorf("wire.fallback must name a concrete protocol")
		}
	}
	if w.MaskSeed != "" {
		if _, err := base64.StdEncoding.DecodeString(w.MaskSeed); err != nil {
			return fmt.Errorf("wire.mask_seed: %w", err)
		}
	}
	if w.ReplayCacheSize < 0 {
		return fmt.Errorf("wire.replay_cache_size must be >= 0")
	}
	if w.StampValidity.Duration < 0 {
		return fmt.Errorf("wire.stamp_validity must be >= 0")
	}
	return nil
}

func (u Upstream) validate() error {
	if u.URL == "" {
		return fmt.Errorf("url required")
	}
	if !ValidTransport(u.Transport) {
		return fmt.Errorf("transport %q not one of quic, ws, tcp", u.Transport)
	}
	return nil
}

// FallbackTag resolves the configured detector fallback, defaulting to
// framedrpc when unset.
func (w WireSettings) FallbackTag() wire.Tag {
	if w.Fallback == "" {
		return wire.TagFramedRPC
	}
	tag, err := wire.ParseTag(w.Fallback)
	if err != nil {
		return wire.TagFramedRPC
	}
	return tag
}

// MaskSeedBytes decodes the base64 masking seed. An empty seed is valid and
// yields nil.
func (w WireSettings) MaskSeedBytes() ([]byte, error) {
	if w.MaskSeed == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(w.MaskSeed)
	if err != nil {
		return nil, fmt.Errorf("mask_seed: %w", err)
	}
	return raw, nil
}
