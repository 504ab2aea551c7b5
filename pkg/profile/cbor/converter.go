package cborprofile

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/palisade/palisade/pkg/commons/config"
	"github.com/palisade/palisade/pkg/profile"
)

const (
	Version = 1
)

const (
	keyVersion   uint64 = 0
	keyID        uint64 = 1
	keyName      uint64 = 2
	keyEngine    uint64 = 3
	keyWire      uint64 = 4
	keyUpstreams uint64 = 5
)

const (
	keyEngineCapacity          uint64 = 1
	keyEngineHealthInterval    uint64 = 2
	keyEngineProtocolTimeout   uint64 = 3
	keyEngineDegradedThreshold uint64 = 4
	keyEngineNoAutoReconnect   uint64 = 5
	keyEngineMaxReconnects     uint64 = 6
	keyEngineReconnectDelay    uint64 = 7
	keyEngineReconnectDelayMax uint64 = 8
	keyEngineEventQueueSize    uint64 = 9
	keyEngineAdmitPerSecond    uint64 = 10
	keyEngineAdmitBurst        uint64 = 11
)

const (
	keyWireFallback      uint64 = 1
	keyWireMaskSeed      uint64 = 2
	keyWireReplayCache   uint64 = 3
	keyWireStampValidity uint64 = 4
)

const (
	keyUpstreamName      uint64 = 1
	keyUpstreamURL       uint64 = 2
	keyUpstreamTransport uint64 = 3
	keyUpstreamProxy     uint64 = 4
)

var (
	defaultEngine = profile.DefaultEngineSettings()
	defaultWire   = profile.DefaultWireSettings()
)

// EncodeProfile converts a profile into deterministic CBOR bytes. Fields that
// match the engine defaults are omitted.
func EncodeProfile(p profile.Profile) ([]byte, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("id required")
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	payload := map[uint64]any{
		keyVersion: uint64(Version),
		keyID:      id[:],
	}
	if p.Name != "" {
		payload[keyName] = p.Name
	}
	if engine := encodeEngine(p.Engine); len(engine) > 0 {
		payload[keyEngine] = engine
	}
	if wireCfg, err := encodeWire(p.Wire); err != nil {
		return nil, err
	} else if len(wireCfg) > 0 {
		payload[keyWire] = wireCfg
	}
	if len(p.Upstreams) > 0 {
		ups := make([]map[uint64]any, 0, len(p.Upstreams))
		for i, u := range p.Upstreams {
			entry, err := encodeUpstream(u)
			if err != nil {
				return nil, fmt.Errorf("upstreams[%d]: %w", i, err)
			}
			ups = append(ups, entry)
		}
		payload[keyUpstreams] = ups
	}

	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return mode.Marshal(payload)
}

// DecodeProfile parses CBOR bytes into a profile. Unknown keys are ignored so
// newer encoders stay readable.
func DecodeProfile(data []byte) (profile.Profile, error) {
	mode, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return profile.Profile{}, err
	}
	var raw map[uint64]any
	if err := mode.Unmarshal(data, &raw); err != nil {
		return profile.Profile{}, err
	}
	version, ok := raw[keyVersion]
	if !ok {
		return profile.Profile{}, fmt.Errorf("cbor profile missing version")
	}
	versionInt, err := asUint(version)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("cbor profile version invalid: %w", err)
	}
	if versionInt != Version {
		return profile.Profile{}, fmt.Errorf("unsupported cbor profile version %d", versionInt)
	}

	var out profile.Profile
	if v, ok := raw[keyID]; ok {
		rawBytes, ok := v.([]byte)
		if !ok {
			return profile.Profile{}, fmt.Errorf("id: expected bytes")
		}
		id, err := uuid.FromBytes(rawBytes)
		if err != nil {
			return profile.Profile{}, fmt.Errorf("id: %w", err)
		}
		out.ID = id.String()
	}
	if v, ok := raw[keyName]; ok {
		out.Name, err = asString(v)
		if err != nil {
			return profile.Profile{}, fmt.Errorf("name: %w", err)
		}
	}
	if v, ok := raw[keyEngine]; ok {
		out.Engine, err = decodeEngine(v)
		if err != nil {
			return profile.Profile{}, fmt.Errorf("engine: %w", err)
		}
	}
	if v, ok := raw[keyWire]; ok {
		out.Wire, err = decodeWire(v)
		if err != nil {
			return profile.Profile{}, fmt.Errorf("wire: %w", err)
		}
	}
	if v, ok := raw[keyUpstreams]; ok {
		out.Upstreams, err = decodeUpstreams(v)
		if err != nil {
			return profile.Profile{}, fmt.Errorf("upstreams: %w", err)
		}
	}
	return out, nil
}

// EncodeJSONProfile converts a JSON profile into CBOR bytes.
func EncodeJSONProfile(jsonData []byte) ([]byte, error) {
	var p profile.Profile
	if err := json.Unmarshal(jsonData, &p); err != nil {
		return nil, err
	}
	return EncodeProfile(p)
}

// DecodeCBORToJSON converts CBOR bytes into a JSON profile.
func DecodeCBORToJSON(data []byte) ([]byte, error) {
	p, err := DecodeProfile(data)
	if err != nil {
		return nil, err
	}
	out := profileToJSON(p)
	return json.MarshalIndent(out, "", "  ")
}

type jsonProfile struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Engine    *jsonEngine    `json:"engine,omitempty"`
	Wire      *jsonWire      `json:"wire,omitempty"`
	Upstreams []jsonUpstream `json:"upstreams,omitempty"`
}

type jsonEngine struct {
	Capacity             int    `json:"capacity,omitempty"`
	HealthCheckInterval  string `json:"health_check_interval,omitempty"`
	ProtocolTimeout      string `json:"protocol_timeout,omitempty"`
	DegradedThreshold    int    `json:"degraded_threshold,omitempty"`
	DisableAutoReconnect bool   `json:"disable_auto_reconnect,omitempty"`
	MaxReconnectAttempts int    `json:"max_reconnect_attempts,omitempty"`
	ReconnectDelay       string `json:"reconnect_delay,omitempty"`
	ReconnectDelayMax    string `json:"reconnect_delay_max,omitempty"`
	EventQueueSize       int    `json:"event_queue_size,omitempty"`
	AdmitPerSecond       int    `json:"admit_per_second,omitempty"`
	AdmitBurst           int    `json:"admit_burst,omitempty"`
}

type jsonWire struct {
	Fallback        string `json:"fallback,omitempty"`
	MaskSeed        string `json:"mask_seed,omitempty"`
	ReplayCacheSize int    `json:"replay_cache_size,omitempty"`
	StampValidity   string `json:"stamp_validity,omitempty"`
}

type jsonUpstream struct {
	Name        string `json:"name,omitempty"`
	URL         string `json:"url"`
	Transport   string `json:"transport"`
	Socks5Proxy string `json:"socks5_proxy,omitempty"`
}

func profileToJSON(p profile.Profile) jsonProfile {
	out := jsonProfile{
		ID:   p.ID,
		Name: p.Name,
	}
	if engine := engineToJSON(p.Engine); engine != nil {
		out.Engine = engine
	}
	if wireCfg := wireToJSON(p.Wire); wireCfg != nil {
		out.Wire = wireCfg
	}
	for _, u := range p.Upstreams {
		out.Upstreams = append(out.Upstreams, jsonUpstream{
			Name:        u.Name,
			URL:         u.URL,
			Transport:   u.Transport,
			Socks5Proxy: u.Socks5Proxy,
		})
	}
	return out
}

func engineToJSON(e profile.EngineSettings) *jsonEngine {
	out := jsonEngine{
		Capacity:             e.Capacity,
		DegradedThreshold:    e.DegradedThreshold,
		DisableAutoReconnect: e.DisableAutoReconnect,
		MaxReconnectAttempts: e.MaxReconnectAttempts,
		EventQueueSize:       e.EventQueueSize,
		AdmitPerSecond:       e.AdmitPerSecond,
		AdmitBurst:           e.AdmitBurst,
	}
	if e.HealthCheckInterval.Duration > 0 {
		out.HealthCheckInterval = e.HealthCheckInterval.Duration.String()
	}
	if e.ProtocolTimeout.Duration > 0 {
		out.ProtocolTimeout = e.ProtocolTimeout.Duration.String()
	}
	if e.ReconnectDelay.Duration > 0 {
		out.ReconnectDelay = e.ReconnectDelay.Duration.String()
	}
	if e.ReconnectDelayMax.Duration > 0 {
		out.ReconnectDelayMax = e.ReconnectDelayMax.Duration.String()
	}
	if out == (jsonEngine{}) {
		return nil
	}
	return &out
}

func wireToJSON(w profile.WireSettings) *jsonWire {
	out := jsonWire{
		Fallback:        w.Fallback,
		MaskSeed:        w.MaskSeed,
		ReplayCacheSize: w.ReplayCacheSize,
	}
	if w.StampValidity.Duration > 0 {
		out.StampValidity = w.StampValidity.Duration.String()
	}
	if out == (jsonWire{}) {
		return nil
	}
	return &out
}

func encodeEngine(e profile.EngineSettings) map[uint64]any {
	out := make(map[uint64]any)
	if shouldIncludeInt(e.Capacity, defaultEngine.Capacity) {
		out[keyEngineCapacity] = uint64(e.Capacity)
	}
	if shouldIncludeDuration(e.HealthCheckInterval.Duration, defaultEngine.HealthCheckInterval.Duration) {
		out[keyEngineHealthInterval] = uint64(e.HealthCheckInterval.Duration / time.Millisecond)
	}
	if shouldIncludeDuration(e.ProtocolTimeout.Duration, defaultEngine.ProtocolTimeout.Duration) {
		out[keyEngineProtocolTimeout] = uint64(e.ProtocolTimeout.Duration / time.Millisecond)
	}
	if shouldIncludeInt(e.DegradedThreshold, defaultEngine.DegradedThreshold) {
		out[keyEngineDegradedThreshold] = uint64(e.DegradedThreshold)
	}
	if e.DisableAutoReconnect {
		out[keyEngineNoAutoReconnect] = true
	}
	if shouldIncludeInt(e.MaxReconnectAttempts, defaultEngine.MaxReconnectAttempts) {
		out[keyEngineMaxReconnects] = uint64(e.MaxReconnectAttempts)
	}
	if shouldIncludeDuration(e.ReconnectDelay.Duration, defaultEngine.ReconnectDelay.Duration) {
		out[keyEngineReconnectDelay] = uint64(e.ReconnectDelay.Duration / time.Millisecond)
	}
	if shouldIncludeDuration(e.ReconnectDelayMax.Duration, defaultEngine.ReconnectDelayMax.Duration) {
		out[keyEngineReconnectDelayMax] = uint64(e.ReconnectDelayMax.Duration / time.Millisecond)
	}
	if shouldIncludeInt(e.EventQueueSize, defaultEngine.EventQueueSize) {
		out[keyEngineEventQueueSize] = uint64(e.EventQueueSize)
	}
	if e.AdmitPerSecond > 0 {
		out[keyEngineAdmitPerSecond] = uint64(e.AdmitPerSecond)
	}
	if e.AdmitBurst > 0 {
		out[keyEngineAdmitBurst] = uint64(e.AdmitBurst)
	}
	return out
}

func encodeWire(w profile.WireSettings) (map[uint64]any, error) {
	out := make(map[uint64]any)
	if w.Fallback != "" && w.Fallback != defaultWire.Fallback {
		out[keyWireFallback] = w.Fallback
	}
	if w.MaskSeed != "" {
		raw, err := base64.StdEncoding.DecodeString(w.MaskSeed)
		if err != nil {
			return nil, fmt.Errorf("mask_seed: %w", err)
		}
		out[keyWireMaskSeed] = raw
	}
	if shouldIncludeInt(w.ReplayCacheSize, defaultWire.ReplayCacheSize) {
		out[keyWireReplayCache] = uint64(w.ReplayCacheSize)
	}
	if shouldIncludeDuration(w.StampValidity.Duration, defaultWire.StampValidity.Duration) {
		out[keyWireStampValidity] = uint64(w.StampValidity.Duration / time.Millisecond)
	}
	return out, nil
}

func encodeUpstream(u profile.Upstream) (map[uint64]any, error) {
	if u.URL == "" {
		return nil, fmt.Errorf("url required")
	}
	if !profile.ValidTransport(u.Transport) {
		return nil, fmt.Errorf("transport %q not one of quic, ws, tcp", u.Transport)
	}
	out := map[uint64]any{
		keyUpstreamURL:       u.URL,
		keyUpstreamTransport: u.Transport,
	}
	if u.Name != "" {
		out[keyUpstreamName] = u.Name
	}
	if u.Socks5Proxy != "" {
		out[keyUpstreamProxy] = u.Socks5Proxy
	}
	return out, nil
}

func decodeEngine(value any) (profile.EngineSettings, error) {
	raw, err := asMapUint(value)
	if err != nil {
		return profile.EngineSettings{}, fmt.Errorf("expected map: %w", err)
	}
	var out profile.EngineSettings
	if v, ok := raw[keyEngineCapacity]; ok {
		out.Capacity, err = asInt(v)
		if err != nil {
			return profile.EngineSettings{}, err
		}
	}
	if v, ok := raw[keyEngineHealthInterval]; ok {
		ms, err := asUint(v)
		if err != nil {
			return profile.EngineSettings{}, err
		}
		out.HealthCheckInterval = config.Duration{Duration: time.Duration(ms) * time.Millisecond}
	}
	if v, ok := raw[keyEngineProtocolTimeout]; ok {
		ms, err := asUint(v)
		if err != nil {
			return profile.EngineSettings{}, err
		}
		out.ProtocolTimeout = config.Duration{Duration: time.Duration(ms) * time.Millisecond}
	}
	if v, ok := raw[keyEngineDegradedThreshold]; ok {
		out.DegradedThreshold, err = asInt(v)
		if err != nil {
			return profile.EngineSettings{}, err
		}
	}
	if v, ok := raw[keyEngineNoAutoReconnect]; ok {
		out.DisableAutoReconnect, err = asBool(v)
		if err != nil {
			return profile.EngineSettings{}, err
		}
	}
	if v, ok := raw[keyEngineMaxReconnects]; ok {
		out.MaxReconnectAttempts, err = asInt(v)
		if err != nil {
			return profile.EngineSettings{}, err
		}
	}
	if v, ok := raw[keyEngineReconnectDelay]; ok {
		ms, err := asUint(v)
		if err != nil {
			return profile.EngineSettings{}, err
		}
		out.ReconnectDelay = config.Duration{Duration: time.Duration(ms) * time.Millisecond}
	}
	if v, ok := raw[keyEngineReconnectDelayMax]; ok {
		ms, err := asUint(v)
		if err != nil {
			return profile.EngineSettings{}, err
		}
		out.ReconnectDelayMax = config.Duration{Duration: time.Duration(ms) * time.Millisecond}
	}
	if v, ok := raw[keyEngineEventQueueSize]; ok {
		out.EventQueueSize, err = asInt(v)
		if err != nil {
			return profile.EngineSettings{}, err
		}
	}
	if v, ok := raw[keyEngineAdmitPerSecond]; ok {
		out.AdmitPerSecond, err = asInt(v)
		if err != nil {
			return profile.EngineSettings{}, err
		}
	}
	if v, ok := raw[keyEngineAdmitBurst]; ok {
		out.AdmitBurst, err = asInt(v)
		if err != nil {
			return profile.EngineSettings{}, err
		}
	}
	return out, nil
}

func decodeWire(value any) (profile.WireSettings, error) {
	raw, err := asMapUint(value)
	if err != nil {
		return profile.WireSettings{}, fmt.Errorf("expected map: %w", err)
	}
	var out profile.WireSettings
	if v, ok := raw[keyWireFallback]; ok {
		out.Fallback, err = asString(v)
		if err != nil {
			return profile.WireSettings{}, err
		}
	}
	if v, ok := raw[keyWireMaskSeed]; ok {
		rawBytes, ok := v.([]byte)
		if !ok {
			return profile.WireSettings{}, fmt.Errorf("mask_seed: expected bytes")
		}
		out.MaskSeed = base64.StdEncoding.EncodeToString(rawBytes)
	}
	if v, ok := raw[keyWireReplayCache]; ok {
		out.ReplayCacheSize, err = asInt(v)
		if err != nil {
			return profile.WireSettings{}, err
		}
	}
	if v, ok := raw[keyWireStampValidity]; ok {
		ms, err := asUint(v)
		if err != nil {
			return profile.WireSettings{}, err
		}
		out.StampValidity = config.Duration{Duration: time.Duration(ms) * time.Millisecond}
	}
	return out, nil
}

func decodeUpstreams(value any) ([]profile.Upstream, error) {
	list, err := asList(value)
	if err != nil {
		return nil, err
	}
	out := make([]profile.Upstream, 0, len(list))
	for i, entry := range list {
		u, err := decodeUpstream(entry)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, u)
	}
	return out, nil
}

func decodeUpstream(value any) (profile.Upstream, error) {
	raw, err := asMapUint(value)
	if err != nil {
		return profile.Upstream{}, fmt.Errorf("expected map: %w", err)
	}
	var out profile.Upstream
	if v, ok := raw[keyUpstreamName]; ok {
		out.Name, err = asString(v)
		if err != nil {
			return profile.Upstream{}, err
		}
	}
	if v, ok := raw[keyUpstreamURL]; ok {
		out.URL, err = asString(v)
		if err != nil {
			return profile.Upstream{}, err
		}
	}
	if v, ok := raw[keyUpstreamTransport]; ok {
		out.Transport, err = asString(v)
		if err != nil {
			return profile.Upstream{}, err
		}
	}
	if v, ok := raw[keyUpstreamProxy]; ok {
		out.Socks5Proxy, err = asString(v)
		if err != nil {
			return profile.Upstream{}, err
		}
	}
	return out, nil
}

func shouldIncludeDuration(value time.Duration, def time.Duration) bool {
	if value <= 0 {
		return false
	}
	return value != def
}

func shouldIncludeInt(value int, def int) bool {
	if value <= 0 {
		return false
	}
	return value != def
}

func asUint(value any) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case uint16:
		return uint64(v), nil
	case uint8:
		return uint64(v), nil
	case uint:
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("negative value")
		}
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("negative value")
		}
		return uint64(v), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", value)
	}
}

func asInt(value any) (int, error) {
	switch v := value.(type) {
	case uint64:
		if v > uint64(^uint(0)>>1) {
			return 0, fmt.Errorf("overflow")
		}
		return int(v), nil
	case uint:
		return int(v), nil
	case int64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", value)
	}
}

func asString(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected string got %T", value)
	}
	return str, nil
}

func asBool(value any) (bool, error) {
	val, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool got %T", value)
	}
	return val, nil
}

func asMapUint(value any) (map[uint64]any, error) {
	switch m := value.(type) {
	case map[uint64]any:
		return m, nil
	case map[any]any:
		out := make(map[uint64]any, len(m))
		for key, val := range m {
			k, err := asUint(key)
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected type %T", value)
	}
}

func asList(value any) ([]any, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", value)
	}
	return list, nil
}
