package conntrack

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/palisade/palisade/pkg/codec"
	"github.com/palisade/palisade/pkg/wire"
)

const (
	defaultCapacity             = 65536
	defaultHealthCheckInterval  = 5 * time.Second
	defaultProtocolTimeout      = 30 * time.Second
	defaultDegradedThreshold    = 3
	defaultMaxReconnectAttempts = 5
	defaultReconnectDelay       = time.Second
	defaultReconnectDelayMax    = 30 * time.Second
	defaultEventQueueSize       = 1024
	defaultMetricsInterval      = 10 * time.Second
	defaultErrorLogInterval     = 10 * time.Second
	sweepSampleSize             = 256
)

const invalidConfigPrefix = "invalid engine config"

// Engine sentinel errors.
var (
	// ErrNotFound reports an id with no live connection. Close of an
	// unknown or already-closed id returns it, making close idempotent.
	ErrNotFound = errors.New("connection not found")
	// ErrCapacity reports a full connection table.
	ErrCapacity = errors.New("connection table full")
	// ErrShutdown reports a call after Shutdown.
	ErrShutdown = errors.New("engine is shut down")
	// ErrBadTransition reports a state change along no machine edge.
	ErrBadTransition = errors.New("illegal state transition")
	// ErrAlreadyClassified reports a second classification attempt.
	ErrAlreadyClassified = errors.New("connection already classified")
	// ErrNoCodec reports a tag with no registered codec.
	ErrNoCodec = errors.New("no codec registered for protocol")
	// ErrNotReady reports a transport call before the connection is
	// established.
	ErrNotReady = errors.New("connection not established")
	// ErrAdmission reports a connection rejected by the admission rate
	// limit.
	ErrAdmission = errors.New("admission rate limit exceeded")
	// ErrMonitorRunning reports a second StartMonitor on a live monitor.
	ErrMonitorRunning = errors.New("monitor already running")
)

// Callbacks are the fire-and-forget notifications the engine emits. They
// run on the engine's dispatcher goroutine, never under the registry lock;
// a slow consumer loses notifications instead of stalling the engine.
type Callbacks struct {
	OnError     func(conn ConnInfo, kind wire.ErrorKind)
	OnReconnect func(conn ConnInfo)
	OnHealth    func(conn ConnInfo, healthy bool)
}

// Config configures an Engine. Zero values select the documented defaults;
// negative values are rejected.
type Config struct {
	// Capacity bounds the connection table. Default 65536.
	Capacity int
	// HealthCheckInterval is the sweep period. Default 5s.
	HealthCheckInterval time.Duration
	// ProtocolTimeout is the activity timeout the sweep enforces.
	// Default 30s.
	ProtocolTimeout time.Duration
	// DegradedThreshold is how many recoverable errors a connection
	// absorbs before it fails. Default 3.
	DegradedThreshold int
	// DisableAutoReconnect turns the reconnect policy off for every
	// connection; eligible connections then close on failure.
	DisableAutoReconnect bool
	// MaxReconnectAttempts bounds redials between establishments.
	// Default 5.
	MaxReconnectAttempts int
	// ReconnectDelay is the base redial backoff, doubled per attempt up
	// to ReconnectDelayMax. Defaults 1s and 30s; set both equal for a
	// flat delay.
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	// EventQueueSize bounds the callback queue. Default 1024.
	EventQueueSize int
	// MetricsInterval is the monitor's metrics log period. Default 10s.
	MetricsInterval time.Duration
	// AdmitPerSecond/AdmitBurst rate-limit Track per remote address.
	// Zero disables admission control.
	AdmitPerSecond int
	AdmitBurst     int

	// Detector classifies first bytes. Nil selects wire.NewDetector().
	Detector *wire.Detector
	// Codecs maps tags to codecs. Nil selects an empty registry.
	Codecs *codec.Registry
	// Callbacks receive engine notifications.
	Callbacks Callbacks
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c Config) normalize() (Config, error) {
	if c.Capacity < 0 {
		return c, fmt.Errorf("%s: capacity must not be negative", invalidConfigPrefix)
	}
	if c.Capacity == 0 {
		c.Capacity = defaultCapacity
	}
	if c.HealthCheckInterval < 0 {
		return c, fmt.Errorf("%s: health check interval must not be negative", invalidConfigPrefix)
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = defaultHealthCheckInterval
	}
	if c.ProtocolTimeout < 0 {
		return c, fmt.Errorf("%s: protocol timeout must not be negative", invalidConfigPrefix)
	}
	if c.ProtocolTimeout == 0 {
		c.ProtocolTimeout = defaultProtocolTimeout
	}
	if c.DegradedThreshold < 0 {
		return c, fmt.Errorf("%s: degraded threshold must not be negative", invalidConfigPrefix)
	}
	if c.DegradedThreshold == 0 {
		c.DegradedThreshold = defaultDegradedThreshold
	}
	if c.MaxReconnectAttempts < 0 {
		return c, fmt.Errorf("%s: max reconnect attempts must not be negative", invalidConfigPrefix)
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if c.ReconnectDelay < 0 || c.ReconnectDelayMax < 0 {
		return c, fmt.Errorf("%s: reconnect delays must not be negative", invalidConfigPrefix)
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.ReconnectDelayMax == 0 {
		c.ReconnectDelayMax = defaultReconnectDelayMax
	}
	if c.ReconnectDelayMax < c.ReconnectDelay {
		c.ReconnectDelayMax = c.ReconnectDelay
	}
	if c.EventQueueSize < 0 {
		return c, fmt.Errorf("%s: event queue size must not be negative", invalidConfigPrefix)
	}
	if c.EventQueueSize == 0 {
		c.EventQueueSize = defaultEventQueueSize
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = defaultMetricsInterval
	}
	if c.AdmitPerSecond < 0 || c.AdmitBurst < 0 {
		return c, fmt.Errorf("%s: admission limits must not be negative", invalidConfigPrefix)
	}
	if c.Detector == nil {
		c.Detector = wire.NewDetector()
	}
	if c.Codecs == nil {
		c.Codecs = codec.NewRegistry()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}
