package conntrack

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/palisade/palisade/pkg/codec"
	"github.com/palisade/palisade/pkg/wire"
)

// Engine drives tracked connections through the reliability state machine:
// classification, codec dispatch, error policy, health sweeps, and bounded
// auto-reconnect. Construct one with New, share it by reference, and tear
// it down with Shutdown.
type Engine struct {
	id  string
	cfg Config
	log *slog.Logger

	mu            sync.Mutex
	reg           *registry
	stats         *statsTable
	errLog        *errorLogLimiter
	shut          bool
	monitorOn     bool
	monitorCancel func()

	admit   *admission
	notify  *notifier
	metrics *EngineMetrics

	monitorWG sync.WaitGroup

	// timeNow and schedule are swapped by tests to drive time.
	timeNow  func() time.Time
	schedule func(d time.Duration, f func()) timerHandle
}

// New validates cfg and returns a ready engine. The connection table is
// allocated up front at the configured capacity.
func New(cfg Config) (*Engine, error) {
	normalized, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		id:      uuid.NewString(),
		cfg:     normalized,
		reg:     newRegistry(normalized.Capacity),
		stats:   newStatsTable(),
		errLog:  newErrorLogLimiter(defaultErrorLogInterval),
		metrics: newEngineMetrics(),
		timeNow: time.Now,
	}
	e.log = normalized.Logger.With("engine", e.id[:8])
	e.schedule = func(d time.Duration, f func()) timerHandle {
		return time.AfterFunc(d, f)
	}
	e.admit = newAdmission(normalized.AdmitPerSecond, normalized.AdmitBurst, func() time.Time {
		return e.timeNow()
	})
	e.notify = newNotifier(normalized.Callbacks, normalized.EventQueueSize, &e.metrics.CallbackDrops)
	e.log.Info("engine initialized",
		"capacity", normalized.Capacity,
		"health_interval", normalized.HealthCheckInterval,
		"protocol_timeout", normalized.ProtocolTimeout,
		"degraded_threshold", normalized.DegradedThreshold,
		"max_reconnects", normalized.MaxReconnectAttempts,
	)
	return e, nil
}

// ID returns the engine instance id.
func (e *Engine) ID() string {
	return e.id
}

// Metrics returns the engine's metrics set.
func (e *Engine) Metrics() *EngineMetrics {
	return e.metrics
}

// Track registers a connection and returns its id. The connection starts
// in Connecting. A full table returns ErrCapacity; admission control, when
// configured, returns ErrAdmission for over-limit sources.
func (e *Engine) Track(spec TrackSpec) (ConnID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shut {
		return 0, ErrShutdown
	}
	if e.admit != nil && spec.Remote.IsValid() && !e.admit.allow(spec.Remote.Addr()) {
		e.metrics.AdmissionRejects.Inc()
		return 0, fmt.Errorf("%w: %s", ErrAdmission, spec.Remote.Addr())
	}
	c := e.reg.insert(spec, e.timeNow())
	if c == nil {
		return 0, fmt.Errorf("%w: capacity %d", ErrCapacity, e.cfg.Capacity)
	}
	e.stats.totalConnections++
	e.metrics.Tracked.Inc()
	e.metrics.ActiveConns.Set(int64(e.reg.len()))
	e.log.Debug("connection tracked",
		"conn", c.id, "remote", c.remote, "hint", c.tag, "eligible", c.eligible)
	return c.id, nil
}

// Lookup returns a snapshot of the connection.
func (e *Engine) Lookup(id ConnID) (ConnInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.reg.get(id)
	if !ok {
		return ConnInfo{}, false
	}
	return c.snapshot(), true
}

// Classify runs the detector over the first delivered bytes, binds the
// resulting protocol, and advances the connection to Handshake or straight
// to Established when the protocol needs none. A connection carrying a
// tracked hint or an earlier classification returns ErrAlreadyClassified
// with the bound tag.
func (e *Engine) Classify(id ConnID, buf []byte) (wire.Tag, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shut {
		return wire.TagUndetermined, ErrShutdown
	}
	c, ok := e.reg.get(id)
	if !ok {
		return wire.TagUndetermined, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if c.tag != wire.TagUndetermined {
		return c.tag, fmt.Errorf("%w: %s", ErrAlreadyClassified, c.tag)
	}
	if c.state != StateConnecting {
		return wire.TagUndetermined, fmt.Errorf("%w: classify in %s", ErrBadTransition, c.state)
	}

	tag := e.cfg.Detector.Detect(buf)
	c.tag = tag
	cd, ok := e.cfg.Codecs.Lookup(tag)
	if !ok {
		return tag, fmt.Errorf("%w: %s", ErrNoCodec, tag)
	}
	c.proto = cd.NewState()
	if cd.NeedsHandshake() {
		e.setState(c, StateHandshake)
	} else {
		e.setState(c, StateEstablished)
	}
	e.log.Debug("connection classified", "conn", c.id, "tag", tag, "state", c.state)
	return tag, nil
}

// Handshake dispatches handshake bytes to the bound codec. Success moves
// the connection to Established and records what the handshake yielded;
// failure raises the translated error kind and returns the codec error.
func (e *Engine) Handshake(id ConnID, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shut {
		return ErrShutdown
	}
	c, ok := e.reg.get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if c.state != StateHandshake {
		return fmt.Errorf("%w: handshake in %s", ErrBadTransition, c.state)
	}
	cd, err := e.codecFor(c)
	if err != nil {
		return err
	}
	res, err := cd.Handshake(c.proto, data)
	if err != nil {
		e.raise(c, translateKind(err))
		return err
	}
	c.encrypted = res.Encrypted
	c.authenticated = res.Authenticated
	c.lastActivity = e.timeNow()
	e.setState(c, StateEstablished)
	return nil
}

// Encrypt dispatches plaintext to the bound codec and returns the wire
// bytes, counting them as sent activity.
func (e *Engine) Encrypt(id ConnID, plaintext []byte) ([]byte, error) {
	return e.transform(id, plaintext, true)
}

// Decrypt dispatches wire bytes to the bound codec and returns the
// payload, counting the input as received activity.
func (e *Engine) Decrypt(id ConnID, ciphertext []byte) ([]byte, error) {
	return e.transform(id, ciphertext, false)
}

func (e *Engine) transform(id ConnID, buf []byte, outbound bool) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shut {
		return nil, ErrShutdown
	}
	c, ok := e.reg.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if c.state != StateEstablished && c.state != StateDegraded {
		return nil, fmt.Errorf("%w: transform in %s", ErrNotReady, c.state)
	}
	cd, err := e.codecFor(c)
	if err != nil {
		return nil, err
	}

	var out []byte
	if outbound {
		out, err = cd.Encrypt(c.proto, buf)
	} else {
		out, err = cd.Decrypt(c.proto, buf)
	}
	if err != nil {
		e.raise(c, translateKind(err))
		return nil, err
	}

	c.lastActivity = e.timeNow()
	if outbound {
		c.bytesSent += uint64(len(out))
		e.stats.totalBytes += uint64(len(out))
	} else {
		c.bytesReceived += uint64(len(buf))
		e.stats.totalBytes += uint64(len(buf))
	}
	if c.state == StateDegraded {
		e.setState(c, StateEstablished)
	}
	return out, nil
}

// UpdateState moves the connection along an explicit machine edge. Illegal
// edges return ErrBadTransition. Moving into Established resets the error
// and reconnect counters; moving into Error runs the reconnect policy;
// moving into Closed releases the record.
func (e *Engine) UpdateState(id ConnID, to State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shut {
		return ErrShutdown
	}
	c, ok := e.reg.get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if to == c.state {
		return nil
	}
	if !validTransition(c.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, c.state, to)
	}
	e.setState(c, to)
	return nil
}

// RecordActivity notes successful I/O observed by the owning layer. Fresh
// activity on a Degraded connection restores it to Established.
func (e *Engine) RecordActivity(id ConnID, sent, received uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shut {
		return ErrShutdown
	}
	c, ok := e.reg.get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	c.lastActivity = e.timeNow()
	c.bytesSent += sent
	c.bytesReceived += received
	e.stats.totalBytes += sent + received
	if c.state == StateDegraded {
		e.setState(c, StateEstablished)
	}
	return nil
}

// HandleError raises kind against the connection: stats and the error
// callback always fire, then the recoverability policy decides between
// Degraded, Error, and the reconnect path. Raising KindNone is a no-op.
func (e *Engine) HandleError(id ConnID, kind wire.ErrorKind) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shut {
		return ErrShutdown
	}
	c, ok := e.reg.get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if kind == wire.KindNone {
		return nil
	}
	e.raise(c, kind)
	return nil
}

// CloseConnection releases the connection. Closing an unknown or already
// closed id returns ErrNotFound; the call is idempotent and never panics.
func (e *Engine) CloseConnection(id ConnID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shut {
		return ErrShutdown
	}
	c, ok := e.reg.get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	e.setState(c, StateClosed)
	return nil
}

// Stats returns a snapshot of the aggregate counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.snapshot(e.id, e.reg.len())
}

// ResetStats clears the aggregate counters and the per-kind distinct
// connection sets. Live connections are unaffected.
func (e *Engine) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.reset()
}

// Shutdown releases every tracked connection, stops the monitor and the
// callback dispatcher, and rejects further calls with ErrShutdown. Safe to
// call more than once.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.shut {
		e.mu.Unlock()
		return nil
	}
	e.shut = true
	if e.monitorCancel != nil {
		e.monitorCancel()
	}
	released := e.reg.len()
	e.reg.clear()
	e.metrics.ActiveConns.Set(0)
	e.mu.Unlock()

	e.monitorWG.Wait()
	e.notify.close()
	e.log.Info("engine shut down", "released", released)
	return nil
}

// codecFor resolves the bound codec, allocating per-connection state on
// first use for hinted connections.
func (e *Engine) codecFor(c *conn) (codec.Codec, error) {
	if c.tag == wire.TagUndetermined {
		return nil, fmt.Errorf("%w: connection %d is unclassified", ErrNotReady, c.id)
	}
	cd, ok := e.cfg.Codecs.Lookup(c.tag)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCodec, c.tag)
	}
	if c.proto == nil {
		c.proto = cd.NewState()
	}
	return cd, nil
}

// translateKind maps a codec failure into the taxonomy. Errors that carry
// no kind count as failed transforms.
func translateKind(err error) wire.ErrorKind {
	if kind, ok := wire.KindOf(err); ok && kind != wire.KindNone {
		return kind
	}
	return wire.KindCryptoError
}

// raise is the single path for every error: it updates the stats, applies
// the recoverability policy, and publishes the error callback with the
// post-policy snapshot. Callers hold the engine mutex.
func (e *Engine) raise(c *conn, kind wire.ErrorKind) {
	now := e.timeNow()
	id := c.id
	c.lastError = kind
	e.stats.recordError(kind, id, now)
	if kind.Recoverable() {
		e.metrics.RecoverableErrors.Inc()
	} else {
		e.metrics.FatalErrors.Inc()
	}
	if kind == wire.KindTimeout {
		e.metrics.Timeouts.Inc()
	}

	switch c.state {
	case StateEstablished, StateDegraded:
		if kind.Recoverable() {
			c.errorCount++
			if c.errorCount < e.cfg.DegradedThreshold {
				if c.state == StateEstablished {
					e.setState(c, StateDegraded)
				}
			} else {
				e.setState(c, StateError)
			}
		} else {
			e.setState(c, StateError)
		}
	case StateConnecting, StateHandshake:
		// Errors before establishment fail the attempt outright; the
		// reconnect policy decides what happens next.
		if kind.Recoverable() {
			c.errorCount++
		}
		e.setState(c, StateError)
	case StateError:
		// Resting in Error awaiting the owner; tally only.
	}

	snap := e.snapshotAfterPolicy(id, c)
	if e.errLog.allow(kind, now) {
		e.log.Warn("connection error",
			"conn", id, "kind", kind, "state", snap.State,
			"error_count", snap.ErrorCount, "attempts", snap.ReconnectAttempts)
	}
	e.notify.publish(event{kind: eventError, conn: snap, errKind: kind})
}

// snapshotAfterPolicy returns the connection snapshot after the error
// policy ran. A connection the policy closed is gone from the registry, but
// its slot fields survive until reuse, so the snapshot still carries the
// terminal record.
func (e *Engine) snapshotAfterPolicy(id ConnID, c *conn) ConnInfo {
	if cur, ok := e.reg.get(id); ok {
		return cur.snapshot()
	}
	snap := c.snapshot()
	snap.ID = id
	return snap
}

// setState applies one transition and its entry effects. Entering Error
// cascades through the reconnect decision, so the observable state after a
// raise may already be Connecting or Closed.
func (e *Engine) setState(c *conn, to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	e.log.Debug("state transition", "conn", c.id, "from", from, "to", to)

	switch to {
	case StateEstablished:
		c.errorCount = 0
		c.reconnectAttempts = 0
		if !c.wasEstablished {
			c.wasEstablished = true
			e.stats.successfulConnections++
		}
	case StateConnecting:
		if from == StateError {
			// Fresh wire session for the redial.
			c.proto = nil
			c.encrypted = false
			c.authenticated = false
		}
	case StateError:
		e.reconnectDecision(c)
	case StateClosed:
		e.finalize(c)
	}
}

// reconnectDecision runs on every entry into Error. Ineligible connections
// rest in Error until their owner acts. Eligible ones either schedule a
// redial with capped exponential backoff or, out of attempts, close.
func (e *Engine) reconnectDecision(c *conn) {
	if !c.eligible {
		return
	}
	if e.cfg.DisableAutoReconnect || c.reconnectAttempts >= e.cfg.MaxReconnectAttempts {
		e.setState(c, StateClosed)
		return
	}
	c.reconnectAttempts++
	delay := e.backoff(c.reconnectAttempts)
	id := c.id
	c.stopReconnectTimer()
	c.reconnectTimer = e.schedule(delay, func() {
		e.reconnectFire(id)
	})
	e.metrics.ReconnectsScheduled.Inc()
	e.log.Info("reconnect scheduled",
		"conn", id, "attempt", c.reconnectAttempts, "delay", delay)
	e.setState(c, StateConnecting)
}

// reconnectFire delivers the reconnect callback once the backoff elapses.
// The consumer owns the redial; the engine only keeps the clock.
func (e *Engine) reconnectFire(id ConnID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shut {
		return
	}
	c, ok := e.reg.get(id)
	if !ok || c.state != StateConnecting {
		return
	}
	c.reconnectTimer = nil
	e.metrics.ReconnectsFired.Inc()
	e.notify.publish(event{kind: eventReconnect, conn: c.snapshot()})
}

func (e *Engine) backoff(attempt int) time.Duration {
	delay := e.cfg.ReconnectDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= e.cfg.ReconnectDelayMax {
			return e.cfg.ReconnectDelayMax
		}
	}
	if delay > e.cfg.ReconnectDelayMax {
		delay = e.cfg.ReconnectDelayMax
	}
	return delay
}

// finalize releases a closed connection: terminal stats, timer teardown,
// slot reclamation.
func (e *Engine) finalize(c *conn) {
	c.stopReconnectTimer()
	if !c.wasEstablished {
		e.stats.failedConnections++
	}
	if c.lastError == wire.KindTimeout {
		e.stats.timeoutConnections++
	}
	e.metrics.Closed.Inc()
	e.log.Debug("connection closed",
		"conn", c.id, "last_error", c.lastError, "attempts", c.reconnectAttempts)
	e.reg.remove(c.id)
	e.metrics.ActiveConns.Set(int64(e.reg.len()))
}
