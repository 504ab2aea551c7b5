package upstream

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/palisade/palisade/pkg/commons/metrics"
	"github.com/palisade/palisade/pkg/conntrack"
	"github.com/palisade/palisade/pkg/wire"
)

const defaultRedialQueue = 64

// Tracker is the slice of the connection engine the redialer drives.
type Tracker interface {
	Lookup(id conntrack.ConnID) (conntrack.ConnInfo, bool)
	UpdateState(id conntrack.ConnID, to conntrack.State) error
	RecordActivity(id conntrack.ConnID, sent, received uint64) error
	HandleError(id conntrack.ConnID, kind wire.ErrorKind) error
}

// EstablishFunc re-runs protocol establishment on a fresh transport conn.
// On nil return the callback owns the conn; on error the redialer closes it
// and reports a network failure unless an engine call inside the callback
// already moved the connection out of Connecting.
type EstablishFunc func(ctx context.Context, id conntrack.ConnID, conn net.Conn) error

// RedialerOptions configure a Redialer.
type RedialerOptions struct {
	Establish   EstablishFunc
	DialTimeout time.Duration
	QueueSize   int
	Logger      *slog.Logger
}

// Redialer consumes engine reconnect events and brings upstream links back.
// Notify is shaped to be used as the engine's OnReconnect callback.
type Redialer struct {
	tracker   Tracker
	session   Session
	establish EstablishFunc
	log       *slog.Logger
	timeout   time.Duration
	queue     chan conntrack.ConnID
	drops     metrics.Counter
}

func NewRedialer(tracker Tracker, session Session, opts RedialerOptions) *Redialer {
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultRedialQueue
	}
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Redialer{
		tracker:   tracker,
		session:   session,
		establish: opts.Establish,
		log:       log.With("component", "redialer"),
		timeout:   timeout,
		queue:     make(chan conntrack.ConnID, queueSize),
	}
}

// Notify enqueues a reconnect event. It never blocks; overflow drops the
// event and the next health sweep will surface the stalled connection.
func (r *Redialer) Notify(info conntrack.ConnInfo) {
	select {
	case r.queue <- info.ID:
	default:
		r.drops.Inc()
		r.log.Debug("redial queue full, dropping event", "conn", uint64(info.ID))
	}
}

// Drops reports how many reconnect events were discarded on overflow.
func (r *Redialer) Drops() int64 { return r.drops.Load() }

// Run drains reconnect events until ctx is cancelled.
func (r *Redialer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			r.handle(ctx, id)
		}
	}
}

func (r *Redialer) handle(ctx context.Context, id conntrack.ConnID) {
	info, ok := r.tracker.Lookup(id)
	if !ok || info.State != conntrack.StateConnecting {
		return
	}

	dialCtx, cancel := context.WithTimeout(ctx, r.timeout)
	conn, err := r.session.Open(dialCtx)
	cancel()
	if err != nil {
		r.log.Warn("redial failed", "conn", uint64(id), "attempt", info.ReconnectAttempts, "err", err)
		_ = r.tracker.HandleError(id, wire.KindNetwork)
		return
	}

	if r.establish == nil {
		// Reachability probe only: the transport answers, mark the
		// connection live again.
		_ = conn.Close()
		if err := r.tracker.UpdateState(id, conntrack.StateEstablished); err != nil {
			return
		}
		_ = r.tracker.RecordActivity(id, 0, 0)
		r.log.Info("redial succeeded", "conn", uint64(id), "attempt", info.ReconnectAttempts)
		return
	}

	setStreamDeadline(conn, time.Now().Add(r.timeout))
	if err := r.establish(ctx, id, conn); err != nil {
		_ = conn.Close()
		r.log.Warn("re-establishment failed", "conn", uint64(id), "err", err)
		if cur, ok := r.tracker.Lookup(id); ok && cur.State == conntrack.StateConnecting {
			_ = r.tracker.HandleError(id, wire.KindNetwork)
		}
		return
	}
	setStreamDeadline(conn, time.Time{})
	_ = r.tracker.RecordActivity(id, 0, 0)
	r.log.Info("redial established", "conn", uint64(id), "attempt", info.ReconnectAttempts)
}
