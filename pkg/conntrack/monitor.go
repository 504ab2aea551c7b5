package conntrack

import (
	"context"
	"time"

	"github.com/palisade/palisade/pkg/wire"
)

// RunHealthSweep walks every Established or Degraded connection once. A
// connection idle past the protocol timeout gets a Timeout raised through
// the regular error path, never a direct state write; afterwards each swept
// connection's health callback fires with healthy == (state is
// Established). The monitor calls this on its ticker; callers may also
// invoke it directly.
func (e *Engine) RunHealthSweep() {
	started := time.Now()

	e.mu.Lock()
	if e.shut {
		e.mu.Unlock()
		return
	}
	now := e.timeNow()
	swept, timeouts := 0, 0
	for _, id := range e.reg.ids() {
		c, ok := e.reg.get(id)
		if !ok {
			continue
		}
		if c.state != StateEstablished && c.state != StateDegraded {
			continue
		}
		swept++
		if now.Sub(c.lastActivity) > e.cfg.ProtocolTimeout {
			timeouts++
			e.raise(c, wire.KindTimeout)
		}
		snap := e.snapshotAfterPolicy(id, c)
		e.notify.publish(event{
			kind:    eventHealth,
			conn:    snap,
			healthy: snap.State == StateEstablished,
		})
	}
	e.mu.Unlock()

	e.metrics.SweepDuration.Observe(time.Since(started))
	e.log.Debug("health sweep done", "swept", swept, "timeouts", timeouts)
}

// StartMonitor spawns the periodic health sweep and metrics reporting.
// It returns ErrMonitorRunning while a monitor is active; the monitor
// stops when ctx is canceled or the engine shuts down.
func (e *Engine) StartMonitor(ctx context.Context) error {
	e.mu.Lock()
	if e.shut {
		e.mu.Unlock()
		return ErrShutdown
	}
	if e.monitorOn {
		e.mu.Unlock()
		return ErrMonitorRunning
	}
	mctx, cancel := context.WithCancel(ctx)
	e.monitorOn = true
	e.monitorCancel = cancel
	e.monitorWG.Add(1)
	e.mu.Unlock()

	go e.monitorLoop(mctx)
	return nil
}

// MonitorActive reports whether the periodic monitor is running.
func (e *Engine) MonitorActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitorOn
}

func (e *Engine) monitorLoop(ctx context.Context) {
	defer e.monitorWG.Done()

	sweep := time.NewTicker(e.cfg.HealthCheckInterval)
	defer sweep.Stop()
	report := time.NewTicker(e.cfg.MetricsInterval)
	defer report.Stop()

	e.log.Info("monitor started",
		"sweep_interval", e.cfg.HealthCheckInterval,
		"metrics_interval", e.cfg.MetricsInterval)

	for {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			e.monitorOn = false
			e.monitorCancel = nil
			e.mu.Unlock()
			e.log.Info("monitor stopped")
			return
		case <-sweep.C:
			e.RunHealthSweep()
		case <-report.C:
			e.logMetrics()
		}
	}
}

func (e *Engine) logMetrics() {
	m := e.metrics
	q := m.SweepDuration.Quantiles([]float64{0.5, 0.95})
	e.log.Info("engine metrics",
		"active_conns", m.ActiveConns.Load(),
		"tracked", m.Tracked.Load(),
		"closed", m.Closed.Load(),
		"admission_rejects", m.AdmissionRejects.Load(),
		"recoverable_errors", m.RecoverableErrors.Load(),
		"fatal_errors", m.FatalErrors.Load(),
		"timeouts", m.Timeouts.Load(),
		"reconnects_scheduled", m.ReconnectsScheduled.Load(),
		"reconnects_fired", m.ReconnectsFired.Load(),
		"callback_drops", m.CallbackDrops.Load(),
		"sweep_p50", q[0.5],
		"sweep_p95", q[0.95],
	)
}
