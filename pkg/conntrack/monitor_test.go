package conntrack

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/palisade/palisade/pkg/wire"
)

func TestRunHealthSweepTimeouts(t *testing.T) {
	health := make(chan struct {
		conn    ConnInfo
		healthy bool
	}, 16)
	eng, clock := newTestEngine(t, Config{
		ProtocolTimeout: 30 * time.Second,
		Callbacks: Callbacks{
			OnHealth: func(conn ConnInfo, healthy bool) {
				health <- struct {
					conn    ConnInfo
					healthy bool
				}{conn, healthy}
			},
		},
	})

	idle := trackEstablished(t, eng, testSpec(1))
	busy := trackEstablished(t, eng, testSpec(2))
	dialing := mustTrack(t, eng, testSpec(3))

	clock.Advance(25 * time.Second)
	if err := eng.RecordActivity(busy, 1, 1); err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}
	clock.Advance(6 * time.Second)

	// idle has been quiet for 31s, busy for 6s; dialing is not swept.
	eng.RunHealthSweep()

	results := map[ConnID]bool{}
	for i := 0; i < 2; i++ {
		select {
		case h := <-health:
			results[h.conn.ID] = h.healthy
		case <-time.After(time.Second):
			t.Fatalf("missing health event %d", i)
		}
	}
	select {
	case h := <-health:
		t.Fatalf("unexpected health event for %d", h.conn.ID)
	case <-time.After(20 * time.Millisecond):
	}

	if healthy, ok := results[idle]; !ok || healthy {
		t.Fatalf("idle connection health = %v, %v", healthy, ok)
	}
	if healthy, ok := results[busy]; !ok || !healthy {
		t.Fatalf("busy connection health = %v, %v", healthy, ok)
	}
	if _, ok := results[dialing]; ok {
		t.Fatalf("connecting connection was swept")
	}

	info := wantState(t, eng, idle, StateDegraded)
	if info.LastError != wire.KindTimeout || info.ErrorCount != 1 {
		t.Fatalf("timeout raise missing: %+v", info)
	}
	wantState(t, eng, busy, StateEstablished)
	if got := eng.Metrics().Timeouts.Load(); got != 1 {
		t.Fatalf("Timeouts = %d", got)
	}
}

func TestRepeatedSweepsEscalate(t *testing.T) {
	eng, clock := newTestEngine(t, Config{ProtocolTimeout: 10 * time.Second})
	id := trackEstablished(t, eng, testSpec(1))

	// Each sweep past the deadline raises one more timeout until the
	// degraded budget runs out.
	clock.Advance(11 * time.Second)
	eng.RunHealthSweep()
	wantState(t, eng, id, StateDegraded)

	clock.Advance(11 * time.Second)
	eng.RunHealthSweep()
	wantState(t, eng, id, StateDegraded)

	clock.Advance(11 * time.Second)
	eng.RunHealthSweep()
	info := wantState(t, eng, id, StateError)
	if info.ErrorCount != 3 {
		t.Fatalf("ErrorCount = %d", info.ErrorCount)
	}

	stats := eng.Stats()
	if stats.TotalErrors != 3 {
		t.Fatalf("TotalErrors = %d", stats.TotalErrors)
	}
}

func TestSweepTimeoutClosesThroughReconnectExhaustion(t *testing.T) {
	eng, clock := newTestEngine(t, Config{
		ProtocolTimeout:      10 * time.Second,
		DegradedThreshold:    1,
		MaxReconnectAttempts: 1,
	})
	timers := &timerQueue{}
	eng.schedule = timers.schedule

	spec := testSpec(1)
	spec.Eligible = true
	id := trackEstablished(t, eng, spec)

	clock.Advance(11 * time.Second)
	eng.RunHealthSweep()
	wantState(t, eng, id, StateConnecting)

	// The redial never completes; the next timeout exhausts the budget.
	if err := eng.HandleError(id, wire.KindTimeout); err != nil {
		t.Fatalf("HandleError: %v", err)
	}
	if _, ok := eng.Lookup(id); ok {
		t.Fatalf("connection survived exhaustion")
	}
	stats := eng.Stats()
	if stats.TimeoutConnections != 1 {
		t.Fatalf("TimeoutConnections = %d", stats.TimeoutConnections)
	}
}

func TestMonitorLifecycle(t *testing.T) {
	eng, _ := newTestEngine(t, Config{
		HealthCheckInterval: time.Millisecond,
		MetricsInterval:     time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.StartMonitor(ctx); err != nil {
		t.Fatalf("StartMonitor: %v", err)
	}
	if !eng.MonitorActive() {
		t.Fatalf("monitor not active")
	}
	if err := eng.StartMonitor(ctx); !errors.Is(err, ErrMonitorRunning) {
		t.Fatalf("second StartMonitor = %v", err)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for eng.MonitorActive() {
		if time.Now().After(deadline) {
			t.Fatalf("monitor did not stop")
		}
		time.Sleep(time.Millisecond)
	}

	// A stopped monitor can be started again.
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	if err := eng.StartMonitor(ctx2); err != nil {
		t.Fatalf("restart StartMonitor: %v", err)
	}

	if err := eng.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if eng.MonitorActive() {
		t.Fatalf("monitor survived shutdown")
	}
	if err := eng.StartMonitor(context.Background()); !errors.Is(err, ErrShutdown) {
		t.Fatalf("StartMonitor after shutdown = %v", err)
	}
}
