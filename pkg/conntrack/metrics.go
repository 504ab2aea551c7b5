package conntrack

import (
	"github.com/palisade/palisade/pkg/commons/metrics"
)

// EngineMetrics captures engine counters for the metrics log line. All
// fields are safe to read concurrently.
type EngineMetrics struct {
	ActiveConns         metrics.Gauge
	Tracked             metrics.Counter
	Closed              metrics.Counter
	AdmissionRejects    metrics.Counter
	RecoverableErrors   metrics.Counter
	FatalErrors         metrics.Counter
	Timeouts            metrics.Counter
	ReconnectsScheduled metrics.Counter
	ReconnectsFired     metrics.Counter
	CallbackDrops       metrics.Counter
	SweepDuration       *metrics.Sampler
}

func newEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		SweepDuration: metrics.NewSampler(sweepSampleSize),
	}
}
