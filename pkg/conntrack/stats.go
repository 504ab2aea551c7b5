package conntrack

import (
	"sort"
	"time"

	"github.com/palisade/palisade/pkg/wire"
)

// ErrorStat aggregates one error kind.
type ErrorStat struct {
	Kind wire.ErrorKind `json:"kind"`
	// Occurrences counts every raise of this kind since the last reset.
	Occurrences uint64    `json:"occurrences"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	// AffectedConns counts distinct connections that raised this kind at
	// least once since the last reset.
	AffectedConns int `json:"affected_conns"`
}

// Stats is a point-in-time snapshot of the engine counters.
type Stats struct {
	EngineID        string `json:"engine_id"`
	ConnectionCount int    `json:"connection_count"`

	TotalConnections      uint64 `json:"total_connections"`
	SuccessfulConnections uint64 `json:"successful_connections"`
	FailedConnections     uint64 `json:"failed_connections"`
	TimeoutConnections    uint64 `json:"timeout_connections"`
	TotalBytes            uint64 `json:"total_bytes"`
	TotalErrors           uint64 `json:"total_errors"`

	// SuccessRate is successful/(successful+failed) over terminated
	// outcomes; 0 until a connection succeeds or fails.
	SuccessRate float64 `json:"success_rate"`
	// ErrorRate is errors raised per tracked connection.
	ErrorRate float64 `json:"error_rate"`

	PerKind []ErrorStat `json:"per_kind,omitempty"`
}

type kindStat struct {
	stat ErrorStat
	seen map[ConnID]struct{}
}

// statsTable lives under the engine mutex.
type statsTable struct {
	perKind map[wire.ErrorKind]*kindStat

	totalConnections      uint64
	successfulConnections uint64
	failedConnections     uint64
	timeoutConnections    uint64
	totalBytes            uint64
	totalErrors           uint64
}

func newStatsTable() *statsTable {
	return &statsTable{
		perKind: make(map[wire.ErrorKind]*kindStat),
	}
}

func (t *statsTable) recordError(kind wire.ErrorKind, id ConnID, now time.Time) {
	t.totalErrors++
	ks, ok := t.perKind[kind]
	if !ok {
		ks = &kindStat{
			stat: ErrorStat{Kind: kind, FirstSeen: now},
			seen: make(map[ConnID]struct{}),
		}
		t.perKind[kind] = ks
	}
	ks.stat.Occurrences++
	ks.stat.LastSeen = now
	if _, dup := ks.seen[id]; !dup {
		ks.seen[id] = struct{}{}
		ks.stat.AffectedConns++
	}
}

func (t *statsTable) snapshot(engineID string, connCount int) Stats {
	s := Stats{
		EngineID:              engineID,
		ConnectionCount:       connCount,
		TotalConnections:      t.totalConnections,
		SuccessfulConnections: t.successfulConnections,
		FailedConnections:     t.failedConnections,
		TimeoutConnections:    t.timeoutConnections,
		TotalBytes:            t.totalBytes,
		TotalErrors:           t.totalErrors,
	}
	if terminated := t.successfulConnections + t.failedConnections; terminated > 0 {
		s.SuccessRate = float64(t.successfulConnections) / float64(terminated)
	}
	if t.totalConnections > 0 {
		s.ErrorRate = float64(t.totalErrors) / float64(t.totalConnections)
	}
	s.PerKind = make([]ErrorStat, 0, len(t.perKind))
	for _, ks := range t.perKind {
		s.PerKind = append(s.PerKind, ks.stat)
	}
	sort.Slice(s.PerKind, func(i, j int) bool { return s.PerKind[i].Kind < s.PerKind[j].Kind })
	return s
}

func (t *statsTable) reset() {
	t.perKind = make(map[wire.ErrorKind]*kindStat)
	t.totalConnections = 0
	t.successfulConnections = 0
	t.failedConnections = 0
	t.timeoutConnections = 0
	t.totalBytes = 0
	t.totalErrors = 0
}
