package conntrack

import (
	"time"

	"github.com/palisade/palisade/pkg/wire"
)

// errorLogLimiter keeps repeated error logs from flooding the output: one
// line per error kind per interval, with a burst of one. The key space is
// the taxonomy, so the table stays bounded. Called under the engine mutex.
type errorLogLimiter struct {
	interval time.Duration
	burst    float64
	buckets  map[wire.ErrorKind]*logBucket
}

type logBucket struct {
	last   time.Time
	tokens float64
}

func newErrorLogLimiter(interval time.Duration) *errorLogLimiter {
	if interval <= 0 {
		interval = defaultErrorLogInterval
	}
	return &errorLogLimiter{
		interval: interval,
		burst:    1,
		buckets:  make(map[wire.ErrorKind]*logBucket),
	}
}

func (l *errorLogLimiter) allow(kind wire.ErrorKind, now time.Time) bool {
	b := l.buckets[kind]
	if b == nil {
		b = &logBucket{last: now, tokens: l.burst}
		l.buckets[kind] = b
	}
	elapsed := now.Sub(b.last)
	b.last = now
	if elapsed > 0 {
		b.tokens += elapsed.Seconds() / l.interval.Seconds()
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
