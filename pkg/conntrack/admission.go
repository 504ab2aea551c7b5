package conntrack

import (
	"net/netip"
	"sync"
	"time"
)

const admissionIdle = 10 * time.Second

// admission rate-limits Track per remote address with a token bucket per
// source. Stale buckets are pruned inline, so no background goroutine is
// needed.
type admission struct {
	mu        sync.Mutex
	timeNow   func() time.Time
	cost      int64
	maxTokens int64
	buckets   map[netip.Addr]*admissionBucket
	lastPrune time.Time
}

type admissionBucket struct {
	last   time.Time
	tokens int64
}

func newAdmission(perSecond, burst int, timeNow func() time.Time) *admission {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	cost := int64(time.Second) / int64(perSecond)
	return &admission{
		timeNow:   timeNow,
		cost:      cost,
		maxTokens: cost * int64(burst),
		buckets:   make(map[netip.Addr]*admissionBucket),
	}
}

func (a *admission) allow(addr netip.Addr) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.timeNow()
	if now.Sub(a.lastPrune) > admissionIdle {
		for key, b := range a.buckets {
			if now.Sub(b.last) > admissionIdle {
				delete(a.buckets, key)
			}
		}
		a.lastPrune = now
	}

	b, ok := a.buckets[addr]
	if !ok {
		a.buckets[addr] = &admissionBucket{
			last:   now,
			tokens: a.maxTokens - a.cost,
		}
		return true
	}

	b.tokens += now.Sub(b.last).Nanoseconds()
	b.last = now
	if b.tokens > a.maxTokens {
		b.tokens = a.maxTokens
	}
	if b.tokens < a.cost {
		return false
	}
	b.tokens -= a.cost
	return true
}
