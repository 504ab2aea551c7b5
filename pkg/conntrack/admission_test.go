package conntrack

import (
	"net/netip"
	"testing"
	"time"
)

func TestAdmissionDisabled(t *testing.T) {
	if a := newAdmission(0, 4, time.Now); a != nil {
		t.Fatalf("zero rate should disable admission")
	}
	if a := newAdmission(-1, 4, time.Now); a != nil {
		t.Fatalf("negative rate should disable admission")
	}
}

func TestAdmissionRate(t *testing.T) {
	clock := newTestClock()
	a := newAdmission(2, 1, clock.Now)
	addr := netip.MustParseAddr("192.0.2.1")

	if !a.allow(addr) {
		t.Fatalf("first admit rejected")
	}
	if a.allow(addr) {
		t.Fatalf("admit above rate accepted")
	}

	// Half a second buys one more token at 2/s.
	clock.Advance(500 * time.Millisecond)
	if !a.allow(addr) {
		t.Fatalf("refilled admit rejected")
	}
	if a.allow(addr) {
		t.Fatalf("admit above rate accepted after refill")
	}
}

func TestAdmissionBurst(t *testing.T) {
	clock := newTestClock()
	a := newAdmission(1, 3, clock.Now)
	addr := netip.MustParseAddr("192.0.2.1")

	// A long idle period cannot bank more than the burst.
	if !a.allow(addr) {
		t.Fatalf("first admit rejected")
	}
	clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		if !a.allow(addr) {
			t.Fatalf("burst admit %d rejected", i)
		}
	}
	if a.allow(addr) {
		t.Fatalf("admit beyond burst accepted")
	}
}

func TestAdmissionPerSource(t *testing.T) {
	clock := newTestClock()
	a := newAdmission(1, 1, clock.Now)

	if !a.allow(netip.MustParseAddr("192.0.2.1")) {
		t.Fatalf("first source rejected")
	}
	if !a.allow(netip.MustParseAddr("192.0.2.2")) {
		t.Fatalf("second source rejected")
	}
	if a.allow(netip.MustParseAddr("192.0.2.1")) {
		t.Fatalf("first source admitted above rate")
	}
}

func TestAdmissionPrunesIdleBuckets(t *testing.T) {
	clock := newTestClock()
	a := newAdmission(1, 1, clock.Now)

	a.allow(netip.MustParseAddr("192.0.2.1"))
	a.allow(netip.MustParseAddr("192.0.2.2"))
	if len(a.buckets) != 2 {
		t.Fatalf("buckets = %d", len(a.buckets))
	}

	clock.Advance(admissionIdle + time.Second)
	a.allow(netip.MustParseAddr("192.0.2.3"))
	if len(a.buckets) != 1 {
		t.Fatalf("stale buckets survived: %d", len(a.buckets))
	}
}
