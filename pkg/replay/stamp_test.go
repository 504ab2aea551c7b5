package replay

import (
	"testing"
	"time"
)

func TestStampMonotonic(t *testing.T) {
	startTime := time.Unix(0, 123456789)
	tests := []struct {
		name      string
		t1, t2    time.Time
		wantAfter bool
	}{
		{"after_10_ns", startTime, startTime.Add(10 * time.Nanosecond), false},
		{"after_10_us", startTime, startTime.Add(10 * time.Microsecond), false},
		{"after_1_ms", startTime, startTime.Add(time.Millisecond), false},
		{"after_10_ms", startTime, startTime.Add(10 * time.Millisecond), false},
		{"after_20_ms", startTime, startTime.Add(20 * time.Millisecond), true},
		{"after_1_s", startTime, startTime.Add(time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s1, s2 := StampAt(tt.t1), StampAt(tt.t2)
			got := s2.After(s1)
			if got != tt.wantAfter {
				t.Errorf("after = %v; want %v", got, tt.wantAfter)
			}
		})
	}
}

func TestStampTime(t *testing.T) {
	at := time.Unix(1700000000, 0)
	s := StampAt(at)
	back := s.Time()
	if !back.Equal(at) {
		t.Fatalf("Time() = %v, want %v", back, at)
	}
}

func TestStampStale(t *testing.T) {
	now := time.Unix(1700000000, 0)
	fresh := StampAt(now.Add(-30 * time.Second))
	old := StampAt(now.Add(-2 * time.Minute))

	if fresh.Stale(now, 90*time.Second) {
		t.Fatalf("fresh stamp reported stale")
	}
	if !old.Stale(now, 90*time.Second) {
		t.Fatalf("old stamp not reported stale")
	}

	// Zero validity selects the default.
	if fresh.Stale(now, 0) {
		t.Fatalf("fresh stamp stale under default validity")
	}
	if !old.Stale(now, 0) {
		t.Fatalf("old stamp not stale under default validity")
	}
}
