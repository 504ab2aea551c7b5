package conntrack

import (
	"strings"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	cfg, err := Config{}.normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Capacity != defaultCapacity {
		t.Fatalf("Capacity = %d", cfg.Capacity)
	}
	if cfg.HealthCheckInterval != defaultHealthCheckInterval {
		t.Fatalf("HealthCheckInterval = %v", cfg.HealthCheckInterval)
	}
	if cfg.ProtocolTimeout != defaultProtocolTimeout {
		t.Fatalf("ProtocolTimeout = %v", cfg.ProtocolTimeout)
	}
	if cfg.DegradedThreshold != defaultDegradedThreshold {
		t.Fatalf("DegradedThreshold = %d", cfg.DegradedThreshold)
	}
	if cfg.MaxReconnectAttempts != defaultMaxReconnectAttempts {
		t.Fatalf("MaxReconnectAttempts = %d", cfg.MaxReconnectAttempts)
	}
	if cfg.ReconnectDelay != defaultReconnectDelay {
		t.Fatalf("ReconnectDelay = %v", cfg.ReconnectDelay)
	}
	if cfg.ReconnectDelayMax != defaultReconnectDelayMax {
		t.Fatalf("ReconnectDelayMax = %v", cfg.ReconnectDelayMax)
	}
	if cfg.EventQueueSize != defaultEventQueueSize {
		t.Fatalf("EventQueueSize = %d", cfg.EventQueueSize)
	}
	if cfg.Detector == nil || cfg.Codecs == nil || cfg.Logger == nil {
		t.Fatalf("normalize left nil components")
	}
	if cfg.DisableAutoReconnect {
		t.Fatalf("DisableAutoReconnect should default off")
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero config", Config{}, false},
		{"explicit values", Config{Capacity: 128, DegradedThreshold: 1}, false},
		{"negative capacity", Config{Capacity: -1}, true},
		{"negative health interval", Config{HealthCheckInterval: -time.Second}, true},
		{"negative protocol timeout", Config{ProtocolTimeout: -time.Second}, true},
		{"negative degraded threshold", Config{DegradedThreshold: -3}, true},
		{"negative max reconnects", Config{MaxReconnectAttempts: -1}, true},
		{"negative reconnect delay", Config{ReconnectDelay: -time.Second}, true},
		{"negative reconnect delay max", Config{ReconnectDelayMax: -time.Second}, true},
		{"negative event queue", Config{EventQueueSize: -1}, true},
		{"negative admit rate", Config{AdmitPerSecond: -1}, true},
		{"negative admit burst", Config{AdmitBurst: -1}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.cfg.normalize()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				if !strings.HasPrefix(err.Error(), invalidConfigPrefix) {
					t.Fatalf("error %q misses prefix %q", err, invalidConfigPrefix)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigDelayClamp(t *testing.T) {
	cfg, err := Config{ReconnectDelay: 10 * time.Second, ReconnectDelayMax: 2 * time.Second}.normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.ReconnectDelayMax != cfg.ReconnectDelay {
		t.Fatalf("ReconnectDelayMax = %v, want %v", cfg.ReconnectDelayMax, cfg.ReconnectDelay)
	}
}
