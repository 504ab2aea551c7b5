package config

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDurationJSON(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"seconds", `"5s"`, 5 * time.Second, false},
		{"minutes", `"2m"`, 2 * time.Minute, false},
		{"compound", `"1h30m"`, 90 * time.Minute, false},
		{"empty string", `""`, 0, false},
		{"null", `null`, 0, false},
		{"bare number", `5`, 0, true},
		{"garbage", `"eleventy"`, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tc.in), &d)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Duration != tc.want {
				t.Fatalf("parsed %v, want %v", d.Duration, tc.want)
			}
		})
	}
}

func TestDurationMarshalRoundTrip(t *testing.T) {
	d := Duration{Duration: 90 * time.Second}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"1m30s"` {
		t.Fatalf("Marshal = %s", data)
	}

	var back Duration
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Duration != d.Duration {
		t.Fatalf("round trip = %v", back.Duration)
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("45s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Duration != 45*time.Second {
		t.Fatalf("parsed %v", d.Duration)
	}
	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(text) != "45s" {
		t.Fatalf("MarshalText = %s", text)
	}
	if d.String() != "45s" {
		t.Fatalf("String = %s", d.String())
	}
}
