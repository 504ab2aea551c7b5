package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so config files can spell durations as
// strings like "5s" or "2m". It satisfies the JSON and text interfaces,
// which covers both the JSON and TOML loaders.
type Duration struct {
	time.Duration
}

// UnmarshalJSON parses a duration string like "5s" or "2m".
func (d *Duration) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.set(raw)
}

// MarshalJSON encodes the duration as its string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// UnmarshalText parses a duration string. TOML decoding uses this.
func (d *Duration) UnmarshalText(text []byte) error {
	return d.set(string(text))
}

// MarshalText encodes the duration as its string form.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) set(raw string) error {
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// String returns the duration string.
func (d Duration) String() string {
	return d.Duration.String()
}
