package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// LoadTOMLFile reads a TOML file into the provided struct pointer.
// Unknown keys are rejected.
func LoadTOMLFile(path string, out any) error {
	meta, err := toml.DecodeFile(path, out)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("decode config: unknown key %q", undecoded[0].String())
	}
	return nil
}

// DecodeTOML unmarshals TOML data into the provided struct pointer.
func DecodeTOML(data []byte, out any) error {
	meta, err := toml.Decode(string(data), out)
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("decode config: unknown key %q", undecoded[0].String())
	}
	return nil
}
