package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type loaderFixture struct {
	Name    string   `json:"name" toml:"name"`
	Timeout Duration `json:"timeout" toml:"timeout"`
	Count   int      `json:"count" toml:"count"`
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	return path
}

func TestDecodeJSON(t *testing.T) {
	var out loaderFixture
	err := DecodeJSON([]byte(`{"name":"edge","timeout":"30s","count":4}`), &out)
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if out.Name != "edge" || out.Timeout.Duration != 30*time.Second || out.Count != 4 {
		t.Fatalf("decoded %+v", out)
	}
}

func TestDecodeJSONUnknownField(t *testing.T) {
	var out loaderFixture
	err := DecodeJSON([]byte(`{"name":"edge","nope":1}`), &out)
	if err == nil {
		t.Fatalf("unknown field accepted")
	}
}

func TestLoadJSONFile(t *testing.T) {
	path := writeTemp(t, "cfg.json", `{"name":"edge","timeout":"1m"}`)
	var out loaderFixture
	if err := LoadJSONFile(path, &out); err != nil {
		t.Fatalf("LoadJSONFile: %v", err)
	}
	if out.Timeout.Duration != time.Minute {
		t.Fatalf("decoded %+v", out)
	}

	if err := LoadJSONFile(filepath.Join(t.TempDir(), "missing.json"), &out); err == nil {
		t.Fatalf("missing file accepted")
	}
}

func TestDecodeTOML(t *testing.T) {
	var out loaderFixture
	err := DecodeTOML([]byte("name = \"edge\"\ntimeout = \"30s\"\ncount = 4\n"), &out)
	if err != nil {
		t.Fatalf("DecodeTOML: %v", err)
	}
	if out.Name != "edge" || out.Timeout.Duration != 30*time.Second || out.Count != 4 {
		t.Fatalf("decoded %+v", out)
	}
}

func TestDecodeTOMLUnknownKey(t *testing.T) {
	var out loaderFixture
	err := DecodeTOML([]byte("name = \"edge\"\nnope = 1\n"), &out)
	if err == nil {
		t.Fatalf("unknown key accepted")
	}
}

func TestLoadTOMLFile(t *testing.T) {
	path := writeTemp(t, "cfg.toml", "name = \"edge\"\ntimeout = \"90s\"\n")
	var out loaderFixture
	if err := LoadTOMLFile(path, &out); err != nil {
		t.Fatalf("LoadTOMLFile: %v", err)
	}
	if out.Timeout.Duration != 90*time.Second {
		t.Fatalf("decoded %+v", out)
	}

	if err := LoadTOMLFile(filepath.Join(t.TempDir(), "missing.toml"), &out); err == nil {
		t.Fatalf("missing file accepted")
	}
}
