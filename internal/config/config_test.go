package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("agent:\n  model: claude-opus-4-1\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Provider.Name != "anthropic" {
		t.Errorf("provider = %q", cfg.Provider.Name)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("storage backend = %q", cfg.Storage.Backend)
	}
	if cfg.Files.Backend != "noop" {
		t.Errorf("files backend = %q", cfg.Files.Backend)
	}
	if cfg.Agent.Model != "claude-opus-4-1" {
		t.Errorf("model = %q", cfg.Agent.Model)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("PRAXIS_TEST_DSN", "postgres://localhost/praxis")

	path := filepath.Join(t.TempDir(), "praxis.yaml")
	body := "storage:\n  backend: sql\n  url: ${PRAXIS_TEST_DSN}\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.URL != "postgres://localhost/praxis" {
		t.Errorf("url = %q", cfg.Storage.URL)
	}
}

func TestValidateRejectsBadBackends(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown provider", "provider:\n  name: gemini\n"},
		{"file without path", "storage:\n  backend: file\n"},
		{"sql without url", "storage:\n  backend: sql\n"},
		{"unknown files backend", "files:\n  backend: gcs\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.body)); err == nil {
				t.Errorf("config accepted: %s", tc.body)
			}
		})
	}
}
