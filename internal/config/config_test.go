package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err == nil {
		t.Fatal("expected error for explicitly missing file")
	}

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load without file should fall back to defaults: %v", err)
	}
	if cfg.Name != "signalhub" || cfg.Environment != "development" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected default port: %d", cfg.Server.Port)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("default environment should be development")
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfigFile(t, `
environment: production
server:
  port: 9090
delivery:
  interval: 30s
artifact:
  rate_cap: 5
kvstore:
  redis:
    enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Environment != "production" {
		t.Fatalf("unexpected environment: %s", cfg.Environment)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("unexpected port: %d", cfg.Server.Port)
	}
	if cfg.Delivery.Interval != "30s" {
		t.Fatalf("unexpected interval: %s", cfg.Delivery.Interval)
	}
	if cfg.Artifact.RateCap != 5 {
		t.Fatalf("unexpected rate cap: %d", cfg.Artifact.RateCap)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
`)
	t.Setenv("SIGNALHUB_SERVER_PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("env should override file, got %d", cfg.Server.Port)
	}
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad environment", "environment: testing\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"bad interval", "delivery:\n  interval: soon\n"},
		{"bad log level", "logging:\n  level: loud\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfigFile(t, tc.content)
			if _, err := Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
