package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "test-secret")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Auth.TokenTTLMinutes != 30 {
		t.Fatalf("expected default ttl 30, got %d", cfg.Auth.TokenTTLMinutes)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("expected default driver postgres, got %s", cfg.Database.Driver)
	}
	if cfg.Server.Addr() != "0.0.0.0:8000" {
		t.Fatalf("unexpected addr %s", cfg.Server.Addr())
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when AUTH_SECRET is empty")
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	if err := os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("AUTH_SECRET", "test-secret")
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Fatalf("expected overlay port 9100, got %d", cfg.Server.Port)
	}
}
