package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	for _, key := range []string{"CONFIG_FILE", "PORT", "DB_DRIVER", "DB_DSN", "DEBUG"} {
		t.Setenv(key, "")
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", cfg.Database.Driver)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected port 8080, got %q", cfg.Port)
	}
}

func TestLoadFileExpandsEnv(t *testing.T) {
	t.Setenv("BROKERAGE_DSN", "file:test.db")
	path := writeConfig(t, `
env: staging
port: "9090"
shutdown_timeout: 10s
database:
  driver: sqlite
  dsn: ${BROKERAGE_DSN}
rate_limits:
  orders: 60
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "staging" {
		t.Fatalf("expected env staging, got %q", cfg.Env)
	}
	if cfg.Database.DSN != "file:test.db" {
		t.Fatalf("expected expanded dsn, got %q", cfg.Database.DSN)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected 10s shutdown timeout, got %v", cfg.ShutdownTimeout)
	}
	if cfg.RateLimits.Orders != 60 {
		t.Fatalf("expected orders limit 60, got %v", cfg.RateLimits.Orders)
	}
	// untouched keys keep their defaults
	if cfg.Database.MaxIdleConns != 2 {
		t.Fatalf("expected default max idle conns, got %d", cfg.Database.MaxIdleConns)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("DEBUG", "true")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://localhost/brokerage")

	cfg, err := Load(writeConfig(t, "port: \"9090\"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("expected env port to win, got %q", cfg.Port)
	}
	if !cfg.Debug {
		t.Fatalf("expected debug enabled")
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://localhost/brokerage" {
		t.Fatalf("unexpected database config: %+v", cfg.Database)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	if _, err := Load(writeConfig(t, "database:\n  driver: oracle\n  dsn: x\n")); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestLoadRejectsBadDebugValue(t *testing.T) {
	t.Setenv("DEBUG", "sometimes")
	if _, err := Load(writeConfig(t, "env: test\n")); err == nil {
		t.Fatalf("expected error for invalid DEBUG")
	}
}
