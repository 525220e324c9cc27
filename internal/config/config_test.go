// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
backend:
  base_url: "http://localhost:8080"
  token: "secret"
  timeout: "15s"

agent:
  url: "http://localhost:9090/generate"
  timeout: "90s"

server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"
  token_ttl: "12h"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.BaseURL != "http://localhost:8080" {
		t.Errorf("Backend.BaseURL = %q, want %q", cfg.Backend.BaseURL, "http://localhost:8080")
	}
	if cfg.Backend.Timeout != 15*time.Second {
		t.Errorf("Backend.Timeout = %v, want 15s", cfg.Backend.Timeout)
	}
	if cfg.Agent.URL != "http://localhost:9090/generate" {
		t.Errorf("Agent.URL = %q, want %q", cfg.Agent.URL, "http://localhost:9090/generate")
	}
	if cfg.Agent.Timeout != 90*time.Second {
		t.Errorf("Agent.Timeout = %v, want 90s", cfg.Agent.Timeout)
	}
	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "test-secret")
	}
	if cfg.Auth.TokenTTL != 12*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 12h", cfg.Auth.TokenTTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("SESSION_TEST_TOKEN", "expanded-token")

	configPath := writeConfig(t, `
backend:
  base_url: "http://localhost:8080"
  token: "${SESSION_TEST_TOKEN}"
database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Token != "expanded-token" {
		t.Errorf("Backend.Token = %q, want %q", cfg.Backend.Token, "expanded-token")
	}
}

func TestLoad_UnsetEnvVarExpandsEmpty(t *testing.T) {
	configPath := writeConfig(t, `
backend:
  token: "${SESSION_DEFINITELY_UNSET_VAR}"
database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Token != "" {
		t.Errorf("Backend.Token = %q, want empty", cfg.Backend.Token)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("Backend.Timeout = %v, want default 30s", cfg.Backend.Timeout)
	}
	if cfg.Agent.Timeout != 2*time.Minute {
		t.Errorf("Agent.Timeout = %v, want default 2m", cfg.Agent.Timeout)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want default 24h", cfg.Auth.TokenTTL)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Errorf("Server.HTTPAddr = %q, want default :8080", cfg.Server.HTTPAddr)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %q/%q, want info/text", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
backend:
  timeout: "not-a-duration"
database:
  path: "./test.db"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "backend.timeout") {
		t.Errorf("error %q should mention backend.timeout", err)
	}
}

func TestLoad_MissingDatabasePath(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "info"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for missing database.path")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("error %q should mention database.path", err)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"
logging:
  level: "loud"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid logging.level")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}
