package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Explorer.Source != SourceAPI {
		t.Errorf("source = %q, want %q", cfg.Explorer.Source, SourceAPI)
	}
	if cfg.Explorer.FallbackSize != 30 || cfg.Explorer.MockSize != 50 {
		t.Errorf("fallback/mock = %d/%d, want 30/50", cfg.Explorer.FallbackSize, cfg.Explorer.MockSize)
	}
	if cfg.Explorer.FetchTimeout != 10*time.Second {
		t.Errorf("fetch_timeout = %v", cfg.Explorer.FetchTimeout)
	}
	if cfg.Reliability.RetryAttempts != 3 || cfg.Reliability.CBTimeout != 30*time.Second {
		t.Errorf("reliability = %+v", cfg.Reliability)
	}
	if cfg.Auth.PublicKey != nil {
		t.Errorf("public key must be empty without a path")
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 9100
explorer:
  source: postgres
  fetch_timeout: 3s
seed:
  count: 20
`)
	t.Setenv("SEED_BATCH_SIZE", "7")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 9100 || cfg.Explorer.Source != SourcePostgres {
		t.Errorf("file values not applied: port=%d source=%q", cfg.Server.Port, cfg.Explorer.Source)
	}
	if cfg.Explorer.FetchTimeout != 3*time.Second {
		t.Errorf("fetch_timeout = %v", cfg.Explorer.FetchTimeout)
	}
	if cfg.Seed.Count != 20 || cfg.Seed.BatchSize != 7 {
		t.Errorf("seed = %+v, want count 20 batch 7", cfg.Seed)
	}
}

func TestLoadConfigMockModeWins(t *testing.T) {
	dir := writeConfig(t, "explorer:\n  mock_mode: true\n  source: api\n")
	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Explorer.Source != SourceMock {
		t.Errorf("source = %q, want mock", cfg.Explorer.Source)
	}
}

func TestLoadConfigUnknownSource(t *testing.T) {
	dir := writeConfig(t, "explorer:\n  source: kafka\n")
	if _, err := LoadConfig(dir); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestLoadKeyResourcePrefersEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pub.pem")
	if err := os.WriteFile(path, []byte("from-file"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := string(loadKeyResource(path, "TEST_KEY_DATA_UNSET")); got != "from-file" {
		t.Errorf("file key = %q", got)
	}
	t.Setenv("TEST_KEY_DATA", "from-env")
	if got := string(loadKeyResource(path, "TEST_KEY_DATA")); got != "from-env" {
		t.Errorf("env key = %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	for _, cfg := range []LoggerConfig{{Level: "debug", Format: "console"}, {Level: "warn", Format: "json"}} {
		if _, err := NewLogger(cfg); err != nil {
			t.Errorf("NewLogger(%+v): %v", cfg, err)
		}
	}
	if _, err := NewLogger(LoggerConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewLogger(LoggerConfig{Level: "info", Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}
