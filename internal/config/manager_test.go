package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
server:
  addr: ":9000"
  log_poll_interval: 500ms
insta:
  timeout: 45s
logging:
  level: debug
  console: true
  file:
    enabled: true
    path: /tmp/massdm.log
  stream:
    min_level: info
fetch:
  pages_per_sec: 1.5
storage:
  driver: sqlite
  path: /tmp/massdm.db
maintenance:
  keep_runs: 168h
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Insta.Timeout != "45s" {
		t.Fatalf("timeout = %q", cfg.Insta.Timeout)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if !cfg.Logging.File.Enabled || cfg.Logging.File.Path != "/tmp/massdm.log" {
		t.Fatalf("logging file = %+v", cfg.Logging.File)
	}
	if cfg.Fetch.PagesPerSec != 1.5 {
		t.Fatalf("pages_per_sec = %v", cfg.Fetch.PagesPerSec)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Maintenance.KeepRuns != "168h" {
		t.Fatalf("keep_runs = %q", cfg.Maintenance.KeepRuns)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get() should return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
  "server": {"addr": ":8000"},
  "insta": {},
  "logging": {"level": "info", "console": false, "file": {"enabled": false, "path": ""}, "stream": {}}
}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
server:
  addr: ":8000"
  lisen_addr: ":8001"
logging:
  level: info
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestStreamEnabledDefaultsTrue(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
  stream:
    min_level: info
`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Logging.Stream.IsEnabled() {
		t.Fatal("stream must default to enabled when omitted")
	}

	path = writeConfig(t, "config2.yaml", `
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
  stream:
    enabled: false
`)
	cfg, err = NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Stream.IsEnabled() {
		t.Fatal("explicit enabled: false must stick")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "1m30s"); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", ""); err == nil {
		t.Fatal("empty duration must fail")
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration must fail")
	}
	if _, err := ParseDurationField("x", "5 parsecs"); err == nil {
		t.Fatal("garbage must fail")
	}
	if d, err := ParseDurationOrDefault("x", "", 42*time.Second); err != nil || d != 42*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("wrong config delivered")
		}
	case <-time.After(time.Second):
		t.Fatal("no config delivered")
	}

	// A full buffer must not block publish.
	m.publish(cfg)
	m.publish(cfg)
}
