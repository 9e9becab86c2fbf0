package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"server":{"recvPort":9977,"ack":true},"store":{"backend":"memory"}}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.RecvPort != 9977 || !cfg.Server.Ack {
		t.Fatalf("file values not applied: %+v", cfg.Server)
	}
	if cfg.Server.SendPort != 8878 || cfg.Server.SyncPort != 8866 || cfg.Server.QueueSize != 200 {
		t.Fatalf("defaults not applied: %+v", cfg.Server)
	}
	if cfg.TickInterval() != 50*time.Millisecond {
		t.Fatalf("expected 50ms tick, got %v", cfg.TickInterval())
	}
	if cfg.FreshnessWindow() != 100*time.Second {
		t.Fatalf("expected 100s window, got %v", cfg.FreshnessWindow())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"server":`},
		{"unknown backend", `{"store":{"backend":"mongo"}}`},
		{"postgres without url", `{"store":{"backend":"postgres"}}`},
		{"zero tick rate", `{"server":{"tickRate":0}}`},
		{"port out of range", `{"server":{"syncPort":70000}}`},
		{"unknown log level", `{"server":{"logLevel":"LOUD"}}`},
		{"zero queue", `{"server":{"queueSize":0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestCreateExampleConfigFileRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	CreateExampleConfigFile(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("example config should load: %v", err)
	}
	if cfg.Store.Backend != "redis" || cfg.Admin.Addr == "" {
		t.Fatalf("unexpected example config %+v", cfg)
	}

	// A second call must not overwrite an edited file.
	if err := os.WriteFile(path, []byte(`{"store":{"backend":"memory"}}`), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	CreateExampleConfigFile(path)
	cfg, err = Load(path)
	if err != nil || cfg.Store.Backend != "memory" {
		t.Fatalf("existing file was overwritten: %v %+v", err, cfg)
	}
}
