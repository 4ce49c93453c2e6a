package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultReconnectPolicy(t *testing.T) {
	cfg := Default()
	if cfg.Client.MaxReconnectAttempts != 5 {
		t.Errorf("max_reconnect_attempts = %d, want 5", cfg.Client.MaxReconnectAttempts)
	}
	if cfg.Client.ReconnectDelayMax.Duration != 5*time.Second {
		t.Errorf("reconnect_delay_max = %v, want 5s", cfg.Client.ReconnectDelayMax.Duration)
	}
	if cfg.Client.ConnectTimeout.Duration != 20*time.Second {
		t.Errorf("connect_timeout = %v, want 20s", cfg.Client.ConnectTimeout.Duration)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
listen_addr = ":9000"
jwt_secret = "test-secret"

[client]
connect_timeout = "3s"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen_addr = %q, want :9000", cfg.Server.ListenAddr)
	}
	if cfg.Client.ConnectTimeout.Duration != 3*time.Second {
		t.Errorf("connect_timeout = %v, want 3s", cfg.Client.ConnectTimeout.Duration)
	}
	// Untouched fields keep defaults.
	if cfg.Client.MaxReconnectAttempts != 5 {
		t.Errorf("max_reconnect_attempts = %d, want default 5", cfg.Client.MaxReconnectAttempts)
	}
	if cfg.WS.PongWait.Duration != 60*time.Second {
		t.Errorf("pong_wait = %v, want default 60s", cfg.WS.PongWait.Duration)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Server.ListenAddr = ":7777"

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.ListenAddr != ":7777" {
		t.Errorf("listen_addr = %q, want :7777", loaded.Server.ListenAddr)
	}
}
