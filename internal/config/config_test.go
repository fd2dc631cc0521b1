package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromFileWithEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dialogview.yaml")
	content := []byte(`
server:
  addr: ":9100"
gateway:
  url: ws://gw.internal:7500/events
  token: file-token
journal:
  path: ./frames.db
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DIALOGVIEW_GATEWAY_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":9100" {
		t.Errorf("server.addr = %q", cfg.Server.Addr)
	}
	if cfg.Gateway.URL != "ws://gw.internal:7500/events" {
		t.Errorf("gateway.url = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.Token != "env-token" {
		t.Errorf("gateway.token = %q, want env overlay to win", cfg.Gateway.Token)
	}
	if cfg.Journal.Path != "./frames.db" {
		t.Errorf("journal.path = %q", cfg.Journal.Path)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DIALOGVIEW_GATEWAY_URL", "ws://localhost:7500/events")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":7600" {
		t.Errorf("default server.addr = %q, want :7600", cfg.Server.Addr)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default log.level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadRequiresGatewayURL(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("Load() without gateway.url succeeded")
	}
}
