// Package config loads dialogview configuration from an optional YAML
// file overlaid with DIALOGVIEW_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Gateway GatewayConfig `koanf:"gateway"`
	Dialog  DialogConfig  `koanf:"dialog"`
	Journal JournalConfig `koanf:"journal"`
	Roster  RosterConfig  `koanf:"roster"`
	Log     LogConfig     `koanf:"log"`
}

// ServerConfig configures the debug/ops HTTP surface.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// GatewayConfig locates the dialog gateway event stream.
type GatewayConfig struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
}

// DialogConfig names the dialog to navigate into at startup. When RootID
// is empty the viewer starts idle and suppresses the stream until it is
// navigated by other means.
type DialogConfig struct {
	RootID  string `koanf:"root_id"`
	SelfID  string `koanf:"self_id"`
	AgentID string `koanf:"agent_id"`
	Course  int    `koanf:"course"`
}

// JournalConfig configures frame journaling. An empty path disables it.
type JournalConfig struct {
	Path string `koanf:"path"`
}

// RosterConfig locates the team roster file. Optional.
type RosterConfig struct {
	Path string `koanf:"path"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// Load reads configuration from path (ignored when the file does not
// exist) and the environment. Environment keys map as
// DIALOGVIEW_GATEWAY_URL -> gateway.url.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("DIALOGVIEW_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "DIALOGVIEW_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	// Default values
	if !k.Exists("server.addr") {
		k.Set("server.addr", ":7600")
	}
	if !k.Exists("log.level") {
		k.Set("log.level", "info")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Gateway.URL == "" {
		return nil, fmt.Errorf("gateway.url is required (set DIALOGVIEW_GATEWAY_URL or configure it in a config file)")
	}

	return &cfg, nil
}
