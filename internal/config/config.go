// Package config loads the server and client TOML configuration files,
// in the search-path-plus-defaults idiom used for the CLI's own
// config.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Server is the configuration for cmd/wosim-server.
type Server struct {
	ListenAddr     string `toml:"listen_addr"`
	DatabasePath   string `toml:"database_path"`
	TickPeriodMS   int64  `toml:"tick_period_ms"`
	MailboxSize    int    `toml:"mailbox_size"`
	ConnBufferSize int    `toml:"conn_buffer_size"`
	MaxMessageSize int    `toml:"max_message_size"`
	MetricsAddr    string `toml:"metrics_addr"`
	LogLevel       string `toml:"log_level"`
	LogPretty      bool   `toml:"log_pretty"`

	RegionSize     float32 `toml:"region_size"`
	WorldSize      float32 `toml:"world_size"`
	StaticDistance uint32  `toml:"static_distance"`
	FullDistance   uint32  `toml:"full_distance"`
}

// DefaultServer matches the defaults named in the external interfaces:
// port 2021, tick period 50ms, mailbox 64, per-connection buffer 16,
// size limit 16 MiB.
func DefaultServer() Server {
	return Server{
		ListenAddr:     ":2021",
		DatabasePath:   "world.db",
		TickPeriodMS:   50,
		MailboxSize:    64,
		ConnBufferSize: 16,
		MaxMessageSize: 16 << 20,
		MetricsAddr:    ":9090",
		LogLevel:       "info",
		LogPretty:      true,
		RegionSize:     32,
		WorldSize:      4096,
		StaticDistance: 4,
		FullDistance:   2,
	}
}

// Client is the configuration for cmd/wosim-client.
type Client struct {
	ServerAddr     string `toml:"server_addr"`
	MaxMessageSize int    `toml:"max_message_size"`
	LogLevel       string `toml:"log_level"`
	LogPretty      bool   `toml:"log_pretty"`
	DebugUI        bool   `toml:"debug_ui"`
}

// DefaultClient returns the client defaults.
func DefaultClient() Client {
	return Client{
		ServerAddr:     "127.0.0.1:2021",
		MaxMessageSize: 16 << 20,
		LogLevel:       "info",
		LogPretty:      true,
		DebugUI:        true,
	}
}

// LoadServer reads path into a Server seeded with defaults. A missing
// file is not an error: the defaults are returned as-is.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	if err := load(path, &cfg); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// LoadClient reads path into a Client seeded with defaults.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if err := load(path, &cfg); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func load(path string, into any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Save writes cfg to path as TOML, creating parent directories as
// needed.
func Save(path string, cfg any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
