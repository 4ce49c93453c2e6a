package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon and client configuration, read from a TOML file.
type Config struct {
	Server Server `toml:"server"`
	WS     WS     `toml:"ws"`
	Client Client `toml:"client"`
}

// Server configures the HTTP/WebSocket daemon.
type Server struct {
	ListenAddr     string   `toml:"listen_addr"`
	DataDir        string   `toml:"data_dir"`
	JWTSecret      string   `toml:"jwt_secret"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// WS tunes the per-connection WebSocket pumps.
type WS struct {
	WriteWait      duration `toml:"write_wait"`
	PongWait       duration `toml:"pong_wait"`
	PingInterval   duration `toml:"ping_interval"`
	MaxMessageSize int64    `toml:"max_message_size"`
}

// Client configures the realtime connection manager.
type Client struct {
	URL                  string   `toml:"url"`
	ConnectTimeout       duration `toml:"connect_timeout"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
	ReconnectDelay       duration `toml:"reconnect_delay"`
	ReconnectDelayMax    duration `toml:"reconnect_delay_max"`
}

// duration lets TOML carry values like "20s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration. The reconnect policy mirrors
// the platform client: five attempts, delay growing from 1s, capped at 5s,
// 20s handshake timeout.
func Default() *Config {
	return &Config{
		Server: Server{
			ListenAddr:     ":5000",
			DataDir:        defaultDataDir(),
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		WS: WS{
			WriteWait:      duration{10 * time.Second},
			PongWait:       duration{60 * time.Second},
			PingInterval:   duration{30 * time.Second},
			MaxMessageSize: 64 * 1024,
		},
		Client: Client{
			URL:                  "ws://localhost:5000/ws",
			ConnectTimeout:       duration{20 * time.Second},
			MaxReconnectAttempts: 5,
			ReconnectDelay:       duration{time.Second},
			ReconnectDelayMax:    duration{5 * time.Second},
		},
	}
}

// Load reads config from path, merging it over the defaults. A missing file
// is an error; use Default directly when no file is expected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must not be empty")
	}
	if c.Client.MaxReconnectAttempts < 0 {
		return fmt.Errorf("config: client.max_reconnect_attempts must not be negative")
	}
	return nil
}

// DBPath returns the SQLite database path under the data dir.
func (s Server) DBPath() string {
	return filepath.Join(s.DataDir, "messaging.db")
}

// LogPath returns the daemon log file path under the data dir.
func (s Server) LogPath() string {
	return filepath.Join(s.DataDir, "messagingd.log")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".messaging"
	}
	return filepath.Join(home, ".messaging")
}
