package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultServerURL  = "http://localhost:8000"
	DefaultGatewayURL = "ws://localhost:8000/ws"
	defaultDataDir    = ".chat-session"
)

// Duration is a time.Duration written as a Go duration string in TOML ("1s", "250ms")
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText writes the duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the client configuration
type Config struct {
	ServerURL  string          `toml:"server_url"`
	GatewayURL string          `toml:"gateway_url"`
	DataDir    string          `toml:"data_dir"`
	Reconnect  ReconnectConfig `toml:"reconnect"`
	Store      StoreConfig     `toml:"store"`
	Gateway    GatewayConfig   `toml:"gateway"`
}

// ReconnectConfig controls the socket backoff policy
type ReconnectConfig struct {
	BaseDelay   Duration `toml:"base_delay"`
	MaxDelay    Duration `toml:"max_delay"`
	MaxAttempts int      `toml:"max_attempts"`
}

// StoreConfig controls Session Store requests
type StoreConfig struct {
	// Timeout of zero leaves requests bounded only by the caller's context
	Timeout Duration `toml:"timeout"`
}

// GatewayConfig controls the socket transport
type GatewayConfig struct {
	HandshakeTimeout Duration `toml:"handshake_timeout"`
	WriteTimeout     Duration `toml:"write_timeout"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	dataDir := defaultDataDir
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, defaultDataDir)
	}
	return &Config{
		ServerURL:  DefaultServerURL,
		GatewayURL: DefaultGatewayURL,
		DataDir:    dataDir,
		Reconnect: ReconnectConfig{
			BaseDelay:   Duration{time.Second},
			MaxDelay:    Duration{10 * time.Second},
			MaxAttempts: 3,
		},
		Gateway: GatewayConfig{
			HandshakeTimeout: Duration{10 * time.Second},
			WriteTimeout:     Duration{10 * time.Second},
		},
	}
}

// DefaultConfigPath returns <data dir>/config.toml for the default data directory
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfig().DataDir, "config.toml")
}

// LoadConfig reads the TOML file at path on top of the defaults, then applies
// environment overrides. A missing file is not an error unless the path was given
// explicitly.
func LoadConfig(path string, explicit bool) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) || explicit {
				return nil, fmt.Errorf("failed to load config %s: %w", path, err)
			}
			LogDebug("No config file at %s, using defaults", path)
		} else {
			LogDebug("Loaded config from %s", path)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies CHAT_SESSION_* environment variables
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CHAT_SESSION_SERVER"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("CHAT_SESSION_GATEWAY"); v != "" {
		c.GatewayURL = v
	}
	if v := os.Getenv("CHAT_SESSION_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CHAT_SESSION_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Reconnect.MaxAttempts = n
		}
	}
}

// SetDefaults fills zero values left by a partial config file
func (c *Config) SetDefaults() {
	def := DefaultConfig()
	if c.ServerURL == "" {
		c.ServerURL = def.ServerURL
	}
	if c.GatewayURL == "" {
		c.GatewayURL = def.GatewayURL
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if strings.HasPrefix(c.DataDir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			c.DataDir = filepath.Join(home, c.DataDir[2:])
		}
	}
	if c.Reconnect.BaseDelay.Duration <= 0 {
		c.Reconnect.BaseDelay = def.Reconnect.BaseDelay
	}
	if c.Reconnect.MaxDelay.Duration <= 0 {
		c.Reconnect.MaxDelay = def.Reconnect.MaxDelay
	}
	if c.Gateway.HandshakeTimeout.Duration <= 0 {
		c.Gateway.HandshakeTimeout = def.Gateway.HandshakeTimeout
	}
	if c.Gateway.WriteTimeout.Duration <= 0 {
		c.Gateway.WriteTimeout = def.Gateway.WriteTimeout
	}
}

// Validate checks URLs and the retry budget
func (c *Config) Validate() error {
	if err := validateURL(c.ServerURL, "http", "https"); err != nil {
		return fmt.Errorf("server_url: %w", err)
	}
	if err := validateURL(c.GatewayURL, "ws", "wss"); err != nil {
		return fmt.Errorf("gateway_url: %w", err)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must not be negative")
	}
	if c.Reconnect.MaxDelay.Duration < c.Reconnect.BaseDelay.Duration {
		return fmt.Errorf("reconnect.max_delay must be at least reconnect.base_delay")
	}
	return nil
}

// CacheDir returns the directory of the local session cache
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// JournalPath returns the location of the delivery journal database
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "journal.db")
}

// LogPath returns the file logs go to during an interactive chat
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "chat.log")
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("missing host in %q", raw)
			}
			return nil
		}
	}
	return fmt.Errorf("scheme of %q must be one of %s", raw, strings.Join(schemes, ", "))
}
