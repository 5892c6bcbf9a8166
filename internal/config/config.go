// ABOUTME: Configuration loading and parsing for auditlog-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete auditlog-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Dedupe    DedupeConfig    `yaml:"dedupe" toml:"dedupe"`
	Links     LinksConfig     `yaml:"links" toml:"links"`
	Notify    NotifyConfig    `yaml:"notify" toml:"notify"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds journal database configuration.
// An empty path keeps the log in memory only.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds the write key and admin token settings
type AuthConfig struct {
	AuthKey     string `yaml:"auth_key" toml:"auth_key"`
	AuthKeyFile string `yaml:"auth_key_file" toml:"auth_key_file"`
	JWTSecret   string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// DedupeConfig bounds the request id cache used for retried appends
type DedupeConfig struct {
	TTL        time.Duration `yaml:"-" toml:"-"`
	MaxEntries int           `yaml:"max_entries" toml:"max_entries"`

	// Raw string value for unmarshaling
	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// LinksConfig holds deep link configuration
type LinksConfig struct {
	// BaseURL is the external URL entry links point at. If not set it is
	// derived from server.http_addr.
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// NotifyConfig holds outbound notification integrations
type NotifyConfig struct {
	Matrix MatrixConfig `yaml:"matrix" toml:"matrix"`
}

// MatrixConfig holds Matrix notification configuration
type MatrixConfig struct {
	Enabled     bool     `yaml:"enabled" toml:"enabled"`
	Homeserver  string   `yaml:"homeserver" toml:"homeserver"`
	UserID      string   `yaml:"user_id" toml:"user_id"`
	AccessToken string   `yaml:"access_token" toml:"access_token"`
	RoomID      string   `yaml:"room_id" toml:"room_id"`
	Levels      []string `yaml:"levels" toml:"levels"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve HTTP over TLS with a Tailscale cert
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // expose HTTP publicly via Funnel (implies HTTPS)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Defaults applied to fields left unset.
const (
	DefaultGRPCAddr         = "localhost:50061"
	DefaultHTTPAddr         = "localhost:8090"
	DefaultDedupeTTL        = 10 * time.Minute
	DefaultDedupeMaxEntries = 100000
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// DefaultNotifyLevels are the entry levels forwarded to Matrix by default.
var DefaultNotifyLevels = []string{"ERROR"}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes raw configuration content. isTOML selects the TOML decoder.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// envVarPattern matches ${VAR_NAME}.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func (c *Config) applyDefaults() {
	if !c.Tailscale.Enabled {
		if c.Server.GRPCAddr == "" {
			c.Server.GRPCAddr = DefaultGRPCAddr
		}
		if c.Server.HTTPAddr == "" {
			c.Server.HTTPAddr = DefaultHTTPAddr
		}
	}
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = DefaultDedupeTTL
	}
	if c.Dedupe.MaxEntries == 0 {
		c.Dedupe.MaxEntries = DefaultDedupeMaxEntries
	}
	if len(c.Notify.Matrix.Levels) == 0 {
		c.Notify.Matrix.Levels = append([]string(nil), DefaultNotifyLevels...)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	c.Database.Path = expandHome(c.Database.Path)
	c.Auth.AuthKeyFile = expandHome(c.Auth.AuthKeyFile)
	c.Tailscale.StateDir = expandHome(c.Tailscale.StateDir)
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled {
		if c.Server.GRPCAddr == "" {
			return fmt.Errorf("server.grpc_addr is required (or enable tailscale)")
		}
		if c.Server.HTTPAddr == "" {
			return fmt.Errorf("server.http_addr is required (or enable tailscale)")
		}
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Dedupe.MaxEntries < 0 {
		return fmt.Errorf("dedupe.max_entries must not be negative")
	}

	if c.Links.BaseURL != "" {
		u, err := url.Parse(c.Links.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("links.base_url %q must be an absolute URL", c.Links.BaseURL)
		}
	}

	if m := c.Notify.Matrix; m.Enabled {
		switch {
		case m.Homeserver == "":
			return fmt.Errorf("notify.matrix.homeserver is required when matrix is enabled")
		case m.UserID == "":
			return fmt.Errorf("notify.matrix.user_id is required when matrix is enabled")
		case m.AccessToken == "":
			return fmt.Errorf("notify.matrix.access_token is required when matrix is enabled")
		case m.RoomID == "":
			return fmt.Errorf("notify.matrix.room_id is required when matrix is enabled")
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
		if cfg.Dedupe.TTL < 0 {
			return fmt.Errorf("dedupe.ttl %q must not be negative", cfg.Dedupe.TTLRaw)
		}
	}

	return nil
}

// LinkBase returns the base URL for entry deep links.
func (c *Config) LinkBase() string {
	if c.Links.BaseURL != "" {
		return strings.TrimRight(c.Links.BaseURL, "/")
	}
	if c.Tailscale.Enabled {
		scheme := "http"
		if c.Tailscale.HTTPS || c.Tailscale.Funnel {
			scheme = "https"
		}
		return scheme + "://" + c.Tailscale.Hostname
	}
	return "http://" + c.Server.HTTPAddr
}
