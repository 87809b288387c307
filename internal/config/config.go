// Package config loads the application configuration from a YAML file and
// applies environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the order automation service.
type Config struct {
	Server   Server         `yaml:"server"`
	Storage  Storage        `yaml:"storage"`
	Auth     Auth           `yaml:"auth"`
	Refresh  Refresh        `yaml:"refresh"`
	Brokers  []BrokerConfig `yaml:"brokers"`
	LogLevel string         `yaml:"log_level"`
}

// Server holds the HTTP listener configuration.
type Server struct {
	Port string `yaml:"port"`
}

// Storage holds the ledger database location.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Auth holds the JWT secret and the API credentials allowed to mint tokens.
type Auth struct {
	JWTSecret string `yaml:"jwt_secret"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// Refresh controls the fleet refresh conductor.
type Refresh struct {
	ThrottleSeconds int `yaml:"throttle_seconds"`
	// StaleAfterMinutes is how long a broker's data stays fresh before a
	// non-forced refresh touches it again.
	StaleAfterMinutes int `yaml:"stale_after_minutes"`
}

// BrokerConfig describes one configured brokerage connection. Kind selects
// the gateway implementation; the registry of kinds is closed at compile
// time.
type BrokerConfig struct {
	ID        string `yaml:"id"`
	Kind      string `yaml:"kind"` // tradier, alpaca, simulator
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Token     string `yaml:"token"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	// TokenExpiry is when the access token expires, RFC 3339. Optional for
	// brokers whose tokens carry their own expiry or never expire.
	TokenExpiry string `yaml:"token_expiry"`
}

// Throttle returns the minimum spacing between consecutive calls to one
// broker.
func (r Refresh) Throttle() time.Duration {
	return time.Duration(r.ThrottleSeconds) * time.Second
}

// StaleAfter returns the freshness window for non-forced refreshes.
func (r Refresh) StaleAfter() time.Duration {
	return time.Duration(r.StaleAfterMinutes) * time.Minute
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Server:   Server{Port: "8080"},
		Storage:  Storage{SQLitePath: "brokerpilot.db"},
		Auth:     Auth{JWTSecret: "dev-secret", APIKey: "test-api-key", APISecret: "test-api-secret"},
		Refresh:  Refresh{ThrottleSeconds: 2, StaleAfterMinutes: 10},
		Brokers:  []BrokerConfig{{ID: "sim", Kind: "simulator"}},
		LogLevel: "info",
	}
}

// Load reads the YAML configuration at path, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus env overrides only.
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("REFRESH_THROTTLE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Refresh.ThrottleSeconds = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must be set")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must be set")
	}
	seen := make(map[string]bool, len(c.Brokers))
	for _, b := range c.Brokers {
		if b.ID == "" {
			return fmt.Errorf("broker entries require an id")
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate broker id %q", b.ID)
		}
		seen[b.ID] = true
		switch b.Kind {
		case "tradier", "alpaca", "simulator":
		default:
			return fmt.Errorf("broker %s: unknown kind %q", b.ID, b.Kind)
		}
	}
	return nil
}
