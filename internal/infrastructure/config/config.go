package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all bridge host configuration.
type Config struct {
	Server    ServerConfig
	Bridge    BridgeConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"3000"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// BridgeConfig holds bridge channel and dispatch configuration.
type BridgeConfig struct {
	ChannelPath   string        `envconfig:"BRIDGE_CHANNEL_PATH" default:"/channel"`
	CallTimeout   time.Duration `envconfig:"BRIDGE_CALL_TIMEOUT" default:"30s"`
	ScriptTimeout time.Duration `envconfig:"BRIDGE_SCRIPT_TIMEOUT" default:"5s"`
	AutoClear     bool          `envconfig:"BRIDGE_AUTO_CLEAR" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration for the host endpoints.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "3000",
			Host: "127.0.0.1",
		},
		Bridge: BridgeConfig{
			ChannelPath:   "/channel",
			CallTimeout:   30 * time.Second,
			ScriptTimeout: 5 * time.Second,
			AutoClear:     true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
