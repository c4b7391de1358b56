package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all engine configuration.
type Config struct {
	Server    ServerConfig
	Executor  ExecutorConfig
	HTTP      HTTPConfig
	Events    EventsConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds the plan daemon's listener configuration.
type ServerConfig struct {
	Port        string   `envconfig:"PORT" default:"8700"`
	Host        string   `envconfig:"HOST" default:"127.0.0.1"`
	MaxConns    int      `envconfig:"MAX_CONNS" default:"256"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// ExecutorConfig holds scheduler configuration.
type ExecutorConfig struct {
	// MaxConcurrent caps nodes running at once; 0 means unbounded.
	MaxConcurrent int           `envconfig:"MAX_CONCURRENT" default:"0"`
	ShutdownGrace time.Duration `envconfig:"SHUTDOWN_GRACE" default:"10s"`
}

// HTTPConfig holds the outbound HTTP client configuration.
type HTTPConfig struct {
	Timeout    time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	RetryMax   int           `envconfig:"HTTP_RETRY_MAX" default:"3"`
	RateLimit  float64       `envconfig:"HTTP_RATE_LIMIT" default:"0"`
	UserAgent  string        `envconfig:"HTTP_USER_AGENT" default:"blueprint/1.0"`
	BreakerOn  bool          `envconfig:"HTTP_BREAKER" default:"true"`
	MaxBodyMiB int           `envconfig:"HTTP_MAX_BODY_MIB" default:"64"`
}

// EventsConfig holds event source configuration.
type EventsConfig struct {
	DialTimeout  time.Duration `envconfig:"EVENT_DIAL_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"EVENT_WRITE_TIMEOUT" default:"10s"`
	BufferSize   int           `envconfig:"EVENT_BUFFER" default:"256"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds the daemon's request rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from BLUEPRINT_-prefixed environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("blueprint", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
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
			Port:        "8700",
			Host:        "127.0.0.1",
			MaxConns:    256,
			CORSOrigins: []string{"*"},
		},
		Executor: ExecutorConfig{
			MaxConcurrent: 0,
			ShutdownGrace: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:    30 * time.Second,
			RetryMax:   3,
			RateLimit:  0,
			UserAgent:  "blueprint/1.0",
			BreakerOn:  true,
			MaxBodyMiB: 64,
		},
		Events: EventsConfig{
			DialTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   256,
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
