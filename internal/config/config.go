package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the update engine.
type Config struct {
	// Server configuration
	HTTPPort int    `env:"UPDULTRA_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"UPDULTRA_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Backend selects the storage, event bus and cache backing: memory or
	// redis.
	Backend string `env:"UPDULTRA_BACKEND" envDefault:"memory"`

	// Redis configuration, used when Backend is redis
	Redis RedisConfig

	// Engine defaults
	Engine EngineConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// EngineConfig holds execution defaults applied to steps that declare none.
type EngineConfig struct {
	DefaultStepTimeout time.Duration `env:"UPDULTRA_DEFAULT_STEP_TIMEOUT" envDefault:"300s"`
	DefaultCacheTTL    time.Duration `env:"UPDULTRA_DEFAULT_CACHE_TTL" envDefault:"3600s"`

	// SummaryTTL bounds how long finished run summaries are retained.
	SummaryTTL time.Duration `env:"UPDULTRA_SUMMARY_TTL" envDefault:"168h"`
}

// TimeoutConfig holds various timeout configurations.
type TimeoutConfig struct {
	RunTimeout      time.Duration `env:"TIMEOUT_RUN_EXECUTION" envDefault:"3600s"`
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	if c.Backend != "memory" && c.Backend != "redis" {
		return fmt.Errorf("invalid backend: %s (must be memory or redis)", c.Backend)
	}
	if c.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when backend is redis")
	}

	if c.Engine.DefaultStepTimeout <= 0 {
		return fmt.Errorf("default step timeout must be positive")
	}
	if c.Engine.DefaultCacheTTL <= 0 {
		return fmt.Errorf("default cache TTL must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address.
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
