// Package config loads runtime configuration from the environment, with an
// optional YAML file overlay for deployments that prefer files over env vars.
package config

import (
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shelfwise/library-service/pkg/logger"
)

// Config is the full runtime configuration for the library service.
type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Database  DatabaseConfig       `yaml:"database"`
	Auth      AuthConfig           `yaml:"auth"`
	Logging   logger.LoggingConfig `yaml:"logging"`
	CORS      CORSConfig           `yaml:"cors"`
	RateLimit RateLimitConfig      `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host            string `yaml:"host" env:"SERVER_HOST,default=0.0.0.0"`
	Port            int    `yaml:"port" env:"SERVER_PORT,default=8000"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec" env:"SERVER_READ_TIMEOUT,default=15"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec" env:"SERVER_WRITE_TIMEOUT,default=15"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec" env:"SERVER_IDLE_TIMEOUT,default=60"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver             string `yaml:"driver" env:"DATABASE_DRIVER,default=postgres"`
	DSN                string `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns       int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS,default=25"`
	MaxIdleConns       int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec" env:"DATABASE_CONN_MAX_LIFETIME,default=300"`
}

type AuthConfig struct {
	Secret          string `yaml:"secret" env:"AUTH_SECRET"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes" env:"AUTH_TOKEN_TTL_MINUTES,default=30"`
}

type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS,default=*"`
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" env:"RATE_LIMIT_ENABLED,default=false"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"RATE_LIMIT_RPS,default=20"`
	Burst             int     `yaml:"burst" env:"RATE_LIMIT_BURST,default=40"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present, then a YAML file named by CONFIG_FILE
// overrides the decoded values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return fmt.Errorf("AUTH_SECRET must be set")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	return nil
}
