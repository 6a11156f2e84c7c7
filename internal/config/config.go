package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hookbin/hookbin/internal/logger"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	App      AppConfig
	Log      logger.Config
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string
}

// RedisConfig holds the optional secondary-cache settings. An empty Addr
// disables the cache entirely.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AppConfig holds application-specific settings
type AppConfig struct {
	BaseURL       string
	Environment   string // "development", "production", "testing"
	SlugLength    int
	EndpointQuota int           // endpoint creations allowed per source IP
	RequestQuota  int           // inbound requests allowed per source IP
	SweepInterval time.Duration // cadence of the expired-endpoint sweeper
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			ReadTimeout: getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			// 0 disables the write deadline; the SSE stream holds its
			// response open indefinitely.
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
			IdleTimeout:     getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "hookbin.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		App: AppConfig{
			BaseURL:       getEnv("BASE_URL", ""),
			Environment:   getEnv("ENVIRONMENT", "development"),
			SlugLength:    getIntEnv("SLUG_LENGTH", 8),
			EndpointQuota: getIntEnv("QUOTA_ENDPOINTS", 5),
			RequestQuota:  getIntEnv("QUOTA_REQUESTS", 500),
			SweepInterval: getDurationEnv("SWEEP_INTERVAL", 30*time.Minute),
		},
		Log: logger.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
	cfg.Log.Environment = cfg.App.Environment

	if cfg.App.BaseURL == "" {
		cfg.App.BaseURL = fmt.Sprintf("http://localhost:%s", cfg.Server.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port: %s (must be 1-65535)", c.Server.Port)
	}

	if c.Database.Path == "" {
		return errors.New("database path cannot be empty")
	}

	validEnvs := map[string]bool{
		"development": true,
		"production":  true,
		"testing":     true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, production, or testing)", c.App.Environment)
	}

	if c.App.SlugLength < 4 || c.App.SlugLength > 32 {
		return fmt.Errorf("invalid slug length: %d (must be 4-32)", c.App.SlugLength)
	}

	if c.App.EndpointQuota < 1 || c.App.RequestQuota < 1 {
		return errors.New("quotas must be positive")
	}

	if c.App.SweepInterval < time.Minute {
		return fmt.Errorf("sweep interval too short: %s (minimum 1m)", c.App.SweepInterval)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}
