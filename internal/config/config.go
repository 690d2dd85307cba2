// Package config provides configuration management for the item store
// server and the todo client.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/vyrodovalexey/todo-sync/internal/locale"
)

// Default configuration values.
const (
	DefaultServerPort      = 8080
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultStoreDriver     = "memory"
	DefaultStoreURL        = "http://localhost:8080"
	DefaultRequestTimeout  = 10 * time.Second
	DefaultLocale          = "en"
)

// Environment variable names.
const (
	EnvServerPort      = "APP_SERVER_PORT"
	EnvLogLevel        = "APP_LOG_LEVEL"
	EnvShutdownTimeout = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled  = "APP_METRICS_ENABLED"
	EnvStoreDriver     = "APP_STORE_DRIVER"
	EnvStoreDSN        = "APP_STORE_DSN"
	EnvStoreURL        = "APP_STORE_URL"
	EnvRequestTimeout  = "APP_REQUEST_TIMEOUT"
	EnvLocale          = "APP_LOCALE"
	EnvLogFile         = "APP_LOG_FILE"
)

// Config holds the item store server configuration.
type Config struct {
	ServerPort      int
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool

	// Store backend: memory, sqlite, mysql.
	StoreDriver string
	// StoreDSN is a file path (or ":memory:") for sqlite and a
	// go-sql-driver DSN for mysql. Ignored for memory.
	StoreDSN string
}

// ClientConfig holds the todo client configuration.
type ClientConfig struct {
	StoreURL       string
	RequestTimeout time.Duration
	Locale         string
	LogLevel       string
	// LogFile receives client logs; empty disables logging.
	LogFile string
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidStoreDriver     = errors.New("store driver must be one of: memory, sqlite, mysql")
	ErrStoreDSNRequired       = errors.New("store DSN must be set when store driver is mysql")
	ErrInvalidStoreURL        = errors.New("store URL must be an absolute http or https URL")
	ErrInvalidRequestTimeout  = errors.New("request timeout must be positive")
	ErrInvalidLocale          = errors.New("locale must be an English or Spanish language tag")
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads server configuration from environment variables with defaults.
// Environment variables have priority over default values.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:      DefaultServerPort,
		LogLevel:        DefaultLogLevel,
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  DefaultMetricsEnabled,
		StoreDriver:     DefaultStoreDriver,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	c.loadStoreEnv()

	return nil
}

// loadServerEnv loads server-related environment variables.
func (c *Config) loadServerEnv() error {
	if val := os.Getenv(EnvServerPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv(EnvShutdownTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvShutdownTimeout, err)
		}
		c.ShutdownTimeout = timeout
	}

	if val := os.Getenv(EnvMetricsEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMetricsEnabled, err)
		}
		c.MetricsEnabled = enabled
	}

	return nil
}

// loadStoreEnv loads store backend environment variables.
func (c *Config) loadStoreEnv() {
	if val := os.Getenv(EnvStoreDriver); val != "" {
		c.StoreDriver = val
	}

	if val := os.Getenv(EnvStoreDSN); val != "" {
		c.StoreDSN = val
	}
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	return c.validateStore()
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

// validateStore validates the store backend selection.
func (c *Config) validateStore() error {
	switch c.storeDriverOrDefault() {
	case "memory", "sqlite":
		return nil
	case "mysql":
		if c.StoreDSN == "" {
			return ErrStoreDSNRequired
		}
		return nil
	default:
		return ErrInvalidStoreDriver
	}
}

// storeDriverOrDefault returns the store driver, defaulting to "memory" if empty.
func (c *Config) storeDriverOrDefault() string {
	if c.StoreDriver == "" {
		return DefaultStoreDriver
	}
	return c.StoreDriver
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// LoadClient reads client configuration from environment variables with defaults.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		StoreURL:       DefaultStoreURL,
		RequestTimeout: DefaultRequestTimeout,
		Locale:         DefaultLocale,
		LogLevel:       DefaultLogLevel,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading client config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating client config: %w", err)
	}

	return cfg, nil
}

// loadFromEnv loads client values from environment variables.
func (c *ClientConfig) loadFromEnv() error {
	if val := os.Getenv(EnvStoreURL); val != "" {
		c.StoreURL = val
	}

	if val := os.Getenv(EnvRequestTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvRequestTimeout, err)
		}
		c.RequestTimeout = timeout
	}

	if val := os.Getenv(EnvLocale); val != "" {
		c.Locale = val
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv(EnvLogFile); val != "" {
		c.LogFile = val
	}

	return nil
}

// Validate checks if the client configuration values are valid.
func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.StoreURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidStoreURL
	}

	if c.RequestTimeout <= 0 {
		return ErrInvalidRequestTimeout
	}

	if _, err := locale.Parse(c.Locale); err != nil {
		return ErrInvalidLocale
	}

	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	return nil
}
