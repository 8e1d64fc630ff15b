// Package config loads the task tracker configuration.
//
// Values are resolved in this order, later sources winning:
//   - built-in defaults
//   - the YAML file passed with --config, if any
//   - environment variables, including those from an optional .env file
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory    = "memory"
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverRedis     = "redis"
	DriverJetStream = "jetstream"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Store     StoreConfig     `yaml:"store"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Task      TaskConfig      `yaml:"task"`
}

// ServerConfig configures the HTTP listener and shutdown.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the application logger. Level is "info" or "error".
type LogConfig struct {
	Level string `yaml:"level"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	// Secret is the HS256 signing key. Required.
	Secret string `yaml:"secret"`
	// Issuer and Audience are checked only when set.
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// StoreConfig selects and configures the task store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresURL string `yaml:"postgres_url"`
	RedisURL    string `yaml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix"`
	NATSURL     string `yaml:"nats_url"`
	Bucket      string `yaml:"bucket"`
}

// RateLimitConfig configures per-caller rate limiting of the task routes.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Max     int           `yaml:"max"`
	Window  time.Duration `yaml:"window"`
	// RedisURL shares counters between instances. Empty keeps them in memory.
	RedisURL string `yaml:"redis_url"`
}

// TaskConfig holds task service settings.
type TaskConfig struct {
	// ExpectedStatuses is informational. Other statuses are accepted.
	ExpectedStatuses []string `yaml:"expected_statuses"`
	// ScanTimeout bounds one owner scan shared by concurrent List calls.
	ScanTimeout time.Duration `yaml:"scan_timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Store: StoreConfig{
			Driver:      DriverMemory,
			SQLitePath:  "tasks.db",
			RedisPrefix: "tasks:",
			NATSURL:     "nats://localhost:4222",
			Bucket:      "tasks",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Max:     100,
			Window:  time.Minute,
		},
		Task: TaskConfig{
			ExpectedStatuses: []string{"Pending", "Completed"},
			ScanTimeout:      30 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment. envFiles default to ".env"; a
// missing env file is not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Address returns the listen address in ":port" form.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() error {
	var err error

	if c.Server.Port, err = getEnvInt("PORT", c.Server.Port); err != nil {
		return err
	}
	if c.Server.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout); err != nil {
		return err
	}
	c.Log.Level = getEnvString("LOG_LEVEL", c.Log.Level)

	c.Auth.Secret = getEnvString("JWT_SECRET", c.Auth.Secret)
	c.Auth.Issuer = getEnvString("JWT_ISSUER", c.Auth.Issuer)
	c.Auth.Audience = getEnvString("JWT_AUDIENCE", c.Auth.Audience)

	c.Store.Driver = getEnvString("STORE_DRIVER", c.Store.Driver)
	c.Store.SQLitePath = getEnvString("SQLITE_PATH", c.Store.SQLitePath)
	c.Store.PostgresURL = getEnvString("DATABASE_URL", c.Store.PostgresURL)
	c.Store.RedisURL = getEnvString("REDIS_URL", c.Store.RedisURL)
	c.Store.RedisPrefix = getEnvString("REDIS_PREFIX", c.Store.RedisPrefix)
	c.Store.NATSURL = getEnvString("NATS_URL", c.Store.NATSURL)
	c.Store.Bucket = getEnvString("NATS_BUCKET", c.Store.Bucket)

	if c.RateLimit.Enabled, err = getEnvBool("RATE_LIMIT_ENABLED", c.RateLimit.Enabled); err != nil {
		return err
	}
	if c.RateLimit.Max, err = getEnvInt("RATE_LIMIT_MAX", c.RateLimit.Max); err != nil {
		return err
	}
	if c.RateLimit.Window, err = getEnvDuration("RATE_LIMIT_WINDOW", c.RateLimit.Window); err != nil {
		return err
	}
	c.RateLimit.RedisURL = getEnvString("RATE_LIMIT_REDIS_URL", c.RateLimit.RedisURL)

	if statuses := os.Getenv("TASK_EXPECTED_STATUSES"); statuses != "" {
		c.Task.ExpectedStatuses = splitList(statuses)
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// validate checks the configuration and normalizes the log level.
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d: must be between 1 and 65535", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout %v: must be positive", c.Server.ShutdownTimeout)
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level != "info" && level != "error" {
		return fmt.Errorf("invalid log level '%s': must be info or error", c.Log.Level)
	}
	c.Log.Level = level

	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("auth secret is required (set JWT_SECRET)")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("sqlite path cannot be empty for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresURL == "" {
			return errors.New("database URL cannot be empty for the postgres driver")
		}
	case DriverRedis:
		if c.Store.RedisURL == "" {
			return errors.New("redis URL cannot be empty for the redis driver")
		}
	case DriverJetStream:
		if c.Store.NATSURL == "" || c.Store.Bucket == "" {
			return errors.New("NATS URL and bucket are required for the jetstream driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Max < 1 {
			return fmt.Errorf("rate limit max must be at least 1, got %d", c.RateLimit.Max)
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("invalid rate limit window %v: must be positive", c.RateLimit.Window)
		}
	}

	return nil
}
