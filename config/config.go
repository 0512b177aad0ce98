package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/natsclient"
	"github.com/c360/dupguard/pkg/cache"
	"github.com/c360/dupguard/store/redisstore"
	"github.com/c360/dupguard/store/sqlstore"
)

// Store types
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreNATS     = "nats"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// HTTP frameworks the demo server can run on
const (
	FrameworkNetHTTP = "nethttp"
	FrameworkGin     = "gin"
	FrameworkEcho    = "echo"
)

// Config is the complete service configuration
type Config struct {
	// Namespace prefixes every claim key, typically the application name.
	Namespace  string        `yaml:"namespace" json:"namespace"`
	HTTP       HTTPConfig    `yaml:"http" json:"http"`
	Store      StoreConfig   `yaml:"store" json:"store"`
	ParamCache cache.Config  `yaml:"param_cache" json:"param_cache"`
	Metrics    MetricsConfig `yaml:"metrics" json:"metrics"`
	Log        LogConfig     `yaml:"log" json:"log"`
}

// HTTPConfig configures the demo server
type HTTPConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	Framework       string        `yaml:"framework" json:"framework"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// StoreConfig selects and configures the claim store
type StoreConfig struct {
	Type           string        `yaml:"type" json:"type"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`

	Memory MemoryStoreConfig `yaml:"memory" json:"memory"`
	Redis  redisstore.Config `yaml:"redis" json:"redis"`
	NATS   NATSStoreConfig   `yaml:"nats" json:"nats"`
	SQL    sqlstore.Config   `yaml:"sql" json:"sql"`
}

// MemoryStoreConfig configures the in-process store
type MemoryStoreConfig struct {
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// NATSStoreConfig configures the JetStream KV store
type NATSStoreConfig struct {
	URL      string `yaml:"url" json:"url"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	Token    string `yaml:"token,omitempty" json:"token,omitempty"`

	natsclient.ClaimStoreConfig `yaml:",inline"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when no file sets a value
func Default() *Config {
	return &Config{
		Namespace: "no-duplicate",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			Framework:       FrameworkNetHTTP,
			ReadTimeout:     10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Type:           StoreMemory,
			ConnectTimeout: 30 * time.Second,
			Memory:         MemoryStoreConfig{CleanupInterval: time.Minute},
			Redis:          redisstore.DefaultConfig(),
			NATS: NATSStoreConfig{
				URL:              "nats://localhost:4222",
				ClaimStoreConfig: natsclient.DefaultClaimStoreConfig(),
			},
			SQL: sqlstore.Config{
				Driver:          sqlstore.DriverSQLite,
				DSN:             "file:dupguard.db?_busy_timeout=5000",
				CleanupInterval: time.Minute,
			},
		},
		ParamCache: cache.DefaultConfig(),
		Metrics:    MetricsConfig{Enabled: true, Path: "/metrics"},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Validate checks the configuration, including the selected store's settings
func (c *Config) Validate() error {
	if strings.Contains(c.Namespace, ":") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("namespace %q must not contain ':'", c.Namespace))
	}

	if c.HTTP.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "http.addr is required")
	}
	if c.HTTP.ReadTimeout < 0 || c.HTTP.ShutdownTimeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "http timeouts cannot be negative")
	}
	switch c.HTTP.Framework {
	case FrameworkNetHTTP, FrameworkGin, FrameworkEcho:
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown http.framework %q", c.HTTP.Framework))
	}

	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.ParamCache.Validate(); err != nil {
		return err
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("metrics.path must start with '/', got %q", c.Metrics.Path))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown log.level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown log.format %q", c.Log.Format))
	}
	return nil
}

func (s StoreConfig) validate() error {
	if s.ConnectTimeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "store.connect_timeout cannot be negative")
	}

	switch s.Type {
	case StoreMemory:
		return nil
	case StoreRedis:
		return s.Redis.Validate()
	case StoreNATS:
		if s.NATS.URL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "store.nats.url is required")
		}
		return nil
	case StorePostgres, StoreSQLite:
		return s.SQLConfig().Validate()
	case "":
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "store.type is required")
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown store.type %q", s.Type))
	}
}

// SQLConfig returns the SQL settings with the driver implied by the store type
func (s StoreConfig) SQLConfig() sqlstore.Config {
	cfg := s.SQL
	switch s.Type {
	case StorePostgres:
		cfg.Driver = sqlstore.DriverPostgres
	case StoreSQLite:
		cfg.Driver = sqlstore.DriverSQLite
	}
	return cfg
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	// Config holds only values, so a shallow copy is deep.
	copied := *c
	return &copied
}

// String renders the configuration as YAML with secrets masked
func (c *Config) String() string {
	masked := c.Clone()
	for _, secret := range []*string{
		&masked.Store.Redis.Password,
		&masked.Store.NATS.Password,
		&masked.Store.NATS.Token,
	} {
		if *secret != "" {
			*secret = "****"
		}
	}
	data, err := yaml.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps cfg
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update replaces the configuration after validating it
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg.Clone()
	return nil
}
