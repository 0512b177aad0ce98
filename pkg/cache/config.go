package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/dupguard/errors"
)

// Config describes a bounded cache.
type Config struct {
	// MaxSize is the maximum number of entries.
	MaxSize int `json:"max_size" yaml:"max_size"`

	// TTL is how long an entry lives after it was written. Zero disables expiry.
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// CleanupInterval is how often expired entries are swept. Zero disables the sweep;
	// expired entries are then dropped lazily on Get.
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// DefaultConfig returns a 1000 entry cache with 10 minute write expiry.
func DefaultConfig() Config {
	return Config{
		MaxSize:         1000,
		TTL:             10 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("max_size must be positive, got %d", c.MaxSize))
	}
	if c.TTL < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("ttl cannot be negative, got %v", c.TTL))
	}
	if c.CleanupInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("cleanup_interval cannot be negative, got %v", c.CleanupInterval))
	}
	return nil
}

// NewFromConfig creates a cache from config.
func NewFromConfig[V any](ctx context.Context, config Config, options ...Option[V]) (Cache[V], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return NewHybrid[V](ctx, config.MaxSize, config.TTL, config.CleanupInterval, options...)
}
