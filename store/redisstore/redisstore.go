// Package redisstore keeps claims in Redis using SET NX EX, so every
// instance sharing the server sees the same claims.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/guard"
)

// Config describes how to reach Redis.
type Config struct {
	Addr        string        `yaml:"addr" json:"addr"`
	Username    string        `yaml:"username,omitempty" json:"username,omitempty"`
	Password    string        `yaml:"password,omitempty" json:"password,omitempty"`
	DB          int           `yaml:"db" json:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty"`
	// OpTimeout bounds each command when the caller's context has no deadline.
	OpTimeout time.Duration `yaml:"op_timeout,omitempty" json:"op_timeout,omitempty"`
}

// DefaultConfig points at a local server.
func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		DialTimeout: 5 * time.Second,
		OpTimeout:   time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "redisstore", "Validate", "addr is required")
	}
	if c.DB < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "redisstore", "Validate",
			fmt.Sprintf("db must be non-negative, got %d", c.DB))
	}
	return nil
}

// Store is a guard.Store backed by Redis.
type Store struct {
	client    redis.UniversalClient
	opTimeout time.Duration
	owned     bool
}

var _ guard.Store = (*Store)(nil)

// New dials Redis with cfg. The connection is lazy; use Ping to verify it.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	s := NewFromClient(client)
	s.opTimeout = cfg.OpTimeout
	s.owned = true
	return s, nil
}

// NewFromClient wraps an existing client. Close leaves the client open.
func NewFromClient(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// SetIfAbsent issues SET key 1 NX EX ttl.
func (s *Store) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := s.client.SetNX(ctx, key, guard.Marker, ttl).Result()
	if err != nil {
		return false, errors.WrapTransient(err, "redisstore", "SetIfAbsent", "SET NX")
	}
	return ok, nil
}

// Delete issues DEL key.
func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.WrapTransient(err, "redisstore", "Delete", "DEL")
	}
	return nil
}

// TTL returns the remaining lifetime of key, or zero if it does not exist.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, errors.WrapTransient(err, "redisstore", "TTL", "TTL")
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.WrapTransient(err, "redisstore", "Ping", "PING")
	}
	return nil
}

// Close releases the client if the store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return errors.Wrap(err, "redisstore", "Close", "close client")
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}
