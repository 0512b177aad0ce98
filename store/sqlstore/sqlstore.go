// Package sqlstore keeps claims in a SQL table. It supports PostgreSQL via
// lib/pq and SQLite via go-sqlite3.
//
// A claim is a row keyed by the claim key with an absolute expiry in unix
// milliseconds taken from the database clock. SetIfAbsent is a single upsert
// that only overwrites a row whose expiry has passed, so the check and the
// write are one statement.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/guard"
)

//go:embed schema.sql
var schemaSQL string

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config describes the database to open.
type Config struct {
	Driver       string `yaml:"driver" json:"driver"`
	DSN          string `yaml:"dsn" json:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns,omitempty" json:"max_open_conns,omitempty"`
	// CleanupInterval controls the background removal of expired rows. Zero disables it.
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty" json:"cleanup_interval,omitempty"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	case "":
		return errors.WrapInvalid(errors.ErrMissingConfig, "sqlstore", "Validate", "driver is required")
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "sqlstore", "Validate",
			fmt.Sprintf("unsupported driver %q", c.Driver))
	}
	if c.DSN == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "sqlstore", "Validate", "dsn is required")
	}
	if c.MaxOpenConns < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "sqlstore", "Validate", "max_open_conns must be non-negative")
	}
	return nil
}

type dialect struct {
	claim   string
	delete  string
	cleanup string
}

// Expiry is compared against the database clock so that processes with
// skewed clocks sharing one table agree on when a claim lapses. The last
// parameter overrides it with a fixed time when WithClock is used.
const (
	postgresNow = `COALESCE($3::bigint, (extract(epoch from clock_timestamp()) * 1000)::bigint)`
	sqliteNow   = `COALESCE(?3, CAST((julianday('now') - 2440587.5) * 86400000 AS INTEGER))`
)

var dialects = map[string]dialect{
	DriverPostgres: {
		claim: `INSERT INTO dupguard_claims (claim_key, expires_at) VALUES ($1, ` + postgresNow + ` + $2)
			ON CONFLICT (claim_key) DO UPDATE SET expires_at = EXCLUDED.expires_at
			WHERE dupguard_claims.expires_at <= ` + postgresNow,
		delete: `DELETE FROM dupguard_claims WHERE claim_key = $1`,
		cleanup: `DELETE FROM dupguard_claims WHERE expires_at <= ` +
			`COALESCE($1::bigint, (extract(epoch from clock_timestamp()) * 1000)::bigint)`,
	},
	DriverSQLite: {
		claim: `INSERT INTO dupguard_claims (claim_key, expires_at) VALUES (?1, ` + sqliteNow + ` + ?2)
			ON CONFLICT (claim_key) DO UPDATE SET expires_at = excluded.expires_at
			WHERE dupguard_claims.expires_at <= ` + sqliteNow,
		delete: `DELETE FROM dupguard_claims WHERE claim_key = ?`,
		cleanup: `DELETE FROM dupguard_claims WHERE expires_at <= ` +
			`COALESCE(?1, CAST((julianday('now') - 2440587.5) * 86400000 AS INTEGER))`,
	},
}

// Store is a guard.Store backed by a SQL table.
type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
	owned   bool
}

var _ guard.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock evaluates expiry against now instead of the database clock.
// Processes sharing a table must not use it.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens the database described by cfg and ensures the schema exists.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.WrapInvalid(err, "sqlstore", "Open", "open database")
	}

	switch {
	case cfg.Driver == DriverSQLite:
		// SQLite allows a single writer; in-memory databases are per connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s, err := New(db, cfg.Driver, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true

	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle. Close leaves db open.
func New(db *sql.DB, driver string, opts ...Option) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "sqlstore", "New",
			fmt.Sprintf("unsupported driver %q", driver))
	}
	s := &Store{db: db, dialect: d}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureSchema creates the claims table and its expiry index if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.WrapTransient(err, "sqlstore", "EnsureSchema", "apply schema")
		}
	}
	return nil
}

// SetIfAbsent inserts key, or takes over a row whose claim has expired.
func (s *Store) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.WrapInvalid(errors.ErrInvalidData, "sqlstore", "SetIfAbsent", "non-positive ttl")
	}

	res, err := s.db.ExecContext(ctx, s.dialect.claim, key, ttl.Milliseconds(), s.clockArg())
	if err != nil {
		return false, errors.WrapTransient(err, "sqlstore", "SetIfAbsent", "upsert claim")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WrapTransient(err, "sqlstore", "SetIfAbsent", "rows affected")
	}
	return n == 1, nil
}

// clockArg is the fixed "now" in unix milliseconds, or nil for the database clock.
func (s *Store) clockArg() any {
	if s.now == nil {
		return nil
	}
	return s.now().UnixMilli()
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.delete, key); err != nil {
		return errors.WrapTransient(err, "sqlstore", "Delete", "delete claim")
	}
	return nil
}

// Cleanup removes expired rows and returns how many were removed.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.cleanup, s.clockArg())
	if err != nil {
		return 0, errors.WrapTransient(err, "sqlstore", "Cleanup", "delete expired claims")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapTransient(err, "sqlstore", "Cleanup", "rows affected")
	}
	return n, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.WrapTransient(err, "sqlstore", "Ping", "ping database")
	}
	return nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database if Open created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "sqlstore", "Close", "close database")
	}
	return nil
}

// RunCleanup calls Cleanup every interval until ctx is done. onRemoved, if
// set, receives the count of each sweep that removed rows.
func (s *Store) RunCleanup(ctx context.Context, interval time.Duration, onRemoved func(int64, error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Cleanup(ctx)
			if onRemoved != nil && (n > 0 || err != nil) {
				onRemoved(n, err)
			}
		}
	}
}
