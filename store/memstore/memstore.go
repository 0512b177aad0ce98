// Package memstore is an in-process claim store for single-instance
// deployments and tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/c360/dupguard/errors"
)

// Store keeps claims in a map guarded by a mutex, which makes set-if-absent
// atomic within one process.
type Store struct {
	mu     sync.Mutex
	claims map[string]time.Time // key -> expiry
	now    func() time.Time
	closed bool

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	now             func() time.Time
	cleanupInterval time.Duration
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithCleanupInterval sets how often expired claims are swept. Zero disables
// the sweep; expired claims are then replaced lazily.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *storeOptions) {
		o.cleanupInterval = d
	}
}

// New creates a Store. Call Close to stop the background sweep.
func New(opts ...Option) *Store {
	o := &storeOptions{now: time.Now, cleanupInterval: time.Minute}
	for _, opt := range opts {
		opt(o)
	}

	s := &Store{
		claims:   make(map[string]time.Time),
		now:      o.now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	if o.cleanupInterval > 0 {
		go s.cleanupLoop(o.cleanupInterval)
	} else {
		close(s.done)
	}
	return s
}

// SetIfAbsent claims key until ttl elapses unless a live claim exists.
func (s *Store) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errors.WrapTransient(err, "memstore", "SetIfAbsent", "claim key")
	}
	if ttl <= 0 {
		return false, errors.WrapInvalid(errors.ErrInvalidData, "memstore", "SetIfAbsent", "non-positive ttl")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, errors.WrapFatal(errors.ErrClosed, "memstore", "SetIfAbsent", "claim key")
	}

	now := s.now()
	if expiresAt, ok := s.claims[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	s.claims[key] = now.Add(ttl)
	return true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "memstore", "Delete", "delete key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.WrapFatal(errors.ErrClosed, "memstore", "Delete", "delete key")
	}
	delete(s.claims, key)
	return nil
}

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.WrapFatal(errors.ErrClosed, "memstore", "Ping", "ping")
	}
	return nil
}

// Exists reports whether key holds a live claim.
func (s *Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, ok := s.claims[key]
	return ok && s.now().Before(expiresAt)
}

// Len returns the number of stored claims, including expired ones not yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

// Cleanup removes expired claims and returns how many were removed.
func (s *Store) Cleanup(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for key, expiresAt := range s.claims {
		if !now.Before(expiresAt) {
			delete(s.claims, key)
			removed++
		}
	}
	return removed, nil
}

// Close stops the sweep and rejects further use.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.claims = nil
		s.mu.Unlock()
		close(s.shutdown)
	})
	<-s.done
	return nil
}

func (s *Store) cleanupLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			_, _ = s.Cleanup(context.Background())
		}
	}
}
