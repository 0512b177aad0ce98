// Package cache provides a generic, thread-safe bounded cache combining LRU
// eviction with optional write-based expiry.
package cache

import (
	"github.com/c360/dupguard/errors"
)

// Cache represents a generic cache interface parameterized by value type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found and not expired.
	Get(key string) (V, bool)

	// Set stores a value and restarts its expiry. Returns true if a new entry was created.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries.
	Clear() error

	// Size returns the current number of entries, expired ones not yet swept included.
	Size() int

	// Keys returns live keys, most recently used first.
	Keys() []string

	// Stats returns the cache statistics.
	Stats() *Statistics

	// Close stops background cleanup.
	Close() error
}

// EvictCallback is called when an entry is evicted from the cache.
type EvictCallback[V any] func(key string, value V)

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
