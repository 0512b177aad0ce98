package guard

import (
	"context"
	"time"
)

// Marker is the value written for a claim. Only its presence matters.
const Marker = "1"

// Store is the shared key space claims are written to.
//
// SetIfAbsent must set key to Marker with the given expiry in one atomic step
// and report whether it did so. It returns false, nil when the key already
// exists, without touching its expiry. Delete removes key unconditionally and
// must not fail when the key is absent.
type Store interface {
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}
