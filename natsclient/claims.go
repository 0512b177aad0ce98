package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/guard"
)

// DefaultClaimsBucket is the bucket claims are written to unless configured otherwise.
const DefaultClaimsBucket = "DUPGUARD_CLAIMS"

// ClaimStoreConfig configures the claims bucket.
type ClaimStoreConfig struct {
	Bucket   string        `yaml:"bucket" json:"bucket"`
	Replicas int           `yaml:"replicas,omitempty" json:"replicas,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// DefaultClaimStoreConfig returns a single-replica bucket with a 5s operation timeout.
func DefaultClaimStoreConfig() ClaimStoreConfig {
	return ClaimStoreConfig{
		Bucket:   DefaultClaimsBucket,
		Replicas: 1,
		Timeout:  5 * time.Second,
	}
}

// ClaimStore is a guard.Store backed by a JetStream key-value bucket with
// per-key TTLs. KV Create only succeeds when the key has no live value,
// which gives the same semantics as SET NX.
type ClaimStore struct {
	client  *Client
	bucket  jetstream.KeyValue
	timeout time.Duration
}

var _ guard.Store = (*ClaimStore)(nil)

// NewClaimStore opens or creates the claims bucket. The client must be connected.
func (m *Client) NewClaimStore(ctx context.Context, cfg ClaimStoreConfig) (*ClaimStore, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultClaimsBucket
	}
	if cfg.Replicas < 1 {
		cfg.Replicas = 1
	}

	bucket, err := m.keyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "dupguard submission claims",
		History:     1,
		Replicas:    cfg.Replicas,
		// Enables per-key TTLs; the marker left on expiry lives for one second.
		LimitMarkerTTL: time.Second,
	})
	if err != nil {
		return nil, err
	}

	return &ClaimStore{client: m, bucket: bucket, timeout: cfg.Timeout}, nil
}

// SetIfAbsent creates key with a per-key TTL. An existing live key yields false.
func (s *ClaimStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.client.Status() == StatusCircuitOpen {
		return false, errors.WrapTransient(ErrCircuitOpen, "ClaimStore", "SetIfAbsent", "create claim")
	}

	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	_, err := s.bucket.Create(ctx, SanitizeKey(key), []byte(guard.Marker), jetstream.KeyTTL(ttl))
	switch {
	case err == nil:
		s.client.recordSuccess()
		return true, nil
	case stderrors.Is(err, jetstream.ErrKeyExists):
		s.client.recordSuccess()
		return false, nil
	default:
		s.client.recordFailure()
		return false, errors.WrapTransient(err, "ClaimStore", "SetIfAbsent", fmt.Sprintf("create claim %s", key))
	}
}

// Delete removes key. Removing an absent key is not an error.
func (s *ClaimStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	if err := s.bucket.Delete(ctx, SanitizeKey(key)); err != nil && !stderrors.Is(err, jetstream.ErrKeyNotFound) {
		s.client.recordFailure()
		return errors.WrapTransient(err, "ClaimStore", "Delete", fmt.Sprintf("delete claim %s", key))
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *ClaimStore) Ping(ctx context.Context) error {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	if _, err := s.bucket.Status(ctx); err != nil {
		return errors.WrapTransient(err, "ClaimStore", "Ping", "bucket status")
	}
	return nil
}

func (s *ClaimStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

// SanitizeKey maps a claim key onto the KV key alphabet. Colons become
// token separators, other unsupported characters become underscores, and
// empty tokens are filled so the result is always a valid key.
func SanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r == ':':
			b.WriteByte('.')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '/', r == '_', r == '=', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	tokens := strings.Split(b.String(), ".")
	for i, t := range tokens {
		if t == "" {
			tokens[i] = "_"
		}
	}
	return strings.Join(tokens, ".")
}
