package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/metric"
)

// Claim is a successfully acquired key.
type Claim struct {
	Key        string
	TTL        time.Duration
	AcquiredAt time.Time
}

// Coordinator claims invocation keys in a Store. It holds no locks of its own:
// the store's atomic set-if-absent is the only synchronization point.
type Coordinator struct {
	store         Store
	namespace     string
	fingerprinter *Fingerprinter
	names         NameResolver
	logger        *slog.Logger
	metrics       *guardMetrics
	registry      metric.Registrar
	now           func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNamespace prefixes every key, typically with the application name.
func WithNamespace(namespace string) Option {
	return func(c *Coordinator) {
		c.namespace = namespace
	}
}

// WithNameResolver supplies argument names for key expressions.
func WithNameResolver(names NameResolver) Option {
	return func(c *Coordinator) {
		c.names = names
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics registers the guard metrics with registry.
func WithMetrics(registry metric.Registrar) Option {
	return func(c *Coordinator) {
		c.registry = registry
	}
}

// WithClock replaces time.Now for Claim timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator creates a Coordinator over store.
func NewCoordinator(store Store, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Coordinator", "NewCoordinator", "nil store")
	}

	c := &Coordinator{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "guard")

	if c.registry != nil {
		m, err := newGuardMetrics(c.registry)
		if err != nil {
			return nil, errors.Wrap(err, "Coordinator", "NewCoordinator", "register metrics")
		}
		c.metrics = m
	}

	c.fingerprinter = NewFingerprinter(c.names,
		WithFingerprintLogger(c.logger),
		WithDegradedHook(c.metrics.degradedFingerprint),
	)
	return c, nil
}

// Namespace returns the key namespace.
func (c *Coordinator) Namespace() string {
	return c.namespace
}

// Fingerprinter returns the fingerprinter used for keys.
func (c *Coordinator) Fingerprinter() *Fingerprinter {
	return c.fingerprinter
}

// Key computes the storage key of inv under policy p.
func (c *Coordinator) Key(inv Invocation, p Policy) string {
	path := ""
	if p.IncludeOperationPath {
		path = inv.Path
	}
	return BuildKey(c.namespace, path, c.fingerprinter.Fingerprint(inv, p.KeyExpression))
}

// Acquire claims the key of inv for p.TTL with a single set-if-absent call.
//
// It returns a Claim when the key was free, a *DuplicateError (matching
// ErrDuplicateSubmission) when it was already claimed, and an error matching
// ErrStoreUnavailable when the store could not answer. An invalid TTL is
// reported before the store is contacted; the key expression is not compiled
// here (see Policy.Validate), a broken one degrades to EmptyFingerprint.
// Acquire never retries.
func (c *Coordinator) Acquire(ctx context.Context, inv Invocation, p Policy) (*Claim, error) {
	if err := p.validateTTL(); err != nil {
		return nil, err
	}

	key := c.Key(inv, p)

	start := time.Now()
	ok, err := c.store.SetIfAbsent(ctx, key, p.TTL)
	c.metrics.observeStore("set_if_absent", time.Since(start).Seconds())

	if err != nil {
		c.metrics.acquired(outcomeStoreError)
		c.logger.Error("Claim store unavailable", "key", key, "signature", inv.Signature, "error", err)
		return nil, storeUnavailable(err, "Acquire", "claim key")
	}
	if !ok {
		c.metrics.acquired(outcomeRejected)
		c.logger.Debug("Duplicate submission rejected", "key", key, "signature", inv.Signature)
		return nil, &DuplicateError{Key: key, Message: p.rejectionMessage()}
	}

	c.metrics.acquired(outcomeAcquired)
	c.logger.Debug("Claim acquired", "key", key, "ttl", p.TTL)
	return &Claim{Key: key, TTL: p.TTL, AcquiredAt: c.now()}, nil
}

// Release recomputes the key of inv and deletes it. Failures are logged and
// otherwise ignored; the claim then lapses after its TTL.
func (c *Coordinator) Release(ctx context.Context, inv Invocation, p Policy) {
	c.ReleaseKey(ctx, c.Key(inv, p))
}

// ReleaseKey deletes key. Failures are logged and otherwise ignored.
func (c *Coordinator) ReleaseKey(ctx context.Context, key string) {
	start := time.Now()
	err := c.store.Delete(ctx, key)
	c.metrics.observeStore("delete", time.Since(start).Seconds())

	if err != nil {
		c.metrics.released(outcomeFailed)
		c.logger.Warn("Failed to release claim, it will expire on its own", "key", key, "error", err)
		return
	}
	c.metrics.released(outcomeReleased)
	c.logger.Debug("Claim released", "key", key)
}
