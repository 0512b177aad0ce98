package paramnames

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/metric"
	"github.com/c360/dupguard/pkg/cache"
)

// Resolver caches Source lookups in a bounded cache with write-based expiry.
// Concurrent misses for one signature share a single Source call.
type Resolver struct {
	source Source
	cache  cache.Cache[[]string]
	group  singleflight.Group
	logger *slog.Logger
}

type resolverOptions struct {
	logger   *slog.Logger
	cacheCfg cache.Config
	registry metric.Registrar
	clock    func() time.Time
}

// Option configures a Resolver.
type Option func(*resolverOptions)

// WithLogger sets the logger used for lookup faults.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolverOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCacheConfig overrides the default bounds of 1000 entries and 10 minutes.
func WithCacheConfig(cfg cache.Config) Option {
	return func(o *resolverOptions) {
		o.cacheCfg = cfg
	}
}

// WithMetrics exports cache statistics under component="paramnames".
func WithMetrics(registry metric.Registrar) Option {
	return func(o *resolverOptions) {
		o.registry = registry
	}
}

// WithClock replaces time.Now for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(o *resolverOptions) {
		o.clock = now
	}
}

// NewResolver creates a Resolver over source. The cache sweep stops when ctx is
// done or Close is called.
func NewResolver(ctx context.Context, source Source, opts ...Option) (*Resolver, error) {
	if source == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Resolver", "NewResolver", "nil source")
	}

	o := &resolverOptions{
		logger:   slog.Default(),
		cacheCfg: cache.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}

	cacheOpts := []cache.Option[[]string]{
		cache.WithMetrics[[]string](o.registry, "paramnames"),
	}
	if o.clock != nil {
		cacheOpts = append(cacheOpts, cache.WithClock[[]string](o.clock))
	}

	c, err := cache.NewFromConfig[[]string](ctx, o.cacheCfg, cacheOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "Resolver", "NewResolver", "create name cache")
	}

	return &Resolver{
		source: source,
		cache:  c,
		logger: o.logger.With("component", "paramnames"),
	}, nil
}

// NamesFor returns the ordered argument names of signature, or nil when none
// are available. Source faults are logged and reported as nil.
func (r *Resolver) NamesFor(signature string) []string {
	if signature == "" {
		return nil
	}
	if names, ok := r.cache.Get(signature); ok {
		return append([]string(nil), names...)
	}

	v, err, _ := r.group.Do(signature, func() (any, error) {
		names, err := r.lookup(signature)
		if err != nil {
			return nil, err
		}
		// Absent names are not cached so a later declaration is picked up.
		if len(names) > 0 {
			if _, err := r.cache.Set(signature, names); err != nil {
				r.logger.Warn("Failed to cache parameter names", "signature", signature, "error", err)
			}
		}
		return names, nil
	})
	if err != nil {
		r.logger.Warn("Parameter name lookup failed", "signature", signature, "error", err)
		return nil
	}

	names, _ := v.([]string)
	if len(names) == 0 {
		return nil
	}
	return append([]string(nil), names...)
}

func (r *Resolver) lookup(signature string) (names []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parameter name source panicked: %v", rec)
		}
	}()
	return r.source.ParamNames(signature)
}

// Invalidate drops any cached names for signature.
func (r *Resolver) Invalidate(signature string) {
	if signature == "" {
		return
	}
	_, _ = r.cache.Delete(signature)
}

// Stats returns the statistics of the name cache.
func (r *Resolver) Stats() *cache.Statistics {
	return r.cache.Stats()
}

// Close stops the cache sweep.
func (r *Resolver) Close() error {
	return r.cache.Close()
}
