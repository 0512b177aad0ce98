package cache

import (
	"time"

	"github.com/c360/dupguard/metric"
)

// Option configures cache behavior.
type Option[V any] func(*cacheOptions[V])

type cacheOptions[V any] struct {
	metricsReg    metric.Registrar
	metricsPrefix string
	evictCallback EvictCallback[V]
	clock         func() time.Time
}

// WithMetrics exposes cache statistics as Prometheus metrics labelled with
// component=prefix. Ignored when registry is nil or prefix is empty.
func WithMetrics[V any](registry metric.Registrar, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a callback invoked for entries removed by size
// pressure, expiry or Clear.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.evictCallback = callback
	}
}

// WithClock replaces time.Now for expiry decisions.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(opts *cacheOptions[V]) {
		if now != nil {
			opts.clock = now
		}
	}
}

func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{
		clock: time.Now,
	}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
