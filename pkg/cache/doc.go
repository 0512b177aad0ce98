// Package cache provides the bounded in-process cache used for metadata that is
// expensive to derive but cheap to keep: operation parameter names and compiled
// key expressions.
//
// A cache is bounded two ways. Size: once MaxSize entries are present, the least
// recently used one is evicted. Time: when a TTL is set, an entry expires TTL
// after it was last written; reading an entry does not extend its life.
//
//	names, err := cache.NewHybrid[[]string](ctx, 1000, 10*time.Minute, time.Minute,
//	    cache.WithMetrics[[]string](registry, "paramnames"))
//	defer names.Close()
//
// Statistics are always collected. WithMetrics additionally exports them as
// Prometheus counters with a component label.
package cache
