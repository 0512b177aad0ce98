package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/dupguard/config"
	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/guard"
	"github.com/c360/dupguard/health"
	"github.com/c360/dupguard/httpguard"
	"github.com/c360/dupguard/metric"
	"github.com/c360/dupguard/paramnames"
)

const healthInterval = 15 * time.Second

// app is a fully wired dupguard server without its listener.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	backend  *backend
	resolver *paramnames.Resolver
	monitor  *health.Monitor
	handler  http.Handler
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	registry := metric.NewMetricsRegistry()
	core := registry.CoreMetrics()
	core.BuildInfo.WithLabelValues(Version).Set(1)

	b, err := openBackend(ctx, cfg, registry, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, registry: registry, backend: b}
	if err := a.wire(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	decls := paramnames.NewDeclarations()
	declareDemoParams(decls)

	resolver, err := paramnames.NewResolver(ctx, decls,
		paramnames.WithLogger(a.logger),
		paramnames.WithCacheConfig(a.cfg.ParamCache),
		paramnames.WithMetrics(a.registry),
	)
	if err != nil {
		return err
	}
	a.resolver = resolver

	coordinator, err := guard.NewCoordinator(a.backend.store,
		guard.WithNamespace(a.cfg.Namespace),
		guard.WithNameResolver(resolver),
		guard.WithLogger(a.logger),
		guard.WithMetrics(a.registry),
	)
	if err != nil {
		return err
	}

	storeUp := a.registry.CoreMetrics().StoreUp
	a.monitor = health.NewMonitor(health.WithStatusCallback(func(name string, s health.Status) {
		if name != "store" {
			return
		}
		up := 0.0
		if s.Healthy {
			up = 1
		}
		storeUp.WithLabelValues(a.backend.name).Set(up)
	}))
	for name, probe := range a.backend.probes {
		a.monitor.Register(name, probe)
	}

	a.handler, err = newRouter(a.cfg, httpguard.New(coordinator, httpguard.WithLogger(a.logger)),
		a.registry, a.monitor, a.logger)
	return err
}

// runBackground runs the health checks and store upkeep until ctx is done.
func (a *app) runBackground(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if a.backend.background != nil {
			a.backend.background(ctx)
		}
	}()
	a.monitor.Run(ctx, appName, healthInterval)
	<-done
}

// Close releases the resolver and the store.
func (a *app) Close(ctx context.Context) error {
	if a.resolver != nil {
		_ = a.resolver.Close()
	}
	if err := a.backend.Close(ctx); err != nil {
		return errors.Wrap(err, "main", "Close", "close claim store")
	}
	return nil
}
