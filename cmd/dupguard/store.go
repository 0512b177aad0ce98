package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/dupguard/config"
	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/guard"
	"github.com/c360/dupguard/health"
	"github.com/c360/dupguard/metric"
	"github.com/c360/dupguard/natsclient"
	"github.com/c360/dupguard/pkg/retry"
	"github.com/c360/dupguard/store/memstore"
	"github.com/c360/dupguard/store/redisstore"
	"github.com/c360/dupguard/store/sqlstore"
)

// claimStore is a guard.Store that can report its reachability.
type claimStore interface {
	guard.Store
	Ping(ctx context.Context) error
}

// backend is an opened claim store plus what the server must do to run and
// stop it.
type backend struct {
	name  string
	store claimStore

	// probes are registered with the health monitor.
	probes map[string]health.Probe
	// background runs until ctx is done; nil when the store needs no upkeep.
	background func(ctx context.Context)
	closeFn    func(ctx context.Context) error
}

func (b *backend) Close(ctx context.Context) error {
	if b.closeFn == nil {
		return nil
	}
	return b.closeFn(ctx)
}

// startupRetry waits for a store that may still be starting.
func startupRetry(logger *slog.Logger, store string) retry.Config {
	cfg := retry.Startup()
	cfg.RetryIf = func(err error) bool {
		return !errors.IsInvalid(err) && !errors.IsFatal(err)
	}
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("Claim store not reachable yet", "store", store, "attempt", attempt, "retry_in", delay, "error", err)
	}
	return cfg
}

// openBackend connects the store selected by cfg and waits until it answers,
// bounded by store.connect_timeout.
func openBackend(ctx context.Context, cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) (*backend, error) {
	connectCtx := ctx
	if cfg.Store.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.Store.ConnectTimeout)
		defer cancel()
	}

	var (
		b   *backend
		err error
	)
	switch cfg.Store.Type {
	case config.StoreMemory:
		b = openMemory(cfg)
	case config.StoreRedis:
		b, err = openRedis(connectCtx, cfg, logger)
	case config.StoreNATS:
		b, err = openNATS(connectCtx, cfg, registry, logger)
	case config.StorePostgres, config.StoreSQLite:
		b, err = openSQL(connectCtx, cfg, registry, logger)
	default:
		err = errors.WrapInvalid(errors.ErrInvalidConfig, "main", "openBackend",
			fmt.Sprintf("unknown store type %q", cfg.Store.Type))
	}
	if err != nil {
		return nil, err
	}

	if b.probes == nil {
		b.probes = make(map[string]health.Probe)
	}
	b.probes["store"] = b.store.Ping

	logger.Info("Claim store ready", "store", b.name)
	return b, nil
}

func openMemory(cfg *config.Config) *backend {
	store := memstore.New(memstore.WithCleanupInterval(cfg.Store.Memory.CleanupInterval))
	return &backend{
		name:    config.StoreMemory,
		store:   store,
		closeFn: func(context.Context) error { return store.Close() },
	}
}

func openRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	store, err := redisstore.New(cfg.Store.Redis)
	if err != nil {
		return nil, err
	}

	err = retry.Do(ctx, startupRetry(logger, config.StoreRedis), func() error {
		return store.Ping(ctx)
	})
	if err != nil {
		_ = store.Close()
		return nil, errors.WrapTransient(err, "main", "openRedis", "reach redis")
	}

	return &backend{
		name:    config.StoreRedis,
		store:   store,
		closeFn: func(context.Context) error { return store.Close() },
	}, nil
}

func openNATS(ctx context.Context, cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) (*backend, error) {
	natsCfg := cfg.Store.NATS

	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry),
	}
	if natsCfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(natsCfg.Username, natsCfg.Password))
	}
	if natsCfg.Token != "" {
		opts = append(opts, natsclient.WithToken(natsCfg.Token))
	}

	client, err := natsclient.NewClient(natsCfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	err = retry.Do(ctx, startupRetry(logger, config.StoreNATS), func() error {
		return client.Connect(ctx)
	})
	if err != nil {
		_ = client.Close(context.Background())
		return nil, errors.WrapTransient(err, "main", "openNATS", "connect to nats")
	}

	store, err := client.NewClaimStore(ctx, natsCfg.ClaimStoreConfig)
	if err != nil {
		_ = client.Close(context.Background())
		return nil, err
	}

	return &backend{
		name:  config.StoreNATS,
		store: store,
		probes: map[string]health.Probe{
			"nats": func(context.Context) error {
				if !client.IsHealthy() {
					return fmt.Errorf("nats connection %s", client.Status())
				}
				return nil
			},
		},
		closeFn: client.Close,
	}, nil
}

func openSQL(ctx context.Context, cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) (*backend, error) {
	sqlCfg := cfg.Store.SQLConfig()

	store, err := retry.DoWithResult(ctx, startupRetry(logger, cfg.Store.Type), func() (*sqlstore.Store, error) {
		return sqlstore.Open(ctx, sqlCfg)
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "main", "openSQL", "open database")
	}

	removed := registry.CoreMetrics().StoreCleanedUp
	return &backend{
		name:  cfg.Store.Type,
		store: store,
		background: func(ctx context.Context) {
			store.RunCleanup(ctx, sqlCfg.CleanupInterval, func(n int64, err error) {
				if err != nil {
					logger.Warn("Expired claim cleanup failed", "error", err)
					return
				}
				removed.Add(float64(n))
				logger.Debug("Expired claims removed", "count", n)
			})
		},
		closeFn: func(context.Context) error { return store.Close() },
	}, nil
}
