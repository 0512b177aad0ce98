package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/c360/dupguard/config"
)

// NewServeCommand runs the demo server.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var validateOnly bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the guarded demo endpoints",
		Long: `Serve the demo endpoints under /test, guarded against duplicate submissions.

A duplicate request within the claim TTL is answered with 409 Conflict; when
the claim store cannot be reached the answer is 503 Service Unavailable.
/healthz reports store reachability and the metrics path serves Prometheus
metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			logger := setupLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			slog.SetDefault(logger)

			if validateOnly {
				logger.Info("Configuration is valid")
				_, err := fmt.Fprint(cmd.OutOrStdout(), cfg.String())
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().BoolVar(&validateOnly, "validate", false, "validate the configuration, print it and exit")
	return cmd
}

// loadConfig layers the config file (if any) and the environment over the
// defaults, then applies the command-line overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	loader := config.NewLoader()
	if opts.ConfigPath != "" {
		loader.AddLayer(opts.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Starting dupguard",
		"version", Version,
		"build_time", BuildTime,
		"store", cfg.Store.Type,
		"framework", cfg.HTTP.Framework,
		"namespace", cfg.Namespace)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Error("Shutdown incomplete", "error", err)
		}
	}()

	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTP.Addr, err)
	}

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", listener.Addr().String())
		if err := srv.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.runBackground(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", "timeout", cfg.HTTP.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("dupguard shutdown complete")
	return nil
}
