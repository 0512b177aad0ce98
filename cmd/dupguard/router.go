package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/dupguard/config"
	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/health"
	"github.com/c360/dupguard/httpguard"
	"github.com/c360/dupguard/metric"
)

const unmatchedRoute = "unmatched"

// newRouter serves the demo endpoints on the configured framework next to
// /healthz and the metrics endpoint.
func newRouter(cfg *config.Config, g *httpguard.Guard, registry *metric.MetricsRegistry,
	monitor *health.Monitor, logger *slog.Logger) (http.Handler, error) {
	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		registry.Mount(mux, cfg.Metrics.Path)
	}
	mux.Handle("GET /healthz", monitor.Handler(appName))

	core := registry.CoreMetrics()
	endpoints := demoEndpoints()

	switch cfg.HTTP.Framework {
	case config.FrameworkNetHTTP:
		for _, ep := range endpoints {
			h := g.Handler(ep.Route, netHTTPHandler(ep, logger))
			mux.Handle(ep.Method+" "+ep.Path, instrument(core, ep.Path, h))
		}
	case config.FrameworkGin:
		engine := gin.New()
		engine.Use(gin.Recovery(), ginMetrics(core))
		for _, ep := range endpoints {
			engine.Handle(ep.Method, ep.Path, g.Gin(ep.Route), ginHandler(ep, logger))
		}
		mux.Handle("/test", engine)
		mux.Handle("/test/", engine)
	case config.FrameworkEcho:
		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		e.Use(echoMetrics(core))
		for _, ep := range endpoints {
			e.Add(ep.Method, ep.Path, echoHandler(ep, logger), g.Echo(ep.Route))
		}
		mux.Handle("/test", e)
		mux.Handle("/test/", e)
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "main", "newRouter",
			"unknown http framework "+strconv.Quote(cfg.HTTP.Framework))
	}
	return mux, nil
}

// respond runs the endpoint on the arguments of r. The guard has already
// extracted them once; the body was restored for this second read.
func respond(ep endpoint, r *http.Request) (any, error) {
	var args []any
	if ep.Route.Args != nil {
		var err error
		if args, err = ep.Route.Args(r); err != nil {
			return nil, err
		}
	}
	return ep.Handle(args)
}

func netHTTPHandler(ep endpoint, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := respond(ep, r)
		if err != nil {
			logger.Error("Demo handler failed", "path", ep.Path, "error", err)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(httpguard.ErrorResponse{Error: err.Error()})
			return
		}
		if s, ok := out.(string); ok {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(w, s)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(out)
	}
}

func ginHandler(ep endpoint, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := respond(ep, c.Request)
		if err != nil {
			logger.Error("Demo handler failed", "path", ep.Path, "error", err)
			c.JSON(http.StatusInternalServerError, httpguard.ErrorResponse{Error: err.Error()})
			return
		}
		if s, ok := out.(string); ok {
			c.String(http.StatusOK, s)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func echoHandler(ep endpoint, logger *slog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		out, err := respond(ep, c.Request())
		if err != nil {
			logger.Error("Demo handler failed", "path", ep.Path, "error", err)
			return c.JSON(http.StatusInternalServerError, httpguard.ErrorResponse{Error: err.Error()})
		}
		if s, ok := out.(string); ok {
			return c.String(http.StatusOK, s)
		}
		return c.JSON(http.StatusOK, out)
	}
}

func instrument(m *metric.Metrics, route string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerDuration(m.HTTPDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(m.HTTPRequests.MustCurryWith(labels), h))
}

func ginMetrics(m *metric.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		m.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func echoMetrics(m *metric.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = unmatchedRoute
			}
			m.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Response().Status)).Inc()
			m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
