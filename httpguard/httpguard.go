package httpguard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/c360/dupguard/guard"
)

// Route describes one guarded endpoint.
type Route struct {
	Signature string
	Policy    guard.Policy
	// Args extracts the call arguments; nil means the operation has none.
	Args ArgsFunc
}

// ErrorResponse is the JSON body written when a call is refused.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Guard builds middleware around a Coordinator.
type Guard struct {
	coordinator *guard.Coordinator
	logger      *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates a Guard.
func New(coordinator *guard.Coordinator, opts ...Option) *Guard {
	g := &Guard{coordinator: coordinator, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "httpguard")
	return g
}

// StatusFor maps an Acquire error to an HTTP status and response message.
func StatusFor(err error) (int, string) {
	switch {
	case guard.IsDuplicate(err):
		return http.StatusConflict, guard.RejectionMessage(err)
	case guard.IsStoreUnavailable(err):
		return http.StatusServiceUnavailable, "duplicate check unavailable, please retry later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// prepared is a Route whose policy was validated when the middleware was built.
type prepared struct {
	Route
	invalid error
}

func (g *Guard) prepare(route Route) prepared {
	err := route.Policy.Validate()
	if err != nil {
		g.logger.Error("Invalid guard policy, route will answer 500",
			"signature", route.Signature, "error", err)
	}
	return prepared{Route: route, invalid: err}
}

// run extracts the arguments of r and runs next under the route's claim.
// It returns the status and message to answer with when next did not run.
func (g *Guard) run(r *http.Request, route prepared, next func(ctx context.Context) error) (int, string, error) {
	if route.invalid != nil {
		status, message := StatusFor(route.invalid)
		return status, message, nil
	}

	args, err := route.arguments(r)
	if err != nil {
		return http.StatusBadRequest, err.Error(), nil
	}

	ctx := guard.WithOperationPath(r.Context(), r.URL.Path)
	inv := guard.Invocation{Signature: route.Signature, Path: r.URL.Path, Args: args}

	claim, err := g.coordinator.Acquire(ctx, inv, route.Policy)
	if err != nil {
		status, message := StatusFor(err)
		if status != http.StatusConflict {
			g.logger.Error("Guard refused request", "path", r.URL.Path, "signature", route.Signature, "error", err)
		}
		return status, message, nil
	}
	if route.Policy.ReleaseOnCompletion {
		defer g.coordinator.ReleaseKey(context.WithoutCancel(ctx), claim.Key)
	}
	return 0, "", next(ctx)
}

func (route Route) arguments(r *http.Request) ([]any, error) {
	if route.Args == nil {
		return nil, nil
	}
	return route.Args(r)
}

// Handler guards next with route.
func (g *Guard) Handler(route Route, next http.Handler) http.Handler {
	p := g.prepare(route)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, message, _ := g.run(r, p, func(ctx context.Context) error {
			next.ServeHTTP(w, r.WithContext(ctx))
			return nil
		})
		if status != 0 {
			writeError(w, status, message)
		}
	})
}

// HandlerFunc is Handler for a function.
func (g *Guard) HandlerFunc(route Route, next http.HandlerFunc) http.Handler {
	return g.Handler(route, next)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
