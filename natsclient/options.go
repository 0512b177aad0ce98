package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/dupguard/metric"
)

// ClientOption configures a Client
type ClientOption func(*Client) error

// WithLogger sets the logger. A nil logger keeps slog.Default.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithName sets the connection name shown by the server.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.name = name
		return nil
	}
}

// WithCredentials authenticates with a username and password.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		if username == "" {
			return fmt.Errorf("username is required with credentials")
		}
		c.username, c.password = username, password
		return nil
	}
}

// WithToken authenticates with a token. It takes precedence over credentials.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithTimeout bounds each dial attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithMaxReconnects limits reconnection attempts; -1 retries forever.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = n
		return nil
	}
}

// WithCircuitBreakerThreshold sets how many consecutive failures open the circuit.
func WithCircuitBreakerThreshold(threshold int32) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			threshold = defaultBreakerThreshold
		}
		c.breakerThreshold = threshold
		return nil
	}
}

// WithMaxBackoff caps how long the circuit stays open.
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < initialBreakerBackoff {
			d = time.Minute
		}
		c.maxBackoff = d
		return nil
	}
}

// WithMetrics exposes connection status and circuit breaker metrics.
func WithMetrics(registry metric.Registrar) ClientOption {
	return func(c *Client) error {
		if registry == nil {
			return nil
		}
		m, err := newClientMetrics(registry)
		if err != nil {
			return err
		}
		c.metrics = m
		return nil
	}
}
