// Package natsclient connects to NATS and exposes a JetStream key-value bucket
// as a claim store. A circuit breaker stops hammering a failing server.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/dupguard/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

var statusNames = [...]string{"disconnected", "connecting", "connected", "reconnecting", "circuit_open"}

func (s ConnectionStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
)

const drainTimeout = 30 * time.Second

// Client owns one NATS connection and its JetStream context.
type Client struct {
	url     string
	logger  *slog.Logger
	metrics *clientMetrics
	status  atomic.Int32
	breaker *breaker

	// set by options
	name             string
	username         string
	password         string
	token            string
	timeout          time.Duration
	maxReconnects    int
	breakerThreshold int32
	maxBackoff       time.Duration

	mu     sync.RWMutex
	conn   *nats.Conn
	js     jetstream.JetStream
	closed atomic.Bool
}

// NewClient creates a client for url. Call Connect before use.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.Default(),
		timeout:          5 * time.Second,
		maxReconnects:    -1,
		breakerThreshold: defaultBreakerThreshold,
		maxBackoff:       time.Minute,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient")
	c.breaker = newBreaker(c.breakerThreshold, c.maxBackoff)
	c.setStatus(StatusDisconnected)
	return c, nil
}

// URL returns the server URL the client was created with.
func (m *Client) URL() string { return m.url }

// Status returns the current connection status
func (m *Client) Status() ConnectionStatus {
	return ConnectionStatus(m.status.Load())
}

func (m *Client) setStatus(s ConnectionStatus) {
	m.status.Store(int32(s))
	m.metrics.setStatus(s)
}

// IsHealthy reports whether the connection is up and the circuit closed.
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

// Failures returns the number of failures since the last success.
func (m *Client) Failures() int32 { return m.breaker.failures() }

// Backoff returns how long the circuit stays open the next time it trips.
func (m *Client) Backoff() time.Duration { return m.breaker.currentBackoff() }

func (m *Client) recordFailure() {
	tripped, wait := m.breaker.fail()
	if !tripped {
		return
	}

	prev := m.Status()
	if prev == StatusCircuitOpen {
		m.logger.Warn("Circuit breaker still open", "backoff", m.breaker.currentBackoff())
		return
	}
	if !m.status.CompareAndSwap(int32(prev), int32(StatusCircuitOpen)) {
		return
	}
	m.metrics.setStatus(StatusCircuitOpen)
	m.metrics.circuitOpened()
	m.logger.Warn("Circuit breaker opened", "failures", m.breaker.failures(), "backoff", wait)
	time.AfterFunc(wait, m.halfOpen)
}

func (m *Client) recordSuccess() {
	if !m.breaker.dirty() && m.Status() != StatusCircuitOpen {
		return
	}
	m.breaker.reset()
	if m.Status() == StatusCircuitOpen {
		m.setStatus(StatusDisconnected)
	}
}

// halfOpen lets the next attempt through once the cool-down has passed.
func (m *Client) halfOpen() {
	if m.Status() != StatusCircuitOpen {
		return
	}
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn != nil && conn.IsConnected() {
		m.setStatus(StatusConnected)
		return
	}
	m.logger.Debug("Circuit breaker half-open")
	m.setStatus(StatusDisconnected)
}

func (m *Client) natsOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(m.maxReconnects),
		nats.Timeout(m.timeout),
		nats.DrainTimeout(drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m.closed.Load() {
				return
			}
			m.setStatus(StatusReconnecting)
			m.logger.Warn("Disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			m.setStatus(StatusConnected)
			m.breaker.reset()
			m.logger.Info("Reconnected to NATS", "url", m.url)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			m.setStatus(StatusDisconnected)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			m.logger.Error("NATS error", "error", err)
		}),
	}
	switch {
	case m.token != "":
		opts = append(opts, nats.Token(m.token))
	case m.username != "":
		opts = append(opts, nats.UserInfo(m.username, m.password))
	}
	if m.name != "" {
		opts = append(opts, nats.Name(m.name))
	}
	return opts
}

// Connect dials the server and initialises JetStream. ctx bounds the dial.
func (m *Client) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return errors.WrapFatal(errors.ErrClosed, "Client", "Connect", "connect")
	}
	if m.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}

	m.setStatus(StatusConnecting)
	m.logger.Info("Connecting to NATS", "url", m.url)

	type dialed struct {
		conn *nats.Conn
		js   jetstream.JetStream
		err  error
	}
	done := make(chan dialed, 1)
	go func() {
		conn, err := nats.Connect(m.url, m.natsOptions()...)
		if err != nil {
			done <- dialed{err: err}
			return
		}
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			done <- dialed{err: err}
			return
		}
		done <- dialed{conn: conn, js: js}
	}()

	var res dialed
	select {
	case res = <-done:
	case <-ctx.Done():
		go func() {
			if late := <-done; late.conn != nil {
				late.conn.Close()
			}
		}()
		res.err = ctx.Err()
	}

	if res.err != nil {
		m.recordFailure()
		if m.Status() == StatusCircuitOpen {
			return ErrCircuitOpen
		}
		m.setStatus(StatusDisconnected)
		return errors.WrapTransient(res.err, "Client", "Connect", "establish connection")
	}

	m.mu.Lock()
	m.conn, m.js = res.conn, res.js
	m.mu.Unlock()

	m.breaker.reset()
	m.setStatus(StatusConnected)
	m.logger.Info("Connected to NATS", "url", m.url)
	return nil
}

// Close drains the connection within ctx and forgets the credentials.
// Calling it again is a no-op.
func (m *Client) Close(ctx context.Context) error {
	if m.closed.Swap(true) {
		return nil
	}

	m.mu.Lock()
	conn := m.conn
	m.conn, m.js = nil, nil
	m.username, m.password, m.token = "", "", ""
	m.mu.Unlock()

	defer m.setStatus(StatusDisconnected)
	if conn == nil {
		return nil
	}
	defer conn.Close()

	drained := make(chan error, 1)
	go func() { drained <- conn.Drain() }()

	var err error
	select {
	case derr := <-drained:
		if derr != nil {
			err = errors.Wrap(derr, "Client", "Close", "drain connection")
		}
	case <-ctx.Done():
		err = errors.Wrap(ctx.Err(), "Client", "Close", "drain connection")
	case <-time.After(drainTimeout):
		err = errors.WrapTransient(fmt.Errorf("drain timeout after %v", drainTimeout),
			"Client", "Close", "drain connection")
	}
	if err != nil {
		m.logger.Error("Closing NATS connection", "error", err)
	}
	return err
}

func (m *Client) jetStream() (jetstream.JetStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.js == nil {
		return nil, ErrNotConnected
	}
	return m.js, nil
}

// keyValue opens the bucket named in cfg, creating it when it does not exist.
// Losing a creation race to another instance is not an error.
func (m *Client) keyValue(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	switch m.Status() {
	case StatusConnected:
	case StatusCircuitOpen:
		return nil, ErrCircuitOpen
	default:
		return nil, ErrNotConnected
	}
	js, err := m.jetStream()
	if err != nil {
		return nil, err
	}

	if kv, err := js.KeyValue(ctx, cfg.Bucket); err == nil {
		m.logger.Debug("Using existing KV bucket", "bucket", cfg.Bucket)
		return kv, nil
	}

	kv, err := js.CreateKeyValue(ctx, cfg)
	if err != nil && isAlreadyExistsError(err) {
		kv, err = js.KeyValue(ctx, cfg.Bucket)
	}
	if err != nil {
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "keyValue", fmt.Sprintf("open bucket %s", cfg.Bucket))
	}
	m.logger.Info("KV bucket ready", "bucket", cfg.Bucket)
	return kv, nil
}

func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrBucketExists) || stderrors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "already in use") || strings.Contains(msg, "already exists")
}
