package natsclient

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/metric"
)

func TestNewClient(t *testing.T) {
	manager, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", manager.URL())
	assert.Equal(t, StatusDisconnected, manager.Status())
	assert.False(t, manager.IsHealthy())
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	manager, err := NewClient("nats://invalid:4222")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		manager.recordFailure()
	}
	assert.NotEqual(t, StatusCircuitOpen, manager.Status())

	manager.recordFailure()
	assert.Equal(t, StatusCircuitOpen, manager.Status())
	assert.Equal(t, int32(5), manager.Failures())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	manager, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		manager.recordFailure()
	}
	require.Equal(t, StatusCircuitOpen, manager.Status())

	manager.recordSuccess()
	assert.Equal(t, int32(0), manager.Failures())
	assert.Equal(t, StatusDisconnected, manager.Status())
	assert.Equal(t, time.Second, manager.Backoff())
}

func TestCircuitBreaker_ExponentialBackoff(t *testing.T) {
	manager, err := NewClient("nats://localhost:4222", WithMaxBackoff(8*time.Second))
	require.NoError(t, err)

	assert.Equal(t, time.Second, manager.Backoff())

	for i := 0; i < 5; i++ {
		manager.recordFailure()
	}
	assert.Equal(t, 2*time.Second, manager.Backoff())

	for i := 0; i < 5; i++ {
		manager.recordFailure()
	}
	assert.Equal(t, 4*time.Second, manager.Backoff())

	for i := 0; i < 50; i++ {
		manager.recordFailure()
	}
	assert.Equal(t, 8*time.Second, manager.Backoff())
}

func TestCircuitBreaker_ConcurrentFailures(t *testing.T) {
	manager, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(3))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			manager.recordFailure()
			_ = manager.Status()
			_ = manager.Backoff()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(30), manager.Failures())
	assert.Equal(t, StatusCircuitOpen, manager.Status())
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "circuit_open", StatusCircuitOpen.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}

func TestNotConnected(t *testing.T) {
	manager, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	_, err = manager.jetStream()
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = manager.NewClaimStore(context.Background(), DefaultClaimStoreConfig())
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, manager.Close(context.Background()))
	require.NoError(t, manager.Close(context.Background()))

	err = manager.Connect(context.Background())
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestConnect_Unreachable(t *testing.T) {
	manager, err := NewClient("nats://127.0.0.1:1",
		WithTimeout(200*time.Millisecond), WithMaxReconnects(0), WithCircuitBreakerThreshold(2))
	require.NoError(t, err)

	err = manager.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, StatusDisconnected, manager.Status())

	assert.ErrorIs(t, manager.Connect(context.Background()), ErrCircuitOpen)
	assert.Equal(t, StatusCircuitOpen, manager.Status())
}

func TestClientOptions_Invalid(t *testing.T) {
	_, err := NewClient("nats://localhost:4222", WithTimeout(0))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewClient("nats://localhost:4222", WithCredentials("", "secret"))
	assert.Error(t, err)
}

func TestBreaker(t *testing.T) {
	b := newBreaker(2, 3*time.Second)

	tripped, _ := b.fail()
	assert.False(t, tripped)
	tripped, wait := b.fail()
	assert.True(t, tripped)
	assert.Equal(t, time.Second, wait)
	assert.Equal(t, 2*time.Second, b.currentBackoff())

	b.fail()
	_, wait = b.fail()
	assert.Equal(t, 2*time.Second, wait)
	assert.Equal(t, 3*time.Second, b.currentBackoff(), "backoff is capped")

	assert.True(t, b.dirty())
	b.reset()
	assert.False(t, b.dirty())
	assert.Equal(t, time.Second, b.currentBackoff())
}

func TestConnect_CircuitOpen(t *testing.T) {
	manager, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(1))
	require.NoError(t, err)

	manager.recordFailure()
	assert.ErrorIs(t, manager.Connect(context.Background()), ErrCircuitOpen)
}

func TestMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	manager, err := NewClient("nats://localhost:4222",
		WithMetrics(registry), WithCircuitBreakerThreshold(2))
	require.NoError(t, err)

	manager.recordFailure()
	manager.recordFailure()

	assert.Equal(t, float64(StatusCircuitOpen), testutil.ToFloat64(manager.metrics.status))
	assert.Equal(t, float64(1), testutil.ToFloat64(manager.metrics.circuitOpens))

	// A second client cannot register the same metrics.
	_, err = NewClient("nats://localhost:4222", WithMetrics(registry))
	assert.Error(t, err)
}

func TestIsAlreadyExistsError(t *testing.T) {
	assert.False(t, isAlreadyExistsError(nil))
	assert.True(t, isAlreadyExistsError(jetstream.ErrBucketExists))
	assert.True(t, isAlreadyExistsError(stderrors.New("stream name already in use")))
	assert.False(t, isAlreadyExistsError(stderrors.New("connection refused")))
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"no-duplicate:/test:0badc0de", "no-duplicate./test.0badc0de"},
		{":/test:abc", "_./test.abc"},
		{"ns::abc", "ns._.abc"},
		{"ns:/a b?c:abc", "ns./a_b_c.abc"},
		{"ns:/p:", "ns./p._"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeKey(tt.in))
		})
	}
}
