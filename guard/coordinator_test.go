package guard

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/metric"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

var errConnRefused = stderrors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

func newTestCoordinator(t *testing.T, store Store, opts ...Option) *Coordinator {
	t.Helper()
	opts = append([]Option{WithNamespace("no-duplicate")}, opts...)
	c, err := NewCoordinator(store, opts...)
	require.NoError(t, err)
	return c
}

func getInvocation(args ...any) Invocation {
	return Invocation{Signature: sigGet, Path: "/test", Args: args}
}

func TestNewCoordinator_NilStore(t *testing.T) {
	_, err := NewCoordinator(nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestCoordinator_Key(t *testing.T) {
	c := newTestCoordinator(t, &mockStore{})
	inv := getInvocation("foo", "bar")
	fp := c.Fingerprinter().Fingerprint(inv, "")

	assert.Equal(t, "no-duplicate", c.Namespace())
	assert.Equal(t, "no-duplicate:/test:"+fp, c.Key(inv, DefaultPolicy()))

	p := DefaultPolicy()
	p.IncludeOperationPath = false
	assert.Equal(t, "no-duplicate:"+fp, c.Key(inv, p))
}

func TestCoordinator_AcquireClaimsKey(t *testing.T) {
	store := &mockStore{}
	acquiredAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCoordinator(t, store, WithClock(func() time.Time { return acquiredAt }))

	inv := getInvocation("foo", "bar")
	key := c.Key(inv, DefaultPolicy())
	store.On("SetIfAbsent", mock.Anything, key, 2*time.Second).Return(true, nil).Once()

	claim, err := c.Acquire(context.Background(), inv, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, key, claim.Key)
	assert.Equal(t, 2*time.Second, claim.TTL)
	assert.Equal(t, acquiredAt, claim.AcquiredAt)

	store.AssertExpectations(t)
}

func TestCoordinator_AcquireRejectsDuplicate(t *testing.T) {
	store := &mockStore{}
	c := newTestCoordinator(t, store)

	p := DefaultPolicy()
	p.RejectionMessage = "already submitted"
	inv := getInvocation("foo", "bar")
	store.On("SetIfAbsent", mock.Anything, c.Key(inv, p), p.TTL).Return(false, nil)

	claim, err := c.Acquire(context.Background(), inv, p)
	assert.Nil(t, claim)
	require.Error(t, err)
	assert.True(t, IsDuplicate(err))
	assert.False(t, IsStoreUnavailable(err))
	assert.Equal(t, "already submitted", err.Error())
	assert.Equal(t, "already submitted", RejectionMessage(err))

	var de *DuplicateError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, c.Key(inv, p), de.Key)
}

func TestCoordinator_AcquireStoreFailure(t *testing.T) {
	store := &mockStore{}
	c := newTestCoordinator(t, store)

	store.On("SetIfAbsent", mock.Anything, mock.Anything, mock.Anything).Return(false, errConnRefused)

	claim, err := c.Acquire(context.Background(), getInvocation("foo", "bar"), DefaultPolicy())
	assert.Nil(t, claim)
	require.Error(t, err)
	assert.True(t, IsStoreUnavailable(err))
	assert.False(t, IsDuplicate(err))
	assert.ErrorIs(t, err, errConnRefused)
	assert.True(t, errors.IsTransient(err))
	assert.Empty(t, RejectionMessage(err))

	// Exactly one round trip, no retries.
	store.AssertNumberOfCalls(t, "SetIfAbsent", 1)
}

func TestCoordinator_AcquireInvalidPolicy(t *testing.T) {
	store := &mockStore{}
	c := newTestCoordinator(t, store)

	_, err := c.Acquire(context.Background(), getInvocation(), DefaultPolicy().WithTTL(0))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.False(t, IsStoreUnavailable(err))

	store.AssertNotCalled(t, "SetIfAbsent", mock.Anything, mock.Anything, mock.Anything)
}

func TestCoordinator_AcquireBrokenExpressionDegrades(t *testing.T) {
	store := &mockStore{}
	rec := &degradedRecorder{}
	c := newTestCoordinator(t, store, WithNameResolver(staticNames{sigGet: {"foo", "bar"}}))
	c.fingerprinter.onDegraded = rec.record

	p := DefaultPolicy().WithKeyExpression("#")
	want := BuildKey("no-duplicate", "/test", EmptyFingerprint)
	store.On("SetIfAbsent", mock.Anything, want, 2*time.Second).Return(true, nil).Once()

	_, err := c.Acquire(context.Background(), getInvocation("foo", "bar"), p)
	require.NoError(t, err)
	store.AssertExpectations(t)
	assert.Equal(t, []DegradedReason{DegradedExpression}, rec.all())
}

func TestCoordinator_AcquireUsesCompiledExpressionCache(t *testing.T) {
	store := &mockStore{}
	c := newTestCoordinator(t, store, WithNameResolver(staticNames{sigGet: {"foo", "bar"}}))
	store.On("SetIfAbsent", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	p := DefaultPolicy().WithKeyExpression("#foo")
	for i := 0; i < 5; i++ {
		_, err := c.Acquire(context.Background(), getInvocation("foo", "bar"), p)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, c.fingerprinter.expressions.Size())
	hits := c.fingerprinter.expressions.Stats().Hits()
	assert.Equal(t, int64(4), hits)
}

func TestCoordinator_Release(t *testing.T) {
	store := &mockStore{}
	c := newTestCoordinator(t, store)

	inv := getInvocation("foo", "bar")
	p := DefaultPolicy().WithReleaseOnCompletion(true)
	store.On("Delete", mock.Anything, c.Key(inv, p)).Return(nil).Once()

	c.Release(context.Background(), inv, p)
	store.AssertExpectations(t)
}

func TestCoordinator_ReleaseFailureSwallowed(t *testing.T) {
	store := &mockStore{}
	c := newTestCoordinator(t, store)

	store.On("Delete", mock.Anything, "no-duplicate:/test:abc").Return(errConnRefused)

	assert.NotPanics(t, func() {
		c.ReleaseKey(context.Background(), "no-duplicate:/test:abc")
	})
	store.AssertExpectations(t)
}

func TestCoordinator_Metrics(t *testing.T) {
	store := &mockStore{}
	registry := metric.NewMetricsRegistry()
	c := newTestCoordinator(t, store, WithMetrics(registry))

	inv := getInvocation("foo", "bar")
	key := c.Key(inv, DefaultPolicy())

	store.On("SetIfAbsent", mock.Anything, key, mock.Anything).Return(true, nil).Once()
	store.On("SetIfAbsent", mock.Anything, key, mock.Anything).Return(false, nil).Once()
	store.On("SetIfAbsent", mock.Anything, key, mock.Anything).Return(false, errConnRefused).Once()
	store.On("Delete", mock.Anything, key).Return(nil).Once()
	store.On("Delete", mock.Anything, key).Return(errConnRefused).Once()

	for i := 0; i < 3; i++ {
		_, _ = c.Acquire(context.Background(), inv, DefaultPolicy())
	}
	c.ReleaseKey(context.Background(), key)
	c.ReleaseKey(context.Background(), key)

	// Fingerprint computed without names for an expression policy.
	c.Key(Invocation{Signature: "Unknown()", Args: []any{1}}, DefaultPolicy().WithKeyExpression("#x"))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.acquires.WithLabelValues(outcomeAcquired)))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.acquires.WithLabelValues(outcomeRejected)))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.acquires.WithLabelValues(outcomeStoreError)))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.releases.WithLabelValues(outcomeReleased)))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.releases.WithLabelValues(outcomeFailed)))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.degraded.WithLabelValues(string(DegradedNoNames))))
	assert.Equal(t, 2, testutil.CollectAndCount(c.metrics.storeDuration))

	// A second coordinator on the same registry collides.
	_, err := NewCoordinator(store, WithMetrics(registry))
	assert.Error(t, err)
}
