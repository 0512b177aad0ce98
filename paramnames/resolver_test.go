package paramnames

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/metric"
	"github.com/c360/dupguard/pkg/cache"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) ParamNames(signature string) ([]string, error) {
	args := m.Called(signature)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newResolver(t *testing.T, source Source, opts ...Option) *Resolver {
	t.Helper()
	r, err := NewResolver(context.Background(), source, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestResolver_CachesNames(t *testing.T) {
	src := &mockSource{}
	src.On("ParamNames", "FoobarController.GetSpel").Return([]string{"foo", "bar"}, nil).Once()

	r := newResolver(t, src)

	assert.Equal(t, []string{"foo", "bar"}, r.NamesFor("FoobarController.GetSpel"))
	assert.Equal(t, []string{"foo", "bar"}, r.NamesFor("FoobarController.GetSpel"))

	src.AssertExpectations(t)
	assert.Equal(t, int64(1), r.Stats().Hits())
}

func TestResolver_ReturnsCopies(t *testing.T) {
	src := &mockSource{}
	src.On("ParamNames", "op").Return([]string{"a", "b"}, nil).Once()

	r := newResolver(t, src)

	first := r.NamesFor("op")
	first[0] = "mutated"

	assert.Equal(t, []string{"a", "b"}, r.NamesFor("op"))
}

func TestResolver_NoNamesNotCached(t *testing.T) {
	src := &mockSource{}
	src.On("ParamNames", "NoArgs").Return(nil, nil).Twice()

	r := newResolver(t, src)

	assert.Nil(t, r.NamesFor("NoArgs"))
	assert.Nil(t, r.NamesFor("NoArgs"))
	src.AssertExpectations(t)
}

func TestResolver_FaultLoggedAndSwallowed(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	src := &mockSource{}
	src.On("ParamNames", "Broken").Return(nil, fmt.Errorf("metadata store offline"))

	r := newResolver(t, src, WithLogger(logger))

	assert.Nil(t, r.NamesFor("Broken"))
	assert.Contains(t, buf.String(), "Parameter name lookup failed")
	assert.Contains(t, buf.String(), "metadata store offline")
}

func TestResolver_PanickingSource(t *testing.T) {
	r := newResolver(t, SourceFunc(func(string) ([]string, error) {
		panic("boom")
	}), WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))

	assert.NotPanics(t, func() {
		assert.Nil(t, r.NamesFor("op"))
	})
}

func TestResolver_EmptySignature(t *testing.T) {
	src := &mockSource{}
	r := newResolver(t, src)

	assert.Nil(t, r.NamesFor(""))
	src.AssertNotCalled(t, "ParamNames", mock.Anything)
}

func TestResolver_ExpiresAfterWrite(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	src := &mockSource{}
	src.On("ParamNames", "op").Return([]string{"x"}, nil).Twice()

	r := newResolver(t, src, WithClock(clock.Now))

	r.NamesFor("op")
	clock.Advance(9 * time.Minute)
	r.NamesFor("op") // hit; does not extend
	clock.Advance(time.Minute)
	r.NamesFor("op") // expired, second lookup

	src.AssertExpectations(t)
}

func TestResolver_CapacityBound(t *testing.T) {
	var calls atomic.Int64
	src := SourceFunc(func(sig string) ([]string, error) {
		calls.Add(1)
		return []string{"arg"}, nil
	})

	r := newResolver(t, src, WithCacheConfig(cache.Config{MaxSize: 3, TTL: time.Minute}))

	for i := 0; i < 5; i++ {
		r.NamesFor(fmt.Sprintf("op%d", i))
	}
	assert.Equal(t, int64(5), calls.Load())
	assert.Equal(t, int64(2), r.Stats().Evictions())

	// op0 was evicted and needs another lookup; op4 is still cached.
	r.NamesFor("op4")
	r.NamesFor("op0")
	assert.Equal(t, int64(6), calls.Load())
}

func TestResolver_ConcurrentMissesShareLookup(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	src := SourceFunc(func(string) ([]string, error) {
		calls.Add(1)
		<-release
		return []string{"foo"}, nil
	})

	r := newResolver(t, src)

	var wg sync.WaitGroup
	results := make([][]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.NamesFor("hot")
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, names := range results {
		assert.Equal(t, []string{"foo"}, names)
	}
	assert.LessOrEqual(t, calls.Load(), int64(2), "concurrent misses should collapse")
}

func TestResolver_Invalidate(t *testing.T) {
	src := &mockSource{}
	src.On("ParamNames", "op").Return([]string{"a"}, nil).Twice()

	r := newResolver(t, src)
	r.NamesFor("op")
	r.Invalidate("op")
	r.Invalidate("")
	r.NamesFor("op")

	src.AssertExpectations(t)
}

func TestResolver_Metrics(t *testing.T) {
	reg := metric.NewMetricsRegistry()
	r := newResolver(t, SourceFunc(func(string) ([]string, error) { return []string{"a"}, nil }),
		WithMetrics(reg))

	r.NamesFor("op")
	r.NamesFor("op")

	families, err := reg.PrometheusRegistry().Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "dupguard_cache_hits_total" {
			found = true
			assert.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestNewResolver_Invalid(t *testing.T) {
	_, err := NewResolver(context.Background(), nil)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewResolver(context.Background(), NewDeclarations(), WithCacheConfig(cache.Config{}))
	assert.Error(t, err)
}
