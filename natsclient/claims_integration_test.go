//go:build integration

package natsclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_ClaimStore(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	store, err := tc.Client.NewClaimStore(ctx, DefaultClaimStoreConfig())
	require.NoError(t, err)
	require.NoError(t, store.Ping(ctx))

	key := "no-duplicate:/test:0badc0de"

	ok, err := store.SetIfAbsent(ctx, key, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetIfAbsent(ctx, key, 2*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Delete(ctx, key))
	ok, err = store.SetIfAbsent(ctx, key, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "claim should be free after delete")

	assert.Eventually(t, func() bool {
		ok, err := store.SetIfAbsent(ctx, key, 2*time.Second)
		return err == nil && ok
	}, 10*time.Second, 250*time.Millisecond, "claim should expire")
}

func TestIntegration_ClaimStoreReopen(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	first, err := tc.Client.NewClaimStore(ctx, DefaultClaimStoreConfig())
	require.NoError(t, err)
	second, err := tc.Client.NewClaimStore(ctx, DefaultClaimStoreConfig())
	require.NoError(t, err)

	ok, err := first.SetIfAbsent(ctx, "ns:/p:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.SetIfAbsent(ctx, "ns:/p:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIntegration_ClaimStoreConcurrent(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	store, err := tc.Client.NewClaimStore(ctx, DefaultClaimStoreConfig())
	require.NoError(t, err)

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := store.SetIfAbsent(ctx, "ns:/p:contended", time.Minute); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
}
