package tracker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chain-portfolio/internal/types"
)

// listErrStore fails List until err is cleared
type listErrStore struct {
	LocalStore
	err error
}

func (s *listErrStore) List(ctx context.Context) ([]types.WalletRef, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.LocalStore.List(ctx)
}

func TestPoolSharesTrackerPerOwner(t *testing.T) {
	f := newStubFetcher()
	f.set(walletA, usdcPortfolio(walletA, 10), nil)
	f.set(walletB, usdcPortfolio(walletB, 20), nil)

	stores := map[string]WalletStore{
		"alice": NewLocalStore(walletA),
		"bob":   NewLocalStore(walletB),
	}
	pool := NewPool(f, DefaultConfig(), func(owner string) WalletStore { return stores[owner] }, 0)
	ctx := context.Background()

	alice, err := pool.Get(ctx, "alice")
	require.NoError(t, err)
	again, err := pool.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Same(t, alice, again)
	assert.Equal(t, 10.0, alice.View().TotalValue)

	bob, err := pool.Get(ctx, "bob")
	require.NoError(t, err)
	assert.NotSame(t, alice, bob)
	assert.Equal(t, 20.0, bob.View().TotalValue)
	assert.Equal(t, 2, pool.Len())
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.calls))
}

func TestPoolRetriesFailedLoad(t *testing.T) {
	f := newStubFetcher()
	f.set(walletA, usdcPortfolio(walletA, 10), nil)

	store := &listErrStore{err: errors.New("db down")}
	_ = store.Add(context.Background(), walletA, "")
	pool := NewPool(f, DefaultConfig(), func(string) WalletStore { return store }, 0)

	_, err := pool.Get(context.Background(), "alice")
	require.Error(t, err)

	store.err = nil
	tr, err := pool.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 10.0, tr.View().TotalValue)
}

func TestPoolDropsIdleTrackers(t *testing.T) {
	f := newStubFetcher()
	pool := NewPool(f, DefaultConfig(), func(string) WalletStore { return NewLocalStore() }, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return now }

	first, err := pool.Get(context.Background(), "alice")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = pool.Get(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Len())

	second, err := pool.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}
