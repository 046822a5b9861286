package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chain-portfolio/internal/adapter"
	"github.com/chain-portfolio/internal/models"
	"github.com/chain-portfolio/internal/tracker"
	"github.com/chain-portfolio/internal/types"
)

func newTestWalletService(adapters ...adapter.ChainAdapter) (*WalletService, *mockWalletRepo) {
	repo := &mockWalletRepo{}
	portfolio := newTestPortfolioService(&stubPrices{}, nil, adapters...)
	return NewWalletService(repo, portfolio, tracker.DefaultConfig()), repo
}

func TestWalletService_AddListRemove(t *testing.T) {
	svc, _ := newTestWalletService(bitcoinStub(nil))
	ctx := context.Background()

	label := "  cold storage "
	w, err := svc.Add(ctx, "alice", AddWalletInput{Address: " " + satoshiAddress, Chain: "Bitcoin", Label: &label})
	require.NoError(t, err)
	assert.Equal(t, satoshiAddress, w.Address)
	assert.Equal(t, types.ChainBitcoin, w.Chain)
	require.NotNil(t, w.Label)
	assert.Equal(t, "cold storage", *w.Label)

	wallets, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, wallets, 1)

	others, err := svc.List(ctx, "bob")
	require.NoError(t, err)
	assert.NotNil(t, others)
	assert.Empty(t, others)

	require.NoError(t, svc.Remove(ctx, "alice", w.ID))
	wallets, err = svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, wallets)
}

func TestWalletService_AddErrors(t *testing.T) {
	svc, _ := newTestWalletService(bitcoinStub(nil))
	ctx := context.Background()

	_, err := svc.Add(ctx, "alice", AddWalletInput{Address: satoshiAddress, Chain: "bitcoin"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input AddWalletInput
		code  string
	}{
		{"duplicate", AddWalletInput{Address: satoshiAddress, Chain: "bitcoin"}, types.ErrCodeConflict},
		{"invalid address", AddWalletInput{Address: "xyz", Chain: "bitcoin"}, types.ErrCodeInvalidAddress},
		{"unsupported chain", AddWalletInput{Address: satoshiAddress, Chain: "polkadot"}, types.ErrCodeUnsupportedChain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Add(ctx, "alice", tt.input)
			var svcErr *types.ServiceError
			require.ErrorAs(t, err, &svcErr)
			assert.Equal(t, tt.code, svcErr.Code)
		})
	}
}

func TestWalletService_RemoveErrors(t *testing.T) {
	svc, _ := newTestWalletService(bitcoinStub(nil))
	ctx := context.Background()

	var svcErr *types.ServiceError
	require.ErrorAs(t, svc.Remove(ctx, "alice", ""), &svcErr)
	assert.Equal(t, types.ErrCodeInvalidInput, svcErr.Code)

	require.ErrorAs(t, svc.Remove(ctx, "alice", "wallet-404"), &svcErr)
	assert.Equal(t, types.ErrCodeNotFound, svcErr.Code)
}

func TestWalletService_StoreMapsDuplicates(t *testing.T) {
	svc, _ := newTestWalletService(bitcoinStub(nil))
	ctx := context.Background()
	store := svc.Store("alice")
	ref := types.WalletRef{Address: satoshiAddress, Chain: types.ChainBitcoin}

	require.NoError(t, store.Add(ctx, ref, ""))
	err := store.Add(ctx, ref, "")
	assert.True(t, errors.Is(err, tracker.ErrWalletExists))
}

func TestDashboard_ForUserMergesPersistedWallets(t *testing.T) {
	eth := &stubAdapter{
		chain: types.ChainEthereum,
		holdings: map[string]*adapter.Holdings{
			"0xa": {Assets: []adapter.Holding{{Symbol: "USDC", Balance: 100}}},
			"0xb": {Assets: []adapter.Holding{{Symbol: "USDC", Balance: 50}}},
		},
	}
	wallets, repo := newTestWalletService(eth)
	dash := NewDashboardService(wallets.portfolio, wallets, tracker.DefaultConfig())
	ctx := context.Background()

	_, err := wallets.Add(ctx, "alice", AddWalletInput{Address: "0xa", Chain: "ethereum"})
	require.NoError(t, err)
	_, err = wallets.Add(ctx, "alice", AddWalletInput{Address: "0xb", Chain: "ethereum"})
	require.NoError(t, err)

	view, err := dash.ForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, view.Wallets, 2)
	require.Len(t, view.Assets, 1)
	assert.Equal(t, "USDC", view.Assets[0].Symbol)
	assert.Equal(t, 150.0, view.Assets[0].Balance)
	assert.Equal(t, 150.0, view.Assets[0].Value)
	assert.Equal(t, 150.0, view.TotalValue)

	repo.listErr = errors.New("connection refused")
	_, err = dash.ForUser(ctx, "carol")
	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, types.ErrCodeDatabase, svcErr.Code)
}

func TestDashboard_ForWallets(t *testing.T) {
	eth := &stubAdapter{
		chain: types.ChainEthereum,
		holdings: map[string]*adapter.Holdings{
			"0xa": {Assets: []adapter.Holding{{Symbol: "USDC", Balance: 100}}},
		},
	}
	wallets, _ := newTestWalletService(eth, bitcoinStub(nil))
	dash := NewDashboardService(wallets.portfolio, wallets, tracker.DefaultConfig())
	ctx := context.Background()

	// The same wallet listed twice is counted once.
	view, err := dash.ForWallets(ctx, []WalletInput{
		{Address: "0xa", Chain: "ethereum"},
		{Address: "0xa", Chain: "ethereum"},
	})
	require.NoError(t, err)
	require.Len(t, view.Wallets, 1)
	assert.Equal(t, 100.0, view.TotalValue)

	_, err = dash.ForWallets(ctx, []WalletInput{
		{Address: "0xa", Chain: "ethereum"},
		{Address: "bad", Chain: "bitcoin"},
	})
	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, types.ErrCodeInvalidAddress, svcErr.Code)

	empty, err := dash.ForWallets(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Wallets)
	assert.Zero(t, empty.TotalValue)

	tooMany := make([]WalletInput, maxDashboardWallets+1)
	_, err = dash.ForWallets(ctx, tooMany)
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, types.ErrCodeInvalidInput, svcErr.Code)
}

func TestWalletService_AddFetchesBeforeStoring(t *testing.T) {
	eth := &stubAdapter{
		chain: types.ChainEthereum,
		holdings: map[string]*adapter.Holdings{
			"0xa": {Assets: []adapter.Holding{{Symbol: "USDC", Balance: 100}}},
		},
	}
	wallets, repo := newTestWalletService(eth)
	dash := NewDashboardService(wallets.portfolio, wallets, tracker.DefaultConfig())
	ctx := context.Background()

	_, err := wallets.Add(ctx, "alice", AddWalletInput{Address: "0xa", Chain: "ethereum"})
	require.NoError(t, err)
	assert.Equal(t, 1, eth.callCount())

	// The dashboard reuses the data fetched by Add.
	view, err := dash.ForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 100.0, view.TotalValue)
	assert.Equal(t, 1, eth.callCount())

	// A failed insert still leaves the fetched wallet visible.
	repo.createErr = errors.New("connection reset")
	eth.holdings["0xb"] = &adapter.Holdings{Assets: []adapter.Holding{{Symbol: "USDC", Balance: 50}}}
	_, err = wallets.Add(ctx, "alice", AddWalletInput{Address: "0xb", Chain: "ethereum"})
	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, types.ErrCodeDatabase, svcErr.Code)

	view, err = dash.ForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 150.0, view.TotalValue)
}

func TestWalletService_RemoveClearsTrackedData(t *testing.T) {
	eth := &stubAdapter{
		chain: types.ChainEthereum,
		holdings: map[string]*adapter.Holdings{
			"0xa": {Assets: []adapter.Holding{{Symbol: "USDC", Balance: 100}}},
			"0xb": {Assets: []adapter.Holding{{Symbol: "USDC", Balance: 50}}},
		},
	}
	wallets, _ := newTestWalletService(eth)
	dash := NewDashboardService(wallets.portfolio, wallets, tracker.DefaultConfig())
	ctx := context.Background()

	a, err := wallets.Add(ctx, "alice", AddWalletInput{Address: "0xa", Chain: "ethereum"})
	require.NoError(t, err)
	_, err = wallets.Add(ctx, "alice", AddWalletInput{Address: "0xb", Chain: "ethereum"})
	require.NoError(t, err)

	require.NoError(t, wallets.Remove(ctx, "alice", a.ID))

	view, err := dash.ForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, view.Wallets, 1)
	assert.Equal(t, 50.0, view.TotalValue)
}

func TestDashboard_ForUserReloadsStaleTracker(t *testing.T) {
	eth := &stubAdapter{
		chain: types.ChainEthereum,
		holdings: map[string]*adapter.Holdings{
			"0xa": {Assets: []adapter.Holding{{Symbol: "USDC", Balance: 100}}},
		},
	}
	wallets, repo := newTestWalletService(eth)
	dash := NewDashboardService(wallets.portfolio, wallets, tracker.DefaultConfig())
	now := time.Now()
	dash.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := wallets.Add(ctx, "alice", AddWalletInput{Address: "0xa", Chain: "ethereum"})
	require.NoError(t, err)

	// A row written by another process shows up once the view is stale.
	require.NoError(t, repo.Create(ctx, &models.Wallet{UserID: "alice", Address: "0xc", Chain: types.ChainEthereum}))
	eth.holdings["0xc"] = &adapter.Holdings{Assets: []adapter.Holding{{Symbol: "USDC", Balance: 5}}}

	view, err := dash.ForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 100.0, view.TotalValue)

	now = now.Add(time.Minute)
	view, err = dash.ForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 105.0, view.TotalValue)
}
