package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chain-portfolio/internal/adapter"
	"github.com/chain-portfolio/internal/types"
)

const satoshiAddress = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"

func newTestPortfolioService(prices *stubPrices, cache PortfolioCache, adapters ...adapter.ChainAdapter) *PortfolioService {
	svc := NewPortfolioService(adapter.NewRegistry(adapters...), prices, cache, time.Minute)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func bitcoinStub(holdings map[string]*adapter.Holdings) *stubAdapter {
	return &stubAdapter{
		chain:    types.ChainBitcoin,
		valid:    func(a string) bool { return strings.HasPrefix(a, "1") || strings.HasPrefix(a, "bc1") },
		holdings: holdings,
	}
}

func TestGetPortfolio_PricesNativeBalance(t *testing.T) {
	btc := bitcoinStub(map[string]*adapter.Holdings{
		satoshiAddress: {Chain: types.ChainBitcoin, Assets: []adapter.Holding{{Symbol: "BTC", Balance: 5.0}}},
	})
	prices := &stubPrices{quotes: map[string]types.PriceQuote{"BTC": {Price: 60000, Change24h: 1.5}}}
	svc := newTestPortfolioService(prices, nil, btc)

	p, err := svc.GetPortfolio(context.Background(), GetPortfolioInput{Address: satoshiAddress, Chain: "bitcoin"})
	require.NoError(t, err)

	require.Len(t, p.Assets, 1)
	asset := p.Assets[0]
	assert.Equal(t, "BTC", asset.Symbol)
	assert.Equal(t, "Bitcoin", asset.Name)
	assert.Equal(t, 5.0, asset.Balance)
	assert.Equal(t, 60000.0, asset.Price)
	assert.Equal(t, 300000.0, asset.Value)
	assert.Equal(t, 1.5, asset.Change24h)
	assert.NotEmpty(t, asset.Icon)
	assert.Equal(t, 300000.0, p.TotalValue)
	assert.Equal(t, types.ChainBitcoin, p.Chain)
	assert.NotNil(t, p.NFTs)
	assert.NotNil(t, p.Domains)
}

func TestGetPortfolio_KeepsAdapterQuote(t *testing.T) {
	eth := &stubAdapter{
		chain: types.ChainEthereum,
		holdings: map[string]*adapter.Holdings{
			"0xabc": {Assets: []adapter.Holding{
				{Symbol: "PEPE", Balance: 1000, Quote: &types.PriceQuote{Price: 0.01}},
			}},
		},
	}
	prices := &stubPrices{}
	svc := newTestPortfolioService(prices, nil, eth)

	p, err := svc.GetPortfolio(context.Background(), GetPortfolioInput{Address: "0xabc", Chain: "ethereum"})
	require.NoError(t, err)
	require.Len(t, p.Assets, 1)
	assert.Equal(t, 10.0, p.Assets[0].Value)
	assert.Empty(t, prices.calls, "priced holdings need no symbol lookup")
}

func TestGetPortfolio_UnpricedStablecoinValuedAtOne(t *testing.T) {
	eth := &stubAdapter{
		chain: types.ChainEthereum,
		holdings: map[string]*adapter.Holdings{
			"0xabc": {Assets: []adapter.Holding{
				{Symbol: "USDC", Balance: 100},
				{Symbol: "USDC", Balance: 50},
				{Symbol: "ETH", Balance: 2},
			}},
		},
	}
	prices := &stubPrices{quotes: map[string]types.PriceQuote{"ETH": {Price: 3000}}}
	svc := newTestPortfolioService(prices, nil, eth)

	p, err := svc.GetPortfolio(context.Background(), GetPortfolioInput{Address: "0xabc", Chain: "ethereum"})
	require.NoError(t, err)

	require.Len(t, p.Assets, 2)
	assert.Equal(t, "ETH", p.Assets[0].Symbol)
	usdc := p.Assets[1]
	assert.Equal(t, "USDC", usdc.Symbol)
	assert.Equal(t, 150.0, usdc.Balance)
	assert.Equal(t, 1.0, usdc.Price)
	assert.Equal(t, 150.0, usdc.Value)
	assert.Equal(t, 6150.0, p.TotalValue)

	require.Len(t, prices.calls, 1, "unpriced symbols are resolved in one batch")
	assert.ElementsMatch(t, []string{"USDC", "ETH"}, prices.calls[0])
}

func TestGetPortfolio_DropsDustFoundByPriceBackfill(t *testing.T) {
	eth := &stubAdapter{
		chain: types.ChainEthereum,
		holdings: map[string]*adapter.Holdings{
			"0xabc": {Assets: []adapter.Holding{
				{Symbol: "ETH", Balance: 1, Quote: &types.PriceQuote{Price: 3000}},
				{Symbol: "LINK", Balance: 0.01},
				{Symbol: "UNI", Balance: 2},
				{Symbol: "MYSTERY", Balance: 0.5},
			}},
		},
	}
	prices := &stubPrices{quotes: map[string]types.PriceQuote{
		"LINK": {Price: 15},
		"UNI":  {Price: 8},
	}}
	svc := newTestPortfolioService(prices, nil, eth)

	p, err := svc.GetPortfolio(context.Background(), GetPortfolioInput{Address: "0xabc", Chain: "ethereum"})
	require.NoError(t, err)

	symbols := make([]string, 0, len(p.Assets))
	for _, a := range p.Assets {
		symbols = append(symbols, a.Symbol)
	}
	// LINK is worth $0.15 once priced; the unpriced balance stays.
	assert.Equal(t, []string{"ETH", "UNI", "MYSTERY"}, symbols)
	assert.Equal(t, 3016.0, p.TotalValue)
}

func TestGetPortfolio_StakedAndLiquidStaySeparate(t *testing.T) {
	ada := &stubAdapter{
		chain: types.ChainCardano,
		holdings: map[string]*adapter.Holdings{
			"addr1": {Assets: []adapter.Holding{
				{Symbol: "ADA", Balance: 10},
				{Symbol: "ADA", Balance: 90, IsStaked: true, StakingProtocol: "POOL"},
			}},
		},
	}
	prices := &stubPrices{quotes: map[string]types.PriceQuote{"ADA": {Price: 0.5}}}
	svc := newTestPortfolioService(prices, nil, ada)

	p, err := svc.GetPortfolio(context.Background(), GetPortfolioInput{Address: "addr1", Chain: "cardano"})
	require.NoError(t, err)
	require.Len(t, p.Assets, 2)
	assert.True(t, p.Assets[0].IsStaked)
	assert.Equal(t, "POOL", p.Assets[0].StakingProtocol)
	assert.False(t, p.Assets[1].IsStaked)
}

func TestGetPortfolio_NilHoldingsIsEmptyPortfolio(t *testing.T) {
	btc := bitcoinStub(nil)
	svc := newTestPortfolioService(&stubPrices{}, nil, btc)

	p, err := svc.GetPortfolio(context.Background(), GetPortfolioInput{Address: satoshiAddress, Chain: "bitcoin"})
	require.NoError(t, err)
	assert.Empty(t, p.Assets)
	assert.NotNil(t, p.Assets)
	assert.Zero(t, p.TotalValue)
}

func TestGetPortfolio_InputErrors(t *testing.T) {
	btc := bitcoinStub(nil)
	svc := newTestPortfolioService(&stubPrices{}, nil, btc)

	tests := []struct {
		name  string
		input GetPortfolioInput
		code  string
	}{
		{"empty address", GetPortfolioInput{Address: "  ", Chain: "bitcoin"}, types.ErrCodeInvalidInput},
		{"unknown chain", GetPortfolioInput{Address: satoshiAddress, Chain: "dogechain"}, types.ErrCodeUnsupportedChain},
		{"chain not registered", GetPortfolioInput{Address: satoshiAddress, Chain: "solana"}, types.ErrCodeUnsupportedChain},
		{"invalid address", GetPortfolioInput{Address: "not-an-address", Chain: "bitcoin"}, types.ErrCodeInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetPortfolio(context.Background(), tt.input)
			var svcErr *types.ServiceError
			require.ErrorAs(t, err, &svcErr)
			assert.Equal(t, tt.code, svcErr.Code)
		})
	}
	assert.Zero(t, btc.callCount(), "rejected input must not reach the adapter")
}

func TestGetPortfolio_AdapterErrorIsUpstream(t *testing.T) {
	btc := bitcoinStub(nil)
	btc.err = adapter.NewAdapterError(types.ChainBitcoin, "GetHoldings", context.DeadlineExceeded, nil)
	svc := newTestPortfolioService(&stubPrices{}, nil, btc)

	_, err := svc.GetPortfolio(context.Background(), GetPortfolioInput{Address: satoshiAddress, Chain: "bitcoin"})
	var svcErr *types.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, types.ErrCodeUpstream, svcErr.Code)
}

func TestGetPortfolio_AdapterPanicIsUpstream(t *testing.T) {
	btc := bitcoinStub(nil)
	btc.panicMsg = "boom"
	svc := newTestPortfolioService(&stubPrices{}, nil, btc)

	_, err := svc.GetPortfolio(context.Background(), GetPortfolioInput{Address: satoshiAddress, Chain: "bitcoin"})
	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, types.ErrCodeUpstream, svcErr.Code)
}

func TestGetPortfolio_UsesResponseCache(t *testing.T) {
	btc := bitcoinStub(map[string]*adapter.Holdings{
		satoshiAddress: {Assets: []adapter.Holding{{Symbol: "BTC", Balance: 1}}},
	})
	prices := &stubPrices{quotes: map[string]types.PriceQuote{"BTC": {Price: 100}}}
	cache := newMockCache()
	svc := newTestPortfolioService(prices, cache, btc)
	input := GetPortfolioInput{Address: satoshiAddress, Chain: "bitcoin"}

	first, err := svc.GetPortfolio(context.Background(), input)
	require.NoError(t, err)
	second, err := svc.GetPortfolio(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 1, btc.callCount())
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, first.TotalValue, second.TotalValue)
}

func TestGetPortfolio_ViewingKeyBypassesCache(t *testing.T) {
	zec := &stubAdapter{chain: types.ChainZcash}
	cache := newMockCache()
	svc := newTestPortfolioService(&stubPrices{}, cache, zec)
	input := GetPortfolioInput{Address: "zs1abc", Chain: "zcash", ViewingKey: "zxviews1secret"}

	_, err := svc.GetPortfolio(context.Background(), input)
	require.NoError(t, err)
	_, err = svc.GetPortfolio(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 2, zec.callCount())
	assert.Zero(t, cache.sets)
}

func TestFetchWallet_MergesAcrossWalletsWithoutCache(t *testing.T) {
	eth := &stubAdapter{
		chain: types.ChainEthereum,
		holdings: map[string]*adapter.Holdings{
			"0xa": {Assets: []adapter.Holding{{Symbol: "USDC", Balance: 100}}},
		},
	}
	cache := newMockCache()
	svc := newTestPortfolioService(&stubPrices{}, cache, eth)

	p, err := svc.FetchWallet(context.Background(), types.WalletRef{Address: "0xa", Chain: types.ChainEthereum})
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.TotalValue)
	assert.Zero(t, cache.sets)

	_, err = svc.FetchWallet(context.Background(), types.WalletRef{Address: "x", Chain: types.ChainTron})
	assert.Error(t, err)
}

func TestSupportedChains_FollowsRegistryOrder(t *testing.T) {
	svc := newTestPortfolioService(&stubPrices{},
		nil,
		&stubAdapter{chain: types.ChainTron},
		&stubAdapter{chain: types.ChainBitcoin},
	)

	chains := svc.SupportedChains()
	require.Len(t, chains, 2)
	assert.Equal(t, types.ChainBitcoin, chains[0].ID)
	assert.Equal(t, types.ChainTron, chains[1].ID)
	assert.Equal(t, "BTC", chains[0].NativeSymbol)
}
