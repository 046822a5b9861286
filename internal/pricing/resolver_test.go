package pricing

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/upstream"
)

func coingeckoServer(t *testing.T, calls *int32, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBySymbolBatchesAndCaches(t *testing.T) {
	var calls int32
	var lastIDs atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		lastIDs.Store(r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":51000,"usd_24h_change":2.5},"ethereum":{"usd":3000,"usd_24h_change":-1}}`))
	}))
	defer srv.Close()

	r := NewResolver(Config{
		Cache:     NewTTLCache(time.Minute, 100),
		CoinGecko: upstream.New(upstream.Options{Name: "coingecko", BaseURL: srv.URL}),
	})

	quotes := r.BySymbol(context.Background(), []string{"btc", "ETH"})
	require.Len(t, quotes, 2)
	assert.Equal(t, 51000.0, quotes["BTC"].Price)
	assert.Equal(t, 2.5, quotes["BTC"].Change24h)
	assert.Equal(t, 3000.0, quotes["ETH"].Price)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "misses should be batched in one request")
	assert.Equal(t, "bitcoin,ethereum", lastIDs.Load())

	_ = r.BySymbol(context.Background(), []string{"BTC", "ETH"})
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "fresh entries should not hit upstream")
}

func TestStablecoinFallback(t *testing.T) {
	var calls int32
	srv := coingeckoServer(t, &calls, `{}`)

	r := NewResolver(Config{
		CoinGecko: upstream.New(upstream.Options{Name: "coingecko", BaseURL: srv.URL}),
	})

	quotes := r.BySymbol(context.Background(), []string{"USDC", "USDT", "BTC"})
	assert.Equal(t, 1.0, quotes["USDC"].Price)
	assert.Equal(t, 1.0, quotes["USDT"].Price)
	_, ok := quotes["BTC"]
	assert.False(t, ok)
}

func TestStablecoinFallbackWhenUpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewResolver(Config{
		CoinGecko: upstream.New(upstream.Options{Name: "coingecko", BaseURL: srv.URL}),
	})

	q, ok := r.Price(context.Background(), "usdc")
	require.True(t, ok)
	assert.Equal(t, 1.0, q.Price)
}

func TestUnknownSymbolSkipsUpstream(t *testing.T) {
	var calls int32
	srv := coingeckoServer(t, &calls, `{}`)

	r := NewResolver(Config{
		CoinGecko: upstream.New(upstream.Options{Name: "coingecko", BaseURL: srv.URL}),
	})

	_, ok := r.Price(context.Background(), "NOTACOIN")
	assert.False(t, ok)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestByAddressWithDexScreenerFallback(t *testing.T) {
	const mint = "J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn"
	const unknownMint = "Unknown1111111111111111111111111111111111111"

	llama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/prices/current/"):
			_, _ = w.Write([]byte(`{"coins":{"ethereum:0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48":{"price":0.9998,"symbol":"USDC","decimals":6},"solana:` + mint + `":{"price":210.5,"symbol":"JitoSOL","decimals":9}}}`))
		case strings.HasPrefix(r.URL.Path, "/percentage/"):
			_, _ = w.Write([]byte(`{"coins":{"solana:` + mint + `":-3.2}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer llama.Close()

	var dexCalls int32
	dex := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dexCalls, 1)
		assert.Equal(t, "/latest/dex/tokens/"+unknownMint, r.URL.Path)
		_, _ = w.Write([]byte(`{"pairs":[
			{"baseToken":{"address":"` + unknownMint + `","symbol":"MEME"},"priceUsd":"0.01","priceChange":{"h24":5},"liquidity":{"usd":100}},
			{"baseToken":{"address":"` + unknownMint + `","symbol":"MEME"},"priceUsd":"0.02","priceChange":{"h24":7},"liquidity":{"usd":5000}}
		]}`))
	}))
	defer dex.Close()

	r := NewResolver(Config{
		DefiLlama:   upstream.New(upstream.Options{Name: "defillama", BaseURL: llama.URL}),
		DexScreener: upstream.New(upstream.Options{Name: "dexscreener", BaseURL: dex.URL}),
	})

	keys := []string{
		"ethereum:0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"solana:" + mint,
		"solana:" + unknownMint,
	}
	quotes := r.ByAddress(context.Background(), keys)

	require.Len(t, quotes, 3)
	assert.InDelta(t, 0.9998, quotes[keys[0]].Price, 1e-9)
	assert.Equal(t, 210.5, quotes[keys[1]].Price)
	assert.Equal(t, -3.2, quotes[keys[1]].Change24h)
	assert.Equal(t, 0.02, quotes[keys[2]].Price, "most liquid pair wins")
	assert.Equal(t, int32(1), atomic.LoadInt32(&dexCalls))
}

func TestNormalizeAddressKey(t *testing.T) {
	assert.Equal(t, "ethereum:0xabc", NormalizeAddressKey("Ethereum:0xABC"))
	assert.Equal(t, "solana:MintABC", NormalizeAddressKey("solana:MintABC"))
	assert.Equal(t, "tron:TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", NormalizeAddressKey("tron:TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"))
	assert.Equal(t, "plain", NormalizeAddressKey("plain"))
}

func TestByAddressLogsMissingPercentages(t *testing.T) {
	llama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/percentage/") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"coins":{"ethereum:0x514910771af9ca656af840dff83e8264ecf986ca":{"price":15.25,"symbol":"LINK","decimals":18}}}`))
	}))
	defer llama.Close()

	var buf bytes.Buffer
	ctx := logging.WithLogger(context.Background(), logging.NewLoggerWithOutput(logging.LevelDebug, logging.FormatText, &buf))

	r := NewResolver(Config{
		DefiLlama: upstream.New(upstream.Options{Name: "defillama", BaseURL: llama.URL}),
	})
	key := "ethereum:0x514910771af9ca656af840dff83e8264ecf986ca"
	quotes := r.ByAddress(ctx, []string{key})

	require.Contains(t, quotes, key)
	assert.InDelta(t, 15.25, quotes[key].Price, 1e-9)
	assert.Zero(t, quotes[key].Change24h)
	assert.Contains(t, buf.String(), "DeFiLlama percentage lookup failed")
}
