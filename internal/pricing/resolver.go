// Package pricing resolves USD prices for ticker symbols (CoinGecko) and
// chain:contract identifiers (DeFiLlama, DexScreener) behind a TTL cache.
package pricing

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/types"
	"github.com/chain-portfolio/internal/upstream"
)

// SharedCache is a cross-process cache consulted after the in-process one
type SharedCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Config wires a Resolver
type Config struct {
	Cache       *TTLCache
	Shared      SharedCache
	SharedTTL   time.Duration
	CoinGecko   *upstream.Client
	DefiLlama   *upstream.Client
	DexScreener *upstream.Client
}

// Resolver looks up USD prices
type Resolver struct {
	cache       *TTLCache
	shared      SharedCache
	sharedTTL   time.Duration
	coingecko   *upstream.Client
	defillama   *upstream.Client
	dexscreener *upstream.Client
}

// NewResolver creates a resolver. A nil Cache gets a 60s, 1000-entry cache.
func NewResolver(cfg Config) *Resolver {
	cache := cfg.Cache
	if cache == nil {
		cache = NewTTLCache(60*time.Second, 1000)
	}
	sharedTTL := cfg.SharedTTL
	if sharedTTL <= 0 {
		sharedTTL = cache.ttl
	}
	return &Resolver{
		cache:       cache,
		shared:      cfg.Shared,
		sharedTTL:   sharedTTL,
		coingecko:   cfg.CoinGecko,
		defillama:   cfg.DefiLlama,
		dexscreener: cfg.DexScreener,
	}
}

// Cache exposes the in-process cache, mainly for periodic sweeping
func (r *Resolver) Cache() *TTLCache {
	return r.cache
}

// Price returns the quote for a single ticker symbol
func (r *Resolver) Price(ctx context.Context, symbol string) (types.PriceQuote, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	quotes := r.BySymbol(ctx, []string{symbol})
	q, ok := quotes[symbol]
	return q, ok
}

// BySymbol resolves ticker symbols through CoinGecko. Missing identifiers
// are fetched in one batched request. Symbols without a known CoinGecko id
// are absent from the result unless they are stablecoins.
func (r *Resolver) BySymbol(ctx context.Context, symbols []string) map[string]types.PriceQuote {
	result := make(map[string]types.PriceQuote, len(symbols))
	idToSymbols := make(map[string][]string)

	for _, s := range symbols {
		sym := strings.ToUpper(s)
		if id, ok := CoinGeckoID(sym); ok {
			idToSymbols[id] = appendUnique(idToSymbols[id], sym)
		}
	}

	ids := make([]string, 0, len(idToSymbols))
	for id := range idToSymbols {
		ids = append(ids, id)
	}

	quotes := r.resolve(ctx, "cg:", ids, r.fetchCoinGecko)
	for id, q := range quotes {
		for _, sym := range idToSymbols[id] {
			result[sym] = q
		}
	}

	for _, s := range symbols {
		sym := strings.ToUpper(s)
		if _, ok := result[sym]; !ok && IsStablecoin(sym) {
			result[sym] = types.PriceQuote{Price: 1.0}
		}
	}
	return result
}

// ByAddress resolves chain:contract identifiers through DeFiLlama, falling
// back to DexScreener for Solana mints DeFiLlama does not know.
// Result keys are the identifiers as passed in.
func (r *Resolver) ByAddress(ctx context.Context, keys []string) map[string]types.PriceQuote {
	normToOrig := make(map[string]string, len(keys))
	norm := make([]string, 0, len(keys))
	for _, k := range keys {
		n := NormalizeAddressKey(k)
		if _, seen := normToOrig[n]; !seen {
			norm = append(norm, n)
		}
		normToOrig[n] = k
	}

	quotes := r.resolve(ctx, "llama:", norm, r.fetchDefiLlama)

	var missingMints []string
	for _, n := range norm {
		if _, ok := quotes[n]; !ok && strings.HasPrefix(n, "solana:") {
			missingMints = append(missingMints, n)
		}
	}
	if len(missingMints) > 0 && r.dexscreener != nil {
		for k, q := range r.resolve(ctx, "dex:", missingMints, r.fetchDexScreener) {
			quotes[k] = q
		}
	}

	result := make(map[string]types.PriceQuote, len(quotes))
	for n, q := range quotes {
		if orig, ok := normToOrig[n]; ok {
			result[orig] = q
		}
	}
	return result
}

type fetchFunc func(ctx context.Context, ids []string) (map[string]types.PriceQuote, error)

// resolve serves ids from the caches and fetches every miss in one call
func (r *Resolver) resolve(ctx context.Context, prefix string, ids []string, fetch fetchFunc) map[string]types.PriceQuote {
	result := make(map[string]types.PriceQuote, len(ids))
	var misses []string

	for _, id := range ids {
		if q, ok := r.cache.Get(prefix + id); ok {
			result[id] = q
			continue
		}
		if q, ok := r.sharedGet(ctx, prefix+id); ok {
			r.cache.Set(prefix+id, q)
			result[id] = q
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) == 0 {
		return result
	}
	sort.Strings(misses)

	fetched, err := fetch(ctx, misses)
	if err != nil {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"source": strings.TrimSuffix(prefix, ":"),
			"ids":    len(misses),
		}).WithError(err).Warn("Price lookup failed")
		return result
	}

	for id, q := range fetched {
		r.cache.Set(prefix+id, q)
		r.sharedSet(ctx, prefix+id, q)
		result[id] = q
	}
	return result
}

func (r *Resolver) sharedGet(ctx context.Context, key string) (types.PriceQuote, bool) {
	if r.shared == nil {
		return types.PriceQuote{}, false
	}
	var q types.PriceQuote
	found, err := r.shared.Get(ctx, "price:"+key, &q)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Debug("Shared price cache read failed")
		return types.PriceQuote{}, false
	}
	return q, found
}

func (r *Resolver) sharedSet(ctx context.Context, key string, q types.PriceQuote) {
	if r.shared == nil {
		return
	}
	if err := r.shared.SetWithTTL(ctx, "price:"+key, q, r.sharedTTL); err != nil {
		logging.FromContext(ctx).WithError(err).Debug("Shared price cache write failed")
	}
}

// NormalizeAddressKey lowercases EVM/Tron-style keys; Solana mints are case
// sensitive and are kept as-is.
func NormalizeAddressKey(key string) string {
	chain, addr, ok := strings.Cut(key, ":")
	if !ok {
		return key
	}
	chain = strings.ToLower(chain)
	if chain == "solana" || chain == "tron" {
		return chain + ":" + addr
	}
	return chain + ":" + strings.ToLower(addr)
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
