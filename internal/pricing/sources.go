package pricing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/types"
)

// fetchCoinGecko calls /simple/price for a batch of coin ids
func (r *Resolver) fetchCoinGecko(ctx context.Context, ids []string) (map[string]types.PriceQuote, error) {
	if r.coingecko == nil {
		return nil, fmt.Errorf("coingecko client not configured")
	}

	var resp map[string]map[string]*float64
	err := r.coingecko.GetJSON(ctx, "/simple/price", map[string]string{
		"ids":                 strings.Join(ids, ","),
		"vs_currencies":       "usd",
		"include_24hr_change": "true",
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make(map[string]types.PriceQuote, len(resp))
	for id, fields := range resp {
		price := fields["usd"]
		if price == nil {
			continue
		}
		q := types.PriceQuote{Price: *price}
		if change := fields["usd_24h_change"]; change != nil {
			q.Change24h = *change
		}
		out[id] = q
	}
	return out, nil
}

type llamaPrices struct {
	Coins map[string]struct {
		Price      float64 `json:"price"`
		Symbol     string  `json:"symbol"`
		Decimals   int     `json:"decimals"`
		Confidence float64 `json:"confidence"`
	} `json:"coins"`
}

type llamaPercentages struct {
	Coins map[string]float64 `json:"coins"`
}

// fetchDefiLlama calls /prices/current and /percentage for chain:contract keys.
// A failed percentage lookup leaves change24h at zero.
func (r *Resolver) fetchDefiLlama(ctx context.Context, keys []string) (map[string]types.PriceQuote, error) {
	if r.defillama == nil {
		return nil, fmt.Errorf("defillama client not configured")
	}
	joined := strings.Join(keys, ",")

	var prices llamaPrices
	if err := r.defillama.GetJSON(ctx, "/prices/current/"+joined, nil, &prices); err != nil {
		return nil, err
	}

	// Prices without 24h change are still usable
	var pct llamaPercentages
	if err := r.defillama.GetJSON(ctx, "/percentage/"+joined, nil, &pct); err != nil {
		logging.FromContext(ctx).WithField("keys", len(keys)).WithError(err).Debug("DeFiLlama percentage lookup failed")
	}

	changes := make(map[string]float64, len(pct.Coins))
	for k, v := range pct.Coins {
		changes[NormalizeAddressKey(k)] = v
	}

	out := make(map[string]types.PriceQuote, len(prices.Coins))
	for k, c := range prices.Coins {
		n := NormalizeAddressKey(k)
		out[n] = types.PriceQuote{Price: c.Price, Change24h: changes[n]}
	}
	return out, nil
}

type dexPairs struct {
	Pairs []struct {
		BaseToken struct {
			Address string `json:"address"`
			Symbol  string `json:"symbol"`
		} `json:"baseToken"`
		PriceUSD    string `json:"priceUsd"`
		PriceChange struct {
			H24 float64 `json:"h24"`
		} `json:"priceChange"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
	} `json:"pairs"`
}

// fetchDexScreener prices solana:<mint> keys from the most liquid DEX pair
func (r *Resolver) fetchDexScreener(ctx context.Context, keys []string) (map[string]types.PriceQuote, error) {
	mints := make([]string, 0, len(keys))
	for _, k := range keys {
		_, mint, _ := strings.Cut(k, ":")
		mints = append(mints, mint)
	}

	var resp dexPairs
	if err := r.dexscreener.GetJSON(ctx, "/latest/dex/tokens/"+strings.Join(mints, ","), nil, &resp); err != nil {
		return nil, err
	}

	best := make(map[string]float64)
	out := make(map[string]types.PriceQuote)
	for _, p := range resp.Pairs {
		key := "solana:" + p.BaseToken.Address
		price, err := strconv.ParseFloat(p.PriceUSD, 64)
		if err != nil || price <= 0 {
			continue
		}
		if liq, seen := best[key]; seen && liq >= p.Liquidity.USD {
			continue
		}
		best[key] = p.Liquidity.USD
		out[key] = types.PriceQuote{Price: price, Change24h: p.PriceChange.H24}
	}
	return out, nil
}
