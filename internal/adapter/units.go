package adapter

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chain-portfolio/internal/pricing"
	"github.com/chain-portfolio/internal/types"
)

// nativeDecimals is the fixed divisor exponent from the smallest on-chain
// unit to the human unit of each chain's native asset
var nativeDecimals = map[types.ChainID]int32{
	types.ChainBitcoin:  8, // satoshi
	types.ChainLitecoin: 8, // litoshi
	types.ChainDogecoin: 8, // koinu
	types.ChainZcash:    8, // zatoshi
	types.ChainXRP:      6, // drop
	types.ChainTron:     6, // sun
	types.ChainCardano:  6, // lovelace
	types.ChainSolana:   9, // lamport
	types.ChainEthereum: 18,
}

// NativeDecimals returns the divisor exponent for a chain's native asset
func NativeDecimals(chain types.ChainID) int32 {
	return nativeDecimals[chain]
}

func unitsFromInt(raw int64, decimals int32) decimal.Decimal {
	return decimal.New(raw, -decimals)
}

func unitsFromUint(raw uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -decimals)
}

func unitsFromBig(raw *big.Int, decimals int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -decimals)
}

func unitsFromString(raw string, decimals int32) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return d.Shift(-decimals), nil
}

// Dust thresholds
const (
	minUnpricedBalance = 0.0001
	minValueUSD        = 1.0
	minStablecoinUSD   = 0.01
)

// IsDust reports whether balance units of symbol are too small to show.
// Priced holdings need $1 of value ($0.01 for stablecoins); unpriced ones
// (price <= 0) need 0.0001 units.
func IsDust(symbol string, balance, price float64) bool {
	if balance <= 0 {
		return true
	}
	if price <= 0 {
		return balance < minUnpricedBalance
	}
	value := balance * price
	if pricing.IsStablecoin(symbol) {
		return value < minStablecoinUSD
	}
	return value < minValueUSD
}

func isDust(symbol string, balance float64, quote *types.PriceQuote) bool {
	var price float64
	if quote != nil {
		price = quote.Price
	}
	return IsDust(symbol, balance, price)
}

// quoteFor picks a quote from a lookup result, pricing stablecoins at 1.0
// when the lookup came back empty
func quoteFor(symbol string, quotes map[string]types.PriceQuote, key string) *types.PriceQuote {
	if q, ok := quotes[key]; ok && q.Price > 0 {
		return &q
	}
	if pricing.IsStablecoin(symbol) {
		return &types.PriceQuote{Price: 1.0}
	}
	return nil
}

// filterDust drops dust holdings in place
func filterDust(holdings []Holding) []Holding {
	kept := holdings[:0]
	for _, h := range holdings {
		if !isDust(h.Symbol, h.Balance, h.Quote) {
			kept = append(kept, h)
		}
	}
	return kept
}
