package adapter

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/metrics"
	"github.com/chain-portfolio/internal/types"
)

// Adapter outcomes recorded in metrics
const (
	outcomeOK      = "ok"
	outcomeInvalid = "invalid_address"
	outcomeFailed  = "failed"
)

// base carries what every adapter needs: its chain, a price source and
// helpers to log failures the same way
type base struct {
	chain  types.ChainID
	prices PriceSource
}

// Chain returns the chain identifier
func (b base) Chain() types.ChainID {
	return b.chain
}

func (b base) logger(ctx context.Context, address string) *logging.Logger {
	return logging.FromContext(ctx).WithFields(map[string]interface{}{
		"chain":   string(b.chain),
		"address": address,
	})
}

// rejected records an invalid address; no upstream call is made
func (b base) rejected(ctx context.Context, address string) (*Holdings, error) {
	metrics.AdapterResults.WithLabelValues(string(b.chain), outcomeInvalid).Inc()
	b.logger(ctx, address).Debug("invalid address format")
	return nil, nil
}

// failed logs an upstream failure. A cancelled or expired context is
// returned to the caller, anything else is swallowed.
func (b base) failed(ctx context.Context, address, op string, err error) (*Holdings, error) {
	metrics.AdapterResults.WithLabelValues(string(b.chain), outcomeFailed).Inc()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, NewAdapterError(b.chain, op, ctxErr, nil)
	}
	b.logger(ctx, address).WithError(err).WithField("op", op).Warn("holdings fetch failed")
	return nil, nil
}

func (b base) succeeded(h *Holdings) (*Holdings, error) {
	metrics.AdapterResults.WithLabelValues(string(b.chain), outcomeOK).Inc()
	h.Assets = filterDust(h.Assets)
	return h, nil
}

// quotes prices symbols, tolerating a nil price source
func (b base) quotes(ctx context.Context, symbols ...string) map[string]types.PriceQuote {
	if b.prices == nil || len(symbols) == 0 {
		return map[string]types.PriceQuote{}
	}
	return b.prices.BySymbol(ctx, symbols)
}

func (b base) addressQuotes(ctx context.Context, keys []string) map[string]types.PriceQuote {
	if b.prices == nil || len(keys) == 0 {
		return map[string]types.PriceQuote{}
	}
	return b.prices.ByAddress(ctx, keys)
}

// balanceFunc reads a native balance in human units
type balanceFunc func(ctx context.Context) (decimal.Decimal, error)

// nativeHoldings fetches a native balance and its price concurrently and
// returns a single-asset result. Price failures leave the asset unpriced.
func (b base) nativeHoldings(ctx context.Context, address, op string, fetch balanceFunc) (*Holdings, error) {
	info := ChainInfoFor(b.chain)

	var (
		g       errgroup.Group
		balance decimal.Decimal
		quotes  map[string]types.PriceQuote
	)
	g.Go(func() error {
		var err error
		balance, err = fetch(ctx)
		return err
	})
	g.Go(func() error {
		quotes = b.quotes(ctx, info.NativeSymbol)
		return nil
	})
	if err := g.Wait(); err != nil {
		return b.failed(ctx, address, op, err)
	}

	h := &Holdings{Chain: b.chain}
	h.Assets = append(h.Assets, Holding{
		Symbol:  info.NativeSymbol,
		Name:    info.NativeName,
		Balance: balance.InexactFloat64(),
		Quote:   quoteFor(info.NativeSymbol, quotes, strings.ToUpper(info.NativeSymbol)),
	})
	return b.succeeded(h)
}
