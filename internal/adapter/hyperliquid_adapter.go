package adapter

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/chain-portfolio/internal/types"
	"github.com/chain-portfolio/internal/upstream"
)

var evmAddressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

type hlSpotState struct {
	Balances []struct {
		Coin  string `json:"coin"`
		Total string `json:"total"`
		Hold  string `json:"hold"`
	} `json:"balances"`
}

type hlPerpState struct {
	MarginSummary struct {
		AccountValue string `json:"accountValue"`
	} `json:"marginSummary"`
	Withdrawable string `json:"withdrawable"`
}

type hlDelegatorSummary struct {
	Delegated              string `json:"delegated"`
	Undelegated            string `json:"undelegated"`
	TotalPendingWithdrawal string `json:"totalPendingWithdrawal"`
}

// HyperliquidAdapter reads spot balances, perp account value and HYPE
// staking from the Hyperliquid info endpoint
type HyperliquidAdapter struct {
	base
	client *upstream.Client
}

// NewHyperliquidAdapter creates the Hyperliquid adapter
func NewHyperliquidAdapter(client *upstream.Client, prices PriceSource) *HyperliquidAdapter {
	return &HyperliquidAdapter{
		base:   base{chain: types.ChainHyperliquid, prices: prices},
		client: client,
	}
}

// ValidateAddress checks if address format is valid for this chain
func (a *HyperliquidAdapter) ValidateAddress(address string) bool {
	return evmAddressRe.MatchString(address)
}

func (a *HyperliquidAdapter) info(ctx context.Context, kind, address string, out interface{}) error {
	return a.client.PostJSON(ctx, "/info", map[string]string{"type": kind, "user": address}, out)
}

// GetHoldings returns spot, perp and staked balances of address. The
// three queries run concurrently; a failed perp or staking query only
// drops that part.
func (a *HyperliquidAdapter) GetHoldings(ctx context.Context, address string, _ HoldingsOptions) (*Holdings, error) {
	if !a.ValidateAddress(address) {
		return a.rejected(ctx, address)
	}

	var (
		spot                    hlSpotState
		perp                    hlPerpState
		staking                 hlDelegatorSummary
		spotErr, perpErr, stErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		spotErr = a.info(ctx, "spotClearinghouseState", address, &spot)
		return nil
	})
	g.Go(func() error {
		perpErr = a.info(ctx, "clearinghouseState", address, &perp)
		return nil
	})
	g.Go(func() error {
		stErr = a.info(ctx, "delegatorSummary", address, &staking)
		return nil
	})
	_ = g.Wait()

	if spotErr != nil && perpErr != nil && stErr != nil {
		return a.failed(ctx, address, "hyperliquid.info", spotErr)
	}
	log := a.logger(ctx, address)

	h := &Holdings{Chain: a.chain}
	if spotErr != nil {
		log.WithError(spotErr).Warn("hyperliquid spot state failed")
	}
	for _, b := range spot.Balances {
		total, err := decimal.NewFromString(b.Total)
		if err != nil || !total.IsPositive() {
			continue
		}
		symbol := strings.ToUpper(b.Coin)
		h.Assets = append(h.Assets, Holding{
			Symbol:  symbol,
			Name:    DisplayName(symbol, a.chain),
			Balance: total.InexactFloat64(),
		})
	}

	if perpErr != nil {
		log.WithError(perpErr).Warn("hyperliquid perp state failed")
	} else if value, err := decimal.NewFromString(perp.MarginSummary.AccountValue); err == nil && value.IsPositive() {
		h.Assets = append(h.Assets, Holding{
			Symbol:  "USDC",
			Name:    "USDC (Perps)",
			Balance: value.InexactFloat64(),
		})
	}

	if stErr != nil {
		log.WithError(stErr).Warn("hyperliquid delegator summary failed")
	} else {
		staked := decimal.Zero
		for _, s := range []string{staking.Delegated, staking.Undelegated, staking.TotalPendingWithdrawal} {
			if v, err := decimal.NewFromString(s); err == nil {
				staked = staked.Add(v)
			}
		}
		if staked.IsPositive() {
			h.Assets = append(h.Assets, Holding{
				Symbol:          "HYPE",
				Name:            "Staked HYPE",
				Balance:         staked.InexactFloat64(),
				IsStaked:        true,
				StakingProtocol: "Hyperliquid",
			})
		}
	}

	symbols := make([]string, 0, len(h.Assets))
	for _, asset := range h.Assets {
		symbols = append(symbols, asset.Symbol)
	}
	quotes := a.quotes(ctx, symbols...)
	for i := range h.Assets {
		h.Assets[i].Quote = quoteFor(h.Assets[i].Symbol, quotes, h.Assets[i].Symbol)
	}
	return a.succeeded(h)
}
