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

var cardanoAddressRe = regexp.MustCompile(`^(addr1[0-9a-z]{53,110}|stake1[0-9a-z]{53})$`)

type koiosAddressInfo struct {
	Address      string `json:"address"`
	Balance      string `json:"balance"`
	StakeAddress string `json:"stake_address"`
}

type koiosAccountInfo struct {
	StakeAddress     string `json:"stake_address"`
	Status           string `json:"status"`
	DelegatedPool    string `json:"delegated_pool"`
	TotalBalance     string `json:"total_balance"`
	RewardsAvailable string `json:"rewards_available"`
}

type koiosPoolInfo struct {
	PoolID   string `json:"pool_id_bech32"`
	MetaJSON *struct {
		Name   string `json:"name"`
		Ticker string `json:"ticker"`
	} `json:"meta_json"`
}

// CardanoAdapter reads ADA balances and stake delegation from Koios
type CardanoAdapter struct {
	base
	client *upstream.Client
}

// NewCardanoAdapter creates the Cardano adapter
func NewCardanoAdapter(client *upstream.Client, prices PriceSource) *CardanoAdapter {
	return &CardanoAdapter{
		base:   base{chain: types.ChainCardano, prices: prices},
		client: client,
	}
}

// ValidateAddress accepts payment (addr1) and stake (stake1) addresses
func (a *CardanoAdapter) ValidateAddress(address string) bool {
	return cardanoAddressRe.MatchString(address)
}

// GetHoldings returns the ADA balance of address. When the address belongs
// to a delegated stake account the whole account balance is reported as
// staked with the pool's ticker.
func (a *CardanoAdapter) GetHoldings(ctx context.Context, address string, _ HoldingsOptions) (*Holdings, error) {
	if !a.ValidateAddress(address) {
		return a.rejected(ctx, address)
	}

	var (
		g       errgroup.Group
		quotes  map[string]types.PriceQuote
		liquid  decimal.Decimal
		account *koiosAccountInfo
	)
	g.Go(func() error {
		quotes = a.quotes(ctx, "ADA")
		return nil
	})
	g.Go(func() error {
		var err error
		liquid, account, err = a.lookupAccount(ctx, address)
		return err
	})
	if err := g.Wait(); err != nil {
		return a.failed(ctx, address, "koios.address_info", err)
	}

	info := ChainInfoFor(a.chain)
	quote := quoteFor(info.NativeSymbol, quotes, info.NativeSymbol)
	h := &Holdings{Chain: a.chain}

	if account == nil || account.Status != "registered" || account.DelegatedPool == "" {
		if account != nil && strings.HasPrefix(address, "stake1") {
			bal, err := unitsFromString(account.TotalBalance, NativeDecimals(a.chain))
			if err != nil {
				return a.failed(ctx, address, "koios.account_info", err)
			}
			liquid = bal
		}
		h.Assets = append(h.Assets, Holding{
			Symbol: info.NativeSymbol, Name: info.NativeName,
			Balance: liquid.InexactFloat64(), Quote: quote,
		})
		return a.succeeded(h)
	}

	total, err := unitsFromString(account.TotalBalance, NativeDecimals(a.chain))
	if err != nil {
		return a.failed(ctx, address, "koios.account_info", err)
	}
	h.Assets = append(h.Assets, Holding{
		Symbol:          info.NativeSymbol,
		Name:            info.NativeName,
		Balance:         total.InexactFloat64(),
		Quote:           quote,
		IsStaked:        true,
		StakingProtocol: a.poolLabel(ctx, account.DelegatedPool),
	})
	return a.succeeded(h)
}

// lookupAccount returns the liquid balance of a payment address and the
// stake account it belongs to, if any. Only a failed address lookup is an
// error; the account is nil when delegation data is unavailable.
func (a *CardanoAdapter) lookupAccount(ctx context.Context, address string) (decimal.Decimal, *koiosAccountInfo, error) {
	stakeAddress := ""
	liquid := decimal.Zero
	if strings.HasPrefix(address, "stake1") {
		stakeAddress = address
	} else {
		var infos []koiosAddressInfo
		body := map[string]interface{}{"_addresses": []string{address}}
		if err := a.client.PostJSON(ctx, "/address_info", body, &infos); err != nil {
			return decimal.Zero, nil, err
		}
		if len(infos) > 0 {
			bal, err := unitsFromString(infos[0].Balance, NativeDecimals(a.chain))
			if err != nil {
				return decimal.Zero, nil, err
			}
			liquid = bal
			stakeAddress = infos[0].StakeAddress
		}
	}
	if stakeAddress == "" {
		return liquid, nil, nil
	}

	var accounts []koiosAccountInfo
	body := map[string]interface{}{"_stake_addresses": []string{stakeAddress}}
	if err := a.client.PostJSON(ctx, "/account_info", body, &accounts); err != nil {
		// The payment address balance is still good without delegation data
		a.logger(ctx, address).WithError(err).Warn("koios account_info failed")
		return liquid, nil, nil
	}
	if len(accounts) == 0 {
		return liquid, nil, nil
	}
	return liquid, &accounts[0], nil
}

// poolLabel returns the pool ticker, or a shortened pool id when the pool
// has no metadata
func (a *CardanoAdapter) poolLabel(ctx context.Context, poolID string) string {
	fallback := poolID
	if len(fallback) > 16 {
		fallback = fallback[:16] + "…"
	}

	var pools []koiosPoolInfo
	body := map[string]interface{}{"_pool_bech32_ids": []string{poolID}}
	if err := a.client.PostJSON(ctx, "/pool_info", body, &pools); err != nil {
		a.logger(ctx, poolID).WithError(err).Debug("koios pool_info failed")
		return fallback
	}
	if len(pools) == 0 || pools[0].MetaJSON == nil || pools[0].MetaJSON.Ticker == "" {
		return fallback
	}
	return pools[0].MetaJSON.Ticker
}
