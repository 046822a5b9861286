package adapter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"regexp"

	"github.com/mr-tron/base58"
	"golang.org/x/sync/errgroup"

	"github.com/chain-portfolio/internal/types"
	"github.com/chain-portfolio/internal/upstream"
)

var tronAddressRe = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)

// tronToken describes a TRC-20 token the adapter reports
type tronToken struct {
	Symbol   string
	Name     string
	Decimals int32
}

// tronTokens is the allowlist of TRC-20 contracts. Anything else is
// ignored; Tron wallets receive a steady stream of spam tokens.
var tronTokens = map[string]tronToken{
	"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t": {Symbol: "USDT", Name: "Tether", Decimals: 6},
	"TEkxiTehnzSmSe2XqrBj4w32RUN966rdz8": {Symbol: "USDC", Name: "USD Coin", Decimals: 6},
	"TPYmHEhy5n8TCEfYGqW2rPxsghSfzghPDn": {Symbol: "USDD", Name: "Decentralized USD", Decimals: 18},
	"TNUC9Qb1rRpS5CbWLmNMxXBjyFoydXjWFR": {Symbol: "WTRX", Name: "Wrapped TRX", Decimals: 6},
	"TCFLL5dx5ZJdKnWuesXxi1VPwjLVmWZZy9": {Symbol: "JST", Name: "JUST", Decimals: 18},
	"TSSMHYeV2uE9qYH95DqyoCuNCzEL1NvU3S": {Symbol: "SUN", Name: "SUN", Decimals: 18},
	"TAFjULxiVgT4qWk6UZwjqwZXTSaGaqnVp4": {Symbol: "BTT", Name: "BitTorrent", Decimals: 18},
}

type tronAccountResponse struct {
	Data []struct {
		Balance  int64 `json:"balance"`
		FrozenV2 []struct {
			Type   string `json:"type"`
			Amount int64  `json:"amount"`
		} `json:"frozenV2"`
		Frozen []struct {
			FrozenBalance int64 `json:"frozen_balance"`
		} `json:"frozen"`
		TRC20 []map[string]string `json:"trc20"`
	} `json:"data"`
	Success bool `json:"success"`
}

// TronAdapter reads TRX, staked TRX and allowlisted TRC-20 balances from
// TronGrid
type TronAdapter struct {
	base
	client *upstream.Client
}

// NewTronAdapter creates the Tron adapter
func NewTronAdapter(client *upstream.Client, prices PriceSource) *TronAdapter {
	return &TronAdapter{
		base:   base{chain: types.ChainTron, prices: prices},
		client: client,
	}
}

// ValidateAddress checks the base58check encoding and the 0x41 mainnet prefix
func (a *TronAdapter) ValidateAddress(address string) bool {
	if !tronAddressRe.MatchString(address) {
		return false
	}
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != 25 || raw[0] != 0x41 {
		return false
	}
	first := sha256.Sum256(raw[:21])
	second := sha256.Sum256(first[:])
	return bytes.Equal(second[:4], raw[21:])
}

// GetHoldings returns native, staked and TRC-20 balances of address
func (a *TronAdapter) GetHoldings(ctx context.Context, address string, _ HoldingsOptions) (*Holdings, error) {
	if !a.ValidateAddress(address) {
		return a.rejected(ctx, address)
	}

	var (
		g         errgroup.Group
		resp      tronAccountResponse
		trxQuotes map[string]types.PriceQuote
	)
	g.Go(func() error {
		trxQuotes = a.quotes(ctx, "TRX")
		return nil
	})
	g.Go(func() error {
		return a.client.GetJSON(ctx, "/v1/accounts/"+address, nil, &resp)
	})
	if err := g.Wait(); err != nil {
		return a.failed(ctx, address, "trongrid.account", err)
	}

	h := &Holdings{Chain: a.chain}
	// Accounts that were never activated come back with no data
	if len(resp.Data) == 0 {
		return a.succeeded(h)
	}
	acct := resp.Data[0]
	info := ChainInfoFor(a.chain)
	trxQuote := quoteFor(info.NativeSymbol, trxQuotes, info.NativeSymbol)

	h.Assets = append(h.Assets, Holding{
		Symbol:  info.NativeSymbol,
		Name:    info.NativeName,
		Balance: unitsFromInt(acct.Balance, NativeDecimals(a.chain)).InexactFloat64(),
		Quote:   trxQuote,
	})

	var frozen int64
	for _, f := range acct.FrozenV2 {
		frozen += f.Amount
	}
	for _, f := range acct.Frozen {
		frozen += f.FrozenBalance
	}
	if frozen > 0 {
		h.Assets = append(h.Assets, Holding{
			Symbol:          info.NativeSymbol,
			Name:            "Staked " + info.NativeName,
			Balance:         unitsFromInt(frozen, NativeDecimals(a.chain)).InexactFloat64(),
			Quote:           trxQuote,
			IsStaked:        true,
			StakingProtocol: "Tron Stake 2.0",
		})
	}

	type tokenBalance struct {
		contract string
		token    tronToken
		balance  float64
	}
	var tokens []tokenBalance
	var keys []string
	for _, entry := range acct.TRC20 {
		for contract, raw := range entry {
			tok, ok := tronTokens[contract]
			if !ok {
				continue
			}
			bal, err := unitsFromString(raw, tok.Decimals)
			if err != nil {
				a.logger(ctx, address).WithError(err).WithField("contract", contract).Debug("bad trc20 balance")
				continue
			}
			if !bal.IsPositive() {
				continue
			}
			tokens = append(tokens, tokenBalance{contract: contract, token: tok, balance: bal.InexactFloat64()})
			keys = append(keys, "tron:"+contract)
		}
	}

	tokenQuotes := a.addressQuotes(ctx, keys)
	for _, t := range tokens {
		h.Assets = append(h.Assets, Holding{
			Symbol:   t.token.Symbol,
			Name:     t.token.Name,
			Balance:  t.balance,
			Quote:    quoteFor(t.token.Symbol, tokenQuotes, "tron:"+t.contract),
			Contract: t.contract,
		})
	}
	return a.succeeded(h)
}
