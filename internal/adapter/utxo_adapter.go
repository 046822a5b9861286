package adapter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chain-portfolio/internal/types"
	"github.com/chain-portfolio/internal/upstream"
)

var (
	bitcoinAddressRe   = regexp.MustCompile(`^(1|3)[a-km-zA-HJ-NP-Z1-9]{25,34}$|^bc1[a-zA-HJ-NP-Z0-9]{25,90}$`)
	litecoinAddressRe  = regexp.MustCompile(`^(L|M|3)[a-km-zA-HJ-NP-Z1-9]{26,33}$|^ltc1[a-zA-HJ-NP-Z0-9]{25,90}$`)
	dogecoinAddressRe  = regexp.MustCompile(`^(D|A|9)[a-km-zA-HJ-NP-Z1-9]{25,34}$`)
	zcashTransparentRe = regexp.MustCompile(`^t[13][a-km-zA-HJ-NP-Z1-9]{33}$`)
	zcashShieldedRe    = regexp.MustCompile(`^(zs1[0-9a-z]{75}|u1[0-9a-z]{100,}|zc[a-km-zA-HJ-NP-Z1-9]{93})$`)
)

// esploraStats is the chain_stats/mempool_stats object of an Esplora
// /address response
type esploraStats struct {
	FundedTxoSum int64 `json:"funded_txo_sum"`
	SpentTxoSum  int64 `json:"spent_txo_sum"`
	TxCount      int64 `json:"tx_count"`
}

type esploraAddress struct {
	Address      string       `json:"address"`
	ChainStats   esploraStats `json:"chain_stats"`
	MempoolStats esploraStats `json:"mempool_stats"`
}

// EsploraAdapter reads confirmed native balances from an Esplora-compatible
// explorer (mempool.space for Bitcoin, litecoinspace.org for Litecoin)
type EsploraAdapter struct {
	base
	client  *upstream.Client
	pattern *regexp.Regexp
}

// NewBitcoinAdapter creates the Bitcoin adapter
func NewBitcoinAdapter(client *upstream.Client, prices PriceSource) *EsploraAdapter {
	return &EsploraAdapter{
		base:    base{chain: types.ChainBitcoin, prices: prices},
		client:  client,
		pattern: bitcoinAddressRe,
	}
}

// NewLitecoinAdapter creates the Litecoin adapter
func NewLitecoinAdapter(client *upstream.Client, prices PriceSource) *EsploraAdapter {
	return &EsploraAdapter{
		base:    base{chain: types.ChainLitecoin, prices: prices},
		client:  client,
		pattern: litecoinAddressRe,
	}
}

// ValidateAddress checks if address format is valid for this chain
func (a *EsploraAdapter) ValidateAddress(address string) bool {
	return a.pattern.MatchString(address)
}

// GetHoldings returns the confirmed native balance of address
func (a *EsploraAdapter) GetHoldings(ctx context.Context, address string, _ HoldingsOptions) (*Holdings, error) {
	if !a.ValidateAddress(address) {
		return a.rejected(ctx, address)
	}
	return a.nativeHoldings(ctx, address, "esplora.address", func(ctx context.Context) (decimal.Decimal, error) {
		var resp esploraAddress
		if err := a.client.GetJSON(ctx, "/address/"+address, nil, &resp); err != nil {
			return decimal.Zero, err
		}
		sats := resp.ChainStats.FundedTxoSum - resp.ChainStats.SpentTxoSum
		return unitsFromInt(sats, NativeDecimals(a.chain)), nil
	})
}

// DogecoinAdapter reads Dogecoin balances from Blockcypher, falling back
// to Dogechain
type DogecoinAdapter struct {
	base
	sources *SourceChain
}

type blockcypherBalance struct {
	Balance      int64 `json:"balance"`
	FinalBalance int64 `json:"final_balance"`
}

type dogechainBalance struct {
	Balance string `json:"balance"`
	Success int    `json:"success"`
	Error   string `json:"error"`
}

// NewDogecoinAdapter creates the Dogecoin adapter. Either client may be nil.
func NewDogecoinAdapter(blockcypher *upstream.Client, blockcypherToken string, dogechain *upstream.Client, prices PriceSource) *DogecoinAdapter {
	var sources []BalanceSource
	if blockcypher != nil {
		sources = append(sources, BalanceSource{
			Name: blockcypher.Name(),
			Fetch: func(ctx context.Context, address string) (decimal.Decimal, error) {
				var query map[string]string
				if blockcypherToken != "" {
					query = map[string]string{"token": blockcypherToken}
				}
				var resp blockcypherBalance
				if err := blockcypher.GetJSON(ctx, "/doge/main/addrs/"+address+"/balance", query, &resp); err != nil {
					return decimal.Zero, err
				}
				return unitsFromInt(resp.FinalBalance, NativeDecimals(types.ChainDogecoin)), nil
			},
		})
	}
	if dogechain != nil {
		sources = append(sources, BalanceSource{
			Name: dogechain.Name(),
			Fetch: func(ctx context.Context, address string) (decimal.Decimal, error) {
				var resp dogechainBalance
				if err := dogechain.GetJSON(ctx, "/address/balance/"+address, nil, &resp); err != nil {
					return decimal.Zero, err
				}
				if resp.Success != 1 {
					return decimal.Zero, fmt.Errorf("dogechain: %s", resp.Error)
				}
				// Dogechain reports whole DOGE
				return unitsFromString(resp.Balance, 0)
			},
		})
	}
	return &DogecoinAdapter{
		base:    base{chain: types.ChainDogecoin, prices: prices},
		sources: NewSourceChain(sources...),
	}
}

// ValidateAddress checks if address format is valid for this chain
func (a *DogecoinAdapter) ValidateAddress(address string) bool {
	return dogecoinAddressRe.MatchString(address)
}

// GetHoldings returns the native DOGE balance of address
func (a *DogecoinAdapter) GetHoldings(ctx context.Context, address string, _ HoldingsOptions) (*Holdings, error) {
	if !a.ValidateAddress(address) {
		return a.rejected(ctx, address)
	}
	return a.nativeHoldings(ctx, address, "doge.balance", func(ctx context.Context) (decimal.Decimal, error) {
		bal, _, err := a.sources.Fetch(ctx, address)
		return bal, err
	})
}

// ZcashAdapter reads transparent Zcash balances from zcha.in, falling
// back to Blockchair. Shielded balances are not readable from public
// explorers, so shielded addresses yield nothing.
type ZcashAdapter struct {
	base
	sources *SourceChain
}

type zchainAccount struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

type blockchairDashboard struct {
	Data map[string]struct {
		Address struct {
			Balance int64 `json:"balance"`
		} `json:"address"`
	} `json:"data"`
}

// NewZcashAdapter creates the Zcash adapter. Either client may be nil.
func NewZcashAdapter(zchain, blockchair *upstream.Client, blockchairKey string, prices PriceSource) *ZcashAdapter {
	var sources []BalanceSource
	if zchain != nil {
		sources = append(sources, BalanceSource{
			Name: zchain.Name(),
			Fetch: func(ctx context.Context, address string) (decimal.Decimal, error) {
				var resp zchainAccount
				if err := zchain.GetJSON(ctx, "/accounts/"+address, nil, &resp); err != nil {
					return decimal.Zero, err
				}
				return decimal.NewFromFloat(resp.Balance), nil
			},
		})
	}
	if blockchair != nil {
		sources = append(sources, BalanceSource{
			Name: blockchair.Name(),
			Fetch: func(ctx context.Context, address string) (decimal.Decimal, error) {
				var query map[string]string
				if blockchairKey != "" {
					query = map[string]string{"key": blockchairKey}
				}
				var resp blockchairDashboard
				if err := blockchair.GetJSON(ctx, "/zcash/dashboards/address/"+address, query, &resp); err != nil {
					return decimal.Zero, err
				}
				entry, ok := resp.Data[address]
				if !ok {
					return decimal.Zero, fmt.Errorf("blockchair: address missing from response")
				}
				return unitsFromInt(entry.Address.Balance, NativeDecimals(types.ChainZcash)), nil
			},
		})
	}
	return &ZcashAdapter{
		base:    base{chain: types.ChainZcash, prices: prices},
		sources: NewSourceChain(sources...),
	}
}

// ValidateAddress accepts transparent and shielded address formats
func (a *ZcashAdapter) ValidateAddress(address string) bool {
	return zcashTransparentRe.MatchString(address) || zcashShieldedRe.MatchString(address)
}

// GetHoldings returns the transparent ZEC balance of address
func (a *ZcashAdapter) GetHoldings(ctx context.Context, address string, opts HoldingsOptions) (*Holdings, error) {
	if !a.ValidateAddress(address) {
		return a.rejected(ctx, address)
	}
	if !strings.HasPrefix(address, "t") {
		a.logger(ctx, address).
			WithField("viewingKey", opts.ViewingKey != "").
			Info("shielded zcash balances are not supported")
		return nil, nil
	}
	return a.nativeHoldings(ctx, address, "zcash.balance", func(ctx context.Context) (decimal.Decimal, error) {
		bal, _, err := a.sources.Fetch(ctx, address)
		return bal, err
	})
}
