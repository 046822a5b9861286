package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"

	"github.com/chain-portfolio/internal/types"
	"github.com/chain-portfolio/internal/upstream"
)

// ENS registrar and NameWrapper contracts; NFTs from these are domains
var ensContracts = map[string]bool{
	"0x57f1887a8bf19b14fc0df6fd9b2acc9af147ea85": true,
	"0xd4416b13d2b3a9abae7acd5d6c2bbdbe25686401": true,
}

// liquidStakingTokens maps LSD contracts to their staking protocol
var liquidStakingTokens = map[string]string{
	"0xae7ab96520de3a18e5e111b5eaab095312d7fe84": "Lido",        // stETH
	"0x7f39c581f595b53c5cb19bd0b3f8da6c935e2ca0": "Lido",        // wstETH
	"0xae78736cd615f374d3085123a210448e74fc6393": "Rocket Pool", // rETH
	"0xbe9895146f7af43049ca1c1ae358b0541ea49704": "Coinbase",    // cbETH
	"0xac3e018457b222d93114458476f3e3416abbe38f": "Frax",        // sfrxETH
	"0xcd5fe23c85820f7b72d0926fc9b05b43e359b7ee": "ether.fi",    // weETH
}

const (
	maxEthereumTokens   = 100
	metadataConcurrency = 8
)

// EthereumConfig wires the Ethereum adapter's data sources
type EthereumConfig struct {
	// Provider supplies the JSON-RPC endpoints used for the native balance
	Provider *RPCProvider
	// Alchemy is a JSON-RPC client for alchemy_* token methods; nil disables tokens
	Alchemy *upstream.Client
	// NFTs is a client for the Alchemy NFT REST API; nil disables NFTs and ENS
	NFTs   *upstream.Client
	Prices PriceSource
}

// EthereumAdapter reads ETH, ERC-20, NFT and ENS holdings
type EthereumAdapter struct {
	base
	provider *RPCProvider
	alchemy  *upstream.Client
	nfts     *upstream.Client

	mu     sync.Mutex
	client *ethclient.Client
	dialed string
}

// NewEthereumAdapter creates the Ethereum adapter. The RPC connection is
// dialed on first use.
func NewEthereumAdapter(cfg EthereumConfig) (*EthereumAdapter, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	return &EthereumAdapter{
		base:     base{chain: types.ChainEthereum, prices: cfg.Prices},
		provider: cfg.Provider,
		alchemy:  cfg.Alchemy,
		nfts:     cfg.NFTs,
	}, nil
}

// ValidateAddress checks if address format is valid for this chain
func (a *EthereumAdapter) ValidateAddress(address string) bool {
	return evmAddressRe.MatchString(address)
}

// ethClient returns a client connected to the provider's current endpoint
func (a *EthereumAdapter) ethClient(ctx context.Context) (*ethclient.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	url := a.provider.GetCurrentURL()
	if a.client != nil && a.dialed == url {
		return a.client, nil
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, NewAdapterError(a.chain, "dial", err, nil)
	}
	if a.client != nil {
		a.client.Close()
	}
	a.client, a.dialed = client, url
	return client, nil
}

// nativeBalance reads the ETH balance, failing over to the secondary
// endpoint once on transport errors
func (a *EthereumAdapter) nativeBalance(ctx context.Context, address string) (*big.Int, error) {
	addr := common.HexToAddress(address)
	for attempt := 0; ; attempt++ {
		client, err := a.ethClient(ctx)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		balance, err := client.BalanceAt(ctx, addr, nil)
		if err == nil {
			a.provider.RecordSuccess(time.Since(start))
			return balance, nil
		}
		a.provider.RecordFailure()
		if attempt > 0 || ctx.Err() != nil || !shouldFailover(err) || !a.provider.HasSecondary() {
			return nil, err
		}
		if _, ferr := a.provider.Failover(); ferr != nil {
			return nil, err
		}
	}
}

// shouldFailover determines if an error warrants failing over to another provider
func shouldFailover(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// Check for rate limit errors
	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return true
	}

	// Check for timeout errors
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	// Check for connection errors
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503")
}

type alchemyTokenBalances struct {
	Address       string `json:"address"`
	TokenBalances []struct {
		ContractAddress string  `json:"contractAddress"`
		TokenBalance    string  `json:"tokenBalance"`
		Error           *string `json:"error"`
	} `json:"tokenBalances"`
}

type alchemyTokenMetadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals *int32 `json:"decimals"`
	Logo     string `json:"logo"`
}

type alchemyNFTPage struct {
	OwnedNFTs []struct {
		Contract struct {
			Address         string `json:"address"`
			Name            string `json:"name"`
			IsSpam          bool   `json:"isSpam"`
			OpenSeaMetadata struct {
				CollectionName string   `json:"collectionName"`
				FloorPrice     *float64 `json:"floorPrice"`
			} `json:"openSeaMetadata"`
		} `json:"contract"`
		TokenID string `json:"tokenId"`
		Name    string `json:"name"`
		Image   struct {
			CachedURL   string `json:"cachedUrl"`
			OriginalURL string `json:"originalUrl"`
		} `json:"image"`
	} `json:"ownedNfts"`
	PageKey string `json:"pageKey"`
}

// GetHoldings returns ETH, ERC-20 tokens, NFTs and ENS names of address.
// Only the native balance is required; token and NFT failures are logged
// and leave those parts empty.
func (a *EthereumAdapter) GetHoldings(ctx context.Context, address string, _ HoldingsOptions) (*Holdings, error) {
	if !a.ValidateAddress(address) {
		return a.rejected(ctx, address)
	}
	log := a.logger(ctx, address)
	info := ChainInfoFor(a.chain)

	var (
		native    *big.Int
		nativeErr error
		ethQuotes map[string]types.PriceQuote
		tokens    []Holding
		nfts      []types.NFT
		domains   []types.Domain
	)

	var g errgroup.Group
	g.Go(func() error {
		native, nativeErr = a.nativeBalance(ctx, address)
		return nil
	})
	g.Go(func() error {
		ethQuotes = a.quotes(ctx, info.NativeSymbol)
		return nil
	})
	if a.alchemy != nil {
		g.Go(func() error {
			var err error
			if tokens, err = a.tokenHoldings(ctx, address); err != nil {
				log.WithError(err).Warn("erc20 balances failed")
			}
			return nil
		})
	}
	if a.nfts != nil {
		g.Go(func() error {
			var err error
			if nfts, domains, err = a.nftHoldings(ctx, address); err != nil {
				log.WithError(err).Warn("nft lookup failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	if nativeErr != nil {
		return a.failed(ctx, address, "eth.balance", nativeErr)
	}

	h := &Holdings{Chain: a.chain, NFTs: nfts, Domains: domains}
	h.Assets = append(h.Assets, Holding{
		Symbol:  info.NativeSymbol,
		Name:    info.NativeName,
		Balance: unitsFromBig(native, NativeDecimals(a.chain)).InexactFloat64(),
		Quote:   quoteFor(info.NativeSymbol, ethQuotes, info.NativeSymbol),
	})
	h.Assets = append(h.Assets, tokens...)
	return a.succeeded(h)
}

// tokenHoldings lists non-zero ERC-20 balances with metadata and prices
func (a *EthereumAdapter) tokenHoldings(ctx context.Context, address string) ([]Holding, error) {
	var balances alchemyTokenBalances
	if err := a.alchemy.CallRPC(ctx, "", "alchemy_getTokenBalances", []interface{}{address, "erc20"}, &balances); err != nil {
		return nil, err
	}

	type rawToken struct {
		contract string
		amount   *big.Int
	}
	var raws []rawToken
	for _, tb := range balances.TokenBalances {
		if tb.Error != nil || tb.TokenBalance == "" {
			continue
		}
		amount := common.HexToHash(tb.TokenBalance).Big()
		if amount.Sign() <= 0 {
			continue
		}
		raws = append(raws, rawToken{contract: strings.ToLower(tb.ContractAddress), amount: amount})
		if len(raws) == maxEthereumTokens {
			break
		}
	}
	if len(raws) == 0 {
		return nil, nil
	}

	metas := make([]*alchemyTokenMetadata, len(raws))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataConcurrency)
	for i := range raws {
		i := i
		g.Go(func() error {
			var meta alchemyTokenMetadata
			if err := a.alchemy.CallRPC(gctx, "", "alchemy_getTokenMetadata", []interface{}{raws[i].contract}, &meta); err != nil {
				a.logger(ctx, address).WithError(err).WithField("contract", raws[i].contract).Debug("token metadata failed")
				return nil
			}
			metas[i] = &meta
			return nil
		})
	}
	_ = g.Wait()

	holdings := make([]Holding, 0, len(raws))
	keys := make([]string, 0, len(raws))
	for i, raw := range raws {
		meta := metas[i]
		// Without decimals the balance cannot be converted
		if meta == nil || meta.Decimals == nil || meta.Symbol == "" {
			continue
		}
		protocol, staked := liquidStakingTokens[raw.contract]
		name := meta.Name
		if name == "" {
			name = DisplayName(meta.Symbol, a.chain)
		}
		holdings = append(holdings, Holding{
			Symbol:          meta.Symbol,
			Name:            name,
			Balance:         unitsFromBig(raw.amount, *meta.Decimals).InexactFloat64(),
			Contract:        raw.contract,
			Icon:            meta.Logo,
			IsStaked:        staked,
			StakingProtocol: protocol,
		})
		keys = append(keys, "ethereum:"+raw.contract)
	}

	quotes := a.addressQuotes(ctx, keys)
	for i := range holdings {
		holdings[i].Quote = quoteFor(holdings[i].Symbol, quotes, "ethereum:"+holdings[i].Contract)
	}
	return holdings, nil
}

// nftHoldings lists owned NFTs, splitting ENS names out as domains
func (a *EthereumAdapter) nftHoldings(ctx context.Context, address string) ([]types.NFT, []types.Domain, error) {
	var page alchemyNFTPage
	query := map[string]string{
		"owner":        address,
		"withMetadata": "true",
		"pageSize":     "100",
	}
	if err := a.nfts.GetJSON(ctx, "/getNFTsForOwner", query, &page); err != nil {
		return nil, nil, err
	}

	var nfts []types.NFT
	var domains []types.Domain
	for _, n := range page.OwnedNFTs {
		contract := strings.ToLower(n.Contract.Address)
		if ensContracts[contract] {
			if n.Name != "" {
				domains = append(domains, types.Domain{
					Name:  n.Name,
					Mint:  contract + ":" + n.TokenID,
					Chain: a.chain,
				})
			}
			continue
		}
		if n.Contract.IsSpam {
			continue
		}

		collection := n.Contract.OpenSeaMetadata.CollectionName
		if collection == "" {
			collection = n.Contract.Name
		}
		name := n.Name
		if name == "" {
			name = fmt.Sprintf("%s #%s", collection, n.TokenID)
		}
		image := n.Image.CachedURL
		if image == "" {
			image = n.Image.OriginalURL
		}
		nfts = append(nfts, types.NFT{
			Mint:            contract + ":" + n.TokenID,
			Name:            name,
			Chain:           a.chain,
			Collection:      collection,
			ImageURL:        image,
			FloorPrice:      n.Contract.OpenSeaMetadata.FloorPrice,
			AcquisitionType: types.AcquisitionUnknown,
		})
	}
	return nfts, domains, nil
}

// Close releases the RPC connection
func (a *EthereumAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		a.client.Close()
		a.client = nil
	}
}
