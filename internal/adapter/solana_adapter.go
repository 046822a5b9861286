package adapter

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"

	"github.com/chain-portfolio/internal/types"
	"github.com/chain-portfolio/internal/upstream"
)

var solanaAddressRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// liquidStakingMints maps Solana LST mints to their staking protocol
var liquidStakingMints = map[string]string{
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  "Marinade",
	"J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn": "Jito",
	"bSo13r4TkiE4KumL71LsHTPpL2euBYLFx6h9HP3piy1":  "BlazeStake",
	"jupSoLaHXQiZZTSfEWMTRRgpnyFm8f6sZdosWBjx93v":  "Jupiter",
	"5oVNBeEEQvYi1cX3ir8Dx5n1P7pdxydbGF2X4TxVusJm": "Sanctum",
}

// nftInterfaces are the DAS asset interfaces reported as NFTs
var nftInterfaces = map[string]bool{
	"V1_NFT":          true,
	"V2_NFT":          true,
	"LEGACY_NFT":      true,
	"ProgrammableNFT": true,
	"MplCoreAsset":    true,
}

const acquisitionConcurrency = 4

// SolanaConfig wires the Solana adapter's data sources
type SolanaConfig struct {
	// Provider supplies the JSON-RPC endpoints used for the SOL balance
	Provider *RPCProvider
	// DAS is the Helius RPC endpoint serving getAssetsByOwner; nil disables tokens and NFTs
	DAS          *upstream.Client
	HeliusAPIKey string
	// Enhanced is the Helius enhanced transactions API; nil disables acquisition lookups
	Enhanced *upstream.Client
	// Bonfida resolves .sol domains; nil disables domains
	Bonfida *upstream.Client
	// AcquisitionLookups caps how many NFTs get a transaction history lookup
	AcquisitionLookups int
	Prices             PriceSource
}

// SolanaAdapter reads SOL, SPL tokens, NFTs and .sol domains
type SolanaAdapter struct {
	base
	cfg SolanaConfig

	mu      sync.Mutex
	clients map[string]*rpc.Client
}

// NewSolanaAdapter creates the Solana adapter
func NewSolanaAdapter(cfg SolanaConfig) (*SolanaAdapter, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	return &SolanaAdapter{
		base:    base{chain: types.ChainSolana, prices: cfg.Prices},
		cfg:     cfg,
		clients: make(map[string]*rpc.Client),
	}, nil
}

// ValidateAddress checks that address decodes to a 32-byte public key
func (a *SolanaAdapter) ValidateAddress(address string) bool {
	if !solanaAddressRe.MatchString(address) {
		return false
	}
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}

func (a *SolanaAdapter) rpcClient() *rpc.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	url := a.cfg.Provider.GetCurrentURL()
	c, ok := a.clients[url]
	if !ok {
		c = rpc.New(url)
		a.clients[url] = c
	}
	return c
}

// nativeBalance reads the SOL balance in lamports, failing over once
func (a *SolanaAdapter) nativeBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		out, err := a.rpcClient().GetBalance(ctx, owner, rpc.CommitmentConfirmed)
		if err == nil {
			a.cfg.Provider.RecordSuccess(time.Since(start))
			return out.Value, nil
		}
		a.cfg.Provider.RecordFailure()
		if attempt > 0 || ctx.Err() != nil || !shouldFailover(err) || !a.cfg.Provider.HasSecondary() {
			return 0, err
		}
		if _, ferr := a.cfg.Provider.Failover(); ferr != nil {
			return 0, err
		}
	}
}

type dasAsset struct {
	ID        string `json:"id"`
	Interface string `json:"interface"`
	Content   struct {
		Metadata struct {
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		} `json:"metadata"`
		Links struct {
			Image string `json:"image"`
		} `json:"links"`
	} `json:"content"`
	Grouping []struct {
		GroupKey   string `json:"group_key"`
		GroupValue string `json:"group_value"`
	} `json:"grouping"`
	Compression struct {
		Compressed bool `json:"compressed"`
	} `json:"compression"`
	TokenInfo *struct {
		Symbol    string  `json:"symbol"`
		Balance   float64 `json:"balance"`
		Decimals  int32   `json:"decimals"`
		PriceInfo *struct {
			PricePerToken float64 `json:"price_per_token"`
		} `json:"price_info"`
	} `json:"token_info"`
}

type dasPage struct {
	Total int        `json:"total"`
	Items []dasAsset `json:"items"`
}

type bonfidaDomains struct {
	S      string `json:"s"`
	Result []struct {
		Key    string `json:"key"`
		Domain string `json:"domain"`
	} `json:"result"`
}

// GetHoldings returns SOL, SPL tokens, NFTs and .sol domains of address.
// Only the SOL balance is required; the rest degrade to empty on failure.
func (a *SolanaAdapter) GetHoldings(ctx context.Context, address string, _ HoldingsOptions) (*Holdings, error) {
	if !a.ValidateAddress(address) {
		return a.rejected(ctx, address)
	}
	owner := solana.MustPublicKeyFromBase58(address)
	log := a.logger(ctx, address)
	info := ChainInfoFor(a.chain)

	var (
		lamports  uint64
		solErr    error
		solQuotes map[string]types.PriceQuote
		assets    []dasAsset
		domains   []types.Domain
	)
	var g errgroup.Group
	g.Go(func() error {
		lamports, solErr = a.nativeBalance(ctx, owner)
		return nil
	})
	g.Go(func() error {
		solQuotes = a.quotes(ctx, info.NativeSymbol)
		return nil
	})
	if a.cfg.DAS != nil {
		g.Go(func() error {
			var err error
			if assets, err = a.assetsByOwner(ctx, address); err != nil {
				log.WithError(err).Warn("helius getAssetsByOwner failed")
			}
			return nil
		})
	}
	if a.cfg.Bonfida != nil {
		g.Go(func() error {
			var err error
			if domains, err = a.domains(ctx, address); err != nil {
				log.WithError(err).Warn("bonfida domain lookup failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	if solErr != nil {
		return a.failed(ctx, address, "sol.balance", solErr)
	}

	h := &Holdings{Chain: a.chain, Domains: domains}
	h.Assets = append(h.Assets, Holding{
		Symbol:  info.NativeSymbol,
		Name:    info.NativeName,
		Balance: unitsFromUint(lamports, NativeDecimals(a.chain)).InexactFloat64(),
		Quote:   quoteFor(info.NativeSymbol, solQuotes, info.NativeSymbol),
	})
	h.Assets = append(h.Assets, a.fungibles(ctx, assets)...)
	h.NFTs = a.nfts(assets)
	a.annotateAcquisitions(ctx, address, h)
	return a.succeeded(h)
}

func (a *SolanaAdapter) assetsByOwner(ctx context.Context, address string) ([]dasAsset, error) {
	params := map[string]interface{}{
		"ownerAddress": address,
		"page":         1,
		"limit":        1000,
		"displayOptions": map[string]bool{
			"showFungible":      true,
			"showNativeBalance": false,
		},
	}
	var page dasPage
	if err := a.cfg.DAS.CallRPC(ctx, "/?api-key="+a.cfg.HeliusAPIKey, "getAssetsByOwner", params, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// fungibles converts DAS fungible assets into holdings. Helius price data
// is used when present; the rest are priced by mint.
func (a *SolanaAdapter) fungibles(ctx context.Context, assets []dasAsset) []Holding {
	var holdings []Holding
	var missing []string
	for _, asset := range assets {
		if asset.TokenInfo == nil || nftInterfaces[asset.Interface] || asset.TokenInfo.Balance <= 0 {
			continue
		}
		symbol := asset.TokenInfo.Symbol
		if symbol == "" {
			symbol = asset.Content.Metadata.Symbol
		}
		if symbol == "" {
			continue
		}
		name := asset.Content.Metadata.Name
		if name == "" {
			name = DisplayName(symbol, a.chain)
		}
		balance := unitsFromUint(uint64(asset.TokenInfo.Balance), asset.TokenInfo.Decimals).InexactFloat64()
		protocol, staked := liquidStakingMints[asset.ID]

		h := Holding{
			Symbol:          symbol,
			Name:            name,
			Balance:         balance,
			Contract:        asset.ID,
			Icon:            asset.Content.Links.Image,
			IsStaked:        staked,
			StakingProtocol: protocol,
		}
		if pi := asset.TokenInfo.PriceInfo; pi != nil && pi.PricePerToken > 0 {
			h.Quote = &types.PriceQuote{Price: pi.PricePerToken}
		} else {
			missing = append(missing, "solana:"+asset.ID)
		}
		holdings = append(holdings, h)
	}

	quotes := a.addressQuotes(ctx, missing)
	for i := range holdings {
		if holdings[i].Quote == nil {
			holdings[i].Quote = quoteFor(holdings[i].Symbol, quotes, "solana:"+holdings[i].Contract)
		}
	}
	return holdings
}

// nfts converts DAS NFT assets. Compressed NFTs are skipped; almost all of
// them are unsolicited airdrops.
func (a *SolanaAdapter) nfts(assets []dasAsset) []types.NFT {
	var out []types.NFT
	for _, asset := range assets {
		if !nftInterfaces[asset.Interface] || asset.Compression.Compressed {
			continue
		}
		collection := ""
		for _, g := range asset.Grouping {
			if g.GroupKey == "collection" {
				collection = g.GroupValue
				break
			}
		}
		name := asset.Content.Metadata.Name
		if name == "" {
			name = asset.ID
		}
		out = append(out, types.NFT{
			Mint:            asset.ID,
			Name:            name,
			Chain:           a.chain,
			Collection:      collection,
			ImageURL:        asset.Content.Links.Image,
			AcquisitionType: types.AcquisitionUnknown,
		})
	}
	return out
}

func (a *SolanaAdapter) domains(ctx context.Context, address string) ([]types.Domain, error) {
	var resp bonfidaDomains
	if err := a.cfg.Bonfida.GetJSON(ctx, "/domains/"+address, nil, &resp); err != nil {
		if upstream.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if resp.S != "" && resp.S != "ok" {
		return nil, fmt.Errorf("bonfida status %q", resp.S)
	}
	out := make([]types.Domain, 0, len(resp.Result))
	for _, d := range resp.Result {
		name := d.Domain
		if !strings.HasSuffix(name, ".sol") {
			name += ".sol"
		}
		out = append(out, types.Domain{Name: name, Mint: d.Key, Chain: a.chain})
	}
	return out, nil
}

// annotateAcquisitions looks up how the first NFTs and domains were
// acquired. Lookup failures leave the acquisition unknown.
func (a *SolanaAdapter) annotateAcquisitions(ctx context.Context, owner string, h *Holdings) {
	limit := a.cfg.AcquisitionLookups
	if a.cfg.Enhanced == nil || limit <= 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(acquisitionConcurrency)
	for i := range h.NFTs {
		if i >= limit {
			break
		}
		nft := &h.NFTs[i]
		g.Go(func() error {
			acq, err := a.acquisition(gctx, owner, nft.Mint)
			if err != nil {
				a.logger(ctx, owner).WithError(err).WithField("mint", nft.Mint).Debug("acquisition lookup failed")
				return nil
			}
			nft.AcquisitionType = acq.Type
			nft.PurchasePrice = acq.Price
			nft.PurchaseDate = acq.Date
			return nil
		})
	}
	for i := range h.Domains {
		if i >= limit {
			break
		}
		domain := &h.Domains[i]
		g.Go(func() error {
			acq, err := a.acquisition(gctx, owner, domain.Mint)
			if err != nil {
				return nil
			}
			domain.PurchasePrice = acq.Price
			domain.PurchaseDate = acq.Date
			return nil
		})
	}
	_ = g.Wait()
}

func (a *SolanaAdapter) acquisition(ctx context.Context, owner, mint string) (Acquisition, error) {
	var txs []HeliusTransaction
	query := map[string]string{"api-key": a.cfg.HeliusAPIKey, "limit": "20"}
	if err := a.cfg.Enhanced.GetJSON(ctx, "/v0/addresses/"+mint+"/transactions", query, &txs); err != nil {
		return Acquisition{Type: types.AcquisitionUnknown}, err
	}
	return InferAcquisition(owner, mint, txs), nil
}
