package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chain-portfolio/internal/adapter"
	apperrors "github.com/chain-portfolio/internal/errors"
	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/pricing"
	"github.com/chain-portfolio/internal/tracker"
	"github.com/chain-portfolio/internal/types"
)

// Repository and cache interfaces for dependency injection

// PriceResolver prices ticker symbols in one batched lookup
type PriceResolver interface {
	BySymbol(ctx context.Context, symbols []string) map[string]types.PriceQuote
}

// PortfolioCache caches aggregated portfolio responses
type PortfolioCache interface {
	GeneratePortfolioKey(chain types.ChainID, address string) string
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// PortfolioService aggregates one address on one chain into a Portfolio
type PortfolioService struct {
	registry *adapter.Registry
	prices   PriceResolver
	cache    PortfolioCache
	cacheTTL time.Duration
	now      func() time.Time
}

// NewPortfolioService creates a new portfolio service. cache may be nil.
func NewPortfolioService(
	registry *adapter.Registry,
	prices PriceResolver,
	cache PortfolioCache,
	cacheTTL time.Duration,
) *PortfolioService {
	return &PortfolioService{
		registry: registry,
		prices:   prices,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// GetPortfolioInput represents input for a single-wallet portfolio lookup
type GetPortfolioInput struct {
	Address    string
	Chain      string
	ViewingKey string
}

// ResolveWallet validates chain and address and returns the wallet identity
func (s *PortfolioService) ResolveWallet(address, chain string) (types.WalletRef, adapter.ChainAdapter, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return types.WalletRef{}, nil, &types.ServiceError{
			Code:    types.ErrCodeInvalidInput,
			Message: "address is required",
		}
	}
	chainID, ok := types.ParseChainID(chain)
	if !ok {
		return types.WalletRef{}, nil, apperrors.NewUnsupportedChainError(chain)
	}
	a, ok := s.registry.Get(chainID)
	if !ok {
		return types.WalletRef{}, nil, apperrors.NewChainDisabledError(chainID)
	}
	if !a.ValidateAddress(address) {
		return types.WalletRef{}, nil, apperrors.NewInvalidAddressError(address, chainID)
	}
	return types.WalletRef{Address: address, Chain: chainID}, a, nil
}

// GetPortfolio fetches, prices and normalizes one wallet
func (s *PortfolioService) GetPortfolio(ctx context.Context, input GetPortfolioInput) (*types.Portfolio, error) {
	ref, a, err := s.ResolveWallet(input.Address, input.Chain)
	if err != nil {
		return nil, err
	}

	useCache := s.cache != nil && input.ViewingKey == ""
	var cacheKey string
	if useCache {
		cacheKey = s.cache.GeneratePortfolioKey(ref.Chain, ref.Address)
		var cached types.Portfolio
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		} else if err != nil {
			logging.FromContext(ctx).WithError(err).Warn("portfolio cache read failed")
		}
	}

	p, err := s.aggregate(ctx, a, ref, adapter.HoldingsOptions{ViewingKey: input.ViewingKey})
	if err != nil {
		return nil, err
	}

	if useCache {
		if err := s.cache.SetWithTTL(ctx, cacheKey, p, s.cacheTTL); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("portfolio cache write failed")
		}
	}
	return p, nil
}

// FetchWallet loads one tracked wallet, bypassing the response cache
func (s *PortfolioService) FetchWallet(ctx context.Context, ref types.WalletRef) (*types.Portfolio, error) {
	a, ok := s.registry.Get(ref.Chain)
	if !ok {
		return nil, apperrors.NewChainDisabledError(ref.Chain)
	}
	return s.aggregate(ctx, a, ref, adapter.HoldingsOptions{})
}

// aggregate runs the adapter and turns its holdings into a priced,
// deduplicated and sorted portfolio
func (s *PortfolioService) aggregate(ctx context.Context, a adapter.ChainAdapter, ref types.WalletRef, opts adapter.HoldingsOptions) (*types.Portfolio, error) {
	holdings, err := s.callAdapter(ctx, a, ref.Address, opts)
	if err != nil {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"chain":   string(ref.Chain),
			"address": ref.Address,
		}).WithError(err).Error("adapter call failed")
		return nil, apperrors.NewChainFetchError(ref.Chain)
	}

	p := &types.Portfolio{
		Address:   ref.Address,
		Chain:     ref.Chain,
		Assets:    []types.Asset{},
		NFTs:      []types.NFT{},
		Domains:   []types.Domain{},
		Timestamp: s.now().UTC(),
	}
	if holdings == nil {
		return p, nil
	}

	assets := s.normalize(ref.Chain, holdings.Assets)
	s.backfillPrices(ctx, assets)

	p.Assets = dropDust(tracker.MergeAssets(assets))
	p.TotalValue = tracker.TotalValue(p.Assets)
	if holdings.NFTs != nil {
		p.NFTs = holdings.NFTs
	}
	if holdings.Domains != nil {
		p.Domains = holdings.Domains
	}
	return p, nil
}

// callAdapter invokes the adapter, turning a panic into an error
func (s *PortfolioService) callAdapter(ctx context.Context, a adapter.ChainAdapter, address string, opts adapter.HoldingsOptions) (h *adapter.Holdings, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter %s panicked: %v", a.Chain(), r)
		}
	}()
	return a.GetHoldings(ctx, address, opts)
}

// normalize maps adapter holdings onto the common Asset shape, filling
// display name and icon from chain metadata
func (s *PortfolioService) normalize(chain types.ChainID, holdings []adapter.Holding) []types.Asset {
	info := adapter.ChainInfoFor(chain)
	assets := make([]types.Asset, 0, len(holdings))
	for _, h := range holdings {
		a := types.Asset{
			Symbol:          h.Symbol,
			Name:            h.Name,
			Chain:           chain,
			Balance:         h.Balance,
			Icon:            h.Icon,
			Contract:        h.Contract,
			IsStaked:        h.IsStaked,
			StakingProtocol: h.StakingProtocol,
		}
		if a.Name == "" {
			a.Name = adapter.DisplayName(h.Symbol, chain)
		}
		if a.Icon == "" && strings.EqualFold(h.Symbol, info.NativeSymbol) {
			a.Icon = info.Icon
		}
		if h.Quote != nil {
			a.Price = h.Quote.Price
			a.Change24h = h.Quote.Change24h
		}
		assets = append(assets, a)
	}
	return assets
}

// backfillPrices prices every unpriced asset in one batched symbol lookup
// and recomputes value. Unpriced stablecoins are valued at 1.0.
func (s *PortfolioService) backfillPrices(ctx context.Context, assets []types.Asset) {
	var missing []string
	seen := make(map[string]bool)
	for _, a := range assets {
		sym := strings.ToUpper(a.Symbol)
		if a.Price == 0 && !seen[sym] {
			seen[sym] = true
			missing = append(missing, sym)
		}
	}

	var quotes map[string]types.PriceQuote
	if len(missing) > 0 && s.prices != nil {
		quotes = s.prices.BySymbol(ctx, missing)
	}

	for i := range assets {
		a := &assets[i]
		if a.Price == 0 {
			if q, ok := quotes[strings.ToUpper(a.Symbol)]; ok && q.Price > 0 {
				a.Price = q.Price
				a.Change24h = q.Change24h
			} else if pricing.IsStablecoin(a.Symbol) {
				a.Price = 1.0
			}
		}
		a.Value = a.Balance * a.Price
	}
}

// dropDust removes assets that became dust once priced. Adapters filter
// with the quotes they had; backfilled prices can turn a kept unpriced
// balance into a sub-dollar one.
func dropDust(assets []types.Asset) []types.Asset {
	kept := assets[:0]
	for _, a := range assets {
		if !adapter.IsDust(a.Symbol, a.Balance, a.Price) {
			kept = append(kept, a)
		}
	}
	return kept
}

// SupportedChains lists enabled chains with display metadata
func (s *PortfolioService) SupportedChains() []adapter.ChainInfo {
	chains := s.registry.Chains()
	out := make([]adapter.ChainInfo, 0, len(chains))
	for _, c := range chains {
		out = append(out, adapter.ChainInfoFor(c))
	}
	return out
}
