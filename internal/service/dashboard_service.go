package service

import (
	"context"
	"fmt"
	"time"

	"github.com/chain-portfolio/internal/tracker"
	"github.com/chain-portfolio/internal/types"
)

// maxDashboardWallets caps the wallet list an anonymous client may submit
const maxDashboardWallets = 50

// DashboardService builds merged multi-wallet views
type DashboardService struct {
	portfolio *PortfolioService
	wallets   *WalletService
	cfg       tracker.Config
	now       func() time.Time
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(portfolio *PortfolioService, wallets *WalletService, cfg tracker.Config) *DashboardService {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = tracker.DefaultConfig().RefreshInterval
	}
	return &DashboardService{portfolio: portfolio, wallets: wallets, cfg: cfg, now: time.Now}
}

// WalletInput is one entry of an anonymous client's local wallet list
type WalletInput struct {
	Address string `json:"address" validate:"required"`
	Chain   string `json:"chain" validate:"required"`
}

// ForUser merges every persisted wallet of userID. The user's tracker is
// reloaded when its last refresh is older than the refresh interval.
func (s *DashboardService) ForUser(ctx context.Context, userID string) (*tracker.View, error) {
	t, err := s.wallets.Tracker(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.now().Sub(t.LastRefresh()) >= s.cfg.RefreshInterval {
		if err := t.Load(ctx); err != nil {
			return nil, databaseError("failed to load wallets", err)
		}
	}
	return t.View(), nil
}

// ForWallets merges a client-supplied wallet list. Every entry is
// validated before anything is fetched.
func (s *DashboardService) ForWallets(ctx context.Context, inputs []WalletInput) (*tracker.View, error) {
	if len(inputs) > maxDashboardWallets {
		return nil, &types.ServiceError{
			Code:    types.ErrCodeInvalidInput,
			Message: fmt.Sprintf("at most %d wallets may be tracked", maxDashboardWallets),
		}
	}
	refs := make([]types.WalletRef, 0, len(inputs))
	for _, in := range inputs {
		ref, _, err := s.portfolio.ResolveWallet(in.Address, in.Chain)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	t := tracker.New(tracker.NewLocalStore(refs...), s.portfolio, s.cfg)
	if err := t.Load(ctx); err != nil {
		return nil, err
	}
	return t.View(), nil
}
