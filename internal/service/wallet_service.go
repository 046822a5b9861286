package service

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/chain-portfolio/internal/errors"
	"github.com/chain-portfolio/internal/models"
	"github.com/chain-portfolio/internal/storage"
	"github.com/chain-portfolio/internal/tracker"
	"github.com/chain-portfolio/internal/types"
)

// WalletRepository interface for wallet data operations
type WalletRepository interface {
	Create(ctx context.Context, wallet *models.Wallet) error
	ListByUser(ctx context.Context, userID string) ([]*models.Wallet, error)
	DeleteByRef(ctx context.Context, userID string, ref types.WalletRef) error
	ListUserIDs(ctx context.Context) ([]string, error)
}

// WalletService manages a signed-in user's tracked wallets. Additions and
// removals go through the user's tracker so its in-memory data follows
// the persisted list.
type WalletService struct {
	repo      WalletRepository
	portfolio *PortfolioService
	trackers  *tracker.Pool
}

// NewWalletService creates a new wallet service
func NewWalletService(repo WalletRepository, portfolio *PortfolioService, cfg tracker.Config) *WalletService {
	s := &WalletService{repo: repo, portfolio: portfolio}
	s.trackers = tracker.NewPool(portfolio, cfg, s.Store, 0)
	return s
}

// AddWalletInput represents input for tracking a wallet
type AddWalletInput struct {
	Address string  `json:"address" validate:"required,max=128"`
	Chain   string  `json:"chain" validate:"required"`
	Label   *string `json:"label,omitempty" validate:"omitempty,max=64"`
}

// List returns the user's wallets, oldest first
func (s *WalletService) List(ctx context.Context, userID string) ([]*models.Wallet, error) {
	wallets, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, databaseError("failed to list wallets", err)
	}
	if wallets == nil {
		wallets = []*models.Wallet{}
	}
	return wallets, nil
}

// Add validates a wallet, fetches its data into the user's tracker and
// then stores it. When storing fails the fetched data stays in the
// tracker until its next reload.
func (s *WalletService) Add(ctx context.Context, userID string, input AddWalletInput) (*models.Wallet, error) {
	ref, _, err := s.portfolio.ResolveWallet(input.Address, input.Chain)
	if err != nil {
		return nil, err
	}
	var label string
	if input.Label != nil {
		label = strings.TrimSpace(*input.Label)
	}

	t, err := s.Tracker(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := t.AddWallet(ctx, ref, label); err != nil {
		if errors.Is(err, tracker.ErrWalletExists) || errors.Is(err, tracker.ErrAddInProgress) {
			return nil, apperrors.NewWalletTrackedError(ref)
		}
		return nil, databaseError("failed to save wallet", err)
	}

	w, err := s.find(ctx, userID, func(w *models.Wallet) bool { return w.Ref().Key() == ref.Key() })
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Remove drops one of the user's wallets from their tracker and then
// deletes the stored row
func (s *WalletService) Remove(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(id) == "" {
		return &types.ServiceError{Code: types.ErrCodeInvalidInput, Message: "id is required"}
	}
	w, err := s.find(ctx, userID, func(w *models.Wallet) bool { return w.ID == id })
	if err != nil {
		return err
	}

	t, err := s.Tracker(ctx, userID)
	if err != nil {
		return err
	}
	if err := t.RemoveWallet(ctx, w.Ref()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NewWalletNotFoundError()
		}
		return databaseError("failed to delete wallet", err)
	}
	return nil
}

// Tracker returns the user's tracker, loading their stored wallets on
// first use
func (s *WalletService) Tracker(ctx context.Context, userID string) (*tracker.Tracker, error) {
	t, err := s.trackers.Get(ctx, userID)
	if err != nil {
		return nil, databaseError("failed to load wallets", err)
	}
	return t, nil
}

// find returns the user's first wallet matching match
func (s *WalletService) find(ctx context.Context, userID string, match func(*models.Wallet) bool) (*models.Wallet, error) {
	wallets, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, databaseError("failed to list wallets", err)
	}
	for _, w := range wallets {
		if match(w) {
			return w, nil
		}
	}
	return nil, apperrors.NewWalletNotFoundError()
}

// Store returns the persisted wallet list of userID as a tracker store
func (s *WalletService) Store(userID string) tracker.WalletStore {
	return tracker.NewPersistedStore(s.repo, userID, func(err error) bool {
		return errors.Is(err, storage.ErrDuplicate)
	})
}

func databaseError(message string, err error) *types.ServiceError {
	return apperrors.NewStorageError(message, err)
}
