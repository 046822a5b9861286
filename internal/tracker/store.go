package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chain-portfolio/internal/models"
	"github.com/chain-portfolio/internal/types"
)

// ErrWalletExists is returned when a wallet is already tracked
var ErrWalletExists = errors.New("wallet already tracked")

// WalletStore is the source of truth for the tracked wallet list
type WalletStore interface {
	List(ctx context.Context) ([]types.WalletRef, error)
	Add(ctx context.Context, ref types.WalletRef, label string) error
	Remove(ctx context.Context, ref types.WalletRef) error
}

// LocalStore is the in-memory wallet list of an anonymous session
type LocalStore struct {
	mu      sync.Mutex
	wallets []types.WalletRef
}

// NewLocalStore creates a local store seeded with refs. Duplicate refs
// are kept once.
func NewLocalStore(refs ...types.WalletRef) *LocalStore {
	s := &LocalStore{}
	for _, ref := range refs {
		_ = s.Add(context.Background(), ref, "")
	}
	return s
}

// List returns the tracked wallets in insertion order
func (s *LocalStore) List(_ context.Context) ([]types.WalletRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.WalletRef, len(s.wallets))
	copy(out, s.wallets)
	return out, nil
}

// Add appends ref to the list
func (s *LocalStore) Add(_ context.Context, ref types.WalletRef, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.Key() == ref.Key() {
			return ErrWalletExists
		}
	}
	s.wallets = append(s.wallets, ref)
	return nil
}

// Remove deletes ref from the list; removing an untracked wallet is a no-op
func (s *LocalStore) Remove(_ context.Context, ref types.WalletRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.wallets {
		if w.Key() == ref.Key() {
			s.wallets = append(s.wallets[:i], s.wallets[i+1:]...)
			return nil
		}
	}
	return nil
}

// WalletRepository is the persisted wallet table
type WalletRepository interface {
	Create(ctx context.Context, wallet *models.Wallet) error
	ListByUser(ctx context.Context, userID string) ([]*models.Wallet, error)
	DeleteByRef(ctx context.Context, userID string, ref types.WalletRef) error
}

// PersistedStore is a signed-in user's wallet list backed by the database
type PersistedStore struct {
	repo   WalletRepository
	userID string
	// isDuplicate recognizes the repository's duplicate-row error
	isDuplicate func(error) bool
}

// NewPersistedStore creates a store over userID's wallet rows
func NewPersistedStore(repo WalletRepository, userID string, isDuplicate func(error) bool) *PersistedStore {
	return &PersistedStore{repo: repo, userID: userID, isDuplicate: isDuplicate}
}

// List returns the user's wallets
func (s *PersistedStore) List(ctx context.Context) ([]types.WalletRef, error) {
	wallets, err := s.repo.ListByUser(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	out := make([]types.WalletRef, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, w.Ref())
	}
	return out, nil
}

// Add inserts a wallet row
func (s *PersistedStore) Add(ctx context.Context, ref types.WalletRef, label string) error {
	w := &models.Wallet{UserID: s.userID, Address: ref.Address, Chain: ref.Chain}
	if label != "" {
		w.Label = &label
	}
	if err := s.repo.Create(ctx, w); err != nil {
		if s.isDuplicate != nil && s.isDuplicate(err) {
			return ErrWalletExists
		}
		return fmt.Errorf("failed to save wallet: %w", err)
	}
	return nil
}

// Remove deletes the wallet row
func (s *PersistedStore) Remove(ctx context.Context, ref types.WalletRef) error {
	if err := s.repo.DeleteByRef(ctx, s.userID, ref); err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}
	return nil
}
