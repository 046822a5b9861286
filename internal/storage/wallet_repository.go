package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chain-portfolio/internal/models"
	"github.com/chain-portfolio/internal/types"
)

// WalletRepository persists tracked wallets for signed-in users
type WalletRepository struct {
	db *PostgresDB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *PostgresDB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Create inserts a wallet; a second (user, chain, address) row returns ErrDuplicate
func (r *WalletRepository) Create(ctx context.Context, wallet *models.Wallet) error {
	if wallet.ID == "" {
		wallet.ID = uuid.New().String()
	}
	wallet.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO wallets (id, user_id, address, chain, label, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		wallet.ID,
		wallet.UserID,
		wallet.Address,
		wallet.Chain,
		wallet.Label,
		wallet.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	return nil
}

// ListByUser returns a user's wallets, oldest first
func (r *WalletRepository) ListByUser(ctx context.Context, userID string) ([]*models.Wallet, error) {
	query := `
		SELECT id, user_id, address, chain, label, created_at
		FROM wallets
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	wallets := make([]*models.Wallet, 0)
	for rows.Next() {
		var w models.Wallet
		var chain string
		if err := rows.Scan(&w.ID, &w.UserID, &w.Address, &chain, &w.Label, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		w.Chain = types.ChainID(chain)
		wallets = append(wallets, &w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallets: %w", err)
	}

	return wallets, nil
}

// DeleteByRef removes a wallet by its (address, chain) identity
func (r *WalletRepository) DeleteByRef(ctx context.Context, userID string, ref types.WalletRef) error {
	tag, err := r.db.Pool().Exec(ctx,
		`DELETE FROM wallets WHERE user_id = $1 AND chain = $2 AND address = $3`,
		userID, ref.Chain, ref.Address,
	)
	if err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUserIDs returns every user that tracks at least one wallet
func (r *WalletRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT DISTINCT user_id FROM wallets ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet owners: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet owners: %w", err)
	}

	return ids, nil
}
