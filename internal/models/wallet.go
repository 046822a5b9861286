// Package models provides persisted data models for the portfolio system.
package models

import (
	"time"

	"github.com/chain-portfolio/internal/types"
)

// Wallet is a tracked (address, chain) pair. ID and UserID are empty for
// wallets held in an anonymous session's local list.
type Wallet struct {
	ID        string        `json:"id,omitempty" db:"id"`
	UserID    string        `json:"userId,omitempty" db:"user_id"`
	Address   string        `json:"address" db:"address"`
	Chain     types.ChainID `json:"chain" db:"chain"`
	Label     *string       `json:"label,omitempty" db:"label"`
	CreatedAt time.Time     `json:"createdAt,omitempty" db:"created_at"`
}

// Ref returns the wallet's (address, chain) identity
func (w Wallet) Ref() types.WalletRef {
	return types.WalletRef{Address: w.Address, Chain: w.Chain}
}
