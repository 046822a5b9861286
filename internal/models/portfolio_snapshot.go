package models

import (
	"time"

	"github.com/chain-portfolio/internal/types"
)

// PortfolioSnapshot is an hourly total-value sample for one user
type PortfolioSnapshot struct {
	ID           string                    `json:"id" db:"id"`
	UserID       string                    `json:"userId" db:"user_id"`
	TotalValue   float64                   `json:"totalValue" db:"total_value"`
	ValueByChain map[types.ChainID]float64 `json:"valueByChain" db:"value_by_chain"`
	CreatedAt    time.Time                 `json:"createdAt" db:"created_at"`
}

// PortfolioDaily is the daily open/close/high/low rollup for one user
type PortfolioDaily struct {
	UserID     string    `json:"userId" db:"user_id"`
	Date       time.Time `json:"date" db:"date"`
	OpenValue  float64   `json:"openValue" db:"open_value"`
	CloseValue float64   `json:"closeValue" db:"close_value"`
	HighValue  float64   `json:"highValue" db:"high_value"`
	LowValue   float64   `json:"lowValue" db:"low_value"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}
