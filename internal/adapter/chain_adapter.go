package adapter

import (
	"context"
	"fmt"

	"github.com/chain-portfolio/internal/types"
)

// ChainAdapter fetches the holdings of one address on one chain.
//
// GetHoldings returns (nil, nil) when the address is malformed (no network
// call is made) or when every upstream source failed; such failures are
// logged, never returned. A non-nil error means the request itself was
// aborted, e.g. its context expired.
type ChainAdapter interface {
	// Chain returns the chain identifier
	Chain() types.ChainID

	// ValidateAddress checks if address format is valid for this chain
	ValidateAddress(address string) bool

	// GetHoldings returns the address's balances, NFTs and domains
	GetHoldings(ctx context.Context, address string, opts HoldingsOptions) (*Holdings, error)
}

// HoldingsOptions carries per-request adapter options
type HoldingsOptions struct {
	// ViewingKey is an optional Zcash viewing key
	ViewingKey string
}

// PriceSource resolves USD quotes for adapters that price their own tokens
type PriceSource interface {
	BySymbol(ctx context.Context, symbols []string) map[string]types.PriceQuote
	ByAddress(ctx context.Context, keys []string) map[string]types.PriceQuote
}

// Holding is one balance as reported by an adapter. Balance is in human
// units. Quote is nil when no price was found.
type Holding struct {
	Symbol          string
	Name            string
	Balance         float64
	Quote           *types.PriceQuote
	Contract        string
	Icon            string
	IsStaked        bool
	StakingProtocol string
}

// Holdings is the normalized output of a chain adapter
type Holdings struct {
	Chain   types.ChainID
	Assets  []Holding
	NFTs    []types.NFT
	Domains []types.Domain
}

// Common error types for chain adapters

var (
	// ErrInvalidAddress indicates the address format is invalid
	ErrInvalidAddress = fmt.Errorf("invalid address format")

	// ErrProviderUnavailable indicates every data source failed
	ErrProviderUnavailable = fmt.Errorf("data provider unavailable")

	// ErrNotConfigured indicates a required API key or URL is missing
	ErrNotConfigured = fmt.Errorf("provider not configured")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Chain   types.ChainID
	Op      string
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("chain adapter error [%s:%s]: %v (details: %+v)", e.Chain, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("chain adapter error [%s:%s]: %v", e.Chain, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(chain types.ChainID, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Chain:   chain,
		Op:      op,
		Err:     err,
		Details: details,
	}
}
