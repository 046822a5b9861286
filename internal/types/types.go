// Package types provides common type definitions for the portfolio system.
package types

import (
	"strings"
	"time"
)

// ChainID represents supported blockchain networks
type ChainID string

const (
	// ChainBitcoin represents Bitcoin mainnet
	ChainBitcoin ChainID = "bitcoin"
	// ChainEthereum represents Ethereum mainnet
	ChainEthereum ChainID = "ethereum"
	// ChainSolana represents Solana mainnet-beta
	ChainSolana ChainID = "solana"
	// ChainHyperliquid represents the Hyperliquid L1
	ChainHyperliquid ChainID = "hyperliquid"
	// ChainXRP represents the XRP Ledger
	ChainXRP ChainID = "xrp"
	// ChainDogecoin represents Dogecoin mainnet
	ChainDogecoin ChainID = "dogecoin"
	// ChainZcash represents Zcash mainnet (transparent pool)
	ChainZcash ChainID = "zcash"
	// ChainCardano represents Cardano mainnet
	ChainCardano ChainID = "cardano"
	// ChainLitecoin represents Litecoin mainnet
	ChainLitecoin ChainID = "litecoin"
	// ChainTron represents Tron mainnet
	ChainTron ChainID = "tron"
)

// AllChains lists every supported chain in display order
var AllChains = []ChainID{
	ChainBitcoin,
	ChainEthereum,
	ChainSolana,
	ChainHyperliquid,
	ChainXRP,
	ChainDogecoin,
	ChainZcash,
	ChainCardano,
	ChainLitecoin,
	ChainTron,
}

// ParseChainID normalizes a chain name and reports whether it is supported
func ParseChainID(s string) (ChainID, bool) {
	id := ChainID(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range AllChains {
		if c == id {
			return id, true
		}
	}
	return "", false
}

// AcquisitionType describes how an NFT ended up in a wallet
type AcquisitionType string

const (
	AcquisitionMinted    AcquisitionType = "minted"
	AcquisitionPurchased AcquisitionType = "purchased"
	AcquisitionReceived  AcquisitionType = "received"
	AcquisitionUnknown   AcquisitionType = "unknown"
)

// Asset is one holding of one token on one chain.
// Balance is in human units; Value is always Balance * Price.
type Asset struct {
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name"`
	Chain           ChainID `json:"chain"`
	Balance         float64 `json:"balance"`
	Price           float64 `json:"price"`
	Value           float64 `json:"value"`
	Change24h       float64 `json:"change24h"`
	Icon            string  `json:"icon,omitempty"`
	Contract        string  `json:"contract,omitempty"`
	IsStaked        bool    `json:"isStaked,omitempty"`
	StakingProtocol string  `json:"stakingProtocol,omitempty"`
}

// MergeKey returns the (symbol, chain, isStaked) identity used to combine holdings
func (a Asset) MergeKey() AssetKey {
	return AssetKey{Symbol: a.Symbol, Chain: a.Chain, IsStaked: a.IsStaked}
}

// AssetKey identifies an asset for merging purposes
type AssetKey struct {
	Symbol   string
	Chain    ChainID
	IsStaked bool
}

// NFT is a non-fungible token held by an address
type NFT struct {
	Mint            string          `json:"mint"`
	Name            string          `json:"name"`
	Chain           ChainID         `json:"chain"`
	Collection      string          `json:"collection,omitempty"`
	ImageURL        string          `json:"imageUrl,omitempty"`
	FloorPrice      *float64        `json:"floorPrice,omitempty"`
	PurchasePrice   *float64        `json:"purchasePrice,omitempty"`
	PurchaseDate    *time.Time      `json:"purchaseDate,omitempty"`
	AcquisitionType AcquisitionType `json:"acquisitionType,omitempty"`
}

// Domain is a naming-service record owned by an address
type Domain struct {
	Name          string     `json:"name"`
	Mint          string     `json:"mint"`
	Chain         ChainID    `json:"chain"`
	PurchasePrice *float64   `json:"purchasePrice,omitempty"`
	PurchaseDate  *time.Time `json:"purchaseDate,omitempty"`
}

// Portfolio is the aggregated view of one address on one chain
type Portfolio struct {
	Address    string    `json:"address"`
	Chain      ChainID   `json:"chain"`
	Assets     []Asset   `json:"assets"`
	NFTs       []NFT     `json:"nfts"`
	Domains    []Domain  `json:"domains"`
	TotalValue float64   `json:"totalValue"`
	Timestamp  time.Time `json:"timestamp"`
}

// WalletRef identifies a tracked wallet
type WalletRef struct {
	Address string  `json:"address"`
	Chain   ChainID `json:"chain"`
}

// Key returns a stable identity for the wallet
func (w WalletRef) Key() string {
	return string(w.Chain) + ":" + w.Address
}

// PriceQuote is a USD price with its 24h change in percent
type PriceQuote struct {
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
}

// Error codes shared by services and the HTTP layer
const (
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeInvalidAddress   = "INVALID_ADDRESS"
	ErrCodeUnsupportedChain = "UNSUPPORTED_CHAIN"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeNotConfigured    = "NOT_CONFIGURED"
	ErrCodeUpstream         = "UPSTREAM_ERROR"
	ErrCodeDatabase         = "DATABASE_ERROR"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
