package adapter

import (
	"strings"

	"github.com/chain-portfolio/internal/types"
)

// ChainInfo is static display metadata for a supported chain
type ChainInfo struct {
	ID           types.ChainID `json:"id"`
	Name         string        `json:"name"`
	NativeSymbol string        `json:"nativeSymbol"`
	NativeName   string        `json:"-"`
	Icon         string        `json:"icon"`
}

const iconBase = "https://assets.coingecko.com/coins/images"

var chainInfo = map[types.ChainID]ChainInfo{
	types.ChainBitcoin:     {ID: types.ChainBitcoin, Name: "Bitcoin", NativeSymbol: "BTC", NativeName: "Bitcoin", Icon: iconBase + "/1/small/bitcoin.png"},
	types.ChainEthereum:    {ID: types.ChainEthereum, Name: "Ethereum", NativeSymbol: "ETH", NativeName: "Ethereum", Icon: iconBase + "/279/small/ethereum.png"},
	types.ChainSolana:      {ID: types.ChainSolana, Name: "Solana", NativeSymbol: "SOL", NativeName: "Solana", Icon: iconBase + "/4128/small/solana.png"},
	types.ChainHyperliquid: {ID: types.ChainHyperliquid, Name: "Hyperliquid", NativeSymbol: "HYPE", NativeName: "Hyperliquid", Icon: iconBase + "/50882/small/hyperliquid.jpg"},
	types.ChainZcash:       {ID: types.ChainZcash, Name: "Zcash", NativeSymbol: "ZEC", NativeName: "Zcash", Icon: iconBase + "/486/small/circle-zcash-color.png"},
	types.ChainXRP:         {ID: types.ChainXRP, Name: "XRP Ledger", NativeSymbol: "XRP", NativeName: "XRP", Icon: iconBase + "/44/small/xrp-symbol-white-128.png"},
	types.ChainDogecoin:    {ID: types.ChainDogecoin, Name: "Dogecoin", NativeSymbol: "DOGE", NativeName: "Dogecoin", Icon: iconBase + "/5/small/dogecoin.png"},
	types.ChainCardano:     {ID: types.ChainCardano, Name: "Cardano", NativeSymbol: "ADA", NativeName: "Cardano", Icon: iconBase + "/975/small/cardano.png"},
	types.ChainLitecoin:    {ID: types.ChainLitecoin, Name: "Litecoin", NativeSymbol: "LTC", NativeName: "Litecoin", Icon: iconBase + "/2/small/litecoin.png"},
	types.ChainTron:        {ID: types.ChainTron, Name: "Tron", NativeSymbol: "TRX", NativeName: "TRON", Icon: iconBase + "/1094/small/tron-logo.png"},
}

// ChainInfoFor returns display metadata for a chain
func ChainInfoFor(chain types.ChainID) ChainInfo {
	if info, ok := chainInfo[chain]; ok {
		return info
	}
	return ChainInfo{ID: chain, Name: string(chain)}
}

// SupportedChains returns metadata for every supported chain in display order
func SupportedChains() []ChainInfo {
	out := make([]ChainInfo, 0, len(types.AllChains))
	for _, c := range types.AllChains {
		out = append(out, ChainInfoFor(c))
	}
	return out
}

// knownNames fills in display names for symbols adapters report without one
var knownNames = map[string]string{
	"USDC":    "USD Coin",
	"USDT":    "Tether",
	"DAI":     "Dai",
	"WETH":    "Wrapped Ether",
	"WBTC":    "Wrapped Bitcoin",
	"STETH":   "Lido Staked ETH",
	"WSTETH":  "Wrapped stETH",
	"RETH":    "Rocket Pool ETH",
	"CBETH":   "Coinbase Wrapped Staked ETH",
	"SFRXETH": "Staked Frax Ether",
	"WEETH":   "Wrapped eETH",
	"MSOL":    "Marinade Staked SOL",
	"JITOSOL": "Jito Staked SOL",
	"BSOL":    "BlazeStake Staked SOL",
	"JUPSOL":  "Jupiter Staked SOL",
	"INF":     "Sanctum Infinity",
}

// DisplayName returns a human name for symbol, falling back to the
// chain's native name and finally the symbol itself
func DisplayName(symbol string, chain types.ChainID) string {
	upper := strings.ToUpper(symbol)
	if name, ok := knownNames[upper]; ok {
		return name
	}
	if info, ok := chainInfo[chain]; ok && strings.EqualFold(info.NativeSymbol, symbol) {
		return info.NativeName
	}
	return symbol
}
