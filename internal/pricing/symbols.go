package pricing

import "strings"

// coingeckoIDs maps ticker symbols to CoinGecko coin ids
var coingeckoIDs = map[string]string{
	"BTC":     "bitcoin",
	"ETH":     "ethereum",
	"SOL":     "solana",
	"HYPE":    "hyperliquid",
	"XRP":     "ripple",
	"DOGE":    "dogecoin",
	"ZEC":     "zcash",
	"ADA":     "cardano",
	"LTC":     "litecoin",
	"TRX":     "tron",
	"USDC":    "usd-coin",
	"USDT":    "tether",
	"DAI":     "dai",
	"WETH":    "weth",
	"WBTC":    "wrapped-bitcoin",
	"STETH":   "staked-ether",
	"WSTETH":  "wrapped-steth",
	"RETH":    "rocket-pool-eth",
	"CBETH":   "coinbase-wrapped-staked-eth",
	"SFRXETH": "staked-frax-ether",
	"WEETH":   "wrapped-eeth",
	"MSOL":    "msol",
	"JITOSOL": "jito-staked-sol",
	"BSOL":    "blazestake-staked-sol",
	"JUPSOL":  "jupiter-staked-sol",
	"JUP":     "jupiter-exchange-solana",
	"BONK":    "bonk",
	"LINK":    "chainlink",
	"UNI":     "uniswap",
	"PURR":    "purr-2",
}

// stablecoins are priced at 1.0 when no upstream quote is available
var stablecoins = map[string]bool{
	"USDC": true,
	"USDT": true,
}

// CoinGeckoID returns the CoinGecko id for a ticker symbol
func CoinGeckoID(symbol string) (string, bool) {
	id, ok := coingeckoIDs[strings.ToUpper(symbol)]
	return id, ok
}

// IsStablecoin reports whether symbol is a recognized USD stablecoin
func IsStablecoin(symbol string) bool {
	return stablecoins[strings.ToUpper(symbol)]
}
