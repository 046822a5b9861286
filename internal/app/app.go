// Package app wires configuration into the adapters, price resolver and
// services shared by the server and the command-line tools.
package app

import (
	"time"

	"github.com/chain-portfolio/internal/adapter"
	"github.com/chain-portfolio/internal/circuitbreaker"
	"github.com/chain-portfolio/internal/config"
	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/pricing"
	"github.com/chain-portfolio/internal/retry"
	"github.com/chain-portfolio/internal/storage"
	"github.com/chain-portfolio/internal/upstream"
)

// Upstream provider names, used as circuit breaker and metric labels
const (
	ProviderCoinGecko   = "coingecko"
	ProviderDefiLlama   = "defillama"
	ProviderDexScreener = "dexscreener"
	ProviderMempool     = "mempool"
	ProviderLitecoin    = "litecoinspace"
	ProviderBlockcypher = "blockcypher"
	ProviderDogechain   = "dogechain"
	ProviderZchain      = "zchain"
	ProviderBlockchair  = "blockchair"
	ProviderKoios       = "koios"
	ProviderXRPL        = "xrpl"
	ProviderTronGrid    = "trongrid"
	ProviderHyperliquid = "hyperliquid"
	ProviderAlchemy     = "alchemy"
	ProviderAlchemyNFT  = "alchemy-nft"
	ProviderHeliusRPC   = "helius-rpc"
	ProviderHeliusAPI   = "helius-api"
	ProviderBonfida     = "bonfida"
)

// Clients builds upstream clients that share one circuit breaker manager.
// Failed calls are not retried unless EnableRetry is called.
type Clients struct {
	timeout  time.Duration
	breakers *circuitbreaker.Manager
	retry    *retry.Config
}

// NewClients creates a client factory. timeout applies to every provider.
func NewClients(timeout time.Duration) *Clients {
	return &Clients{
		timeout:  timeout,
		breakers: circuitbreaker.NewManager(circuitbreaker.DefaultConfig),
	}
}

// EnableRetry makes clients created afterwards re-run transient failures
// up to attempts times in total. attempts <= 1 leaves retries off.
func (c *Clients) EnableRetry(attempts int) {
	if attempts <= 1 {
		c.retry = nil
		return
	}
	policy := retry.DefaultConfig()
	policy.MaxAttempts = attempts
	c.retry = policy
}

// Breakers exposes the shared circuit breaker manager
func (c *Clients) Breakers() *circuitbreaker.Manager {
	return c.breakers
}

// New returns a client for one provider, or nil when baseURL is empty
func (c *Clients) New(name, baseURL string, headers map[string]string, rpm int) *upstream.Client {
	if baseURL == "" {
		return nil
	}
	return upstream.New(upstream.Options{
		Name:              name,
		BaseURL:           baseURL,
		Timeout:           c.timeout,
		Headers:           headers,
		RequestsPerMinute: rpm,
		Breakers:          c.breakers,
		Retry:             c.retry,
	})
}

// NewPriceResolver builds the price resolver. shared may be nil.
func NewPriceResolver(cfg config.PricingConfig, clients *Clients, shared *storage.CacheService) *pricing.Resolver {
	rc := pricing.Config{
		Cache:       pricing.NewTTLCache(cfg.CacheTTL, cfg.CacheMaxEntries),
		SharedTTL:   cfg.CacheTTL,
		CoinGecko:   clients.New(ProviderCoinGecko, cfg.CoinGeckoURL, map[string]string{"x-cg-demo-api-key": cfg.CoinGeckoAPIKey}, cfg.CoinGeckoRPM),
		DefiLlama:   clients.New(ProviderDefiLlama, cfg.DefiLlamaURL, nil, 0),
		DexScreener: clients.New(ProviderDexScreener, cfg.DexScreenerURL, nil, 0),
	}
	if shared != nil {
		rc.Shared = shared
	}
	return pricing.NewResolver(rc)
}

// NewRegistry builds every chain adapter the configuration allows.
// Chains whose provider is not configured are skipped with a warning.
func NewRegistry(cfg config.ProvidersConfig, clients *Clients, prices adapter.PriceSource) *adapter.Registry {
	logger := logging.GetGlobalLogger()
	registry := adapter.NewRegistry()
	skip := func(chain, reason string) {
		logger.WithFields(map[string]interface{}{
			"chain":  chain,
			"reason": reason,
		}).Warn("Skipping chain")
	}

	if c := clients.New(ProviderMempool, cfg.MempoolURL, nil, 0); c != nil {
		registry.Register(adapter.NewBitcoinAdapter(c, prices))
	} else {
		skip("bitcoin", "MEMPOOL_URL not set")
	}

	if c := clients.New(ProviderLitecoin, cfg.LitecoinURL, nil, 0); c != nil {
		registry.Register(adapter.NewLitecoinAdapter(c, prices))
	} else {
		skip("litecoin", "LITECOIN_SPACE_URL not set")
	}

	blockcypher := clients.New(ProviderBlockcypher, cfg.BlockcypherURL, nil, 0)
	dogechain := clients.New(ProviderDogechain, cfg.DogechainURL, nil, 0)
	if blockcypher != nil || dogechain != nil {
		registry.Register(adapter.NewDogecoinAdapter(blockcypher, cfg.BlockcypherKey, dogechain, prices))
	} else {
		skip("dogecoin", "no dogecoin provider configured")
	}

	zchain := clients.New(ProviderZchain, cfg.ZchainURL, nil, 0)
	blockchair := clients.New(ProviderBlockchair, cfg.BlockchairURL, nil, 0)
	if zchain != nil || blockchair != nil {
		registry.Register(adapter.NewZcashAdapter(zchain, blockchair, cfg.BlockchairKey, prices))
	} else {
		skip("zcash", "no zcash provider configured")
	}

	if c := clients.New(ProviderKoios, cfg.KoiosURL, bearer(cfg.KoiosToken), 0); c != nil {
		registry.Register(adapter.NewCardanoAdapter(c, prices))
	} else {
		skip("cardano", "KOIOS_URL not set")
	}

	if c := clients.New(ProviderXRPL, cfg.XRPLURL, nil, 0); c != nil {
		registry.Register(adapter.NewXRPAdapter(c, prices))
	} else {
		skip("xrp", "XRPL_URL not set")
	}

	if c := clients.New(ProviderTronGrid, cfg.TronGridURL, map[string]string{"TRON-PRO-API-KEY": cfg.TronGridKey}, 0); c != nil {
		registry.Register(adapter.NewTronAdapter(c, prices))
	} else {
		skip("tron", "TRONGRID_URL not set")
	}

	if c := clients.New(ProviderHyperliquid, cfg.HyperliquidURL, nil, 0); c != nil {
		registry.Register(adapter.NewHyperliquidAdapter(c, prices))
	} else {
		skip("hyperliquid", "HYPERLIQUID_URL not set")
	}

	if eth, err := newEthereumAdapter(cfg, clients, prices); err != nil {
		skip("ethereum", err.Error())
	} else {
		registry.Register(eth)
	}

	if sol, err := newSolanaAdapter(cfg, clients, prices); err != nil {
		skip("solana", err.Error())
	} else {
		registry.Register(sol)
	}

	logger.WithFields(map[string]interface{}{
		"chains": registry.Chains(),
	}).Info("Chain adapters initialized")
	return registry
}

func newEthereumAdapter(cfg config.ProvidersConfig, clients *Clients, prices adapter.PriceSource) (*adapter.EthereumAdapter, error) {
	provider, err := adapter.NewRPCProvider(cfg.EthereumRPC.Primary, cfg.EthereumRPC.Secondary)
	if err != nil {
		return nil, err
	}
	ec := adapter.EthereumConfig{Provider: provider, Prices: prices}
	if cfg.AlchemyAPIKey != "" {
		ec.Alchemy = clients.New(ProviderAlchemy, "https://eth-mainnet.g.alchemy.com/v2/"+cfg.AlchemyAPIKey, nil, 0)
		if cfg.AlchemyNFTURL != "" {
			ec.NFTs = clients.New(ProviderAlchemyNFT, cfg.AlchemyNFTURL+"/"+cfg.AlchemyAPIKey, nil, 0)
		}
	}
	return adapter.NewEthereumAdapter(ec)
}

func newSolanaAdapter(cfg config.ProvidersConfig, clients *Clients, prices adapter.PriceSource) (*adapter.SolanaAdapter, error) {
	provider, err := adapter.NewRPCProvider(cfg.SolanaRPC.Primary, cfg.SolanaRPC.Secondary)
	if err != nil {
		return nil, err
	}
	sc := adapter.SolanaConfig{
		Provider:           provider,
		Bonfida:            clients.New(ProviderBonfida, cfg.BonfidaURL, nil, 0),
		AcquisitionLookups: cfg.NFTAcquisitions,
		Prices:             prices,
	}
	if cfg.HeliusAPIKey != "" {
		sc.HeliusAPIKey = cfg.HeliusAPIKey
		sc.DAS = clients.New(ProviderHeliusRPC, cfg.HeliusRPCURL, nil, 0)
		sc.Enhanced = clients.New(ProviderHeliusAPI, cfg.HeliusAPIURL, nil, 0)
	}
	return adapter.NewSolanaAdapter(sc)
}

func bearer(token string) map[string]string {
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}
