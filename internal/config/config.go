// Package config provides configuration management for the portfolio service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Pricing   PricingConfig
	Providers ProvidersConfig
	Tracker   TrackerConfig
	Alerts    AlertsConfig
	Mail      MailConfig
	Auth      AuthConfig
	Cron      CronConfig
	Cache     CacheConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RPS          int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration. An empty Host disables Redis.
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// Enabled reports whether a Redis host is configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// PricingConfig holds price resolver configuration
type PricingConfig struct {
	CacheTTL        time.Duration
	CacheMaxEntries int
	CoinGeckoURL    string
	CoinGeckoAPIKey string
	CoinGeckoRPM    int
	DefiLlamaURL    string
	DexScreenerURL  string
}

// ProvidersConfig holds upstream chain data provider configuration
type ProvidersConfig struct {
	Timeout time.Duration
	// RetryAttempts above 1 opts every upstream client into retries
	RetryAttempts int

	MempoolURL      string
	LitecoinURL     string
	BlockcypherURL  string
	BlockcypherKey  string
	DogechainURL    string
	ZchainURL       string
	BlockchairURL   string
	BlockchairKey   string
	KoiosURL        string
	KoiosToken      string
	XRPLURL         string
	TronGridURL     string
	TronGridKey     string
	HyperliquidURL  string
	EthereumRPC     RPCEndpoints
	AlchemyAPIKey   string
	AlchemyNFTURL   string
	SolanaRPC       RPCEndpoints
	HeliusAPIKey    string
	HeliusAPIURL    string
	HeliusRPCURL    string
	BonfidaURL      string
	NFTAcquisitions int
}

// RPCEndpoints is a primary/secondary RPC URL pair
type RPCEndpoints struct {
	Primary   string
	Secondary string
}

// TrackerConfig holds multi-wallet tracker configuration
type TrackerConfig struct {
	FetchTimeout    time.Duration
	RefreshInterval time.Duration
}

// AlertsConfig holds alert evaluator configuration
type AlertsConfig struct {
	Cooldown time.Duration
}

// MailConfig holds outbound email configuration
type MailConfig struct {
	Provider         string
	From             string
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPassword     string
	MailjetAPIKey    string
	MailjetSecretKey string
	DashboardBaseURL string
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	JWTSecret   string
	JWTAudience string
}

// CronConfig holds scheduled job configuration
type CronConfig struct {
	Secret      string
	Concurrency int
}

// CacheConfig holds response cache configuration
type CacheConfig struct {
	PortfolioTTL time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	v := newViper()

	config := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:  v.GetDuration("SERVER_IDLE_TIMEOUT"),
			RPS:          v.GetInt("API_RPS"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           v.GetString("POSTGRES_HOST"),
				Port:           v.GetString("POSTGRES_PORT"),
				Database:       v.GetString("POSTGRES_DB"),
				User:           v.GetString("POSTGRES_USER"),
				Password:       v.GetString("POSTGRES_PASSWORD"),
				MaxConnections: v.GetInt("POSTGRES_MAX_CONNECTIONS"),
			},
			Redis: RedisConfig{
				Host:           v.GetString("REDIS_HOST"),
				Port:           v.GetString("REDIS_PORT"),
				Password:       v.GetString("REDIS_PASSWORD"),
				DB:             v.GetInt("REDIS_DB"),
				MaxConnections: v.GetInt("REDIS_MAX_CONNECTIONS"),
			},
		},
		Pricing: PricingConfig{
			CacheTTL:        v.GetDuration("PRICE_CACHE_TTL"),
			CacheMaxEntries: v.GetInt("PRICE_CACHE_MAX_ENTRIES"),
			CoinGeckoURL:    v.GetString("COINGECKO_URL"),
			CoinGeckoAPIKey: v.GetString("COINGECKO_API_KEY"),
			CoinGeckoRPM:    v.GetInt("COINGECKO_RPM"),
			DefiLlamaURL:    v.GetString("DEFILLAMA_URL"),
			DexScreenerURL:  v.GetString("DEXSCREENER_URL"),
		},
		Providers: ProvidersConfig{
			Timeout:        v.GetDuration("PROVIDER_TIMEOUT"),
			RetryAttempts:  v.GetInt("PROVIDER_RETRY_ATTEMPTS"),
			MempoolURL:     v.GetString("MEMPOOL_URL"),
			LitecoinURL:    v.GetString("LITECOIN_SPACE_URL"),
			BlockcypherURL: v.GetString("BLOCKCYPHER_URL"),
			BlockcypherKey: v.GetString("BLOCKCYPHER_TOKEN"),
			DogechainURL:   v.GetString("DOGECHAIN_URL"),
			ZchainURL:      v.GetString("ZCHAIN_URL"),
			BlockchairURL:  v.GetString("BLOCKCHAIR_URL"),
			BlockchairKey:  v.GetString("BLOCKCHAIR_API_KEY"),
			KoiosURL:       v.GetString("KOIOS_URL"),
			KoiosToken:     v.GetString("KOIOS_API_TOKEN"),
			XRPLURL:        v.GetString("XRPL_URL"),
			TronGridURL:    v.GetString("TRONGRID_URL"),
			TronGridKey:    v.GetString("TRONGRID_API_KEY"),
			HyperliquidURL: v.GetString("HYPERLIQUID_URL"),
			EthereumRPC: RPCEndpoints{
				Primary:   v.GetString("ETHEREUM_RPC_PRIMARY"),
				Secondary: v.GetString("ETHEREUM_RPC_SECONDARY"),
			},
			AlchemyAPIKey: v.GetString("ALCHEMY_API_KEY"),
			AlchemyNFTURL: v.GetString("ALCHEMY_NFT_URL"),
			SolanaRPC: RPCEndpoints{
				Primary:   v.GetString("SOLANA_RPC_PRIMARY"),
				Secondary: v.GetString("SOLANA_RPC_SECONDARY"),
			},
			HeliusAPIKey:    v.GetString("HELIUS_API_KEY"),
			HeliusAPIURL:    v.GetString("HELIUS_API_URL"),
			HeliusRPCURL:    v.GetString("HELIUS_RPC_URL"),
			BonfidaURL:      v.GetString("BONFIDA_URL"),
			NFTAcquisitions: v.GetInt("NFT_ACQUISITION_LOOKUPS"),
		},
		Tracker: TrackerConfig{
			FetchTimeout:    v.GetDuration("WALLET_FETCH_TIMEOUT"),
			RefreshInterval: v.GetDuration("REFRESH_INTERVAL"),
		},
		Alerts: AlertsConfig{
			Cooldown: v.GetDuration("ALERT_COOLDOWN"),
		},
		Mail: MailConfig{
			Provider:         strings.ToLower(v.GetString("MAIL_PROVIDER")),
			From:             v.GetString("MAIL_FROM"),
			SMTPHost:         v.GetString("SMTP_HOST"),
			SMTPPort:         v.GetInt("SMTP_PORT"),
			SMTPUser:         v.GetString("SMTP_USER"),
			SMTPPassword:     v.GetString("SMTP_PASSWORD"),
			MailjetAPIKey:    v.GetString("MAILJET_API_KEY"),
			MailjetSecretKey: v.GetString("MAILJET_SECRET_KEY"),
			DashboardBaseURL: v.GetString("DASHBOARD_URL"),
		},
		Auth: AuthConfig{
			JWTSecret:   v.GetString("AUTH_JWT_SECRET"),
			JWTAudience: v.GetString("AUTH_JWT_AUDIENCE"),
		},
		Cron: CronConfig{
			Secret:      v.GetString("CRON_SECRET"),
			Concurrency: v.GetInt("SNAPSHOT_CONCURRENCY"),
		},
		Cache: CacheConfig{
			PortfolioTTL: v.GetDuration("PORTFOLIO_CACHE_TTL"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	// Alchemy-hosted RPC is the default when only a key is given
	if config.Providers.EthereumRPC.Primary == "" && config.Providers.AlchemyAPIKey != "" {
		config.Providers.EthereumRPC.Primary = "https://eth-mainnet.g.alchemy.com/v2/" + config.Providers.AlchemyAPIKey
	}
	if config.Providers.SolanaRPC.Primary == "" && config.Providers.HeliusAPIKey != "" {
		config.Providers.SolanaRPC.Primary = "https://mainnet.helius-rpc.com/?api-key=" + config.Providers.HeliusAPIKey
	}

	return config, nil
}

// newViper builds a viper instance bound to the environment with defaults
func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	return v
}

var defaults = map[string]interface{}{
	"SERVER_PORT":          "8080",
	"SERVER_HOST":          "0.0.0.0",
	"SERVER_READ_TIMEOUT":  "15s",
	"SERVER_WRITE_TIMEOUT": "60s",
	"SERVER_IDLE_TIMEOUT":  "60s",
	"API_RPS":              20,

	"POSTGRES_HOST":            "localhost",
	"POSTGRES_PORT":            "5432",
	"POSTGRES_DB":              "portfolio",
	"POSTGRES_USER":            "portfolio",
	"POSTGRES_PASSWORD":        "",
	"POSTGRES_MAX_CONNECTIONS": 20,
	"REDIS_HOST":               "",
	"REDIS_PORT":               "6379",
	"REDIS_DB":                 0,
	"REDIS_MAX_CONNECTIONS":    20,

	"PRICE_CACHE_TTL":         "60s",
	"PRICE_CACHE_MAX_ENTRIES": 5000,
	"COINGECKO_URL":           "https://api.coingecko.com/api/v3",
	"COINGECKO_RPM":           30,
	"DEFILLAMA_URL":           "https://coins.llama.fi",
	"DEXSCREENER_URL":         "https://api.dexscreener.com",

	"PROVIDER_TIMEOUT":        "15s",
	"PROVIDER_RETRY_ATTEMPTS": 1,
	"MEMPOOL_URL":             "https://mempool.space/api",
	"LITECOIN_SPACE_URL":      "https://litecoinspace.org/api",
	"BLOCKCYPHER_URL":         "https://api.blockcypher.com/v1",
	"DOGECHAIN_URL":           "https://dogechain.info/api/v1",
	"ZCHAIN_URL":              "https://api.zcha.in/v2/mainnet",
	"BLOCKCHAIR_URL":          "https://api.blockchair.com",
	"KOIOS_URL":               "https://api.koios.rest/api/v1",
	"XRPL_URL":                "https://xrplcluster.com",
	"TRONGRID_URL":            "https://api.trongrid.io",
	"HYPERLIQUID_URL":         "https://api.hyperliquid.xyz",
	"ETHEREUM_RPC_SECONDARY":  "https://ethereum-rpc.publicnode.com",
	"ALCHEMY_NFT_URL":         "https://eth-mainnet.g.alchemy.com/nft/v3",
	"SOLANA_RPC_SECONDARY":    "https://api.mainnet-beta.solana.com",
	"HELIUS_API_URL":          "https://api.helius.xyz",
	"HELIUS_RPC_URL":          "https://mainnet.helius-rpc.com",
	"BONFIDA_URL":             "https://sns-sdk-proxy.bonfida.workers.dev",
	"NFT_ACQUISITION_LOOKUPS": 10,

	"WALLET_FETCH_TIMEOUT": "30s",
	"REFRESH_INTERVAL":     "30s",

	"ALERT_COOLDOWN": "60m",
	"MAIL_PROVIDER":  "smtp",
	"MAIL_FROM":      "alerts@localhost",
	"SMTP_PORT":      587,

	"AUTH_JWT_AUDIENCE": "authenticated",

	"SNAPSHOT_CONCURRENCY": 5,
	"PORTFOLIO_CACHE_TTL":  "20s",

	"LOG_LEVEL":  "info",
	"LOG_FORMAT": "json",
}
