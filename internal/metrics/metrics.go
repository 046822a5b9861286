package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests counts calls to third-party APIs by provider and outcome
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_upstream_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"provider", "outcome"},
	)

	// UpstreamDuration tracks upstream API latency
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portfolio_upstream_request_duration_seconds",
			Help:    "Upstream API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// AdapterResults counts chain adapter outcomes (ok, empty, invalid, error)
	AdapterResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_adapter_results_total",
			Help: "Chain adapter results by chain and outcome",
		},
		[]string{"chain", "outcome"},
	)

	// PriceCacheLookups counts price cache hits and misses
	PriceCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_price_cache_lookups_total",
			Help: "Price cache lookups by result",
		},
		[]string{"result"},
	)

	// PriceCacheEntries reports the current number of cached prices
	PriceCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portfolio_price_cache_entries",
			Help: "Number of entries in the in-process price cache",
		},
	)

	// AlertsTriggered counts alerts that fired
	AlertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_alerts_triggered_total",
			Help: "Total number of alerts triggered",
		},
		[]string{"asset"},
	)

	// AlertNotifications counts notification attempts by outcome
	AlertNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_alert_notifications_total",
			Help: "Alert email notification attempts",
		},
		[]string{"outcome"},
	)

	// SnapshotsWritten counts snapshot job results per user
	SnapshotsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_snapshots_total",
			Help: "Portfolio snapshots written by outcome",
		},
		[]string{"outcome"},
	)

	// WalletRefreshes counts tracker refresh passes
	WalletRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_wallet_refreshes_total",
			Help: "Tracker refresh passes by outcome (completed, skipped)",
		},
		[]string{"outcome"},
	)

	// HTTPRequests counts API requests by route and status
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPDuration tracks API request latency
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portfolio_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
