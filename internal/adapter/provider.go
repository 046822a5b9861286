package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ProviderHealth represents the health status of a data provider
type ProviderHealth struct {
	CurrentURL       string        `json:"currentUrl,omitempty"`
	TotalRequests    int64         `json:"totalRequests"`
	SuccessfulReqs   int64         `json:"successfulRequests"`
	FailedReqs       int64         `json:"failedRequests"`
	AverageLatency   time.Duration `json:"averageLatency"`
	LastSuccess      time.Time     `json:"lastSuccess"`
	LastFailure      time.Time     `json:"lastFailure"`
	ConsecutiveFails int           `json:"consecutiveFails"`
	IsHealthy        bool          `json:"isHealthy"`
}

// healthStats tracks request outcomes for one endpoint
type healthStats struct {
	totalRequests    int64
	successfulReqs   int64
	failedReqs       int64
	totalLatency     time.Duration
	lastSuccess      time.Time
	lastFailure      time.Time
	consecutiveFails int
}

func (h *healthStats) success(d time.Duration) {
	h.totalRequests++
	h.successfulReqs++
	h.totalLatency += d
	h.lastSuccess = time.Now()
	h.consecutiveFails = 0
}

func (h *healthStats) failure() {
	h.totalRequests++
	h.failedReqs++
	h.lastFailure = time.Now()
	h.consecutiveFails++
}

func (h *healthStats) snapshot(maxConsecutiveFails int) ProviderHealth {
	var avg time.Duration
	if h.successfulReqs > 0 {
		avg = h.totalLatency / time.Duration(h.successfulReqs)
	}
	return ProviderHealth{
		TotalRequests:    h.totalRequests,
		SuccessfulReqs:   h.successfulReqs,
		FailedReqs:       h.failedReqs,
		AverageLatency:   avg,
		LastSuccess:      h.lastSuccess,
		LastFailure:      h.lastFailure,
		ConsecutiveFails: h.consecutiveFails,
		IsHealthy:        h.consecutiveFails < maxConsecutiveFails,
	}
}

// RPCProvider holds a primary and optional secondary RPC endpoint and
// switches between them on failure
type RPCProvider struct {
	mu sync.RWMutex

	primaryURL   string
	secondaryURL string
	currentURL   string

	stats               healthStats
	maxConsecutiveFails int
}

// NewRPCProvider creates a new RPC provider with primary and optional secondary URLs
func NewRPCProvider(primaryURL, secondaryURL string) (*RPCProvider, error) {
	if primaryURL == "" {
		if secondaryURL == "" {
			return nil, fmt.Errorf("primary URL cannot be empty")
		}
		primaryURL, secondaryURL = secondaryURL, ""
	}

	return &RPCProvider{
		primaryURL:          primaryURL,
		secondaryURL:        secondaryURL,
		currentURL:          primaryURL,
		maxConsecutiveFails: 5,
	}, nil
}

// GetCurrentURL returns the currently active RPC endpoint URL
func (p *RPCProvider) GetCurrentURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentURL
}

// HasSecondary reports whether a failover endpoint is configured
func (p *RPCProvider) HasSecondary() bool {
	return p.secondaryURL != ""
}

// Failover switches to the other endpoint and returns it
func (p *RPCProvider) Failover() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.secondaryURL == "" {
		return "", fmt.Errorf("no secondary provider configured")
	}
	if p.currentURL == p.primaryURL {
		p.currentURL = p.secondaryURL
	} else {
		p.currentURL = p.primaryURL
	}
	return p.currentURL, nil
}

// RecordSuccess records a successful request for health tracking
func (p *RPCProvider) RecordSuccess(duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.success(duration)
}

// RecordFailure records a failed request for health tracking
func (p *RPCProvider) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.failure()
}

// GetHealth returns the current health status of the provider
func (p *RPCProvider) GetHealth() ProviderHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h := p.stats.snapshot(p.maxConsecutiveFails)
	h.CurrentURL = p.currentURL
	return h
}

// Reset resets the provider to use the primary endpoint
func (p *RPCProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentURL = p.primaryURL
	p.stats.consecutiveFails = 0
}

// BalanceSource is one named way of reading an address's native balance
type BalanceSource struct {
	Name  string
	Fetch func(ctx context.Context, address string) (decimal.Decimal, error)
}

// SourceChain tries balance sources in order until one answers. Sources
// that keep failing are moved behind healthy ones until they succeed again.
type SourceChain struct {
	mu                  sync.Mutex
	sources             []BalanceSource
	stats               []healthStats
	maxConsecutiveFails int
}

// NewSourceChain creates a chain over the given sources, in preference order
func NewSourceChain(sources ...BalanceSource) *SourceChain {
	return &SourceChain{
		sources:             sources,
		stats:               make([]healthStats, len(sources)),
		maxConsecutiveFails: 3,
	}
}

// order returns source indexes, healthy ones first, keeping preference order
func (c *SourceChain) order() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	healthy := make([]int, 0, len(c.sources))
	var degraded []int
	for i := range c.sources {
		if c.stats[i].consecutiveFails >= c.maxConsecutiveFails {
			degraded = append(degraded, i)
		} else {
			healthy = append(healthy, i)
		}
	}
	return append(healthy, degraded...)
}

// Fetch returns the first successful balance and the name of the source
// that produced it. The error joins every source's failure.
func (c *SourceChain) Fetch(ctx context.Context, address string) (decimal.Decimal, string, error) {
	var errs []error
	for _, i := range c.order() {
		if err := ctx.Err(); err != nil {
			return decimal.Zero, "", err
		}
		src := c.sources[i]
		start := time.Now()
		bal, err := src.Fetch(ctx, address)

		c.mu.Lock()
		if err != nil {
			c.stats[i].failure()
		} else {
			c.stats[i].success(time.Since(start))
		}
		c.mu.Unlock()

		if err == nil {
			return bal, src.Name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
	}
	if len(errs) == 0 {
		return decimal.Zero, "", ErrNotConfigured
	}
	return decimal.Zero, "", errors.Join(errs...)
}

// Health returns per-source health keyed by source name
func (c *SourceChain) Health() map[string]ProviderHealth {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]ProviderHealth, len(c.sources))
	for i, src := range c.sources {
		out[src.Name] = c.stats[i].snapshot(c.maxConsecutiveFails)
	}
	return out
}
