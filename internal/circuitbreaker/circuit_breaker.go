package circuitbreaker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/chain-portfolio/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means requests flow to the upstream
	StateClosed State = "closed"
	// StateOpen means requests are rejected without reaching the upstream
	StateOpen State = "open"
	// StateHalfOpen means a few probe requests are let through
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyRequests is returned when the half-open probe budget is spent
var ErrTooManyRequests = errors.New("too many requests in half-open state")

// Config configures a circuit breaker
type Config struct {
	Name string
	// ConsecutiveFailures opens the circuit once reached
	ConsecutiveFailures int
	// OpenTimeout is how long the circuit stays open before probing
	OpenTimeout time.Duration
	// HalfOpenMaxCalls is the number of probes allowed while half-open
	HalfOpenMaxCalls int
	// IsFailure decides whether an error counts against the upstream.
	// Nil counts every non-nil error.
	IsFailure func(error) bool
}

// DefaultConfig returns the configuration used for upstream providers
func DefaultConfig(name string) *Config {
	return &Config{
		Name:                name,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxCalls:    1,
	}
}

// CircuitBreaker guards calls to one upstream provider
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu               sync.Mutex
	state            State
	consecutiveFails int
	halfOpenCalls    int
	openedAt         time.Time
	totalFailures    int64
	totalSuccesses   int64
	rejected         int64
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg *Config) *CircuitBreaker {
	c := *cfg
	if c.ConsecutiveFailures <= 0 {
		c.ConsecutiveFailures = 5
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 1
	}
	return &CircuitBreaker{cfg: c, now: time.Now, state: StateClosed}
}

// Execute runs fn unless the circuit is open
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.OpenTimeout {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		logging.WithFields(map[string]interface{}{
			"circuitBreaker": cb.cfg.Name,
			"state":          StateHalfOpen,
		}).Info("Circuit breaker probing upstream")
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
			cb.rejected++
			return ErrTooManyRequests
		}
		cb.halfOpenCalls++
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil || !cb.countsAsFailure(err) {
		cb.totalSuccesses++
		cb.consecutiveFails = 0
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
			logging.WithField("circuitBreaker", cb.cfg.Name).Info("Circuit breaker closed after successful probe")
		}
		return
	}

	cb.totalFailures++
	cb.consecutiveFails++

	if cb.state == StateHalfOpen || cb.consecutiveFails >= cb.cfg.ConsecutiveFailures {
		if cb.state != StateOpen {
			logging.WithFields(map[string]interface{}{
				"circuitBreaker":   cb.cfg.Name,
				"consecutiveFails": cb.consecutiveFails,
			}).Warn("Circuit breaker opened")
		}
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
}

func (cb *CircuitBreaker) countsAsFailure(err error) bool {
	if cb.cfg.IsFailure == nil {
		return true
	}
	return cb.cfg.IsFailure(err)
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name             string `json:"name"`
	State            State  `json:"state"`
	ConsecutiveFails int    `json:"consecutiveFails"`
	Failures         int64  `json:"failures"`
	Successes        int64  `json:"successes"`
	Rejected         int64  `json:"rejected"`
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		Name:             cb.cfg.Name,
		State:            cb.state,
		ConsecutiveFails: cb.consecutiveFails,
		Failures:         cb.totalFailures,
		Successes:        cb.totalSuccesses,
		Rejected:         cb.rejected,
	}
}

// Manager hands out one circuit breaker per upstream provider
type Manager struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	template func(name string) *Config
}

// NewManager creates a manager; template may be nil to use DefaultConfig
func NewManager(template func(name string) *Config) *Manager {
	if template == nil {
		template = DefaultConfig
	}
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		template: template,
	}
}

// GetOrCreate returns the breaker for name, creating it on first use
func (m *Manager) GetOrCreate(name string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[name]; ok {
		return cb
	}
	cb := NewCircuitBreaker(m.template(name))
	m.breakers[name] = cb
	return cb
}

// AllStats returns stats for every breaker sorted by name
func (m *Manager) AllStats() []Stats {
	m.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(m.breakers))
	for _, cb := range m.breakers {
		breakers = append(breakers, cb)
	}
	m.mu.Unlock()

	stats := make([]Stats, 0, len(breakers))
	for _, cb := range breakers {
		stats = append(stats, cb.GetStats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
