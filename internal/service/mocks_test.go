package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chain-portfolio/internal/adapter"
	"github.com/chain-portfolio/internal/models"
	"github.com/chain-portfolio/internal/storage"
	"github.com/chain-portfolio/internal/types"
)

// Mock repositories and collaborators for testing

type stubAdapter struct {
	chain    types.ChainID
	valid    func(string) bool
	holdings map[string]*adapter.Holdings
	err      error
	panicMsg string

	mu    sync.Mutex
	calls int
}

func (a *stubAdapter) Chain() types.ChainID { return a.chain }

func (a *stubAdapter) ValidateAddress(address string) bool {
	if a.valid == nil {
		return true
	}
	return a.valid(address)
}

func (a *stubAdapter) GetHoldings(_ context.Context, address string, _ adapter.HoldingsOptions) (*adapter.Holdings, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.panicMsg != "" {
		panic(a.panicMsg)
	}
	if a.err != nil {
		return nil, a.err
	}
	return a.holdings[address], nil
}

func (a *stubAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type stubPrices struct {
	quotes map[string]types.PriceQuote

	mu    sync.Mutex
	calls [][]string
}

func (p *stubPrices) BySymbol(_ context.Context, symbols []string) map[string]types.PriceQuote {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]string(nil), symbols...))
	out := make(map[string]types.PriceQuote)
	for _, s := range symbols {
		if q, ok := p.quotes[s]; ok {
			out[s] = q
		}
	}
	return out
}

func (p *stubPrices) setPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quotes == nil {
		p.quotes = make(map[string]types.PriceQuote)
	}
	p.quotes[symbol] = types.PriceQuote{Price: price}
}

type mockCache struct {
	data map[string]*types.Portfolio
	sets int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string]*types.Portfolio)}
}

func (c *mockCache) GeneratePortfolioKey(chain types.ChainID, address string) string {
	return fmt.Sprintf("portfolio:%s:%s", chain, address)
}

func (c *mockCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	p, ok := c.data[key]
	if !ok {
		return false, nil
	}
	*dest.(*types.Portfolio) = *p
	return true, nil
}

func (c *mockCache) SetWithTTL(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.sets++
	c.data[key] = value.(*types.Portfolio)
	return nil
}

type mockWalletRepo struct {
	mu        sync.Mutex
	wallets   []*models.Wallet
	nextID    int
	listErr   error
	createErr error
}

func (m *mockWalletRepo) Create(_ context.Context, w *models.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.wallets {
		if existing.UserID == w.UserID && existing.Chain == w.Chain && existing.Address == w.Address {
			return storage.ErrDuplicate
		}
	}
	m.nextID++
	w.ID = fmt.Sprintf("wallet-%d", m.nextID)
	w.CreatedAt = time.Now().UTC()
	m.wallets = append(m.wallets, w)
	return nil
}

func (m *mockWalletRepo) ListByUser(_ context.Context, userID string) ([]*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Wallet
	for _, w := range m.wallets {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockWalletRepo) DeleteByRef(_ context.Context, userID string, ref types.WalletRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.wallets {
		if w.UserID == userID && w.Ref().Key() == ref.Key() {
			m.wallets = append(m.wallets[:i], m.wallets[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *mockWalletRepo) ListUserIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	seen := make(map[string]bool)
	var out []string
	for _, w := range m.wallets {
		if !seen[w.UserID] {
			seen[w.UserID] = true
			out = append(out, w.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

type mockAlertRepo struct {
	mu          sync.Mutex
	alerts      map[string]*models.Alert
	nextID      int
	markErr     error
	markedOrder []string
}

func newMockAlertRepo() *mockAlertRepo {
	return &mockAlertRepo{alerts: make(map[string]*models.Alert)}
}

func (m *mockAlertRepo) Create(_ context.Context, a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if a.ID == "" {
		a.ID = fmt.Sprintf("alert-%d", m.nextID)
	}
	a.CreatedAt = time.Date(2026, 1, 1, 0, 0, m.nextID, 0, time.UTC)
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *mockAlertRepo) Get(_ context.Context, userID, id string) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || a.UserID != userID {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAlertRepo) list(userID string, enabledOnly bool) []*models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Alert
	for _, a := range m.alerts {
		if a.UserID != userID || (enabledOnly && !a.Enabled) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *mockAlertRepo) ListByUser(_ context.Context, userID string) ([]*models.Alert, error) {
	return m.list(userID, false), nil
}

func (m *mockAlertRepo) ListEnabledByUser(_ context.Context, userID string) ([]*models.Alert, error) {
	return m.list(userID, true), nil
}

func (m *mockAlertRepo) Update(_ context.Context, a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.alerts[a.ID]
	if !ok || existing.UserID != a.UserID {
		return storage.ErrNotFound
	}
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *mockAlertRepo) MarkTriggered(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	a, ok := m.alerts[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.Triggered = true
	t := at
	a.LastTriggered = &t
	m.markedOrder = append(m.markedOrder, id)
	return nil
}

func (m *mockAlertRepo) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || a.UserID != userID {
		return storage.ErrNotFound
	}
	delete(m.alerts, id)
	return nil
}

func (m *mockAlertRepo) stored(id string) *models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.alerts[id]
	return &cp
}

type notification struct {
	to      string
	alertID string
	price   float64
	// triggeredBefore records whether the alert was already persisted as
	// triggered when the notification was attempted
	triggeredBefore bool
}

type mockNotifier struct {
	repo *mockAlertRepo
	err  error
	sent []notification
}

func (n *mockNotifier) NotifyAlert(_ context.Context, to string, a *models.Alert, price float64) error {
	rec := notification{to: to, alertID: a.ID, price: price}
	if n.repo != nil {
		rec.triggeredBefore = n.repo.stored(a.ID).LastTriggered != nil
	}
	n.sent = append(n.sent, rec)
	return n.err
}

type mockSnapshotRepo struct {
	mu        sync.Mutex
	snapshots []*models.PortfolioSnapshot
	daily     map[string]float64
	failUser  string
	since     []time.Time
}

func newMockSnapshotRepo() *mockSnapshotRepo {
	return &mockSnapshotRepo{daily: make(map[string]float64)}
}

var errSnapshotInsert = errors.New("insert failed")

func (m *mockSnapshotRepo) Create(_ context.Context, s *models.PortfolioSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.UserID == m.failUser {
		return errSnapshotInsert
	}
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m *mockSnapshotRepo) UpsertDaily(_ context.Context, userID string, _ time.Time, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily[userID] = value
	return nil
}

func (m *mockSnapshotRepo) ListSnapshots(_ context.Context, userID string, since time.Time) ([]*models.PortfolioSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = append(m.since, since)
	var out []*models.PortfolioSnapshot
	for _, s := range m.snapshots {
		if s.UserID == userID && !s.CreatedAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSnapshotRepo) ListDaily(_ context.Context, _ string, _ time.Time) ([]*models.PortfolioDaily, error) {
	return nil, nil
}

func (m *mockSnapshotRepo) byUser(userID string) *models.PortfolioSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.snapshots {
		if s.UserID == userID {
			return s
		}
	}
	return nil
}
