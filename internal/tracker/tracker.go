package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/metrics"
	"github.com/chain-portfolio/internal/types"
)

// ErrAddInProgress is returned when the same wallet is already being added
var ErrAddInProgress = errors.New("wallet is already being added")

// Fetcher loads the current portfolio of one wallet
type Fetcher interface {
	FetchWallet(ctx context.Context, ref types.WalletRef) (*types.Portfolio, error)
}

// Config holds tracker timing
type Config struct {
	// FetchTimeout bounds each wallet fetch
	FetchTimeout time.Duration
	// RefreshInterval is the auto-refresh period used by Start
	RefreshInterval time.Duration
	// OnRefresh runs after every completed refresh
	OnRefresh func()
}

// DefaultConfig returns 30s fetch timeout and 30s refresh interval
func DefaultConfig() Config {
	return Config{FetchTimeout: 30 * time.Second, RefreshInterval: 30 * time.Second}
}

// WalletResult is the latest data held for one wallet
type WalletResult struct {
	Ref       types.WalletRef
	Portfolio *types.Portfolio
	// Err is the last fetch failure; Portfolio then holds stale or empty data
	Err       error
	FetchedAt time.Time
}

// WalletSummary is one wallet's line in the aggregated view
type WalletSummary struct {
	Address    string        `json:"address"`
	Chain      types.ChainID `json:"chain"`
	TotalValue float64       `json:"totalValue"`
	Error      string        `json:"error,omitempty"`
}

// View is the merged portfolio of every tracked wallet
type View struct {
	Wallets    []WalletSummary `json:"wallets"`
	Assets     []types.Asset   `json:"assets"`
	NFTs       []types.NFT     `json:"nfts"`
	Domains    []types.Domain  `json:"domains"`
	TotalValue float64         `json:"totalValue"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Tracker holds a wallet list and the latest fetched data per wallet
type Tracker struct {
	fetcher Fetcher
	cfg     Config
	log     *logging.Logger

	mu      sync.RWMutex
	store   WalletStore
	wallets []types.WalletRef
	data    map[string]*WalletResult
	adding  map[string]bool

	// refreshMu is held for the whole of a refresh
	refreshMu   sync.Mutex
	lastRefresh time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	inFlight sync.WaitGroup
}

// New creates a tracker over store
func New(store WalletStore, fetcher Fetcher, cfg Config) *Tracker {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultConfig().RefreshInterval
	}
	return &Tracker{
		fetcher: fetcher,
		cfg:     cfg,
		log:     logging.GetGlobalLogger().WithField("component", "tracker"),
		store:   store,
		data:    make(map[string]*WalletResult),
		adding:  make(map[string]bool),
	}
}

// Load reloads the wallet list from the store and refreshes every wallet.
// Data for wallets no longer listed is dropped. A refresh already running
// is waited for, then the reloaded list is fetched.
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.RLock()
	store := t.store
	t.mu.RUnlock()

	refs, err := store.List(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.wallets = refs
	keep := make(map[string]bool, len(refs))
	for _, ref := range refs {
		keep[ref.Key()] = true
	}
	for key := range t.data {
		if !keep[key] {
			delete(t.data, key)
		}
	}
	t.mu.Unlock()

	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()
	t.refreshAll(ctx)
	return nil
}

// SwitchStore replaces the wallet list source, discarding all in-memory
// data, and loads from the new store. Wallets of the old store are not
// carried over.
func (t *Tracker) SwitchStore(ctx context.Context, store WalletStore) error {
	t.mu.Lock()
	t.store = store
	t.wallets = nil
	t.data = make(map[string]*WalletResult)
	t.mu.Unlock()
	return t.Load(ctx)
}

// Refresh fetches every tracked wallet concurrently. It returns false
// without doing anything when a previous refresh is still running.
func (t *Tracker) Refresh(ctx context.Context) bool {
	if !t.refreshMu.TryLock() {
		metrics.WalletRefreshes.WithLabelValues("skipped").Inc()
		t.log.Debug("refresh already in flight, skipping")
		return false
	}
	defer t.refreshMu.Unlock()
	t.refreshAll(ctx)
	return true
}

// refreshAll fetches the current wallet list. Callers hold refreshMu.
func (t *Tracker) refreshAll(ctx context.Context) {
	t.mu.RLock()
	refs := make([]types.WalletRef, len(t.wallets))
	copy(refs, t.wallets)
	t.mu.RUnlock()

	var g errgroup.Group
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			t.apply(t.fetch(ctx, ref))
			return nil
		})
	}
	_ = g.Wait()

	t.mu.Lock()
	t.lastRefresh = time.Now()
	t.mu.Unlock()
	metrics.WalletRefreshes.WithLabelValues("completed").Inc()

	if t.cfg.OnRefresh != nil {
		t.cfg.OnRefresh()
	}
}

// LastRefresh returns when the last full refresh completed
func (t *Tracker) LastRefresh() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastRefresh
}

// fetch loads one wallet under the per-wallet timeout
func (t *Tracker) fetch(ctx context.Context, ref types.WalletRef) *WalletResult {
	fctx, cancel := context.WithTimeout(ctx, t.cfg.FetchTimeout)
	defer cancel()

	res := &WalletResult{Ref: ref, FetchedAt: time.Now()}
	p, err := t.fetcher.FetchWallet(fctx, ref)
	if err == nil && p == nil {
		err = fmt.Errorf("no data for %s", ref.Key())
	}
	if err != nil {
		if errors.Is(fctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("fetch timed out after %s: %w", t.cfg.FetchTimeout, err)
		}
		res.Err = err
		t.log.WithFields(map[string]interface{}{
			"chain":   string(ref.Chain),
			"address": ref.Address,
		}).WithError(err).Warn("wallet fetch failed")
		return res
	}
	res.Portfolio = p
	return res
}

// apply stores a fetch result. A failed fetch keeps previously fetched
// data and only records the error; a wallet with no prior data gets an
// empty portfolio.
func (t *Tracker) apply(res *WalletResult) {
	key := res.Ref.Key()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.tracked(key) {
		return
	}
	if res.Err != nil {
		if prev, ok := t.data[key]; ok && prev.Portfolio != nil {
			prev.Err = res.Err
			return
		}
		res.Portfolio = emptyPortfolio(res.Ref)
	}
	t.data[key] = res
}

func (t *Tracker) tracked(key string) bool {
	for _, w := range t.wallets {
		if w.Key() == key {
			return true
		}
	}
	return false
}

func emptyPortfolio(ref types.WalletRef) *types.Portfolio {
	return &types.Portfolio{
		Address:   ref.Address,
		Chain:     ref.Chain,
		Assets:    []types.Asset{},
		NFTs:      []types.NFT{},
		Domains:   []types.Domain{},
		Timestamp: time.Now().UTC(),
	}
}

// AddWallet fetches the wallet's data, makes it visible, then persists
// the wallet. A persistence failure is returned but the fetched data
// stays visible until the next Load.
func (t *Tracker) AddWallet(ctx context.Context, ref types.WalletRef, label string) error {
	key := ref.Key()

	t.mu.Lock()
	if t.adding[key] {
		t.mu.Unlock()
		return ErrAddInProgress
	}
	if t.tracked(key) {
		t.mu.Unlock()
		return ErrWalletExists
	}
	t.adding[key] = true
	store := t.store
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.adding, key)
		t.mu.Unlock()
	}()

	res := t.fetch(ctx, ref)

	t.mu.Lock()
	t.wallets = append(t.wallets, ref)
	t.mu.Unlock()
	t.apply(res)

	if err := store.Add(ctx, ref, label); err != nil {
		if errors.Is(err, ErrWalletExists) {
			return nil
		}
		return err
	}
	return nil
}

// RemoveWallet drops the wallet's data immediately, then persists the
// removal
func (t *Tracker) RemoveWallet(ctx context.Context, ref types.WalletRef) error {
	key := ref.Key()

	t.mu.Lock()
	for i, w := range t.wallets {
		if w.Key() == key {
			t.wallets = append(t.wallets[:i], t.wallets[i+1:]...)
			break
		}
	}
	delete(t.data, key)
	store := t.store
	t.mu.Unlock()

	return store.Remove(ctx, ref)
}

// Wallets returns the tracked wallet list
func (t *Tracker) Wallets() []types.WalletRef {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.WalletRef, len(t.wallets))
	copy(out, t.wallets)
	return out
}

// Result returns the latest data for one wallet
func (t *Tracker) Result(ref types.WalletRef) (*WalletResult, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res, ok := t.data[ref.Key()]
	return res, ok
}

// View merges the data of every tracked wallet
func (t *Tracker) View() *View {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v := &View{
		Wallets:   make([]WalletSummary, 0, len(t.wallets)),
		Timestamp: time.Now().UTC(),
	}
	var (
		assets  [][]types.Asset
		nfts    [][]types.NFT
		domains [][]types.Domain
	)
	for _, ref := range t.wallets {
		summary := WalletSummary{Address: ref.Address, Chain: ref.Chain}
		if res, ok := t.data[ref.Key()]; ok {
			if res.Portfolio != nil {
				summary.TotalValue = res.Portfolio.TotalValue
				assets = append(assets, res.Portfolio.Assets)
				nfts = append(nfts, res.Portfolio.NFTs)
				domains = append(domains, res.Portfolio.Domains)
			}
			if res.Err != nil {
				summary.Error = res.Err.Error()
			}
		}
		v.Wallets = append(v.Wallets, summary)
	}

	v.Assets = MergeAssets(assets...)
	v.NFTs = MergeNFTs(nfts...)
	v.Domains = MergeDomains(domains...)
	v.TotalValue = TotalValue(v.Assets)
	return v
}

// Start refreshes every RefreshInterval until ctx is done or Stop is called
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.stop != nil {
		t.mu.Unlock()
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	stop, done := t.stop, t.done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// Refresh drops ticks that overlap a running refresh
				t.inFlight.Add(1)
				go func() {
					defer t.inFlight.Done()
					t.Refresh(ctx)
				}()
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the auto-refresh loop and waits for it and any refresh it
// started to finish
func (t *Tracker) Stop() {
	t.mu.RLock()
	stop, done := t.stop, t.done
	t.mu.RUnlock()
	if stop == nil {
		return
	}
	t.stopOnce.Do(func() { close(stop) })
	<-done
	t.inFlight.Wait()
}
