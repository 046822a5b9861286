package tracker

import (
	"context"
	"sync"
	"time"
)

// DefaultSessionIdle is how long an unused tracker is kept by a Pool
const DefaultSessionIdle = 30 * time.Minute

// Pool keeps one Tracker per owner so that wallet mutations and merged
// views of the same owner share one in-memory data set. Trackers unused
// for longer than the idle period are dropped.
type Pool struct {
	fetcher  Fetcher
	cfg      Config
	newStore func(owner string) WalletStore
	idle     time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	tracker  *Tracker
	lastUsed time.Time

	mu     sync.Mutex
	loaded bool
}

// NewPool creates a pool. newStore returns the wallet list source of one
// owner; idle <= 0 uses DefaultSessionIdle.
func NewPool(fetcher Fetcher, cfg Config, newStore func(owner string) WalletStore, idle time.Duration) *Pool {
	if idle <= 0 {
		idle = DefaultSessionIdle
	}
	return &Pool{
		fetcher:  fetcher,
		cfg:      cfg,
		newStore: newStore,
		idle:     idle,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Get returns owner's tracker, loading it from the store on first use.
// A failed load is retried by the next Get.
func (p *Pool) Get(ctx context.Context, owner string) (*Tracker, error) {
	now := p.now()

	p.mu.Lock()
	for key, s := range p.sessions {
		if now.Sub(s.lastUsed) > p.idle {
			delete(p.sessions, key)
		}
	}
	s, ok := p.sessions[owner]
	if !ok {
		s = &session{tracker: New(p.newStore(owner), p.fetcher, p.cfg)}
		p.sessions[owner] = s
	}
	s.lastUsed = now
	p.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		if err := s.tracker.Load(ctx); err != nil {
			return nil, err
		}
		s.loaded = true
	}
	return s.tracker, nil
}

// Len returns the number of live trackers
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}
