package adapter

import (
	"sync"

	"github.com/chain-portfolio/internal/types"
)

// Registry maps chain identifiers to adapters
type Registry struct {
	mu       sync.RWMutex
	adapters map[types.ChainID]ChainAdapter
}

// NewRegistry creates a registry holding the given adapters
func NewRegistry(adapters ...ChainAdapter) *Registry {
	r := &Registry{adapters: make(map[types.ChainID]ChainAdapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for its chain
func (r *Registry) Register(a ChainAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Chain()] = a
}

// Get returns the adapter for chain
func (r *Registry) Get(chain types.ChainID) (ChainAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[chain]
	return a, ok
}

// Chains lists registered chains in display order
func (r *Registry) Chains() []types.ChainID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ChainID, 0, len(r.adapters))
	for _, c := range types.AllChains {
		if _, ok := r.adapters[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
