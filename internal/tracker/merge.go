// Package tracker implements the multi-wallet view: a tracked wallet list,
// per-wallet portfolio data with stale-over-empty failure handling, and
// the merge of all wallets into one aggregated holding list.
package tracker

import (
	"sort"

	"github.com/chain-portfolio/internal/types"
)

// MergeAssets flattens asset lists into one list keyed by
// (symbol, chain, isStaked). Balance and value are summed on collision;
// price and change24h are taken from the last list seen. The result is
// sorted by value descending.
func MergeAssets(lists ...[]types.Asset) []types.Asset {
	merged := make(map[types.AssetKey]*types.Asset)
	var order []types.AssetKey

	for _, list := range lists {
		for _, a := range list {
			key := a.MergeKey()
			existing, ok := merged[key]
			if !ok {
				cp := a
				merged[key] = &cp
				order = append(order, key)
				continue
			}
			existing.Balance += a.Balance
			existing.Value += a.Value
			existing.Price = a.Price
			existing.Change24h = a.Change24h
			if existing.Icon == "" {
				existing.Icon = a.Icon
			}
			if existing.StakingProtocol == "" {
				existing.StakingProtocol = a.StakingProtocol
			}
		}
	}

	out := make([]types.Asset, 0, len(order))
	for _, key := range order {
		out = append(out, *merged[key])
	}
	SortByValue(out)
	return out
}

// SortByValue orders assets by value descending, breaking ties by symbol
// so output is stable across refreshes
func SortByValue(assets []types.Asset) {
	sort.SliceStable(assets, func(i, j int) bool {
		if assets[i].Value != assets[j].Value {
			return assets[i].Value > assets[j].Value
		}
		return assets[i].Symbol < assets[j].Symbol
	})
}

// MergeNFTs concatenates NFT lists, dropping repeats of the same mint
func MergeNFTs(lists ...[]types.NFT) []types.NFT {
	seen := make(map[string]bool)
	out := []types.NFT{}
	for _, list := range lists {
		for _, n := range list {
			key := string(n.Chain) + ":" + n.Mint
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, n)
		}
	}
	return out
}

// MergeDomains concatenates domain lists, dropping repeats of the same name
func MergeDomains(lists ...[]types.Domain) []types.Domain {
	seen := make(map[string]bool)
	out := []types.Domain{}
	for _, list := range lists {
		for _, d := range list {
			key := string(d.Chain) + ":" + d.Name
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, d)
		}
	}
	return out
}

// TotalValue sums asset values
func TotalValue(assets []types.Asset) float64 {
	var total float64
	for _, a := range assets {
		total += a.Value
	}
	return total
}
