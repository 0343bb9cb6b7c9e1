package main

import (
	"sort"

	"github.com/yourusername/tradelab/internal/backtest"
)

// rankResults returns the n best successful results, best first. Equal
// scores keep generation order.
func rankResults(results []backtest.OptimizationResult, n int) []backtest.OptimizationResult {
	ranked := make([]backtest.OptimizationResult, 0, len(results))
	for _, r := range results {
		if !r.Failed() {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
