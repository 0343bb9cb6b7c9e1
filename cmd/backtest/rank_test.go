package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/tradelab/internal/backtest"
)

func TestRankResults(t *testing.T) {
	results := []backtest.OptimizationResult{
		{Index: 0, Score: 1},
		{Index: 1, Score: 3},
		{Index: 2, Error: "boom"},
		{Index: 3, Score: 3},
		{Index: 4, Score: 2},
	}

	ranked := rankResults(results, 3)
	assert.Len(t, ranked, 3)
	assert.Equal(t, []int{1, 3, 4}, []int{ranked[0].Index, ranked[1].Index, ranked[2].Index})

	assert.Len(t, rankResults(results, 0), 4)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "random", firstNonEmpty("", "random", "grid"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
