package backtest

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/yourusername/tradelab/internal/strategy"
)

func holdSpace() ParameterSpace {
	return ParameterSpace{Parameters: []Parameter{
		{Name: "q", Min: 1, Max: 3, Step: 1},
		{Name: "x", Values: []any{0, 1}},
	}}
}

func TestOptimizeIsDeterministicAcrossWorkers(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	series := risingSeries(30)

	var reports []*OptimizationReport
	for _, workers := range []int{1, 4} {
		report, err := NewOptimizer(engine, OptimizerConfig{Workers: workers}).
			Optimize(context.Background(), holdFactory, series, holdSpace(), MethodGrid, "net_profit")
		if err != nil {
			t.Fatalf("Optimize with %d workers failed: %v", workers, err)
		}
		reports = append(reports, report)
	}

	for _, report := range reports {
		if len(report.Results) != 6 || report.Failed != 0 {
			t.Fatalf("expected 6 successful results, got %d (%d failed)", len(report.Results), report.Failed)
		}
		if report.Best == nil || report.Best.Index != 4 {
			t.Fatalf("expected the first q=3 combination to win, got %+v", report.Best)
		}
		if !almostEqual(report.Best.Score, 3*29) {
			t.Fatalf("unexpected best score %f", report.Best.Score)
		}
		for i, res := range report.Results {
			if res.Index != i {
				t.Fatalf("results must keep generation order")
			}
		}
	}
	for i := range reports[0].Results {
		if reports[0].Results[i].Score != reports[1].Results[i].Score {
			t.Fatalf("scores differ between worker counts at %d", i)
		}
	}
}

func TestOptimizeRecordsFailedCombinations(t *testing.T) {
	factory := func(p strategy.Params) (strategy.Strategy, error) {
		if p.Float("q", 0) == 2 {
			return nil, errors.New("unsupported size")
		}
		return holdFactory(p)
	}
	report, err := NewOptimizer(newTestEngine(t, testConfig()), OptimizerConfig{Workers: 2}).
		Optimize(context.Background(), factory, risingSeries(20), holdSpace(), MethodGrid, "net_profit")
	if err != nil {
		t.Fatalf("partial failure should not fail the optimization: %v", err)
	}
	if report.Failed != 2 || report.Err == nil {
		t.Fatalf("expected 2 failed combinations, got %d", report.Failed)
	}
	if !report.Results[2].Failed() || report.Results[2].Error == "" {
		t.Fatalf("failed combination should carry its error")
	}
}

func TestOptimizeAllFailing(t *testing.T) {
	factory := func(strategy.Params) (strategy.Strategy, error) {
		return nil, errors.New("broken")
	}
	report, err := NewOptimizer(newTestEngine(t, testConfig()), OptimizerConfig{}).
		Optimize(context.Background(), factory, risingSeries(20), holdSpace(), MethodGrid, "net_profit")
	if err == nil {
		t.Fatalf("expected error when every combination fails")
	}
	if report == nil || report.Best != nil {
		t.Fatalf("expected report without a best result")
	}
}

func TestOptimizeRejectsBadInput(t *testing.T) {
	calls := 0
	factory := func(p strategy.Params) (strategy.Strategy, error) {
		calls++
		return holdFactory(p)
	}
	opt := NewOptimizer(newTestEngine(t, testConfig()), OptimizerConfig{})

	_, err := opt.Optimize(context.Background(), factory, risingSeries(20), holdSpace(), "genetic", "net_profit")
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
	if _, err := opt.Optimize(context.Background(), factory, risingSeries(20), holdSpace(), MethodGrid, "luck"); err == nil {
		t.Fatalf("expected error for unknown objective")
	}
	if calls != 0 {
		t.Fatalf("no run may start on invalid input, factory called %d times", calls)
	}
}

func TestOptimizeRandom(t *testing.T) {
	opt := NewOptimizer(newTestEngine(t, testConfig()), OptimizerConfig{Workers: 2, Samples: 3, Seed: 11})
	report, err := opt.Optimize(context.Background(), holdFactory, risingSeries(20), holdSpace(), MethodRandom, "net_profit")
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if len(report.Results) != 3 {
		t.Fatalf("expected 3 sampled combinations, got %d", len(report.Results))
	}
}

func TestOptimizeSingleRangeEvaluatesEveryStep(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	space := ParameterSpace{Parameters: []Parameter{{Name: "p", Min: 0, Max: 10, Step: 2}}}
	want := []float64{0, 2, 4, 6, 8, 10}

	for _, workers := range []int{1, 8} {
		var (
			mu   sync.Mutex
			seen []float64
		)
		factory := func(params strategy.Params) (strategy.Strategy, error) {
			mu.Lock()
			seen = append(seen, params.Float("p", -1))
			mu.Unlock()
			return holdFactory(params)
		}

		report, err := NewOptimizer(engine, OptimizerConfig{Workers: workers}).
			Optimize(context.Background(), factory, risingSeries(10), space, MethodGrid, "net_profit")
		if err != nil {
			t.Fatalf("Optimize with %d workers failed: %v", workers, err)
		}
		if len(report.Results) != 6 || report.Evaluated != 6 {
			t.Fatalf("workers=%d: expected 6 runs, got %d results, %d evaluated", workers, len(report.Results), report.Evaluated)
		}

		var got []float64
		for _, res := range report.Results {
			got = append(got, res.Parameters.Float("p", -1))
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("workers=%d: expected values %v in order, got %v", workers, want, got)
		}
		sort.Float64s(seen)
		if !reflect.DeepEqual(seen, want) {
			t.Fatalf("workers=%d: factory saw %v", workers, seen)
		}
	}
}
