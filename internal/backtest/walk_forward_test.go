package backtest

import (
	"context"
	"errors"
	"testing"
)

func TestPlanWindows(t *testing.T) {
	windows, err := PlanWindows(1000, 200, 50, 0.75)
	if err != nil {
		t.Fatalf("PlanWindows failed: %v", err)
	}
	if len(windows) != 17 {
		t.Fatalf("expected 17 windows, got %d", len(windows))
	}
	first := windows[0]
	if first.InSampleStart != 0 || first.InSampleEnd != 150 || first.OutOfSampleStart != 150 || first.OutOfSampleEnd != 200 {
		t.Fatalf("unexpected first window %+v", first)
	}
	last := windows[len(windows)-1]
	if last.OutOfSampleEnd != 1000 {
		t.Fatalf("last window should end at 1000, got %+v", last)
	}

	short, err := PlanWindows(150, 200, 50, 0.75)
	if err != nil || len(short) != 0 {
		t.Fatalf("a series shorter than one window yields no windows, got %d %v", len(short), err)
	}
}

func TestPlanWindowsRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name         string
		window, step int
		ratio        float64
	}{
		{"zero window", 0, 10, 0.5},
		{"zero step", 100, 0, 0.5},
		{"ratio one", 100, 10, 1},
		{"ratio zero", 100, 10, 0},
		{"no in-sample", 3, 1, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := PlanWindows(1000, tt.window, tt.step, tt.ratio); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestWalkForwardRun(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	analyzer := NewWalkForwardAnalyzer(engine, OptimizerConfig{Workers: 2})
	res, err := analyzer.Run(context.Background(), holdFactory, risingSeries(400), holdSpace(), WalkForwardConfig{
		WindowSize:    200,
		StepSize:      100,
		InSampleRatio: 0.75,
		Workers:       2,
		Objective:     "net_profit",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Windows) != 3 || res.Failed != 0 {
		t.Fatalf("expected 3 successful windows, got %d (%d failed)", len(res.Windows), res.Failed)
	}
	for i, w := range res.Windows {
		if w.Index != i {
			t.Fatalf("windows must stay in order")
		}
		if w.Parameters.Float("q", 0) != 3 {
			t.Fatalf("window %d should pick q=3, got %v", i, w.Parameters)
		}
		if !w.OutOfSampleStart.After(w.InSampleEnd) {
			t.Fatalf("out-of-sample must follow in-sample in window %d", i)
		}
	}
	if res.ConsistencyScore != 1 {
		t.Fatalf("every window is profitable on a rising series, got %f", res.ConsistencyScore)
	}
	if res.AggregatedMetrics.TotalTrades != 3 {
		t.Fatalf("expected one out-of-sample trade per window, got %d", res.AggregatedMetrics.TotalTrades)
	}
}

func TestWalkForwardMinTrades(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	res, err := NewWalkForwardAnalyzer(engine, OptimizerConfig{}).Run(context.Background(), holdFactory, risingSeries(400), holdSpace(), WalkForwardConfig{
		WindowSize:    200,
		StepSize:      100,
		InSampleRatio: 0.75,
		Objective:     "net_profit",
		MinTrades:     2,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, w := range res.Windows {
		if !w.BelowMinTrades {
			t.Fatalf("window %d should be flagged below min trades", w.Index)
		}
	}
	if res.ConsistencyScore != 0 || res.AggregatedMetrics.TotalTrades != 0 {
		t.Fatalf("flagged windows must be excluded from aggregates")
	}
}

func TestWalkForwardErrors(t *testing.T) {
	analyzer := NewWalkForwardAnalyzer(newTestEngine(t, testConfig()), OptimizerConfig{})
	base := WalkForwardConfig{WindowSize: 200, StepSize: 100, InSampleRatio: 0.75, Objective: "net_profit"}

	if _, err := analyzer.Run(context.Background(), holdFactory, risingSeries(100), holdSpace(), base); !errors.Is(err, ErrNoCandles) {
		t.Fatalf("expected ErrNoCandles for a short series, got %v", err)
	}
	bad := base
	bad.Method = "bayesian"
	if _, err := analyzer.Run(context.Background(), holdFactory, risingSeries(400), holdSpace(), bad); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
	bad = base
	bad.InSampleRatio = 1.5
	if _, err := analyzer.Run(context.Background(), holdFactory, risingSeries(400), holdSpace(), bad); err == nil {
		t.Fatalf("expected error for bad ratio")
	}
}
