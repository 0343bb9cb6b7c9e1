package backtest

import (
	"math"

	"github.com/goccy/go-json"

	"github.com/yourusername/tradelab/internal/metrics"
)

// Recommendation values
const (
	RecommendationAccept      = "ACCEPT"
	RecommendationReject      = "REJECT"
	RecommendationNeedsReview = "NEEDS_REVIEW"
)

// AggregatedResult combines a replay with its Monte Carlo and walk-forward
// validation into one verdict
type AggregatedResult struct {
	Strategy          string             `json:"strategy"`
	ReplayMetrics     Metrics            `json:"replay_metrics"`
	MonteCarloResult  MonteCarloResult   `json:"monte_carlo_result"`
	WalkForwardResult WalkForwardResult  `json:"walk_forward_result"`
	CompositeScore    float64            `json:"composite_score"`
	Weights           AggregationWeights `json:"weights"`
	Recommendation    string             `json:"recommendation"`
	Features          map[string]float64 `json:"features"`
}

// AggregationWeights define weighting per method
type AggregationWeights struct {
	Replay      float64 `json:"replay"`
	MonteCarlo  float64 `json:"monte_carlo"`
	WalkForward float64 `json:"walk_forward"`
}

// DefaultAggregationWeights favours out-of-sample evidence
func DefaultAggregationWeights() AggregationWeights {
	return AggregationWeights{Replay: 0.4, MonteCarlo: 0.2, WalkForward: 0.4}
}

// AggregateResults aggregates results with weights
func AggregateResults(strategyName string, replay Metrics, monteCarlo MonteCarloResult, walkForward WalkForwardResult, weights AggregationWeights) AggregatedResult {
	replayScore := CalculateCompositeScore(replay)
	monteCarloScore := normalize(monteCarlo.Returns.Mean, -0.5, 1.0) * (1 - monteCarlo.ProbabilityOfRuin)
	walkForwardScore := normalize(walkForward.AggregatedMetrics.TotalReturn, -0.5, 1.0)

	total := weights.Replay + weights.MonteCarlo + weights.WalkForward
	composite := 0.0
	if total > 0 {
		composite = (replayScore*weights.Replay + monteCarloScore*weights.MonteCarlo + walkForwardScore*weights.WalkForward) / total
	}
	recommendation := GenerateRecommendation(composite, walkForward.ConsistencyScore, replay.TotalReturn, walkForward.AggregatedMetrics.TotalReturn)
	metrics.RecordCompositeScore(strategyName, composite)

	return AggregatedResult{
		Strategy:          strategyName,
		ReplayMetrics:     replay,
		MonteCarloResult:  monteCarlo,
		WalkForwardResult: walkForward,
		CompositeScore:    composite,
		Weights:           weights,
		Recommendation:    recommendation,
		Features:          extractFeatures(replay, monteCarlo, walkForward),
	}
}

// CalculateCompositeScore scores replay metrics in [0, 1]
func CalculateCompositeScore(m Metrics) float64 {
	sharpeScore := normalize(m.SharpeRatio, -2, 3)
	roiScore := normalize(m.TotalReturn, -0.5, 1.0)
	profitFactorScore := normalize(m.ProfitFactor, 0, 3)
	drawdownPenalty := 1.0 - normalize(m.MaxDrawdown, 0, 0.5)
	winRateScore := normalize(m.WinRate, 0, 1)

	weighted := 0.0
	weighted += sharpeScore * 0.30
	weighted += roiScore * 0.20
	weighted += profitFactorScore * 0.20
	weighted += drawdownPenalty * 0.15
	weighted += winRateScore * 0.15
	return weighted
}

// GenerateRecommendation determines if strategy is acceptable
func GenerateRecommendation(score float64, consistency float64, replayReturn float64, walkForwardReturn float64) string {
	if score > 0.7 && replayReturn > 0 && walkForwardReturn > 0 && consistency > 0.6 {
		return RecommendationAccept
	}
	if score < 0.4 || replayReturn < 0 || walkForwardReturn < 0 || consistency < 0.4 {
		return RecommendationReject
	}
	return RecommendationNeedsReview
}

// ToJSON exports the aggregated result
func (a AggregatedResult) ToJSON() string {
	a.MonteCarloResult.Runs = nil
	data, _ := json.Marshal(a)
	return string(data)
}

func extractFeatures(h Metrics, mc MonteCarloResult, wf WalkForwardResult) map[string]float64 {
	return map[string]float64{
		"total_return":        h.TotalReturn,
		"sharpe_ratio":        h.SharpeRatio,
		"sortino_ratio":       h.SortinoRatio,
		"max_drawdown":        h.MaxDrawdown,
		"profit_factor":       normalize(h.ProfitFactor, 0, 10) * 10,
		"win_rate":            h.WinRate,
		"ulcer_index":         h.UlcerIndex,
		"monte_carlo_var95":   mc.VaR95,
		"monte_carlo_var99":   mc.VaR99,
		"probability_of_ruin": mc.ProbabilityOfRuin,
		"consistency_score":   wf.ConsistencyScore,
		"overfit_score":       wf.OverfitScore,
		"efficiency":          wf.Efficiency,
	}
}

// normalize clamps value into [0, 1] over [min, max]; the unbounded
// sentinel maps to 1
func normalize(value, min, max float64) float64 {
	if max-min == 0 {
		return 0
	}
	v := (value - min) / (max - min)
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
