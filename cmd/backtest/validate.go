package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yourusername/tradelab/internal/backtest"
)

var monteCarloCmd = &cobra.Command{
	Use:   "montecarlo",
	Short: "Replay once, then resample the trade order to estimate outcome spread",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, err := deps.newEngine()
		if err != nil {
			return err
		}
		res, err := deps.replay(ctx, engine)
		if err != nil {
			return err
		}
		mc, err := runMonteCarlo(cmd, res)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Monte Carlo over %d trades, %d iterations\n", mc.Trades, mc.Iterations)
		fmt.Fprintf(out, "  Mean Return: %.2f%%  Median: %.2f%%\n", mc.Returns.Mean*100, mc.Returns.Median*100)
		for _, ci := range mc.ConfidenceIntervals {
			fmt.Fprintf(out, "  %.0f%% interval: %.2f%% to %.2f%%\n", ci.Level*100, ci.Lower*100, ci.Upper*100)
		}
		fmt.Fprintf(out, "  Expected Drawdown: %.2f%%\n", mc.ExpectedDrawdown*100)
		fmt.Fprintf(out, "  Probability of Profit: %.2f%%  Ruin: %.2f%%\n", mc.ProbabilityOfProfit*100, mc.ProbabilityOfRuin*100)

		if dir := engine.Config().OutputPath; dir != "" {
			mc.Runs = nil
			return backtest.ExportToJSON(mc, filepath.Join(dir, "monte_carlo.json"))
		}
		return nil
	},
}

var walkForwardCmd = &cobra.Command{
	Use:   "walkforward",
	Short: "Optimize on rolling in-sample windows and test on the following candles",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := deps.newEngine()
		if err != nil {
			return err
		}
		wf, err := runWalkForward(cmd, engine)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Walk-forward: %d windows, %d failed\n", len(wf.Windows), wf.Failed)
		for _, w := range wf.Windows {
			if w.Error != "" {
				fmt.Fprintf(out, "  #%d failed: %s\n", w.Index, w.Error)
				continue
			}
			fmt.Fprintf(out, "  #%d %s..%s IS %.4f OOS %.4f %v\n", w.Index,
				w.OutOfSampleStart.Format("2006-01-02"), w.OutOfSampleEnd.Format("2006-01-02"),
				w.InSampleScore, w.OutOfSampleScore, w.Parameters)
		}
		fmt.Fprintf(out, "  Consistency: %.2f%%  Efficiency: %.2f  Overfit: %.2f\n", wf.ConsistencyScore*100, wf.Efficiency, wf.OverfitScore)

		if dir := engine.Config().OutputPath; dir != "" {
			return backtest.ExportToJSON(wf, filepath.Join(dir, "walk_forward.json"))
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run replay, Monte Carlo and walk-forward and print a combined verdict",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, err := deps.newEngine()
		if err != nil {
			return err
		}
		res, err := deps.replay(ctx, engine)
		if err != nil {
			return err
		}
		mc, err := runMonteCarlo(cmd, res)
		if err != nil {
			return err
		}
		wf, err := runWalkForward(cmd, engine)
		if err != nil {
			return err
		}

		aggregated := backtest.AggregateResults(res.Strategy, res.Metrics, mc, wf, backtest.DefaultAggregationWeights())
		fmt.Fprint(cmd.OutOrStdout(), backtest.GenerateConsoleReport(aggregated))
		if dir := engine.Config().OutputPath; dir != "" {
			aggregated.MonteCarloResult.Runs = nil
			return backtest.ExportToJSON(aggregated, filepath.Join(dir, "validation.json"))
		}
		return nil
	},
}

func init() {
	walkForwardCmd.Flags().StringVar(&spaceFile, "space", "", "Parameter space YAML (overrides optimization.space_file)")
	validateCmd.Flags().StringVar(&spaceFile, "space", "", "Parameter space YAML (overrides optimization.space_file)")
}

func runMonteCarlo(cmd *cobra.Command, res *backtest.RunResult) (backtest.MonteCarloResult, error) {
	cfg := backtest.MonteCarloConfigFrom(deps.cfg.MonteCarlo)
	cfg.Strategy = res.Strategy
	cfg.Observer = deps.progressObserver()
	cfg.Logger = deps.logger
	return backtest.RunMonteCarlo(cmd.Context(), res.Trades, res.InitialBalance, cfg)
}

func runWalkForward(cmd *cobra.Command, engine *backtest.Engine) (backtest.WalkForwardResult, error) {
	ctx := cmd.Context()
	space, err := deps.parameterSpace(spaceFile)
	if err != nil {
		return backtest.WalkForwardResult{}, err
	}
	series, err := engine.LoadSeries(ctx, deps.cache)
	if err != nil {
		return backtest.WalkForwardResult{}, err
	}
	factory, err := deps.factory()
	if err != nil {
		return backtest.WalkForwardResult{}, err
	}
	wfCfg := backtest.WalkForwardConfigFrom(deps.cfg.WalkForward, deps.cfg.Optimization)
	analyzer := backtest.NewWalkForwardAnalyzer(engine, backtest.OptimizerConfigFrom(deps.cfg.Optimization))
	return analyzer.Run(ctx, factory, series, space, wfCfg)
}
