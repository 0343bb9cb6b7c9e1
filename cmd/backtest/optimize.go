package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yourusername/tradelab/internal/backtest"
)

var (
	spaceFile string
	method    string
	objective string
	topN      int
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Search a parameter space by grid or random sampling",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		space, err := deps.parameterSpace(spaceFile)
		if err != nil {
			return err
		}
		engine, err := deps.newEngine(backtest.WithObserver(deps.progressObserver()))
		if err != nil {
			return err
		}
		series, err := engine.LoadSeries(ctx, deps.cache)
		if err != nil {
			return err
		}
		factory, err := deps.factory()
		if err != nil {
			return err
		}

		optCfg := backtest.OptimizerConfigFrom(deps.cfg.Optimization)
		m := backtest.OptimizationMethod(firstNonEmpty(method, deps.cfg.Optimization.Method))
		obj := firstNonEmpty(objective, deps.cfg.Optimization.Objective)
		report, err := backtest.NewOptimizer(engine, optCfg).Optimize(ctx, factory, series, space, m, obj)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Optimization of %s: %d combinations, %d failed, %s\n", report.Strategy, len(report.Results), report.Failed, report.Duration)
		if report.Best != nil {
			fmt.Fprintf(out, "Best %s: %.4f with %v\n", report.Objective, report.Best.Score, report.Best.Parameters)
		}
		for i, res := range rankResults(report.Results, topN) {
			fmt.Fprintf(out, "  %2d. %-12.4f trades=%-4d %v\n", i+1, res.Score, res.Trades, res.Parameters)
		}

		if dir := engine.Config().OutputPath; dir != "" {
			if err := backtest.ExportToJSON(report, filepath.Join(dir, "optimization.json")); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	optimizeCmd.Flags().StringVar(&spaceFile, "space", "", "Parameter space YAML (overrides optimization.space_file)")
	optimizeCmd.Flags().StringVar(&method, "method", "", "Search method: grid or random")
	optimizeCmd.Flags().StringVar(&objective, "objective", "", "Objective metric to maximize")
	optimizeCmd.Flags().IntVar(&topN, "top", 10, "Number of ranked results to print")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
