package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourusername/tradelab/internal/backtest"
)

var (
	reportJSON   bool
	equityPoints int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay the configured strategy once and print its report",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := deps.newEngine(backtest.WithObserver(deps.progressObserver()))
		if err != nil {
			return err
		}
		res, err := deps.replay(cmd.Context(), engine)
		if err != nil {
			return err
		}

		report := backtest.BuildReport(res, backtest.ReportOptions{
			TradeTail:    engine.Config().TradeTail,
			EquityPoints: equityPoints,
		})
		if reportJSON {
			data, err := backtest.RenderJSON(report)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		} else {
			fmt.Fprint(cmd.OutOrStdout(), backtest.RenderConsole(report))
		}

		if dir := engine.Config().OutputPath; dir != "" {
			files, err := backtest.ExportReport(res, report, dir)
			if err != nil {
				return fmt.Errorf("failed to export report: %w", err)
			}
			deps.logger.WithField("report", files.Report).Info("Report exported")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the report as JSON")
	runCmd.Flags().IntVar(&equityPoints, "equity-points", 500, "Maximum equity points in the report, 0 keeps all")
}
