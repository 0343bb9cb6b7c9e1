package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourusername/tradelab/internal/backtest"
	"github.com/yourusername/tradelab/internal/datasource"
)

var (
	fetchDir    string
	fetchSQLite string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the configured series into a local parquet directory or sqlite file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if fetchDir == "" && fetchSQLite == "" {
			return fmt.Errorf("one of --dir or --sqlite is required")
		}
		btCfg, err := backtest.FromConfig(&deps.cfg.Backtest)
		if err != nil {
			return err
		}
		series, err := deps.source.Fetch(ctx, btCfg.Symbol, btCfg.StartDate, btCfg.EndDate, btCfg.Resolution)
		if err != nil {
			return err
		}

		var sinks []datasource.Sink
		if fetchDir != "" {
			sinks = append(sinks, datasource.NewParquetSource(fetchDir))
		}
		if fetchSQLite != "" {
			db, err := datasource.NewSQLiteSource(ctx, fetchSQLite)
			if err != nil {
				return err
			}
			defer db.Close()
			sinks = append(sinks, db)
		}
		for _, sink := range sinks {
			if err := sink.WriteSeries(ctx, series); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d %s %s candles from %s\n", series.Len(), series.Symbol, series.Resolution, deps.source.Name())
		return nil
	},
}

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List registered strategies and their defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range deps.registry.List() {
			meta, _ := deps.registry.Metadata(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-8s %s\n", meta.Name, meta.Version, meta.Description)
			for _, key := range meta.Defaults.Keys() {
				fmt.Fprintf(cmd.OutOrStdout(), "    %s = %v\n", key, meta.Defaults[key])
			}
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchDir, "dir", "", "Parquet output directory")
	fetchCmd.Flags().StringVar(&fetchSQLite, "sqlite", "", "SQLite database file")
}
