package main

import (
	"github.com/spf13/cobra"

	"github.com/yourusername/tradelab/internal/backtest"
	"github.com/yourusername/tradelab/internal/health"
	"github.com/yourusername/tradelab/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health, metrics and live events and run scheduled backtests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := deps.cfg
		hub := health.NewHub(0, deps.logger)

		srv := health.NewServer(health.Config{
			ServiceName: cfg.App.Name,
			Version:     Version,
			Address:     cfg.Server.Address,
			MetricsPath: cfg.Server.MetricsPath,
			Logger:      deps.logger,
			DB:          pingerOrNil(),
			Hub:         hub,
		})
		if err := srv.Start(ctx); err != nil {
			return err
		}

		var sched *scheduler.Scheduler
		if cfg.Scheduler.Enabled && len(cfg.Scheduler.Jobs) > 0 {
			base, err := backtest.FromConfig(&cfg.Backtest)
			if err != nil {
				return err
			}
			runner := &scheduler.BacktestRunner{
				Loader:      deps.cache,
				Registry:    deps.registry,
				Base:        base,
				Optimizer:   backtest.OptimizerConfigFrom(cfg.Optimization),
				MonteCarlo:  backtest.MonteCarloConfigFrom(cfg.MonteCarlo),
				WalkForward: backtest.WalkForwardConfigFrom(cfg.WalkForward, cfg.Optimization),
				Observer:    hub,
				Logger:      deps.logger,
			}
			if cfg.Optimization.SpaceFile != "" {
				space, err := backtest.LoadParameterSpace(cfg.Optimization.SpaceFile)
				if err != nil {
					return err
				}
				runner.Space = space
			}

			sched = scheduler.NewScheduler(runner, deps.logger)
			for _, job := range cfg.Scheduler.Jobs {
				if err := sched.ScheduleJob(job); err != nil {
					return err
				}
			}
			if err := sched.Start(); err != nil {
				return err
			}
		}

		srv.SetReady(true)
		deps.logger.WithField("address", srv.Addr()).Info("Serving")
		<-ctx.Done()

		srv.SetReady(false)
		if sched != nil {
			_ = sched.Stop()
		}
		return srv.Shutdown()
	},
}

func pingerOrNil() health.DatabasePinger {
	if deps.db == nil {
		return nil
	}
	return deps.db
}
