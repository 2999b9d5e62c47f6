package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/case-framework/tracker-sync-backend/pkg/sync"
)

func main() {
	slog.Info("Stage sync job started", slog.Int("runs", len(conf.Runs)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// nil interface when bookkeeping is off
	var store sync.RunStore
	if syncRunsDBService != nil {
		store = syncRunsDBService
	}

	failed := make([]bool, len(conf.Runs))

	g := new(errgroup.Group)
	g.SetLimit(conf.RunSettings.GetMaxParallelRuns())
	for i, run := range conf.Runs {
		g.Go(func() error {
			// config was validated in init
			cfg, err := run.StageSyncConfig(conf.RunSettings)
			if err != nil {
				slog.Error("invalid run config", slog.String("name", run.Name), slog.String("error", err.Error()))
				failed[i] = true
				return nil
			}

			stageSync, err := sync.NewStageSync(cfg, trackerClient, trackerClient, trackerClient)
			if err != nil {
				slog.Error("could not set up stage sync", slog.String("name", run.Name), slog.String("error", err.Error()))
				failed[i] = true
				return nil
			}

			slog.Info("start stage sync", slog.String("name", run.Name), slog.String("runKey", cfg.RunKey()))
			res, err := sync.ExecuteRun(ctx, store, run.RunOptions(cfg, conf.RunSettings), func(ctx context.Context, startPage int, reporter sync.Reporter) sync.RunResult {
				return stageSync.Pipeline(startPage, reporter).Run(ctx)
			})
			if err != nil {
				slog.Error("stage sync not started", slog.String("name", run.Name), slog.String("error", err.Error()))
				failed[i] = true
				return nil
			}
			failed[i] = res.Aborted

			slog.Info("stage sync finished",
				slog.String("name", run.Name),
				slog.String("result", res.Summary()),
				slog.Int("submitted", res.Submitted),
				slog.Int("unresolved", res.Unresolved),
				slog.Int("failedBatches", res.BatchesFailed),
			)
			return nil
		})
	}
	_ = g.Wait()

	exitCode := 0
	for i := range failed {
		if failed[i] {
			exitCode = 1
		}
	}

	if metricsBackend != nil {
		if err := metricsBackend.Close(); err != nil {
			slog.Error("could not flush metrics", slog.String("error", err.Error()))
		}
	}
	if syncRunsDBService != nil {
		if err := syncRunsDBService.Close(); err != nil {
			slog.Error("could not close sync runs DB", slog.String("error", err.Error()))
		}
	}

	slog.Info("Stage sync job finished", slog.Int("exitCode", exitCode))
	os.Exit(exitCode)
}
