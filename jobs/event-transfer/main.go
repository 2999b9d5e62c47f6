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
	slog.Info("Event transfer job started",
		slog.String("source", sourceClient.BaseURL()),
		slog.String("destination", destinationClient.BaseURL()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store sync.RunStore
	if syncRunsDBService != nil {
		store = syncRunsDBService
	}

	aborted := make([]bool, len(conf.Transfers))

	g := new(errgroup.Group)
	g.SetLimit(conf.RunSettings.GetMaxParallelRuns())
	for i, t := range conf.Transfers {
		g.Go(func() error {
			cfg, err := t.TransferConfig(conf.RunSettings)
			if err != nil {
				slog.Error("invalid transfer config", slog.String("name", t.Name), slog.String("error", err.Error()))
				aborted[i] = true
				return nil
			}
			transfer, err := sync.NewEventTransfer(cfg, sourceClient, destinationClient)
			if err != nil {
				slog.Error("could not set up event transfer", slog.String("name", t.Name), slog.String("error", err.Error()))
				aborted[i] = true
				return nil
			}

			res, err := sync.ExecuteRun(ctx, store, t.RunOptions(cfg, conf.RunSettings), func(ctx context.Context, startPage int, reporter sync.Reporter) sync.RunResult {
				return transfer.Pipeline(startPage, reporter).Run(ctx)
			})
			if err != nil {
				slog.Error("event transfer not started", slog.String("name", t.Name), slog.String("error", err.Error()))
				aborted[i] = true
				return nil
			}
			aborted[i] = res.Aborted

			slog.Info("event transfer finished",
				slog.String("name", t.Name),
				slog.String("result", res.Summary()),
				slog.Int("submitted", res.Submitted),
				slog.Int("failedRecords", res.FailedRecords),
			)
			return nil
		})
	}
	_ = g.Wait()

	exitCode := 0
	for _, a := range aborted {
		if a {
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

	slog.Info("Event transfer job finished", slog.Int("exitCode", exitCode))
	os.Exit(exitCode)
}
