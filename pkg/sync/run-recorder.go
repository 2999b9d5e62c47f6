package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	syncruns "github.com/case-framework/tracker-sync-backend/pkg/db/sync-runs"
	"go.mongodb.org/mongo-driver/mongo"
)

// RunStore persists run bookkeeping. *syncruns.SyncRunsDBService implements it.
type RunStore interface {
	StartRun(runKey string, job string, name string, startPage int, lockTimeout time.Duration) (*syncruns.SyncRun, error)
	UpdateProgress(runID string, lastPage int, nextPage int, delta syncruns.RunCounters) error
	FinishRun(runID string, info syncruns.FinishInfo) error
	AddIssue(issue syncruns.SyncIssue) error
	LastFinishedRun(runKey string) (*syncruns.SyncRun, error)
}

// RunRecorder is a Reporter writing progress and issues of one run to a
// RunStore. Store failures are logged and never stop the run.
type RunRecorder struct {
	store  RunStore
	run    *syncruns.SyncRun
	logger *slog.Logger
}

func NewRunRecorder(store RunStore, run *syncruns.SyncRun) *RunRecorder {
	return &RunRecorder{
		store:  store,
		run:    run,
		logger: slog.With(slog.String("runId", run.RunID), slog.String("runKey", run.RunKey)),
	}
}

func (r *RunRecorder) PageDone(_ context.Context, summary PageSummary) {
	delta := syncruns.RunCounters{
		Pages:         1,
		Fetched:       summary.Fetched,
		Matched:       summary.Matched,
		Unresolved:    summary.Unresolved,
		Submitted:     summary.Submitted,
		FailedRecords: summary.FailedRecords,
		Batches:       summary.Batches,
		BatchesFailed: summary.BatchesFailed,
	}
	if err := r.store.UpdateProgress(r.run.RunID, summary.Page, summary.Page+1, delta); err != nil {
		r.logger.Error("could not store run progress", slog.Int("page", summary.Page), slog.String("error", err.Error()))
	}
}

func (r *RunRecorder) RecordUnresolved(_ context.Context, page int, record UnresolvedRecord) {
	r.addIssue(syncruns.SyncIssue{
		Type:    syncruns.ISSUE_TYPE_UNRESOLVED_RECORD,
		Page:    page,
		Key:     record.Key,
		Message: record.Reason,
	})
}

func (r *RunRecorder) BatchFailed(_ context.Context, page int, failed FailedBatch) {
	r.addIssue(syncruns.SyncIssue{
		Type:       syncruns.ISSUE_TYPE_FAILED_BATCH,
		Page:       page,
		BatchIndex: failed.Index,
		BatchSize:  failed.Size,
		Message:    failed.Err.Error(),
	})
}

func (r *RunRecorder) addIssue(issue syncruns.SyncIssue) {
	issue.RunID = r.run.RunID
	issue.RunKey = r.run.RunKey
	issue.CreatedAt = time.Now()
	if err := r.store.AddIssue(issue); err != nil {
		r.logger.Error("could not store run issue", slog.String("type", issue.Type), slog.String("error", err.Error()))
	}
}

// RunOptions describes how a run is registered, resumed and reported.
type RunOptions struct {
	RunKey      string
	Job         string
	Name        string
	StartPage   int
	Resume      bool
	LockTimeout time.Duration
	Notify      NotifySettings
}

// RunFunc executes the pipeline from startPage, reporting to reporter.
type RunFunc func(ctx context.Context, startPage int, reporter Reporter) RunResult

// ExecuteRun takes the run lock, resolves the start page, runs and records the
// outcome. A nil store runs without bookkeeping. The returned error is only
// set when the run could not be started; abort reasons are in the result.
func ExecuteRun(ctx context.Context, store RunStore, opts RunOptions, run RunFunc) (RunResult, error) {
	logger := slog.With(slog.String("runKey", opts.RunKey), slog.String("name", opts.Name))

	startPage := opts.StartPage
	if startPage < 1 {
		startPage = 1
	}

	var reporter Reporter = NopReporter{}
	var current *syncruns.SyncRun
	if store != nil {
		if opts.Resume {
			startPage = resumePage(store, opts.RunKey, startPage, logger)
		}

		r, err := store.StartRun(opts.RunKey, opts.Job, opts.Name, startPage, opts.LockTimeout)
		if err != nil {
			logger.Warn("could not start run", slog.String("error", err.Error()))
			return RunResult{}, err
		}
		current = r
		reporter = NewRunRecorder(store, r)
		logger = logger.With(slog.String("runId", r.RunID))
	}

	result := run(ctx, startPage, reporter)

	if current != nil {
		info := syncruns.FinishInfo{
			Status:   result.Status(),
			NextPage: result.NextPage,
			Reason:   result.Reason(),
		}
		if result.Aborted {
			info.AbortedAtPage = result.AbortedAtPage
		}
		if err := store.FinishRun(current.RunID, info); err != nil {
			logger.Error("could not finish run", slog.String("error", err.Error()))
		}
	}

	if HttpClient != nil {
		if err := NotifyRunResult(opts.Notify, opts.Name, result); err != nil {
			logger.Error("could not send run summary", slog.String("error", err.Error()))
		}
	}
	return result, nil
}

// resumePage returns the page the last aborted run of runKey stopped at, or
// fallback when there is nothing to resume.
func resumePage(store RunStore, runKey string, fallback int, logger *slog.Logger) int {
	last, err := store.LastFinishedRun(runKey)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			logger.Error("could not read last run, starting from configured page", slog.String("error", err.Error()))
		}
		return fallback
	}
	if last.Status != syncruns.SYNC_STATUS_ABORTED || last.NextPage < 1 {
		return fallback
	}
	logger.Info("resuming aborted run", slog.String("previousRunId", last.RunID), slog.Int("page", last.NextPage))
	return last.NextPage
}
