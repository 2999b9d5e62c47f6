package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/case-framework/tracker-sync-backend/pkg/metrics"
)

const (
	RUN_STATUS_RUNNING   = "running"
	RUN_STATUS_COMPLETED = "completed"
	RUN_STATUS_ABORTED   = "aborted"
)

// Transform resolves and merges one page of source records into outgoing
// payloads. Records that cannot be matched are returned as unresolved and
// never block the page. A non-nil error aborts the run.
type Transform[S any, P any] func(ctx context.Context, records []S) (payloads []P, unresolved []UnresolvedRecord, err error)

// PageSummary is reported once a page has been submitted.
type PageSummary struct {
	Page          int
	Fetched       int
	Matched       int
	Unresolved    int
	Submitted     int
	Batches       int
	BatchesFailed int
	FailedRecords int
	Took          time.Duration
}

// Reporter receives run progress. Implementations must not block for long;
// they are called on the run's goroutine.
type Reporter interface {
	PageDone(ctx context.Context, summary PageSummary)
	RecordUnresolved(ctx context.Context, page int, record UnresolvedRecord)
	BatchFailed(ctx context.Context, page int, failed FailedBatch)
}

type NopReporter struct{}

func (NopReporter) PageDone(context.Context, PageSummary)                   {}
func (NopReporter) RecordUnresolved(context.Context, int, UnresolvedRecord) {}
func (NopReporter) BatchFailed(context.Context, int, FailedBatch)           {}

// Pipeline is one synchronization run:
// FETCH_PAGE -> (empty -> DONE) | (transform -> SUBMIT -> FETCH_PAGE).
type Pipeline[S any, P any] struct {
	Job          string
	Source       PageSource[S]
	Transform    Transform[S, P]
	Sink         Sink[P]
	StartPage    int
	PageSize     int
	MaxBatchSize int
	Reporter     Reporter
}

// RunResult is the outcome of one run. LastPage is the last page fully
// processed (0 when none was); NextPage is where a resumed run should start.
type RunResult struct {
	StartPage      int
	PagesCompleted int
	LastPage       int
	NextPage       int
	Requests       int
	RecordsFetched int
	Matched        int
	Unresolved     int
	Submitted      int
	FailedRecords  int
	Batches        int
	BatchesFailed  int
	Aborted        bool
	AbortedAtPage  int
	Err            error
}

func (r RunResult) Status() string {
	if r.Aborted {
		return RUN_STATUS_ABORTED
	}
	return RUN_STATUS_COMPLETED
}

func (r RunResult) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (r RunResult) Summary() string {
	if r.Aborted {
		return fmt.Sprintf("aborted at page %d: %s", r.AbortedAtPage, r.Reason())
	}
	return fmt.Sprintf("completed %d pages", r.PagesCompleted)
}

func (p Pipeline[S, P]) Run(ctx context.Context) RunResult {
	reporter := p.Reporter
	if reporter == nil {
		reporter = NopReporter{}
	}
	fetcher := NewFetcher(p.Source, p.StartPage, p.PageSize)
	result := RunResult{StartPage: fetcher.NextPage(), NextPage: fetcher.NextPage()}

	logger := slog.With(slog.String("job", p.Job))
	logger.Info("sync run started", slog.Int("startPage", result.StartPage), slog.Int("pageSize", fetcher.PageSize()))

	abort := func(page int, err error) RunResult {
		result.Aborted = true
		result.AbortedAtPage = page
		result.Err = err
		result.NextPage = page
		result.Requests = fetcher.Requests()
		metrics.RecordRun(p.Job, RUN_STATUS_ABORTED)
		logger.Error("sync run aborted", slog.Int("page", page), slog.String("reason", err.Error()))
		return result
	}

	for {
		if err := ctx.Err(); err != nil {
			return abort(fetcher.NextPage(), err)
		}

		start := time.Now()
		page, ok, err := fetcher.Next(ctx)
		if err != nil {
			var pe *PageError
			if errors.As(err, &pe) {
				return abort(pe.Page, err)
			}
			return abort(fetcher.NextPage(), err)
		}
		if !ok {
			break
		}

		summary, err := p.processPage(ctx, logger, reporter, page)
		result.RecordsFetched += summary.Fetched
		if err != nil {
			return abort(page.Number, &PageError{Page: page.Number, Err: err})
		}
		// a page cut short by cancellation is sent again on resume
		if err := ctx.Err(); err != nil {
			return abort(page.Number, err)
		}
		summary.Took = time.Since(start)

		result.PagesCompleted++
		result.LastPage = page.Number
		result.NextPage = fetcher.NextPage()
		result.Matched += summary.Matched
		result.Unresolved += summary.Unresolved
		result.Submitted += summary.Submitted
		result.Batches += summary.Batches
		result.BatchesFailed += summary.BatchesFailed
		result.FailedRecords += summary.FailedRecords

		metrics.RecordPage(p.Job, summary.Fetched, summary.Took)
		reporter.PageDone(ctx, summary)
		logger.Info("page processed",
			slog.Int("page", page.Number),
			slog.Int("fetched", summary.Fetched),
			slog.Int("matched", summary.Matched),
			slog.Int("unresolved", summary.Unresolved),
			slog.Int("submitted", summary.Submitted),
			slog.Int("failedBatches", summary.BatchesFailed),
		)
	}

	result.Requests = fetcher.Requests()
	metrics.RecordRun(p.Job, RUN_STATUS_COMPLETED)
	logger.Info("sync run finished",
		slog.String("result", result.Summary()),
		slog.Int("fetched", result.RecordsFetched),
		slog.Int("submitted", result.Submitted),
		slog.Int("unresolved", result.Unresolved),
		slog.Int("failedBatches", result.BatchesFailed),
	)
	return result
}

func (p Pipeline[S, P]) processPage(ctx context.Context, logger *slog.Logger, reporter Reporter, page Page[S]) (PageSummary, error) {
	summary := PageSummary{Page: page.Number, Fetched: len(page.Records)}

	payloads, unresolved, err := p.Transform(ctx, page.Records)
	if err != nil {
		return summary, err
	}
	summary.Matched = len(payloads)
	summary.Unresolved = len(unresolved)
	metrics.RecordRecords(p.Job, metrics.RECORD_KIND_MATCHED, len(payloads))
	metrics.RecordRecords(p.Job, metrics.RECORD_KIND_UNRESOLVED, len(unresolved))

	for _, u := range unresolved {
		logger.Warn("record dropped",
			slog.Int("page", page.Number),
			slog.String("key", u.Key),
			slog.String("reason", u.Reason),
		)
		reporter.RecordUnresolved(ctx, page.Number, u)
	}

	submitter := BatchSubmitter[P]{
		Sink:         p.Sink,
		MaxBatchSize: p.MaxBatchSize,
		OnFailure: func(ctx context.Context, failed FailedBatch, _ []P) {
			reporter.BatchFailed(ctx, page.Number, failed)
		},
	}
	res := submitter.Submit(ctx, payloads)
	summary.Submitted = res.Submitted
	summary.Batches = res.Batches
	summary.BatchesFailed = len(res.Failed)
	summary.FailedRecords = res.FailedRecords()

	metrics.RecordRecords(p.Job, metrics.RECORD_KIND_SUBMITTED, res.Submitted)
	for i := 0; i < res.Batches-len(res.Failed); i++ {
		metrics.RecordBatch(p.Job, metrics.BATCH_STATUS_OK)
	}
	for range res.Failed {
		metrics.RecordBatch(p.Job, metrics.BATCH_STATUS_FAILED)
	}
	return summary, nil
}
