package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	syncruns "github.com/case-framework/tracker-sync-backend/pkg/db/sync-runs"
)

type memoryRunStore struct {
	runs       []*syncruns.SyncRun
	issues     []syncruns.SyncIssue
	progress   []syncruns.RunCounters
	finished   map[string]syncruns.FinishInfo
	lastRun    *syncruns.SyncRun
	startErr   error
	startPages []int
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{finished: map[string]syncruns.FinishInfo{}}
}

func (m *memoryRunStore) StartRun(runKey string, job string, name string, startPage int, _ time.Duration) (*syncruns.SyncRun, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.startPages = append(m.startPages, startPage)
	run := &syncruns.SyncRun{RunID: "run-1", RunKey: runKey, Job: job, Name: name, StartPage: startPage, Status: syncruns.SYNC_STATUS_RUNNING}
	m.runs = append(m.runs, run)
	return run, nil
}

func (m *memoryRunStore) UpdateProgress(_ string, _ int, _ int, delta syncruns.RunCounters) error {
	m.progress = append(m.progress, delta)
	return nil
}

func (m *memoryRunStore) FinishRun(runID string, info syncruns.FinishInfo) error {
	m.finished[runID] = info
	return nil
}

func (m *memoryRunStore) AddIssue(issue syncruns.SyncIssue) error {
	m.issues = append(m.issues, issue)
	return nil
}

func (m *memoryRunStore) LastFinishedRun(string) (*syncruns.SyncRun, error) {
	if m.lastRun == nil {
		return nil, mongo.ErrNoDocuments
	}
	return m.lastRun, nil
}

func TestExecuteRunRecordsProgressAndIssues(t *testing.T) {
	store := newMemoryRunStore()
	opts := RunOptions{RunKey: "k", Job: "test", Name: "test run", StartPage: 1}

	res, err := ExecuteRun(context.Background(), store, opts, func(ctx context.Context, startPage int, reporter Reporter) RunResult {
		p := Pipeline[string, string]{
			Job:          "test",
			Source:       pagesSource([]string{"a", "missing", "b"}),
			Transform:    upperTransform,
			MaxBatchSize: 1,
			Sink: func(_ context.Context, batch []string) error {
				if batch[0] == "merged-b" {
					return ErrValidationRejected
				}
				return nil
			},
			StartPage: startPage,
			Reporter:  reporter,
		}
		return p.Run(ctx)
	})
	require.NoError(t, err)
	assert.False(t, res.Aborted)

	require.Len(t, store.progress, 1)
	assert.Equal(t, syncruns.RunCounters{
		Pages:         1,
		Fetched:       3,
		Matched:       2,
		Unresolved:    1,
		Submitted:     1,
		FailedRecords: 1,
		Batches:       2,
		BatchesFailed: 1,
	}, store.progress[0])

	require.Len(t, store.issues, 2)
	assert.Equal(t, syncruns.ISSUE_TYPE_UNRESOLVED_RECORD, store.issues[0].Type)
	assert.Equal(t, "missing", store.issues[0].Key)
	assert.Equal(t, "run-1", store.issues[0].RunID)
	assert.Equal(t, syncruns.ISSUE_TYPE_FAILED_BATCH, store.issues[1].Type)
	assert.Equal(t, 1, store.issues[1].BatchIndex)

	assert.Equal(t, syncruns.FinishInfo{Status: syncruns.SYNC_STATUS_COMPLETED, NextPage: 2}, store.finished["run-1"])
}

func TestExecuteRunResumesAbortedRun(t *testing.T) {
	store := newMemoryRunStore()
	store.lastRun = &syncruns.SyncRun{RunID: "old", Status: syncruns.SYNC_STATUS_ABORTED, NextPage: 4304}

	var gotStart int
	res, err := ExecuteRun(context.Background(), store, RunOptions{RunKey: "k", StartPage: 1, Resume: true},
		func(_ context.Context, startPage int, _ Reporter) RunResult {
			gotStart = startPage
			return RunResult{
				StartPage:     startPage,
				Aborted:       true,
				AbortedAtPage: 4305,
				NextPage:      4305,
				Err:           ErrSourceUnavailable,
			}
		})
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Equal(t, 4304, gotStart)
	assert.Equal(t, []int{4304}, store.startPages)

	info := store.finished["run-1"]
	assert.Equal(t, syncruns.SYNC_STATUS_ABORTED, info.Status)
	assert.Equal(t, 4305, info.AbortedAtPage)
	assert.Equal(t, 4305, info.NextPage)
	assert.Equal(t, "source unavailable", info.Reason)
}

func TestExecuteRunDoesNotResumeCompletedRun(t *testing.T) {
	store := newMemoryRunStore()
	store.lastRun = &syncruns.SyncRun{RunID: "old", Status: syncruns.SYNC_STATUS_COMPLETED, NextPage: 90}

	_, err := ExecuteRun(context.Background(), store, RunOptions{RunKey: "k", StartPage: 2, Resume: true},
		func(_ context.Context, startPage int, _ Reporter) RunResult {
			return RunResult{StartPage: startPage}
		})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, store.startPages)
}

func TestExecuteRunLocked(t *testing.T) {
	store := newMemoryRunStore()
	store.startErr = syncruns.ErrRunInProgress

	called := false
	_, err := ExecuteRun(context.Background(), store, RunOptions{RunKey: "k"}, func(context.Context, int, Reporter) RunResult {
		called = true
		return RunResult{}
	})
	assert.True(t, errors.Is(err, syncruns.ErrRunInProgress))
	assert.False(t, called)
}

func TestExecuteRunWithoutStore(t *testing.T) {
	res, err := ExecuteRun(context.Background(), nil, RunOptions{RunKey: "k", StartPage: 0}, func(_ context.Context, startPage int, reporter Reporter) RunResult {
		assert.IsType(t, NopReporter{}, reporter)
		return RunResult{StartPage: startPage}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.StartPage)
}
