package apihandlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	syncruns "github.com/case-framework/tracker-sync-backend/pkg/db/sync-runs"
	pc "github.com/case-framework/tracker-sync-backend/pkg/permission-checker"
)

const (
	readKey   = "read-key"
	manageKey = "manage-key"
)

type fakeStore struct {
	runs        []syncruns.SyncRun
	issues      []syncruns.SyncIssue
	lastFilter  syncruns.RunFilter
	lastPage    int64
	lastLimit   int64
	lastType    string
	resetKeys   []string
	deletedRuns []string
	errGetRuns  error
	runsByRunID map[string]syncruns.SyncRun
}

func (f *fakeStore) GetRuns(filter syncruns.RunFilter, page int64, limit int64) ([]syncruns.SyncRun, syncruns.PaginationInfos, error) {
	f.lastFilter, f.lastPage, f.lastLimit = filter, page, limit
	if f.errGetRuns != nil {
		return nil, syncruns.PaginationInfos{}, f.errGetRuns
	}
	return f.runs, syncruns.PaginationInfos{TotalCount: int64(len(f.runs)), CurrentPage: page, TotalPages: 1, PageSize: limit}, nil
}

func (f *fakeStore) GetRunByRunID(runID string) (*syncruns.SyncRun, error) {
	run, ok := f.runsByRunID[runID]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return &run, nil
}

func (f *fakeStore) GetIssues(runID string, issueType string, page int64, limit int64) ([]syncruns.SyncIssue, syncruns.PaginationInfos, error) {
	f.lastType, f.lastPage, f.lastLimit = issueType, page, limit
	out := []syncruns.SyncIssue{}
	for _, i := range f.issues {
		if i.RunID == runID {
			out = append(out, i)
		}
	}
	return out, syncruns.PaginationInfos{TotalCount: int64(len(out)), CurrentPage: page, PageSize: limit}, nil
}

func (f *fakeStore) ResetRunLock(runKey string) (int64, error) {
	f.resetKeys = append(f.resetKeys, runKey)
	return 1, nil
}

func (f *fakeStore) DeleteIssuesByRunID(runID string) (int64, error) {
	f.deletedRuns = append(f.deletedRuns, runID)
	var kept []syncruns.SyncIssue
	var deleted int64
	for _, i := range f.issues {
		if i.RunID == runID {
			deleted++
			continue
		}
		kept = append(kept, i)
	}
	f.issues = kept
	return deleted, nil
}

func setupRouter(store *fakeStore) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := NewHTTPHandler(store, pc.StaticKeys{
		{Name: "dashboard", Key: readKey, Actions: []string{pc.ACTION_READ_SYNC_RUNS}},
		{Name: "ops", Key: manageKey, Actions: []string{pc.ACTION_MANAGE_SYNC_RUNS}},
	})

	router := gin.New()
	router.GET("/", HealthCheckHandle)
	h.AddSyncRunsAPI(router.Group("/v1"))
	return router
}

func doRequest(router *gin.Engine, method string, path string, key string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(API_KEY_HEADER, key)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	w := doRequest(setupRouter(&fakeStore{}), http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestGetSyncRuns(t *testing.T) {
	store := &fakeStore{runs: []syncruns.SyncRun{
		{RunID: "r1", RunKey: "stage-sync:ou:stage:2022", Status: syncruns.SYNC_STATUS_ABORTED, NextPage: 4304},
	}}
	router := setupRouter(store)

	t.Run("without key", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/v1/sync-runs", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("with unknown key", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/v1/sync-runs", "nope", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("with read key", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/v1/sync-runs?runKey=stage-sync:ou:stage:2022&page=2&limit=5", readKey, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Runs       []syncruns.SyncRun       `json:"runs"`
			Pagination syncruns.PaginationInfos `json:"pagination"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Runs, 1)
		assert.Equal(t, 4304, resp.Runs[0].NextPage)
		assert.Equal(t, int64(2), resp.Pagination.CurrentPage)

		assert.Equal(t, "stage-sync:ou:stage:2022", store.lastFilter.RunKey)
		assert.Equal(t, int64(2), store.lastPage)
		assert.Equal(t, int64(5), store.lastLimit)
	})

	t.Run("bad pagination falls back to defaults", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/v1/sync-runs?page=x&limit=-3", manageKey, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(1), store.lastPage)
		assert.Equal(t, int64(DEFAULT_PAGE_SIZE), store.lastLimit)
	})

	t.Run("db error", func(t *testing.T) {
		store.errGetRuns = errors.New("db down")
		defer func() { store.errGetRuns = nil }()

		w := doRequest(router, http.MethodGet, "/v1/sync-runs", readKey, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestGetSyncRun(t *testing.T) {
	store := &fakeStore{runsByRunID: map[string]syncruns.SyncRun{
		"r1": {RunID: "r1", Status: syncruns.SYNC_STATUS_COMPLETED},
	}}
	router := setupRouter(store)

	w := doRequest(router, http.MethodGet, "/v1/sync-runs/r1", readKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"completed"`)

	w = doRequest(router, http.MethodGet, "/v1/sync-runs/missing", readKey, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSyncRunIssues(t *testing.T) {
	store := &fakeStore{issues: []syncruns.SyncIssue{
		{RunID: "r1", Type: syncruns.ISSUE_TYPE_UNRESOLVED_RECORD, Key: "te1", Message: "no destination tracked entity"},
		{RunID: "r2", Type: syncruns.ISSUE_TYPE_FAILED_BATCH},
	}}
	router := setupRouter(store)

	w := doRequest(router, http.MethodGet, "/v1/sync-runs/r1/issues?type=unresolved_record", readKey, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Issues []syncruns.SyncIssue `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Issues, 1)
	assert.Equal(t, "te1", resp.Issues[0].Key)
	assert.Equal(t, syncruns.ISSUE_TYPE_UNRESOLVED_RECORD, store.lastType)

	w = doRequest(router, http.MethodGet, "/v1/sync-runs/r1/issues?type=other", readKey, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetRunLock(t *testing.T) {
	store := &fakeStore{}
	router := setupRouter(store)

	w := doRequest(router, http.MethodPost, "/v1/sync-runs/reset-lock", readKey, `{"runKey":"k"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, store.resetKeys)

	w = doRequest(router, http.MethodPost, "/v1/sync-runs/reset-lock", manageKey, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/v1/sync-runs/reset-lock", manageKey, `{"runKey":"k"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"released":1}`, w.Body.String())
	assert.Equal(t, []string{"k"}, store.resetKeys)
}

func TestDeleteSyncRunIssues(t *testing.T) {
	store := &fakeStore{
		runsByRunID: map[string]syncruns.SyncRun{
			"r1": {RunID: "r1", Status: syncruns.SYNC_STATUS_ABORTED},
			"r2": {RunID: "r2", Status: syncruns.SYNC_STATUS_RUNNING},
		},
		issues: []syncruns.SyncIssue{
			{RunID: "r1", Type: syncruns.ISSUE_TYPE_UNRESOLVED_RECORD},
			{RunID: "r1", Type: syncruns.ISSUE_TYPE_FAILED_BATCH},
			{RunID: "r2", Type: syncruns.ISSUE_TYPE_FAILED_BATCH},
		},
	}
	router := setupRouter(store)

	w := doRequest(router, http.MethodDelete, "/v1/sync-runs/r1/issues", readKey, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodDelete, "/v1/sync-runs/missing/issues", manageKey, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodDelete, "/v1/sync-runs/r2/issues", manageKey, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodDelete, "/v1/sync-runs/r1/issues", manageKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":2}`, w.Body.String())
	assert.Equal(t, []string{"r1"}, store.deletedRuns)
	require.Len(t, store.issues, 1)
	assert.Equal(t, "r2", store.issues[0].RunID)
}
