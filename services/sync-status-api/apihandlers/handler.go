package apihandlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	syncruns "github.com/case-framework/tracker-sync-backend/pkg/db/sync-runs"
	pc "github.com/case-framework/tracker-sync-backend/pkg/permission-checker"
)

func HealthCheckHandle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SyncRunsStore is the part of *syncruns.SyncRunsDBService the api reads and
// manages runs through.
type SyncRunsStore interface {
	GetRuns(f syncruns.RunFilter, page int64, limit int64) ([]syncruns.SyncRun, syncruns.PaginationInfos, error)
	GetRunByRunID(runID string) (*syncruns.SyncRun, error)
	GetIssues(runID string, issueType string, page int64, limit int64) ([]syncruns.SyncIssue, syncruns.PaginationInfos, error)
	ResetRunLock(runKey string) (int64, error)
	DeleteIssuesByRunID(runID string) (int64, error)
}

type HttpEndpoints struct {
	syncRunsDBConn SyncRunsStore
}

func NewHTTPHandler(
	syncRunsDBConn SyncRunsStore,
	keys pc.KeyStore,
) *HttpEndpoints {
	pc.Keys = keys

	return &HttpEndpoints{
		syncRunsDBConn: syncRunsDBConn,
	}
}
