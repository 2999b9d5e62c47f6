package apihandlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	syncruns "github.com/case-framework/tracker-sync-backend/pkg/db/sync-runs"
	pc "github.com/case-framework/tracker-sync-backend/pkg/permission-checker"
)

func (h *HttpEndpoints) AddSyncRunsAPI(rg *gin.RouterGroup) {
	readPermission := RequiredPermission{
		Actions: []string{
			pc.ACTION_READ_SYNC_RUNS,
			pc.ACTION_MANAGE_SYNC_RUNS,
		},
	}

	managePermission := RequiredPermission{
		Actions: []string{
			pc.ACTION_MANAGE_SYNC_RUNS,
		},
	}

	syncRunsGroup := rg.Group("/sync-runs")
	{
		syncRunsGroup.GET("", h.useAuthorisedHandler(readPermission, h.getSyncRuns))
		syncRunsGroup.GET("/:runID", h.useAuthorisedHandler(readPermission, h.getSyncRun))
		syncRunsGroup.GET("/:runID/issues", h.useAuthorisedHandler(readPermission, h.getSyncRunIssues))
		syncRunsGroup.DELETE("/:runID/issues", h.useAuthorisedHandler(managePermission, h.deleteSyncRunIssues))
		syncRunsGroup.POST("/reset-lock", h.useAuthorisedHandler(managePermission, h.resetRunLock))
	}
}

func (h *HttpEndpoints) getSyncRuns(c *gin.Context) {
	page, limit := paginationParams(c)
	filter := syncruns.RunFilter{
		RunKey: c.Query("runKey"),
		Job:    c.Query("job"),
		Status: c.Query("status"),
	}

	slog.Debug("get sync runs", slog.String("client", c.GetString("client")), slog.String("runKey", filter.RunKey))

	runs, paginationInfo, err := h.syncRunsDBConn.GetRuns(filter, page, limit)
	if err != nil {
		slog.Error("could not get sync runs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not get sync runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":       runs,
		"pagination": paginationInfo,
	})
}

func (h *HttpEndpoints) getSyncRun(c *gin.Context) {
	runID := c.Param("runID")

	run, err := h.syncRunsDBConn.GetRunByRunID(runID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "sync run not found"})
			return
		}
		slog.Error("could not get sync run", slog.String("runID", runID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not get sync run"})
		return
	}

	c.JSON(http.StatusOK, run)
}

func (h *HttpEndpoints) getSyncRunIssues(c *gin.Context) {
	runID := c.Param("runID")
	page, limit := paginationParams(c)

	issueType := c.Query("type")
	if issueType != "" && issueType != syncruns.ISSUE_TYPE_UNRESOLVED_RECORD && issueType != syncruns.ISSUE_TYPE_FAILED_BATCH {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown issue type"})
		return
	}

	issues, paginationInfo, err := h.syncRunsDBConn.GetIssues(runID, issueType, page, limit)
	if err != nil {
		slog.Error("could not get sync issues", slog.String("runID", runID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not get sync issues"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"issues":     issues,
		"pagination": paginationInfo,
	})
}

// deleteSyncRunIssues clears the issues of a finished run.
func (h *HttpEndpoints) deleteSyncRunIssues(c *gin.Context) {
	runID := c.Param("runID")

	run, err := h.syncRunsDBConn.GetRunByRunID(runID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "sync run not found"})
			return
		}
		slog.Error("could not get sync run", slog.String("runID", runID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not get sync run"})
		return
	}
	if run.Status == syncruns.SYNC_STATUS_RUNNING {
		c.JSON(http.StatusConflict, gin.H{"error": "sync run is still running"})
		return
	}

	slog.Info("delete sync run issues", slog.String("client", c.GetString("client")), slog.String("runID", runID))

	deleted, err := h.syncRunsDBConn.DeleteIssuesByRunID(runID)
	if err != nil {
		slog.Error("could not delete sync issues", slog.String("runID", runID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete sync issues"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

type resetLockReq struct {
	RunKey string `json:"runKey" binding:"required"`
}

func (h *HttpEndpoints) resetRunLock(c *gin.Context) {
	var req resetLockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error("failed to bind request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slog.Info("reset run lock", slog.String("client", c.GetString("client")), slog.String("runKey", req.RunKey))

	released, err := h.syncRunsDBConn.ResetRunLock(req.RunKey)
	if err != nil {
		slog.Error("could not reset run lock", slog.String("runKey", req.RunKey), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not reset run lock"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"released": released})
}
