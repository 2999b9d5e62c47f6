package syncruns

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SYNC_STATUS_RUNNING   = "running"
	SYNC_STATUS_COMPLETED = "completed"
	SYNC_STATUS_ABORTED   = "aborted"
)

const (
	ISSUE_TYPE_UNRESOLVED_RECORD = "unresolved_record"
	ISSUE_TYPE_FAILED_BATCH      = "failed_batch"
)

type RunCounters struct {
	Pages         int `json:"pages" bson:"pages"`
	Fetched       int `json:"fetched" bson:"fetched"`
	Matched       int `json:"matched" bson:"matched"`
	Unresolved    int `json:"unresolved" bson:"unresolved"`
	Submitted     int `json:"submitted" bson:"submitted"`
	FailedRecords int `json:"failedRecords" bson:"failedRecords"`
	Batches       int `json:"batches" bson:"batches"`
	BatchesFailed int `json:"batchesFailed" bson:"batchesFailed"`
}

type SyncRun struct {
	ID            primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	RunID         string             `json:"runId" bson:"runId"`
	RunKey        string             `json:"runKey" bson:"runKey"`
	Job           string             `json:"job" bson:"job"`
	Name          string             `json:"name,omitempty" bson:"name,omitempty"`
	Status        string             `json:"status" bson:"status"`
	StartPage     int                `json:"startPage" bson:"startPage"`
	LastPage      int                `json:"lastPage" bson:"lastPage"`
	NextPage      int                `json:"nextPage" bson:"nextPage"`
	AbortedAtPage int                `json:"abortedAtPage,omitempty" bson:"abortedAtPage,omitempty"`
	Reason        string             `json:"reason,omitempty" bson:"reason,omitempty"`
	Counters      RunCounters        `json:"counters" bson:"counters"`
	StartedAt     time.Time          `json:"startedAt" bson:"startedAt"`
	UpdatedAt     time.Time          `json:"updatedAt" bson:"updatedAt"`
	FinishedAt    *time.Time         `json:"finishedAt,omitempty" bson:"finishedAt,omitempty"`
}

type FinishInfo struct {
	Status        string
	NextPage      int
	AbortedAtPage int
	Reason        string
}

type SyncIssue struct {
	ID         primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	RunID      string             `json:"runId" bson:"runId"`
	RunKey     string             `json:"runKey" bson:"runKey"`
	Type       string             `json:"type" bson:"type"`
	Page       int                `json:"page" bson:"page"`
	Key        string             `json:"key,omitempty" bson:"key,omitempty"`
	BatchIndex int                `json:"batchIndex,omitempty" bson:"batchIndex,omitempty"`
	BatchSize  int                `json:"batchSize,omitempty" bson:"batchSize,omitempty"`
	Message    string             `json:"message" bson:"message"`
	CreatedAt  time.Time          `json:"createdAt" bson:"createdAt"`
}

type RunFilter struct {
	RunKey string
	Job    string
	Status string
}

type PaginationInfos struct {
	TotalCount  int64 `json:"totalCount"`
	CurrentPage int64 `json:"currentPage"`
	TotalPages  int64 `json:"totalPages"`
	PageSize    int64 `json:"pageSize"`
}
