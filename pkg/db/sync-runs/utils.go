package syncruns

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	FALLBACK_PAGE_SIZE = 10
)

func prepPaginationInfos(totalCount int64, page int64, limit int64) PaginationInfos {
	if limit == 0 {
		limit = FALLBACK_PAGE_SIZE
	}

	if totalCount < limit {
		page = 1
	}

	if page < 1 {
		page = 1
	}

	return PaginationInfos{
		PageSize:    limit,
		TotalCount:  totalCount,
		TotalPages:  getTotalPages(totalCount, limit),
		CurrentPage: page,
	}
}

func getTotalPages(totalCount int64, limit int64) int64 {
	if limit == 0 {
		return 0
	}
	return (totalCount + limit - 1) / limit
}

func buildRunsFilter(f RunFilter) bson.M {
	filter := bson.M{}
	if f.RunKey != "" {
		filter["runKey"] = f.RunKey
	}
	if f.Job != "" {
		filter["job"] = f.Job
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	return filter
}

// staleRunsFilter matches runs of runKey that are still marked running but
// started before now-lockTimeout. Their process is assumed to be gone.
func staleRunsFilter(runKey string, now time.Time, lockTimeout time.Duration) bson.M {
	return bson.M{
		"runKey":    runKey,
		"status":    SYNC_STATUS_RUNNING,
		"startedAt": bson.M{"$lt": now.Add(-lockTimeout)},
	}
}

func counterIncrements(delta RunCounters) bson.M {
	return bson.M{
		"counters.pages":         delta.Pages,
		"counters.fetched":       delta.Fetched,
		"counters.matched":       delta.Matched,
		"counters.unresolved":    delta.Unresolved,
		"counters.submitted":     delta.Submitted,
		"counters.failedRecords": delta.FailedRecords,
		"counters.batches":       delta.Batches,
		"counters.batchesFailed": delta.BatchesFailed,
	}
}
