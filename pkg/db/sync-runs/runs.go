package syncruns

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrRunInProgress = errors.New("another run with the same key is in progress")
)

func (dbService *SyncRunsDBService) collectionSyncRuns() *mongo.Collection {
	return dbService.DBClient.Database(dbService.getDBName()).Collection(COL_NAME_SYNC_RUNS)
}

func (dbService *SyncRunsDBService) createIndexesForSyncRuns() error {
	ctx, cancel := dbService.getContext()
	defer cancel()
	_, err := dbService.collectionSyncRuns().Indexes().CreateMany(
		ctx,
		[]mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "runId", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{
					{Key: "runKey", Value: 1},
					{Key: "startedAt", Value: -1},
				},
			},
			{
				// at most one running run per key
				Keys: bson.D{{Key: "runKey", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("runKey_running_lock").
					SetPartialFilterExpression(bson.M{"status": SYNC_STATUS_RUNNING}),
			},
		},
	)
	return err
}

// StartRun registers a new running run for runKey. Runs of the same key still
// marked running after lockTimeout are considered dead and marked aborted
// first. If a live run holds the key, ErrRunInProgress is returned.
func (dbService *SyncRunsDBService) StartRun(runKey string, job string, name string, startPage int, lockTimeout time.Duration) (*SyncRun, error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	now := time.Now()
	if lockTimeout > 0 {
		res, err := dbService.collectionSyncRuns().UpdateMany(ctx,
			staleRunsFilter(runKey, now, lockTimeout),
			bson.M{"$set": bson.M{
				"status":     SYNC_STATUS_ABORTED,
				"reason":     "lock expired",
				"updatedAt":  now,
				"finishedAt": now,
			}},
		)
		if err != nil {
			return nil, err
		}
		if res.ModifiedCount > 0 {
			slog.Warn("released expired run lock", slog.String("runKey", runKey), slog.Int64("runs", res.ModifiedCount))
		}
	}

	running, err := dbService.collectionSyncRuns().CountDocuments(ctx, bson.M{"runKey": runKey, "status": SYNC_STATUS_RUNNING})
	if err != nil {
		return nil, err
	}
	if running > 0 {
		return nil, ErrRunInProgress
	}

	run := SyncRun{
		RunID:     uuid.NewString(),
		RunKey:    runKey,
		Job:       job,
		Name:      name,
		Status:    SYNC_STATUS_RUNNING,
		StartPage: startPage,
		NextPage:  startPage,
		StartedAt: now,
		UpdatedAt: now,
	}
	if _, err := dbService.collectionSyncRuns().InsertOne(ctx, run); err != nil {
		// lost the race against a concurrent start
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrRunInProgress
		}
		return nil, err
	}
	return &run, nil
}

func (dbService *SyncRunsDBService) UpdateProgress(runID string, lastPage int, nextPage int, delta RunCounters) error {
	ctx, cancel := dbService.getContext()
	defer cancel()

	filter := bson.M{"runId": runID}
	update := bson.M{
		"$set": bson.M{
			"lastPage":  lastPage,
			"nextPage":  nextPage,
			"updatedAt": time.Now(),
		},
		"$inc": counterIncrements(delta),
	}
	_, err := dbService.collectionSyncRuns().UpdateOne(ctx, filter, update)
	return err
}

func (dbService *SyncRunsDBService) FinishRun(runID string, info FinishInfo) error {
	ctx, cancel := dbService.getContext()
	defer cancel()

	now := time.Now()
	filter := bson.M{"runId": runID, "status": SYNC_STATUS_RUNNING}
	set := bson.M{
		"status":     info.Status,
		"nextPage":   info.NextPage,
		"updatedAt":  now,
		"finishedAt": now,
	}
	if info.AbortedAtPage > 0 {
		set["abortedAtPage"] = info.AbortedAtPage
	}
	if info.Reason != "" {
		set["reason"] = info.Reason
	}
	res, err := dbService.collectionSyncRuns().UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount < 1 {
		return errors.New("run not found or not running")
	}
	return nil
}

// ResetRunLock marks every running run of runKey as aborted so a new run can
// start. It returns the number of released runs.
func (dbService *SyncRunsDBService) ResetRunLock(runKey string) (int64, error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	now := time.Now()
	res, err := dbService.collectionSyncRuns().UpdateMany(ctx,
		bson.M{"runKey": runKey, "status": SYNC_STATUS_RUNNING},
		bson.M{"$set": bson.M{
			"status":     SYNC_STATUS_ABORTED,
			"reason":     "lock reset",
			"updatedAt":  now,
			"finishedAt": now,
		}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (dbService *SyncRunsDBService) GetRunByRunID(runID string) (*SyncRun, error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	var run SyncRun
	err := dbService.collectionSyncRuns().FindOne(ctx, bson.M{"runId": runID}).Decode(&run)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// LastFinishedRun returns the most recently started run of runKey that is no
// longer running, or mongo.ErrNoDocuments.
func (dbService *SyncRunsDBService) LastFinishedRun(runKey string) (*SyncRun, error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	filter := bson.M{"runKey": runKey, "status": bson.M{"$ne": SYNC_STATUS_RUNNING}}
	opts := options.FindOne().SetSort(bson.D{{Key: "startedAt", Value: -1}})

	var run SyncRun
	if err := dbService.collectionSyncRuns().FindOne(ctx, filter, opts).Decode(&run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (dbService *SyncRunsDBService) GetRuns(f RunFilter, page int64, limit int64) (runs []SyncRun, paginationInfo PaginationInfos, err error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	filter := buildRunsFilter(f)

	count, err := dbService.collectionSyncRuns().CountDocuments(ctx, filter)
	if err != nil {
		return runs, paginationInfo, err
	}

	paginationInfo = prepPaginationInfos(
		count,
		page,
		limit,
	)

	opts := options.Find()
	opts.SetLimit(paginationInfo.PageSize)
	opts.SetSkip((paginationInfo.CurrentPage - 1) * paginationInfo.PageSize)
	opts.SetSort(bson.D{{Key: "startedAt", Value: -1}, {Key: "_id", Value: 1}})
	opts.SetNoCursorTimeout(dbService.noCursorTimeout)
	cur, err := dbService.collectionSyncRuns().Find(ctx, filter, opts)
	if err != nil {
		return nil, paginationInfo, err
	}
	defer cur.Close(ctx)

	runs = []SyncRun{}
	if err := cur.All(ctx, &runs); err != nil {
		return nil, paginationInfo, err
	}
	return runs, paginationInfo, nil
}
