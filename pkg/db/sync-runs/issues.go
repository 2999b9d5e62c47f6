package syncruns

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (dbService *SyncRunsDBService) collectionSyncIssues() *mongo.Collection {
	return dbService.DBClient.Database(dbService.getDBName()).Collection(COL_NAME_SYNC_ISSUES)
}

func (dbService *SyncRunsDBService) AddIssue(issue SyncIssue) error {
	ctx, cancel := dbService.getContext()
	defer cancel()

	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now()
	}
	_, err := dbService.collectionSyncIssues().InsertOne(ctx, issue)
	return err
}

func (dbService *SyncRunsDBService) GetIssues(runID string, issueType string, page int64, limit int64) (issues []SyncIssue, paginationInfo PaginationInfos, err error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	filter := bson.M{"runId": runID}
	if issueType != "" {
		filter["type"] = issueType
	}

	count, err := dbService.collectionSyncIssues().CountDocuments(ctx, filter)
	if err != nil {
		return issues, paginationInfo, err
	}

	paginationInfo = prepPaginationInfos(
		count,
		page,
		limit,
	)

	opts := options.Find()
	opts.SetLimit(paginationInfo.PageSize)
	opts.SetSkip((paginationInfo.CurrentPage - 1) * paginationInfo.PageSize)
	opts.SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := dbService.collectionSyncIssues().Find(ctx, filter, opts)
	if err != nil {
		return nil, paginationInfo, err
	}
	defer cur.Close(ctx)

	issues = []SyncIssue{}
	if err := cur.All(ctx, &issues); err != nil {
		return nil, paginationInfo, err
	}
	return issues, paginationInfo, nil
}

func (dbService *SyncRunsDBService) DeleteIssuesByRunID(runID string) (int64, error) {
	ctx, cancel := dbService.getContext()
	defer cancel()

	res, err := dbService.collectionSyncIssues().DeleteMany(ctx, bson.M{"runId": runID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
