package syncruns

import (
	"context"
	"log/slog"
	"time"

	"github.com/case-framework/case-backend/pkg/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	COL_NAME_SYNC_RUNS   = "sync_runs"
	COL_NAME_SYNC_ISSUES = "sync_issues"
)

const (
	REMOVE_ISSUES_AFTER = 60 * 60 * 24 * 90 // 90 days
)

type SyncRunsDBService struct {
	DBClient        *mongo.Client
	timeout         int
	noCursorTimeout bool
	DBNamePrefix    string
}

func NewSyncRunsDBService(configs db.DBConfig) (*SyncRunsDBService, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(configs.Timeout)*time.Second)
	defer cancel()

	dbClient, err := mongo.Connect(ctx,
		options.Client().ApplyURI(configs.URI),
		options.Client().SetMaxConnIdleTime(time.Duration(configs.IdleConnTimeout)*time.Second),
		options.Client().SetMaxPoolSize(configs.MaxPoolSize),
	)

	if err != nil {
		return nil, err
	}

	ctx, conCancel := context.WithTimeout(context.Background(), time.Duration(configs.Timeout)*time.Second)
	err = dbClient.Ping(ctx, nil)
	defer conCancel()

	if err != nil {
		return nil, err
	}

	srDBSc := &SyncRunsDBService{
		DBClient:        dbClient,
		timeout:         configs.Timeout,
		noCursorTimeout: configs.NoCursorTimeout,
		DBNamePrefix:    configs.DBNamePrefix,
	}

	if configs.RunIndexCreation {
		if err := srDBSc.ensureIndexes(); err != nil {
			slog.Error("Error ensuring indexes for sync runs DB", slog.String("error", err.Error()))
		}
	}

	return srDBSc, nil
}

func (dbService *SyncRunsDBService) Close() error {
	ctx, cancel := dbService.getContext()
	defer cancel()
	return dbService.DBClient.Disconnect(ctx)
}

func (dbService *SyncRunsDBService) getDBName() string {
	return dbService.DBNamePrefix + "tracker_sync"
}

func (dbService *SyncRunsDBService) getContext() (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(dbService.timeout)*time.Second)
}

func (dbService *SyncRunsDBService) ensureIndexes() error {
	slog.Debug("Ensuring indexes for sync runs db")

	if err := dbService.createIndexesForSyncRuns(); err != nil {
		slog.Error("Error creating indexes for sync runs: ", slog.String("error", err.Error()))
	}

	ctx, cancel := dbService.getContext()
	defer cancel()

	_, err := dbService.collectionSyncIssues().Indexes().CreateMany(
		ctx,
		[]mongo.IndexModel{
			{
				Keys: bson.D{
					{Key: "runId", Value: 1},
					{Key: "createdAt", Value: 1},
				},
			},
			{
				Keys:    bson.D{{Key: "createdAt", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(REMOVE_ISSUES_AFTER),
			},
		},
	)
	if err != nil {
		slog.Error("Error creating indexes for sync issues: ", slog.String("error", err.Error()))
	}
	return nil
}
