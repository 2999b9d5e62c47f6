package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/case-framework/case-backend/pkg/db"
	httpclient "github.com/case-framework/case-backend/pkg/http-client"
	"github.com/case-framework/case-backend/pkg/utils"
	"github.com/joho/godotenv"

	"github.com/case-framework/tracker-sync-backend/pkg/config"
	dbutils "github.com/case-framework/tracker-sync-backend/pkg/db"
	syncruns "github.com/case-framework/tracker-sync-backend/pkg/db/sync-runs"
	"github.com/case-framework/tracker-sync-backend/pkg/metrics"
	"github.com/case-framework/tracker-sync-backend/pkg/metrics/datadog"
	"github.com/case-framework/tracker-sync-backend/pkg/sync"
	"github.com/case-framework/tracker-sync-backend/pkg/tracker"
)

var (
	conf              config.EventTransferJobConfig
	sourceClient      *tracker.Client
	destinationClient *tracker.Client
	syncRunsDBService *syncruns.SyncRunsDBService
	metricsBackend    *datadog.Backend
)

func init() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", slog.String("error", err.Error()))
	}

	if err := config.ReadYAMLFile(os.Getenv(config.ENV_CONFIG_FILE_PATH), &conf); err != nil {
		panic(err)
	}

	utils.InitLogger(
		conf.Logging.LogLevel,
		conf.Logging.IncludeSrc,
		conf.Logging.LogToFile,
		conf.Logging.Filename,
		conf.Logging.MaxSize,
		conf.Logging.MaxAge,
		conf.Logging.MaxBackups,
		conf.Logging.CompressOldLogs,
	)

	secretsOverride()

	if err := conf.Validate(); err != nil {
		slog.Error("invalid config", slog.String("error", err.Error()))
		panic(err)
	}

	var err error
	sourceClient, err = tracker.NewClient(conf.Source.TrackerConfig())
	if err != nil {
		panic(err)
	}
	destinationClient, err = tracker.NewClient(conf.Destination.TrackerConfig())
	if err != nil {
		panic(err)
	}

	initDBs()

	initMetrics()

	if conf.SmtpBridgeConfig != nil && conf.SmtpBridgeConfig.URL != "" {
		slog.Info("SMTP bridge configured, will send run summaries")
		sync.HttpClient = &httpclient.ClientConfig{
			RootURL: conf.SmtpBridgeConfig.URL,
			APIKey:  conf.SmtpBridgeConfig.APIKey,
			Timeout: conf.SmtpBridgeConfig.RequestTimeout,
		}
	}
}

// The source instance uses DHIS2_SOURCE_*, the destination DHIS2_*.
func secretsOverride() {
	conf.Source.OverrideFromEnv(config.ENV_DHIS2_SOURCE_URL, config.ENV_DHIS2_SOURCE_USERNAME, config.ENV_DHIS2_SOURCE_PASSWORD)
	conf.Destination.OverrideFromEnv(config.ENV_DHIS2_URL, config.ENV_DHIS2_USERNAME, config.ENV_DHIS2_PASSWORD)
	config.OverrideDBSecrets(&conf.DBConfigs.SyncRunsDB)
	config.OverrideSmtpSecrets(conf.SmtpBridgeConfig)
	config.OverrideMetricsFromEnv(&conf.Metrics)
}

func initDBs() {
	if !config.DBEnabled(conf.DBConfigs.SyncRunsDB) {
		slog.Warn("sync runs DB not configured, transfers will not be recorded, locked or resumed")
		return
	}

	err := dbutils.InitDBWithRetry("sync runs", dbutils.DEFAULT_DB_INIT_MAX_RETRIES, dbutils.DEFAULT_DB_INIT_RETRY_INTERVAL, func() error {
		var err error
		syncRunsDBService, err = syncruns.NewSyncRunsDBService(db.DBConfigFromYamlObj(conf.DBConfigs.SyncRunsDB, nil))
		return err
	})
	if err != nil {
		panic(err)
	}
}

func initMetrics() {
	if !conf.Metrics.Datadog.Enabled {
		return
	}
	b, err := datadog.NewBackend(context.Background(), datadog.Options{
		JobName:    sync.EVENT_TRANSFER_JOB_NAME,
		Tags:       conf.Metrics.Datadog.Tags,
		FlushEvery: conf.Metrics.Datadog.FlushEvery,
	})
	if err != nil {
		slog.Error("could not init datadog metrics", slog.String("error", err.Error()))
		return
	}
	metricsBackend = b
	metrics.SetBackend(b)
}
