package main

import (
	"log/slog"
	"os"

	"github.com/case-framework/case-backend/pkg/db"
	"github.com/case-framework/case-backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/case-framework/tracker-sync-backend/pkg/config"
	dbutils "github.com/case-framework/tracker-sync-backend/pkg/db"
	syncruns "github.com/case-framework/tracker-sync-backend/pkg/db/sync-runs"
	pc "github.com/case-framework/tracker-sync-backend/pkg/permission-checker"
)

const (
	ENV_ADMIN_API_KEY = "SYNC_STATUS_ADMIN_API_KEY"
)

var (
	conf              config.SyncStatusApiConfig
	syncRunsDBService *syncruns.SyncRunsDBService
)

func init() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", slog.String("error", err.Error()))
	}

	// Read config from file
	if err := config.ReadYAMLFile(os.Getenv(config.ENV_CONFIG_FILE_PATH), &conf); err != nil {
		panic(err)
	}
	if err := conf.Validate(); err != nil {
		panic(err)
	}

	// Init logger:
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

	// Override secrets from environment variables
	secretsOverride()

	if len(conf.APIKeys) == 0 {
		slog.Warn("no api keys configured, every sync run endpoint will answer 401")
	}

	// Init DBs
	initDBs()

	if !conf.GinConfig.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
}

func secretsOverride() {
	config.OverrideDBSecrets(&conf.DBConfigs.SyncRunsDB)

	if adminKey := os.Getenv(ENV_ADMIN_API_KEY); adminKey != "" {
		conf.APIKeys = append(conf.APIKeys, pc.APIKey{Name: "admin", Key: adminKey, IsAdmin: true})
	}
}

func initDBs() {
	err := dbutils.InitDBWithRetry("sync runs", dbutils.DEFAULT_DB_INIT_MAX_RETRIES, dbutils.DEFAULT_DB_INIT_RETRY_INTERVAL, func() error {
		var err error
		syncRunsDBService, err = syncruns.NewSyncRunsDBService(db.DBConfigFromYamlObj(conf.DBConfigs.SyncRunsDB, nil))
		return err
	})
	if err != nil {
		panic(err)
	}
}
