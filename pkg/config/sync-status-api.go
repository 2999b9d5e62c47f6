package config

import (
	"errors"

	"github.com/case-framework/case-backend/pkg/apihelpers"
	"github.com/case-framework/case-backend/pkg/db"
	"github.com/case-framework/case-backend/pkg/utils"

	pc "github.com/case-framework/tracker-sync-backend/pkg/permission-checker"
)

// SyncStatusApiConfig is the config file of the sync status API.
type SyncStatusApiConfig struct {
	// Logging configs
	Logging utils.LoggerConfig `json:"logging" yaml:"logging"`

	// Gin configs
	GinConfig struct {
		DebugMode    bool     `json:"debug_mode" yaml:"debug_mode"`
		AllowOrigins []string `json:"allow_origins" yaml:"allow_origins"`
		Port         string   `json:"port" yaml:"port"`

		// Mutual TLS configs
		MTLS struct {
			Use              bool                        `json:"use" yaml:"use"`
			CertificatePaths apihelpers.CertificatePaths `json:"certificate_paths" yaml:"certificate_paths"`
		} `json:"mtls" yaml:"mtls"`
	} `json:"gin_config" yaml:"gin_config"`

	APIKeys []pc.APIKey `json:"api_keys" yaml:"api_keys"`

	// DB configs
	DBConfigs struct {
		SyncRunsDB db.DBConfigYaml `json:"sync_runs_db" yaml:"sync_runs_db"`
	} `json:"db_configs" yaml:"db_configs"`
}

func (c SyncStatusApiConfig) Validate() error {
	if c.GinConfig.Port == "" {
		return errors.New("gin_config.port is required")
	}
	if c.GinConfig.MTLS.Use {
		paths := c.GinConfig.MTLS.CertificatePaths
		if paths.ServerCertPath == "" || paths.ServerKeyPath == "" {
			return errors.New("gin_config.mtls needs server certificate and key paths")
		}
	}
	return nil
}
