// Package config holds the yaml config types shared by the sync jobs and the
// status api, together with their validation and conversion into sync settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/case-framework/case-backend/pkg/db"

	"github.com/case-framework/tracker-sync-backend/pkg/metrics/datadog"
	"github.com/case-framework/tracker-sync-backend/pkg/sync"
	"github.com/case-framework/tracker-sync-backend/pkg/tracker"
)

const (
	ENV_CONFIG_FILE_PATH = "CONFIG_FILE_PATH"

	ENV_DHIS2_URL      = "DHIS2_URL"
	ENV_DHIS2_USERNAME = "DHIS2_USERNAME"
	ENV_DHIS2_PASSWORD = "DHIS2_PASSWORD"

	ENV_DHIS2_SOURCE_URL      = "DHIS2_SOURCE_URL"
	ENV_DHIS2_SOURCE_USERNAME = "DHIS2_SOURCE_USERNAME"
	ENV_DHIS2_SOURCE_PASSWORD = "DHIS2_SOURCE_PASSWORD"

	ENV_SYNC_RUNS_DB_USERNAME = "SYNC_RUNS_DB_USERNAME"
	ENV_SYNC_RUNS_DB_PASSWORD = "SYNC_RUNS_DB_PASSWORD"

	ENV_SMTP_BRIDGE_API_KEY = "SMTP_BRIDGE_API_KEY"
	ENV_DD_API_KEY          = "DD_API_KEY"
	ENV_DD_TAGS             = "DD_TAGS"
)

const (
	DEFAULT_LOCK_TIMEOUT      = 6 * time.Hour
	DEFAULT_MAX_PARALLEL_RUNS = 1
)

type DHIS2Connection struct {
	URL      string        `json:"url" yaml:"url"`
	Username string        `json:"username" yaml:"username"`
	Password string        `json:"password" yaml:"password"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

func (c DHIS2Connection) TrackerConfig() tracker.Config {
	return tracker.Config{
		BaseURL:  c.URL,
		Username: c.Username,
		Password: c.Password,
		Timeout:  c.Timeout,
	}
}

// OverrideFromEnv replaces url and credentials with the non-empty values of
// the given environment variables.
func (c *DHIS2Connection) OverrideFromEnv(urlEnv string, usernameEnv string, passwordEnv string) {
	if v := os.Getenv(urlEnv); v != "" {
		c.URL = v
	}
	if v := os.Getenv(usernameEnv); v != "" {
		c.Username = v
	}
	if v := os.Getenv(passwordEnv); v != "" {
		c.Password = v
	}
}

type SmtpBridgeConfig struct {
	URL            string        `json:"url" yaml:"url"`
	APIKey         string        `json:"api_key" yaml:"api_key"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

type DatadogConfig struct {
	Enabled    bool          `json:"enabled" yaml:"enabled"`
	Tags       []string      `json:"tags" yaml:"tags"`
	FlushEvery time.Duration `json:"flush_every" yaml:"flush_every"`
}

type MetricsConfig struct {
	Datadog DatadogConfig `json:"datadog" yaml:"datadog"`
}

// RunSettings are shared by every run of a job unless the run overrides them.
type RunSettings struct {
	LockTimeout     time.Duration       `json:"lock_timeout" yaml:"lock_timeout"`
	MaxParallelRuns int                 `json:"max_parallel_runs" yaml:"max_parallel_runs"`
	Retry           sync.RetryPolicy    `json:"retry" yaml:"retry"`
	Notify          sync.NotifySettings `json:"notify" yaml:"notify"`
}

func (s RunSettings) GetLockTimeout() time.Duration {
	if s.LockTimeout <= 0 {
		return DEFAULT_LOCK_TIMEOUT
	}
	return s.LockTimeout
}

func (s RunSettings) GetMaxParallelRuns() int {
	if s.MaxParallelRuns < 1 {
		return DEFAULT_MAX_PARALLEL_RUNS
	}
	return s.MaxParallelRuns
}

// ReadYAMLFile strictly decodes the yaml file at path into out.
func ReadYAMLFile(path string, out any) error {
	if path == "" {
		return errors.New("config file path is empty, set " + ENV_CONFIG_FILE_PATH)
	}
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(yamlFile, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// OverrideDBSecrets applies SYNC_RUNS_DB_USERNAME / SYNC_RUNS_DB_PASSWORD.
func OverrideDBSecrets(c *db.DBConfigYaml) {
	if dbUsername := os.Getenv(ENV_SYNC_RUNS_DB_USERNAME); dbUsername != "" {
		c.Username = dbUsername
	}
	if dbPassword := os.Getenv(ENV_SYNC_RUNS_DB_PASSWORD); dbPassword != "" {
		c.Password = dbPassword
	}
}

// OverrideSmtpSecrets applies SMTP_BRIDGE_API_KEY when a bridge is configured.
func OverrideSmtpSecrets(c *SmtpBridgeConfig) {
	if c == nil {
		return
	}
	if apiKey := os.Getenv(ENV_SMTP_BRIDGE_API_KEY); apiKey != "" {
		c.APIKey = apiKey
	}
}

// OverrideMetricsFromEnv appends the comma separated DD_TAGS to the datadog tags.
func OverrideMetricsFromEnv(c *MetricsConfig) {
	c.Datadog.Tags = append(c.Datadog.Tags, datadog.ParseTagsCSV(os.Getenv(ENV_DD_TAGS))...)
}

// DBEnabled reports whether run bookkeeping is configured.
func DBEnabled(c db.DBConfigYaml) bool {
	return c.ConnectionStr != ""
}
