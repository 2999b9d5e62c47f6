package config

import (
	"errors"
	"fmt"

	"github.com/case-framework/case-backend/pkg/db"
	"github.com/case-framework/case-backend/pkg/utils"

	"github.com/case-framework/tracker-sync-backend/pkg/sync"
)

// EventTransferJobConfig is the config file of the event transfer job. Source
// is read through the legacy events api, Destination receives /tracker imports.
type EventTransferJobConfig struct {
	Logging utils.LoggerConfig `json:"logging" yaml:"logging"`

	Source      DHIS2Connection `json:"source" yaml:"source"`
	Destination DHIS2Connection `json:"destination" yaml:"destination"`

	DBConfigs struct {
		SyncRunsDB db.DBConfigYaml `json:"sync_runs_db" yaml:"sync_runs_db"`
	} `json:"db_configs" yaml:"db_configs"`

	SmtpBridgeConfig *SmtpBridgeConfig `json:"smtp_bridge_config" yaml:"smtp_bridge_config"`

	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	RunSettings RunSettings `json:"run_settings" yaml:"run_settings"`

	Transfers []TransferRun `json:"transfers" yaml:"transfers"`
}

type TransferRun struct {
	Name           string               `json:"name" yaml:"name"`
	OrgUnit        string               `json:"org_unit" yaml:"org_unit"`
	OuMode         string               `json:"ou_mode" yaml:"ou_mode"`
	Program        string               `json:"program" yaml:"program"`
	StartPage      int                  `json:"start_page" yaml:"start_page"`
	PageSize       int                  `json:"page_size" yaml:"page_size"`
	MaxBatchSize   int                  `json:"max_batch_size" yaml:"max_batch_size"`
	Async          *bool                `json:"async" yaml:"async"`
	ImportStrategy string               `json:"import_strategy" yaml:"import_strategy"`
	AtomicMode     string               `json:"atomic_mode" yaml:"atomic_mode"`
	Resume         bool                 `json:"resume" yaml:"resume"`
	Retry          *sync.RetryPolicy    `json:"retry" yaml:"retry"`
	Notify         *sync.NotifySettings `json:"notify" yaml:"notify"`
}

func (c EventTransferJobConfig) Validate() error {
	var errs []error
	if c.Source.URL == "" {
		errs = append(errs, errors.New("source.url is required"))
	}
	if c.Destination.URL == "" {
		errs = append(errs, errors.New("destination.url is required"))
	}
	if len(c.Transfers) == 0 {
		errs = append(errs, errors.New("no transfers configured"))
	}
	for i, t := range c.Transfers {
		if _, err := t.TransferConfig(c.RunSettings); err != nil {
			errs = append(errs, fmt.Errorf("transfers[%d] %q: %w", i, t.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (t TransferRun) TransferConfig(defaults RunSettings) (sync.TransferConfig, error) {
	async := true
	if t.Async != nil {
		async = *t.Async
	}
	retry := defaults.Retry
	if t.Retry != nil {
		retry = *t.Retry
	}

	cfg := sync.TransferConfig{
		Name:         t.Name,
		OrgUnit:      t.OrgUnit,
		OuMode:       t.OuMode,
		Program:      t.Program,
		StartPage:    t.StartPage,
		PageSize:     t.PageSize,
		MaxBatchSize: t.MaxBatchSize,
		Async:        async,
		Retry:        retry,

		ImportStrategy: t.ImportStrategy,
		AtomicMode:     t.AtomicMode,
	}
	if err := cfg.Validate(); err != nil {
		return sync.TransferConfig{}, err
	}
	return cfg, nil
}

func (t TransferRun) RunOptions(cfg sync.TransferConfig, defaults RunSettings) sync.RunOptions {
	notify := defaults.Notify
	if t.Notify != nil {
		notify = *t.Notify
	}
	return sync.RunOptions{
		RunKey:      cfg.RunKey(),
		Job:         sync.EVENT_TRANSFER_JOB_NAME,
		Name:        t.Name,
		StartPage:   cfg.StartPage,
		Resume:      t.Resume,
		LockTimeout: defaults.GetLockTimeout(),
		Notify:      notify,
	}
}
