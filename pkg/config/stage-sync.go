package config

import (
	"errors"
	"fmt"

	"github.com/case-framework/case-backend/pkg/db"
	"github.com/case-framework/case-backend/pkg/utils"

	"github.com/case-framework/tracker-sync-backend/pkg/sync"
)

// StageSyncJobConfig is the config file of the stage sync job.
type StageSyncJobConfig struct {
	// Logging configs
	Logging utils.LoggerConfig `json:"logging" yaml:"logging"`

	DHIS2 DHIS2Connection `json:"dhis2" yaml:"dhis2"`

	// DB configs, sync runs are only recorded when connection_str is set
	DBConfigs struct {
		SyncRunsDB db.DBConfigYaml `json:"sync_runs_db" yaml:"sync_runs_db"`
	} `json:"db_configs" yaml:"db_configs"`

	SmtpBridgeConfig *SmtpBridgeConfig `json:"smtp_bridge_config" yaml:"smtp_bridge_config"`

	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	RunSettings RunSettings `json:"run_settings" yaml:"run_settings"`

	Runs []StageSyncRun `json:"runs" yaml:"runs"`
}

// SourceFilter limits the source events to tracked entities whose Attribute
// holds one of Values.
type SourceFilter struct {
	Attribute string   `json:"attribute" yaml:"attribute"`
	Values    []string `json:"values" yaml:"values"`
}

// StageSyncRun is one entry of the runs list. Retry and Notify fall back to
// the job wide run settings when left out.
type StageSyncRun struct {
	Name                    string               `json:"name" yaml:"name"`
	OrgUnit                 string               `json:"org_unit" yaml:"org_unit"`
	OuMode                  string               `json:"ou_mode" yaml:"ou_mode"`
	SourceProgramStage      string               `json:"source_program_stage" yaml:"source_program_stage"`
	DestinationProgram      string               `json:"destination_program" yaml:"destination_program"`
	DestinationProgramStage string               `json:"destination_program_stage" yaml:"destination_program_stage"`
	LookupAttribute         string               `json:"lookup_attribute" yaml:"lookup_attribute"`
	EnrollmentYear          string               `json:"enrollment_year" yaml:"enrollment_year"`
	EnrolledAfter           string               `json:"enrolled_after" yaml:"enrolled_after"`
	EnrolledBefore          string               `json:"enrolled_before" yaml:"enrolled_before"`
	StartPage               int                  `json:"start_page" yaml:"start_page"`
	PageSize                int                  `json:"page_size" yaml:"page_size"`
	MaxBatchSize            int                  `json:"max_batch_size" yaml:"max_batch_size"`
	Async                   *bool                `json:"async" yaml:"async"`
	ImportStrategy          string               `json:"import_strategy" yaml:"import_strategy"`
	AtomicMode              string               `json:"atomic_mode" yaml:"atomic_mode"`
	SourceFilter            *SourceFilter        `json:"source_filter" yaml:"source_filter"`
	Resume                  bool                 `json:"resume" yaml:"resume"`
	Mapping                 []sync.FieldPair     `json:"mapping" yaml:"mapping"`
	Retry                   *sync.RetryPolicy    `json:"retry" yaml:"retry"`
	Notify                  *sync.NotifySettings `json:"notify" yaml:"notify"`
}

func (c StageSyncJobConfig) Validate() error {
	var errs []error
	if c.DHIS2.URL == "" {
		errs = append(errs, errors.New("dhis2.url is required"))
	}
	if len(c.Runs) == 0 {
		errs = append(errs, errors.New("no runs configured"))
	}

	keys := map[string]string{}
	for i, r := range c.Runs {
		cfg, err := r.StageSyncConfig(c.RunSettings)
		if err != nil {
			errs = append(errs, fmt.Errorf("runs[%d] %q: %w", i, r.Name, err))
			continue
		}
		if other, ok := keys[cfg.RunKey()]; ok {
			errs = append(errs, fmt.Errorf("runs[%d] %q: same org unit, stage and year as %q", i, r.Name, other))
			continue
		}
		keys[cfg.RunKey()] = r.Name
	}
	return errors.Join(errs...)
}

// StageSyncConfig converts the run entry into a validated sync config.
func (r StageSyncRun) StageSyncConfig(defaults RunSettings) (sync.StageSyncConfig, error) {
	mapping, err := sync.NewFieldMapping(r.Mapping)
	if err != nil {
		return sync.StageSyncConfig{}, err
	}

	async := true
	if r.Async != nil {
		async = *r.Async
	}
	retry := defaults.Retry
	if r.Retry != nil {
		retry = *r.Retry
	}

	cfg := sync.StageSyncConfig{
		Name:                    r.Name,
		OrgUnit:                 r.OrgUnit,
		OuMode:                  r.OuMode,
		SourceProgramStage:      r.SourceProgramStage,
		DestinationProgram:      r.DestinationProgram,
		DestinationProgramStage: r.DestinationProgramStage,
		LookupAttribute:         r.LookupAttribute,
		EnrollmentYear:          r.EnrollmentYear,
		EnrolledAfter:           r.EnrolledAfter,
		EnrolledBefore:          r.EnrolledBefore,
		StartPage:               r.StartPage,
		PageSize:                r.PageSize,
		MaxBatchSize:            r.MaxBatchSize,
		Async:                   async,
		ImportStrategy:          r.ImportStrategy,
		AtomicMode:              r.AtomicMode,
		Mapping:                 mapping,
		Retry:                   retry,
	}
	if r.SourceFilter != nil {
		cfg.SourceFilterAttribute = r.SourceFilter.Attribute
		cfg.SourceFilterValues = r.SourceFilter.Values
	}
	if err := cfg.Validate(); err != nil {
		return sync.StageSyncConfig{}, err
	}
	return cfg, nil
}

// RunOptions describes how the run is registered with the run store.
func (r StageSyncRun) RunOptions(cfg sync.StageSyncConfig, defaults RunSettings) sync.RunOptions {
	notify := defaults.Notify
	if r.Notify != nil {
		notify = *r.Notify
	}
	return sync.RunOptions{
		RunKey:      cfg.RunKey(),
		Job:         sync.STAGE_SYNC_JOB_NAME,
		Name:        r.Name,
		StartPage:   cfg.StartPage,
		Resume:      r.Resume,
		LockTimeout: defaults.GetLockTimeout(),
		Notify:      notify,
	}
}
