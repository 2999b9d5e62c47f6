package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/case-framework/tracker-sync-backend/pkg/tracker"
)

const (
	STAGE_SYNC_JOB_NAME = "stage-sync"
)

// StageSyncConfig describes one stage sync run: events of SourceProgramStage
// are copied into the DestinationProgramStage event of the matching
// destination tracked entity. A destination tracked entity matches when its
// LookupAttribute holds the source event's tracked entity id.
//
// EnrollmentYear selects the destination enrollment ("2022" matches enrolledAt
// "2022-..."). It also bounds the source query when EnrolledAfter and
// EnrolledBefore are unset. SourceFilterAttribute and SourceFilterValues
// restrict the source events to tracked entities with one of the values.
type StageSyncConfig struct {
	Name                    string
	OrgUnit                 string
	OuMode                  string
	SourceProgramStage      string
	DestinationProgram      string
	DestinationProgramStage string
	LookupAttribute         string
	EnrollmentYear          string
	EnrolledAfter           string
	EnrolledBefore          string
	SourceFilterAttribute   string
	SourceFilterValues      []string
	StartPage               int
	PageSize                int
	MaxBatchSize            int
	Async                   bool
	ImportStrategy          string
	AtomicMode              string
	Mapping                 FieldMapping
	Retry                   RetryPolicy
}

func (c StageSyncConfig) Validate() error {
	var errs []error
	required := []struct {
		name  string
		value string
	}{
		{"org_unit", c.OrgUnit},
		{"source_program_stage", c.SourceProgramStage},
		{"destination_program", c.DestinationProgram},
		{"destination_program_stage", c.DestinationProgramStage},
		{"lookup_attribute", c.LookupAttribute},
		{"enrollment_year", c.EnrollmentYear},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}
	if c.Mapping.Len() == 0 {
		errs = append(errs, errors.New("field mapping is empty"))
	}
	if c.SourceFilterAttribute != "" && len(c.SourceFilterValues) == 0 {
		errs = append(errs, errors.New("source_filter needs at least one value"))
	}
	if err := tracker.CheckOuMode(c.OuMode); err != nil {
		errs = append(errs, err)
	}
	if err := c.importOptions().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c StageSyncConfig) importOptions() tracker.ImportOptions {
	return tracker.ImportOptions{
		Async:          c.Async,
		ImportStrategy: c.ImportStrategy,
		AtomicMode:     c.AtomicMode,
	}
}

// RunKey identifies runs that must not overlap.
func (c StageSyncConfig) RunKey() string {
	return fmt.Sprintf("%s:%s:%s:%s", STAGE_SYNC_JOB_NAME, c.OrgUnit, c.DestinationProgramStage, c.EnrollmentYear)
}

func (c StageSyncConfig) enrolledWindow() (string, string) {
	after, before := c.EnrolledAfter, c.EnrolledBefore
	if after == "" {
		after = c.EnrollmentYear + "-01-01"
	}
	if before == "" {
		before = c.EnrollmentYear + "-12-31"
	}
	return after, before
}

type StageSync struct {
	cfg         StageSyncConfig
	source      EventReader
	destination TrackedEntityReader
	writer      TrackerWriter
	resolver    Resolver[tracker.Event, tracker.TrackedEntity]
}

// NewStageSync wires a stage sync. source, destination and writer are usually
// the same tracker client.
func NewStageSync(cfg StageSyncConfig, source EventReader, destination TrackedEntityReader, writer TrackerWriter) (*StageSync, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &StageSync{
		cfg:         cfg,
		source:      source,
		destination: destination,
		writer:      writer,
	}
	s.resolver = Resolver[tracker.Event, tracker.TrackedEntity]{
		SourceKey: func(ev tracker.Event) string {
			return ev.TrackedEntity
		},
		DestinationKey: func(te tracker.TrackedEntity) (string, bool) {
			return te.AttributeValue(cfg.LookupAttribute)
		},
		Lookup: s.lookupTrackedEntities,
	}
	return s, nil
}

func (s *StageSync) Config() StageSyncConfig {
	return s.cfg
}

// Pipeline builds the run for the given start page.
func (s *StageSync) Pipeline(startPage int, reporter Reporter) Pipeline[tracker.Event, tracker.Event] {
	return Pipeline[tracker.Event, tracker.Event]{
		Job:          STAGE_SYNC_JOB_NAME,
		Source:       RetryPageSource(s.readEvents, s.cfg.Retry),
		Transform:    s.Transform,
		Sink:         RetrySink(eventSink(s.writer, s.cfg.importOptions()), s.cfg.Retry),
		StartPage:    startPage,
		PageSize:     s.cfg.PageSize,
		MaxBatchSize: s.cfg.MaxBatchSize,
		Reporter:     reporter,
	}
}

func (s *StageSync) Run(ctx context.Context, reporter Reporter) RunResult {
	return s.Pipeline(s.cfg.StartPage, reporter).Run(ctx)
}

func (s *StageSync) readEvents(ctx context.Context, page int, pageSize int) ([]tracker.Event, error) {
	after, before := s.cfg.enrolledWindow()
	resp, err := s.source.GetEvents(ctx, tracker.EventQuery{
		OrgUnit:        s.cfg.OrgUnit,
		OuMode:         s.cfg.OuMode,
		ProgramStage:   s.cfg.SourceProgramStage,
		EnrolledAfter:  after,
		EnrolledBefore: before,
		Page:           page,
		PageSize:       pageSize,

		FilterAttribute: s.cfg.SourceFilterAttribute,
		FilterValues:    s.cfg.SourceFilterValues,
	})
	if err != nil {
		return nil, err
	}
	return resp.Instances, nil
}

func (s *StageSync) lookupTrackedEntities(ctx context.Context, keys []string) ([]tracker.TrackedEntity, error) {
	return s.destination.GetTrackedEntities(ctx, tracker.TrackedEntityQuery{
		OrgUnit:   s.cfg.OrgUnit,
		OuMode:    s.cfg.OuMode,
		Program:   s.cfg.DestinationProgram,
		Attribute: s.cfg.LookupAttribute,
		Values:    keys,
	})
}

// Transform resolves a page of source events against the destination and
// builds one update or create payload per matched event. When several source
// events share a key the last one wins.
func (s *StageSync) Transform(ctx context.Context, events []tracker.Event) ([]tracker.Event, []UnresolvedRecord, error) {
	resolutions, err := s.resolver.Resolve(ctx, events)
	if err != nil {
		return nil, nil, err
	}

	last := make(map[string]int, len(resolutions))
	for i, r := range resolutions {
		if r.Key != "" {
			last[r.Key] = i
		}
	}

	payloads := make([]tracker.Event, 0, len(resolutions))
	unresolved := []UnresolvedRecord{}
	for i, r := range resolutions {
		switch {
		case r.Key == "":
			unresolved = append(unresolved, UnresolvedRecord{Key: r.Source.Event, Reason: "source event has no tracked entity"})
			continue
		case last[r.Key] != i:
			unresolved = append(unresolved, UnresolvedRecord{Key: r.Key, Reason: "superseded by a later event on the same page"})
			continue
		case !r.Found:
			unresolved = append(unresolved, UnresolvedRecord{Key: r.Key, Reason: "no destination tracked entity"})
			continue
		}

		payload, err := s.MergeEvent(r.Source, r.Destination)
		if err != nil {
			var u UnresolvedRecord
			if errors.As(err, &u) {
				unresolved = append(unresolved, u)
				continue
			}
			return nil, nil, err
		}
		payloads = append(payloads, payload)
	}
	return payloads, unresolved, nil
}

// MergeEvent builds the outgoing event for one matched pair. With an existing
// destination stage event the payload updates it in place; otherwise a new
// event is created inside the destination enrollment of the configured year.
// Without such an enrollment the record is unresolved.
func (s *StageSync) MergeEvent(source tracker.Event, te tracker.TrackedEntity) (tracker.Event, error) {
	key := source.TrackedEntity

	enrollment, ok := FindEnrollment(te, s.cfg.DestinationProgram, s.cfg.EnrollmentYear)
	if !ok {
		return tracker.Event{}, UnresolvedRecord{
			Key:    key,
			Reason: fmt.Sprintf("no %s enrollment for tracked entity %s", s.cfg.EnrollmentYear, te.TrackedEntity),
		}
	}

	mapped := ComputeMappedValues(s.cfg.Mapping, DataValuesToValues(source.DataValues, source.ProgramStage))

	if existing, ok := FindStageEvent(*enrollment, s.cfg.DestinationProgramStage); ok {
		out := *existing
		if out.Enrollment == "" {
			out.Enrollment = enrollment.Enrollment
		}
		if out.Program == "" {
			out.Program = s.cfg.DestinationProgram
		}
		merged := Merge(DataValuesToValues(existing.DataValues, ""), mapped)
		out.DataValues = ValuesToDataValues(merged, existing.DataValues)
		return out, nil
	}

	out := source
	out.Event = ""
	out.Program = s.cfg.DestinationProgram
	out.ProgramStage = s.cfg.DestinationProgramStage
	out.Enrollment = enrollment.Enrollment
	out.TrackedEntity = te.TrackedEntity
	out.CreatedAt = ""
	out.UpdatedAt = ""
	out.CreatedBy = nil
	out.UpdatedBy = nil
	// relationships point at the source event
	out.Extra = tracker.WithoutExtra(source.Extra, "relationships")
	out.DataValues = ValuesToDataValues(Merge(nil, mapped), nil)
	return out, nil
}
