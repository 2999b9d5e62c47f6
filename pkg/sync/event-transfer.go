package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/case-framework/tracker-sync-backend/pkg/tracker"
)

const (
	EVENT_TRANSFER_JOB_NAME          = "event-transfer"
	DEFAULT_EVENT_TRANSFER_PAGE_SIZE = 10
)

// TransferConfig copies all events of Program from a source instance's
// legacy /events endpoint into the destination /tracker endpoint.
type TransferConfig struct {
	Name           string
	OrgUnit        string
	OuMode         string
	Program        string
	StartPage      int
	PageSize       int
	MaxBatchSize   int
	Async          bool
	ImportStrategy string
	AtomicMode     string
	Retry          RetryPolicy
}

func (c TransferConfig) Validate() error {
	if c.Program == "" {
		return errors.New("program is required")
	}
	if err := tracker.CheckOuMode(c.OuMode); err != nil {
		return err
	}
	return c.importOptions().Validate()
}

func (c TransferConfig) importOptions() tracker.ImportOptions {
	return tracker.ImportOptions{
		Async:          c.Async,
		ImportStrategy: c.ImportStrategy,
		AtomicMode:     c.AtomicMode,
	}
}

func (c TransferConfig) RunKey() string {
	return fmt.Sprintf("%s:%s:%s", EVENT_TRANSFER_JOB_NAME, c.OrgUnit, c.Program)
}

type EventTransfer struct {
	cfg    TransferConfig
	source LegacyEventReader
	writer TrackerWriter
}

func NewEventTransfer(cfg TransferConfig, source LegacyEventReader, writer TrackerWriter) (*EventTransfer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DEFAULT_EVENT_TRANSFER_PAGE_SIZE
	}
	return &EventTransfer{cfg: cfg, source: source, writer: writer}, nil
}

func (t *EventTransfer) Config() TransferConfig {
	return t.cfg
}

func (t *EventTransfer) Pipeline(startPage int, reporter Reporter) Pipeline[tracker.LegacyEvent, tracker.Event] {
	return Pipeline[tracker.LegacyEvent, tracker.Event]{
		Job:          EVENT_TRANSFER_JOB_NAME,
		Source:       RetryPageSource(t.readEvents, t.cfg.Retry),
		Transform:    transferTransform,
		Sink:         RetrySink(eventSink(t.writer, t.cfg.importOptions()), t.cfg.Retry),
		StartPage:    startPage,
		PageSize:     t.cfg.PageSize,
		MaxBatchSize: t.cfg.MaxBatchSize,
		Reporter:     reporter,
	}
}

func (t *EventTransfer) Run(ctx context.Context, reporter Reporter) RunResult {
	return t.Pipeline(t.cfg.StartPage, reporter).Run(ctx)
}

func (t *EventTransfer) readEvents(ctx context.Context, page int, pageSize int) ([]tracker.LegacyEvent, error) {
	return t.source.GetLegacyEvents(ctx, tracker.LegacyEventQuery{
		OrgUnit:  t.cfg.OrgUnit,
		OuMode:   t.cfg.OuMode,
		Program:  t.cfg.Program,
		Page:     page,
		PageSize: pageSize,
	})
}

// legacyFieldRenames maps pre-tracker event properties to their /tracker names.
var legacyFieldRenames = map[string]string{
	"eventDate":             "occurredAt",
	"dueDate":               "scheduledAt",
	"completedDate":         "completedAt",
	"trackedEntityInstance": "trackedEntity",
}

func transferTransform(_ context.Context, events []tracker.LegacyEvent) ([]tracker.Event, []UnresolvedRecord, error) {
	out := make([]tracker.Event, 0, len(events))
	unresolved := []UnresolvedRecord{}
	for _, le := range events {
		ev, err := ConvertLegacyEvent(le)
		if err != nil {
			unresolved = append(unresolved, UnresolvedRecord{Key: le.Event, Reason: err.Error()})
			continue
		}
		out = append(out, ev)
	}
	return out, unresolved, nil
}

// ConvertLegacyEvent forwards every property of the legacy event and only
// renames eventDate, dueDate, completedDate and trackedEntityInstance.
func ConvertLegacyEvent(le tracker.LegacyEvent) (tracker.Event, error) {
	raw, err := json.Marshal(le)
	if err != nil {
		return tracker.Event{}, fmt.Errorf("encode legacy event: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return tracker.Event{}, fmt.Errorf("decode legacy event: %w", err)
	}
	for from, to := range legacyFieldRenames {
		if v, ok := fields[from]; ok {
			delete(fields, from)
			fields[to] = v
		}
	}

	raw, err = json.Marshal(fields)
	if err != nil {
		return tracker.Event{}, fmt.Errorf("encode tracker event: %w", err)
	}
	var ev tracker.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return tracker.Event{}, fmt.Errorf("convert legacy event %s: %w", le.Event, err)
	}
	if ev.DataValues == nil {
		ev.DataValues = []tracker.DataValue{}
	}
	return ev, nil
}
