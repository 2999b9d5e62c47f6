package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/case-framework/tracker-sync-backend/pkg/tracker"
)

type EventReader interface {
	GetEvents(ctx context.Context, q tracker.EventQuery) (*tracker.EventsPage, error)
}

type TrackedEntityReader interface {
	GetTrackedEntities(ctx context.Context, q tracker.TrackedEntityQuery) ([]tracker.TrackedEntity, error)
}

type LegacyEventReader interface {
	GetLegacyEvents(ctx context.Context, q tracker.LegacyEventQuery) ([]tracker.LegacyEvent, error)
}

type TrackerWriter interface {
	PostTracker(ctx context.Context, payload tracker.Payload, opts tracker.ImportOptions) (*tracker.ImportReport, error)
}

// eventSink posts a batch of events to /tracker. Rejected imports map to
// ErrValidationRejected, everything else to ErrDestinationUnavailable.
func eventSink(w TrackerWriter, opts tracker.ImportOptions) Sink[tracker.Event] {
	return func(ctx context.Context, batch []tracker.Event) error {
		_, err := w.PostTracker(ctx, tracker.Payload{Events: batch}, opts)
		return classifySubmitError(err)
	}
}

func classifySubmitError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tracker.ErrImportRejected) {
		return fmt.Errorf("%w: %w", ErrValidationRejected, err)
	}
	return fmt.Errorf("%w: %w", ErrDestinationUnavailable, err)
}
