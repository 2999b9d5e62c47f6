package sync

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/case-framework/tracker-sync-backend/pkg/tracker"
)

// DestinationLookup runs one bulk query for all keys of a batch.
type DestinationLookup[D any] func(ctx context.Context, keys []string) ([]D, error)

// Resolver matches source records to destination records by a cross-reference
// key. SourceKey derives the key of a source record; DestinationKey reads it
// from a destination record (ok=false when the record carries none).
type Resolver[S any, D any] struct {
	SourceKey      func(S) string
	DestinationKey func(D) (string, bool)
	Lookup         DestinationLookup[D]
}

type Resolution[S any, D any] struct {
	Source      S
	Key         string
	Destination D
	Found       bool
}

// NormalizeKey canonicalises a cross-reference key so that values typed in
// different Unicode forms or with stray whitespace still match.
func NormalizeKey(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Index maps cross-reference keys to destination records. It is read-only
// once built.
type Index[D any] struct {
	byKey map[string]D
}

// BuildIndex indexes records by key. For a key held by several records the
// first one wins.
func BuildIndex[D any](records []D, key func(D) (string, bool)) Index[D] {
	ix := Index[D]{byKey: make(map[string]D, len(records))}
	for _, r := range records {
		k, ok := key(r)
		if !ok {
			continue
		}
		k = NormalizeKey(k)
		if k == "" {
			continue
		}
		if _, exists := ix.byKey[k]; exists {
			continue
		}
		ix.byKey[k] = r
	}
	return ix
}

func (ix Index[D]) Lookup(key string) (D, bool) {
	d, ok := ix.byKey[NormalizeKey(key)]
	return d, ok
}

func (ix Index[D]) Len() int {
	return len(ix.byKey)
}

// Resolve issues one lookup for the distinct keys of batch and returns one
// resolution per source record, in batch order. A failed lookup is reported
// as ErrDestinationUnavailable.
func (r Resolver[S, D]) Resolve(ctx context.Context, batch []S) ([]Resolution[S, D], error) {
	keys := make([]string, len(batch))
	distinct := make([]string, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for i, s := range batch {
		k := NormalizeKey(r.SourceKey(s))
		keys[i] = k
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		distinct = append(distinct, k)
	}

	var index Index[D]
	if len(distinct) > 0 {
		records, err := r.Lookup(ctx, distinct)
		if err != nil {
			return nil, fmt.Errorf("%w: destination lookup: %w", ErrDestinationUnavailable, err)
		}
		index = BuildIndex(records, r.DestinationKey)
	}

	out := make([]Resolution[S, D], len(batch))
	for i, s := range batch {
		out[i] = Resolution[S, D]{Source: s, Key: keys[i]}
		if keys[i] == "" {
			continue
		}
		if d, ok := index.Lookup(keys[i]); ok {
			out[i].Destination = d
			out[i].Found = true
		}
	}
	return out, nil
}

// FindEnrollment returns the first enrollment enrolled in the given year
// ("2022" matches enrolledAt values containing "2022-"). When program is set
// the enrollment must also belong to it.
func FindEnrollment(te tracker.TrackedEntity, program string, year string) (*tracker.Enrollment, bool) {
	for i := range te.Enrollments {
		en := &te.Enrollments[i]
		if en.Deleted {
			continue
		}
		if program != "" && en.Program != "" && en.Program != program {
			continue
		}
		if year != "" && !strings.Contains(en.EnrolledAt, year+"-") {
			continue
		}
		return en, true
	}
	return nil, false
}

// FindStageEvent returns the first event of the enrollment at the given stage.
func FindStageEvent(en tracker.Enrollment, programStage string) (*tracker.Event, bool) {
	for i := range en.Events {
		ev := &en.Events[i]
		if ev.Deleted {
			continue
		}
		if ev.ProgramStage == programStage {
			return ev, true
		}
	}
	return nil, false
}
