package sync

import (
	"errors"
	"fmt"
	"strings"
)

// Values is a flat field id -> scalar value record.
type Values map[string]string

// FieldPair populates Destination from Source.
type FieldPair struct {
	Destination string `json:"destination" yaml:"destination"`
	Source      string `json:"source" yaml:"source"`
}

// FieldMapping is a validated destination -> source table. Construct it with
// NewFieldMapping; the zero value maps nothing.
type FieldMapping struct {
	pairs []FieldPair
}

func NewFieldMapping(pairs []FieldPair) (FieldMapping, error) {
	seen := make(map[string]struct{}, len(pairs))
	out := make([]FieldPair, 0, len(pairs))

	var errs []error
	for i, p := range pairs {
		dest := strings.TrimSpace(p.Destination)
		src := strings.TrimSpace(p.Source)
		if dest == "" {
			errs = append(errs, fmt.Errorf("mapping[%d]: destination is empty", i))
			continue
		}
		if src == "" {
			errs = append(errs, fmt.Errorf("mapping[%d]: source for %q is empty", i, dest))
			continue
		}
		if _, ok := seen[dest]; ok {
			errs = append(errs, fmt.Errorf("mapping[%d]: duplicate destination %q", i, dest))
			continue
		}
		seen[dest] = struct{}{}
		out = append(out, FieldPair{Destination: dest, Source: src})
	}
	if len(errs) > 0 {
		return FieldMapping{}, errors.Join(errs...)
	}
	return FieldMapping{pairs: out}, nil
}

func (m FieldMapping) Len() int {
	return len(m.pairs)
}

// ComputeMappedValues applies the mapping to a source record. Destination
// fields whose source value is absent or empty are left out of the result,
// so a later merge keeps whatever the destination already holds.
func ComputeMappedValues(m FieldMapping, source Values) Values {
	out := make(Values, len(m.pairs))
	for _, p := range m.pairs {
		v, ok := source[p.Source]
		if !ok || v == "" {
			continue
		}
		out[p.Destination] = v
	}
	return out
}
