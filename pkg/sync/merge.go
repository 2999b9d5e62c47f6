package sync

import (
	"sort"

	"github.com/case-framework/tracker-sync-backend/pkg/tracker"
)

// Merge builds the outgoing field set. Mapped values overwrite existing ones;
// existing fields without a mapped value are kept. A nil existing record
// means the payload is a create and the result is a copy of mapped.
func Merge(existing Values, mapped Values) Values {
	out := make(Values, len(existing)+len(mapped))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range mapped {
		if v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// DataValuesToValues flattens event data values, optionally prefixing every
// data element with "<prefix>.".
func DataValuesToValues(dvs []tracker.DataValue, prefix string) Values {
	out := make(Values, len(dvs))
	for _, dv := range dvs {
		key := dv.DataElement
		if prefix != "" {
			key = prefix + "." + dv.DataElement
		}
		out[key] = dv.Value
	}
	return out
}

// ValuesToDataValues renders merged values as data values. Elements already
// present in previous keep their position; new elements follow sorted by id.
func ValuesToDataValues(values Values, previous []tracker.DataValue) []tracker.DataValue {
	out := make([]tracker.DataValue, 0, len(values))
	placed := make(map[string]struct{}, len(values))

	for _, dv := range previous {
		v, ok := values[dv.DataElement]
		if !ok {
			continue
		}
		if _, done := placed[dv.DataElement]; done {
			continue
		}
		placed[dv.DataElement] = struct{}{}
		out = append(out, tracker.DataValue{DataElement: dv.DataElement, Value: v})
	}

	rest := make([]string, 0, len(values)-len(placed))
	for k := range values {
		if _, done := placed[k]; !done {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, tracker.DataValue{DataElement: k, Value: values[k]})
	}
	return out
}
