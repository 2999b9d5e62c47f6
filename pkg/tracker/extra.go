package tracker

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

var knownFieldsCache sync.Map

// knownFields returns the json names of the exported, tagged fields of t.
func knownFields(t reflect.Type) map[string]bool {
	if cached, ok := knownFieldsCache.Load(t); ok {
		return cached.(map[string]bool)
	}
	names := map[string]bool{}
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		names[name] = true
	}
	knownFieldsCache.Store(t, names)
	return names
}

// unknownFields returns the properties of the JSON object data that have no
// field in t, or nil if there are none.
func unknownFields(data []byte, t reflect.Type) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	known := knownFields(t)
	for k := range all {
		if known[k] {
			delete(all, k)
		}
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// marshalWithExtra encodes v and adds the extra properties that v does not
// set itself.
func marshalWithExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := all[k]; !ok {
			all[k] = raw
		}
	}
	return json.Marshal(all)
}

type plainEvent Event

// UnmarshalJSON keeps the properties Event does not model (geometry,
// assignedUser, relationships, ...) in Extra.
func (e *Event) UnmarshalJSON(data []byte) error {
	var p plainEvent
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, reflect.TypeOf(p))
	if err != nil {
		return err
	}
	*e = Event(p)
	e.Extra = extra
	return nil
}

// MarshalJSON writes Extra back so an event read from the server is posted
// without losing properties.
func (e Event) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(plainEvent(e), e.Extra)
}

type plainLegacyEvent LegacyEvent

func (e *LegacyEvent) UnmarshalJSON(data []byte) error {
	var p plainLegacyEvent
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, reflect.TypeOf(p))
	if err != nil {
		return err
	}
	*e = LegacyEvent(p)
	e.Extra = extra
	return nil
}

func (e LegacyEvent) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(plainLegacyEvent(e), e.Extra)
}

// WithoutExtra returns a copy of extra without the given properties.
func WithoutExtra(extra map[string]json.RawMessage, keys ...string) map[string]json.RawMessage {
	if len(extra) == 0 {
		return extra
	}
	out := make(map[string]json.RawMessage, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
