package tracker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventWithUnmodelledFields = `{
	"event": "E1",
	"programStage": "RYj89i7ij2d",
	"enrollment": "en1",
	"occurredAt": "2022-05-01T00:00:00.000",
	"geometry": {"type": "Point", "coordinates": [32.58, 0.31]},
	"assignedUser": {"uid": "u1", "username": "nurse1"},
	"attributeCategoryOptions": "xYerKDKCefk",
	"relationships": [{"relationship": "r1"}],
	"dataValues": [{"dataElement": "de1", "value": "1"}]
}`

func TestEventKeepsUnmodelledFields(t *testing.T) {
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(eventWithUnmodelledFields), &ev))

	assert.Equal(t, "E1", ev.Event)
	assert.Equal(t, "2022-05-01T00:00:00.000", ev.OccurredAt)
	require.Len(t, ev.Extra, 4)
	assert.NotContains(t, ev.Extra, "event")
	assert.NotContains(t, ev.Extra, "dataValues")

	ev.DataValues = append(ev.DataValues, DataValue{DataElement: "de2", Value: "2"})
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.JSONEq(t, `{"type": "Point", "coordinates": [32.58, 0.31]}`, string(out["geometry"]))
	assert.JSONEq(t, `{"uid": "u1", "username": "nurse1"}`, string(out["assignedUser"]))
	assert.JSONEq(t, `"xYerKDKCefk"`, string(out["attributeCategoryOptions"]))
	assert.JSONEq(t, `[{"relationship": "r1"}]`, string(out["relationships"]))
	assert.JSONEq(t, `[{"dataElement": "de1", "value": "1"}, {"dataElement": "de2", "value": "2"}]`, string(out["dataValues"]))
}

func TestEventFieldsWinOverExtra(t *testing.T) {
	ev := Event{
		Event:      "E1",
		DataValues: []DataValue{},
		Extra:      map[string]json.RawMessage{"event": json.RawMessage(`"stale"`), "geometry": json.RawMessage(`null`)},
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"E1","dataValues":[],"geometry":null}`, string(raw))
}

func TestEventWithoutExtra(t *testing.T) {
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(`{"event":"E1","dataValues":[]}`), &ev))
	assert.Nil(t, ev.Extra)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"E1","dataValues":[]}`, string(raw))
}

func TestLegacyEventKeepsUnmodelledFields(t *testing.T) {
	var le LegacyEvent
	require.NoError(t, json.Unmarshal([]byte(`{
		"event": "e1",
		"eventDate": "2022-03-01",
		"followup": true,
		"notes": [{"value": "checked"}],
		"dataValues": []
	}`), &le))

	assert.Equal(t, "2022-03-01", le.EventDate)
	assert.Contains(t, le.Extra, "followup")
	assert.Contains(t, le.Extra, "notes")
}

func TestWithoutExtra(t *testing.T) {
	extra := map[string]json.RawMessage{"a": json.RawMessage(`1`), "b": json.RawMessage(`2`)}

	out := WithoutExtra(extra, "a")
	assert.Equal(t, map[string]json.RawMessage{"b": json.RawMessage(`2`)}, out)
	assert.Len(t, extra, 2)

	assert.Nil(t, WithoutExtra(extra, "a", "b"))
	assert.Nil(t, WithoutExtra(nil, "a"))
}
