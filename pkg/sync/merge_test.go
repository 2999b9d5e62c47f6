package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/case-framework/tracker-sync-backend/pkg/tracker"
)

func TestMerge(t *testing.T) {
	existing := Values{"a": "1", "b": "2"}
	mapped := Values{"b": "20", "c": "30"}

	t.Run("mapped values win", func(t *testing.T) {
		merged := Merge(existing, mapped)
		assert.Equal(t, "20", merged["b"])
	})

	t.Run("existing fields are kept", func(t *testing.T) {
		merged := Merge(existing, mapped)
		assert.Equal(t, Values{"a": "1", "b": "20", "c": "30"}, merged)
	})

	t.Run("idempotent", func(t *testing.T) {
		once := Merge(existing, mapped)
		assert.Equal(t, once, Merge(once, mapped))
	})

	t.Run("inputs are not modified", func(t *testing.T) {
		Merge(existing, mapped)
		assert.Equal(t, Values{"a": "1", "b": "2"}, existing)
	})

	t.Run("empty mapped value does not blank", func(t *testing.T) {
		merged := Merge(existing, Values{"a": ""})
		assert.Equal(t, "1", merged["a"])
	})

	t.Run("no existing record", func(t *testing.T) {
		assert.Equal(t, mapped, Merge(nil, mapped))
	})
}

func TestDataValuesRoundTrip(t *testing.T) {
	t.Run("prefixed source values", func(t *testing.T) {
		values := DataValuesToValues([]tracker.DataValue{
			{DataElement: "x1", Value: "a"},
			{DataElement: "x2", Value: "b"},
		}, "stage")
		assert.Equal(t, Values{"stage.x1": "a", "stage.x2": "b"}, values)
	})

	t.Run("existing order first then sorted new elements", func(t *testing.T) {
		previous := []tracker.DataValue{
			{DataElement: "z", Value: "1"},
			{DataElement: "m", Value: "2"},
		}
		out := ValuesToDataValues(Values{"m": "20", "z": "1", "b": "3", "a": "4"}, previous)
		assert.Equal(t, []tracker.DataValue{
			{DataElement: "z", Value: "1"},
			{DataElement: "m", Value: "20"},
			{DataElement: "a", Value: "4"},
			{DataElement: "b", Value: "3"},
		}, out)
	})
}

func TestMergeEventDataValues(t *testing.T) {
	existing := tracker.Event{
		Event:      "E1",
		DataValues: []tracker.DataValue{{DataElement: "elementA", Value: "10"}},
	}
	mapped := Values{"elementB": "20"}

	merged := Merge(DataValuesToValues(existing.DataValues, ""), mapped)
	dataValues := ValuesToDataValues(merged, existing.DataValues)

	assert.ElementsMatch(t, []tracker.DataValue{
		{DataElement: "elementA", Value: "10"},
		{DataElement: "elementB", Value: "20"},
	}, dataValues)
}
