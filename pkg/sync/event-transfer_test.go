package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/case-framework/tracker-sync-backend/pkg/tracker"
)

func TestConvertLegacyEvent(t *testing.T) {
	ev, err := ConvertLegacyEvent(tracker.LegacyEvent{
		Event:                 "ev1",
		Program:               "EURMRkVVtAB",
		ProgramStage:          "stage",
		TrackedEntityInstance: "te1",
		OrgUnit:               "ou1",
		EventDate:             "2023-04-01T00:00:00.000",
		DueDate:               "2023-04-02T00:00:00.000",
		Status:                "COMPLETED",
		CompletedDate:         "2023-04-03T00:00:00.000",
		DataValues:            []tracker.DataValue{{DataElement: "de1", Value: "5"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "ev1", ev.Event)
	assert.Equal(t, "te1", ev.TrackedEntity)
	assert.Equal(t, "2023-04-01T00:00:00.000", ev.OccurredAt)
	assert.Equal(t, "2023-04-02T00:00:00.000", ev.ScheduledAt)
	assert.Equal(t, "2023-04-03T00:00:00.000", ev.CompletedAt)
	assert.Equal(t, []tracker.DataValue{{DataElement: "de1", Value: "5"}}, ev.DataValues)
	assert.Nil(t, ev.Extra)

	empty, err := ConvertLegacyEvent(tracker.LegacyEvent{Event: "ev2"})
	require.NoError(t, err)
	raw, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"dataValues":[]`)
	assert.NotContains(t, string(raw), "eventDate")
}

func TestConvertLegacyEventForwardsAllFields(t *testing.T) {
	var le tracker.LegacyEvent
	require.NoError(t, json.Unmarshal([]byte(`{
		"event": "e1",
		"program": "EURMRkVVtAB",
		"eventDate": "2022-03-01",
		"trackedEntityInstance": "te1",
		"followup": true,
		"notes": [{"value": "checked twice"}],
		"geometry": {"type": "Point", "coordinates": [32.58, 0.31]},
		"attributeCategoryOptions": "xYerKDKCefk",
		"dataValues": [{"dataElement": "de1", "value": "5"}]
	}`), &le))

	ev, err := ConvertLegacyEvent(le)
	require.NoError(t, err)
	assert.True(t, ev.FollowUp)
	require.Len(t, ev.Notes, 1)
	assert.Equal(t, "checked twice", ev.Notes[0].Value)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &out))

	assert.JSONEq(t, `"2022-03-01"`, string(out["occurredAt"]))
	assert.JSONEq(t, `"te1"`, string(out["trackedEntity"]))
	assert.JSONEq(t, `true`, string(out["followup"]))
	assert.JSONEq(t, `{"type": "Point", "coordinates": [32.58, 0.31]}`, string(out["geometry"]))
	assert.JSONEq(t, `"xYerKDKCefk"`, string(out["attributeCategoryOptions"]))
	assert.Contains(t, out, "notes")
	assert.NotContains(t, out, "eventDate")
	assert.NotContains(t, out, "trackedEntityInstance")
}

func TestEventTransfer(t *testing.T) {
	var legacyQueries []map[string]string
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/events.json", r.URL.Path)
		q := firstValues(r)
		legacyQueries = append(legacyQueries, q)

		resp := tracker.LegacyEventsPage{Events: []tracker.LegacyEvent{}}
		switch q["page"] {
		case "1":
			resp.Events = []tracker.LegacyEvent{
				{Event: "a", Program: "EURMRkVVtAB", EventDate: "2023-01-01"},
				{Event: "b", Program: "EURMRkVVtAB", EventDate: "2023-01-02"},
			}
		case "2":
			resp.Events = []tracker.LegacyEvent{{Event: "c", Program: "EURMRkVVtAB", EventDate: "2023-01-03"}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer source.Close()

	dest := &fakeDHIS2{}
	destination := httptest.NewServer(dest.handler(t))
	defer destination.Close()

	sourceClient, err := tracker.NewClient(tracker.Config{BaseURL: source.URL + "/api"})
	require.NoError(t, err)

	transfer, err := NewEventTransfer(TransferConfig{Program: "EURMRkVVtAB", Async: true}, sourceClient, newTestClient(t, destination))
	require.NoError(t, err)
	assert.Equal(t, DEFAULT_EVENT_TRANSFER_PAGE_SIZE, transfer.Config().PageSize)

	res := transfer.Run(context.Background(), nil)

	require.False(t, res.Aborted, res.Reason())
	assert.Equal(t, 2, res.PagesCompleted)
	assert.Equal(t, 3, res.Submitted)
	require.Len(t, legacyQueries, 3)
	assert.Equal(t, "10", legacyQueries[0]["pageSize"])
	assert.Equal(t, "ALL", legacyQueries[0]["ouMode"])
	assert.Equal(t, "EURMRkVVtAB", legacyQueries[0]["program"])

	require.Len(t, dest.posted, 2)
	assert.Equal(t, "true", dest.postQueries[0]["async"])
	assert.Equal(t, "2023-01-01", dest.posted[0].Events[0].OccurredAt)
	assert.Equal(t, "c", dest.posted[1].Events[0].Event)
}

func TestTransferConfigValidate(t *testing.T) {
	_, err := NewEventTransfer(TransferConfig{}, nil, nil)
	assert.EqualError(t, err, "program is required")
	assert.Equal(t, "event-transfer:ou:prog", TransferConfig{OrgUnit: "ou", Program: "prog"}.RunKey())
}
