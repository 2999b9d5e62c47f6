package datadog

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/case-framework/tracker-sync-backend/pkg/metrics"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()
	t.Setenv("ENV", "test")
	b, err := NewBackend(context.Background(), Options{
		JobName:    "stage-sync",
		Tags:       []string{"team:data"},
		FlushEvery: time.Hour,
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		submitter:  sub,
	})
	require.NoError(t, err)
	return b
}

func findSeries(series []datadogV2.MetricSeries, name string) *datadogV2.MetricSeries {
	for i := range series {
		if series[i].Metric == name {
			return &series[i]
		}
	}
	return nil
}

func TestFlushSubmitsCountersAndPercentiles(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter(metrics.PAGES_TOTAL, 1, metrics.Labels{"job": "emis"})
	b.IncCounter(metrics.PAGES_TOTAL, 2, metrics.Labels{"job": "emis"})
	b.IncCounter(metrics.PAGES_TOTAL, 0, metrics.Labels{"job": "emis"})
	b.ObserveHistogram(metrics.HTTP_REQUEST_DURATION, 0.5, metrics.Labels{"status": "200"})
	b.ObserveHistogram(metrics.HTTP_REQUEST_DURATION, 1.5, metrics.Labels{"status": "200"})

	require.NoError(t, b.Close())
	require.Len(t, sub.payloads, 1)

	series := sub.payloads[0].Series
	pages := findSeries(series, "sync.pages.total")
	require.NotNil(t, pages)
	assert.Equal(t, 3.0, *pages.Points[0].Value)
	assert.Equal(t, int64(1700000000), *pages.Points[0].Timestamp)
	assert.Equal(t, []string{"env:test", "job:stage-sync", "team:data", "job:emis"}, pages.Tags)

	max := findSeries(series, "sync.http.request.duration.seconds.max")
	require.NotNil(t, max)
	assert.Equal(t, 1.5, *max.Points[0].Value)

	samples := findSeries(series, "sync.http.request.duration.seconds.samples")
	require.NotNil(t, samples)
	assert.Equal(t, 2.0, *samples.Points[0].Value)
}

func TestFlushWithNothingBufferedDoesNotSubmit(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	require.NoError(t, b.Close())
	assert.Empty(t, sub.payloads)
}

func TestFlushResetsBuffersOnError(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("intake down")}
	b := newTestBackend(t, sub)

	b.IncCounter(metrics.BATCHES_TOTAL, 1, metrics.Labels{"status": "ok"})
	assert.Error(t, b.Flush())

	sub.err = nil
	require.NoError(t, b.Close())
	assert.Len(t, sub.payloads, 1)
}

func TestParseTagsCSV(t *testing.T) {
	assert.Nil(t, ParseTagsCSV(""))
	assert.Equal(t, []string{"env:prod", "service:sync"}, ParseTagsCSV(" env:prod, ,service:sync "))
}
