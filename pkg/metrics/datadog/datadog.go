// Package datadog implements a Datadog backend for the metrics package.
//
// Counters and histogram samples are buffered in memory and submitted on
// Flush. A background loop flushes every FlushEvery; Close stops the loop and
// flushes one last time, so short sync jobs still report their totals.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"github.com/case-framework/tracker-sync-backend/pkg/metrics"
)

type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "tracker-sync".
	JobName string

	// Tags are extra Datadog tags, e.g. []string{"env:prod"}.
	Tags []string

	// FlushEvery defaults to 60s.
	FlushEvery time.Duration

	// test seams
	now       func() time.Time
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

type Backend struct {
	api        metricsSubmitter
	ctx        context.Context
	flushEvery time.Duration
	baseTags   []string
	now        func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}

	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string][]float64
}

func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "tracker-sync"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}
	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}

	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		baseTags:   baseTags,
		now:        nowFn,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		counters:   make(map[string]float64),
		histograms: make(map[string][]float64),
	}
	go b.loop()
	return b, nil
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)
	t := time.NewTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and flushes once more. It must be called once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	k := seriesKey(name, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[k] += delta
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	k := seriesKey(name, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.histograms[k] = append(b.histograms[k], value)
}

// Flush submits the buffered window and resets it, also when submission fails.
func (b *Backend) Flush() error {
	b.mu.Lock()
	counters, histograms := b.counters, b.histograms
	b.counters = make(map[string]float64)
	b.histograms = make(map[string][]float64)
	b.mu.Unlock()

	if len(counters) == 0 && len(histograms) == 0 {
		return nil
	}

	series := b.buildSeries(counters, histograms, b.now().Unix())
	_, _, err := b.api.SubmitMetrics(b.ctx, datadogV2.MetricPayload{Series: series}, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

func (b *Backend) buildSeries(counters map[string]float64, histograms map[string][]float64, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(counters)+6*len(histograms))

	keys := sortedKeys(counters)
	for _, k := range keys {
		name, tags := splitSeriesKey(k)
		series = append(series, point(ddName(name), datadogV2.METRICINTAKETYPE_COUNT, counters[k], withTags(b.baseTags, tags), nowUnix))
	}

	hkeys := make([]string, 0, len(histograms))
	for k := range histograms {
		hkeys = append(hkeys, k)
	}
	sort.Strings(hkeys)
	for _, k := range hkeys {
		samples := append([]float64(nil), histograms[k]...)
		if len(samples) == 0 {
			continue
		}
		sort.Float64s(samples)
		name, tags := splitSeriesKey(k)
		prefix := ddName(name)
		allTags := withTags(b.baseTags, tags)

		series = append(series,
			point(prefix+".p50", datadogV2.METRICINTAKETYPE_GAUGE, percentileNearestRank(samples, 0.50), allTags, nowUnix),
			point(prefix+".p90", datadogV2.METRICINTAKETYPE_GAUGE, percentileNearestRank(samples, 0.90), allTags, nowUnix),
			point(prefix+".p99", datadogV2.METRICINTAKETYPE_GAUGE, percentileNearestRank(samples, 0.99), allTags, nowUnix),
			point(prefix+".max", datadogV2.METRICINTAKETYPE_GAUGE, samples[len(samples)-1], allTags, nowUnix),
			point(prefix+".samples", datadogV2.METRICINTAKETYPE_GAUGE, float64(len(samples)), allTags, nowUnix),
		)
	}
	return series
}

func point(metric string, kind datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   kind.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

// ddName turns "sync_pages_total" into "sync.pages.total".
func ddName(name string) string {
	return strings.ReplaceAll(name, "_", ".")
}

// seriesKey encodes name and labels as name\x00k:v\x00k:v with sorted labels.
func seriesKey(name string, labels metrics.Labels) string {
	tags := make([]string, 0, len(labels))
	for k, v := range labels {
		if v == "" {
			v = "unknown"
		}
		tags = append(tags, k+":"+v)
	}
	sort.Strings(tags)
	return strings.Join(append([]string{name}, tags...), "\x00")
}

func splitSeriesKey(k string) (string, []string) {
	parts := strings.Split(k, "\x00")
	return parts[0], parts[1:]
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func withTags(base []string, extras []string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	return append(out, extras...)
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

// ParseTagsCSV parses comma-separated tags like "env:prod,service:sync".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var _ metrics.Backend = (*Backend)(nil)
