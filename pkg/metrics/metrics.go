// Package metrics is the small facade sync code reports to. The backend is
// process-wide and defaults to a no-op; jobs install a real backend at start.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

const (
	PAGES_TOTAL              = "sync_pages_total"
	RECORDS_TOTAL            = "sync_records_total"
	BATCHES_TOTAL            = "sync_batches_total"
	RUNS_TOTAL               = "sync_runs_total"
	HTTP_REQUESTS_TOTAL      = "sync_http_requests_total"
	HTTP_ERRORS_TOTAL        = "sync_http_errors_total"
	HTTP_REQUEST_DURATION    = "sync_http_request_duration_seconds"
	PAGE_PROCESSING_DURATION = "sync_page_duration_seconds"
	RECORD_KIND_FETCHED      = "fetched"
	RECORD_KIND_MATCHED      = "matched"
	RECORD_KIND_UNRESOLVED   = "unresolved"
	RECORD_KIND_SUBMITTED    = "submitted"
	BATCH_STATUS_OK          = "ok"
	BATCH_STATUS_FAILED      = "failed"
)

type Labels map[string]string

type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func Flush() error {
	return current().Flush()
}

func RecordPage(job string, records int, took time.Duration) {
	b := current()
	b.IncCounter(PAGES_TOTAL, 1, Labels{"job": job})
	b.IncCounter(RECORDS_TOTAL, float64(records), Labels{"job": job, "kind": RECORD_KIND_FETCHED})
	b.ObserveHistogram(PAGE_PROCESSING_DURATION, took.Seconds(), Labels{"job": job})
}

func RecordRecords(job string, kind string, n int) {
	current().IncCounter(RECORDS_TOTAL, float64(n), Labels{"job": job, "kind": kind})
}

func RecordBatch(job string, status string) {
	current().IncCounter(BATCHES_TOTAL, 1, Labels{"job": job, "status": status})
}

func RecordRun(job string, status string) {
	current().IncCounter(RUNS_TOTAL, 1, Labels{"job": job, "status": status})
}

// RecordHTTP records one request against the tracker API. statusCode is 0
// when no response was received.
func RecordHTTP(endpoint string, statusCode int, err error, took time.Duration) {
	b := current()
	status := strconv.Itoa(statusCode)
	labels := Labels{"endpoint": endpoint, "status": status}

	b.IncCounter(HTTP_REQUESTS_TOTAL, 1, labels)
	if err != nil || statusCode >= 400 || statusCode == 0 {
		b.IncCounter(HTTP_ERRORS_TOTAL, 1, labels)
	}
	b.ObserveHistogram(HTTP_REQUEST_DURATION, took.Seconds(), labels)
}
