package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/case-framework/tracker-sync-backend/pkg/metrics"
)

const (
	DEFAULT_REQUEST_TIMEOUT = 60 * time.Second

	maxErrorBodyBytes = 4096
)

var (
	ErrImportRejected = errors.New("tracker import rejected")
)

// HTTPError is returned for any non-2xx response that is not an import report.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// Client talks to the DHIS2 web API. BaseURL points at the API root, e.g.
// https://play.dhis2.org/40/api.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("tracker client: base url is empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("tracker client: invalid base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DEFAULT_REQUEST_TIMEOUT
	}

	return &Client{
		baseURL:  baseURL,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConns:        64,
				MaxIdleConnsPerHost: 16,
			},
		},
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetEvents reads one page of events from /tracker/events.
func (c *Client) GetEvents(ctx context.Context, q EventQuery) (*EventsPage, error) {
	var page EventsPage
	if err := c.get(ctx, "/tracker/events.json", q.params(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetTrackedEntities runs one bulk lookup of tracked entities whose attribute
// value is in q.Values.
func (c *Client) GetTrackedEntities(ctx context.Context, q TrackedEntityQuery) ([]TrackedEntity, error) {
	var page TrackedEntitiesPage
	if err := c.get(ctx, "/tracker/trackedEntities.json", q.params(), &page); err != nil {
		return nil, err
	}
	return page.Instances, nil
}

// GetLegacyEvents reads one page from the pre-tracker /events endpoint.
func (c *Client) GetLegacyEvents(ctx context.Context, q LegacyEventQuery) ([]LegacyEvent, error) {
	var page LegacyEventsPage
	if err := c.get(ctx, "/events.json", q.params(), &page); err != nil {
		return nil, err
	}
	return page.Events, nil
}

// PostTracker submits a payload to /tracker. A rejected import returns the
// decoded report together with an error wrapping ErrImportRejected.
func (c *Client) PostTracker(ctx context.Context, payload Payload, opts ImportOptions) (*ImportReport, error) {
	if payload.Size() == 0 {
		return &ImportReport{Status: IMPORT_STATUS_OK}, nil
	}
	slog.Debug("posting tracker payload", slog.Int("objects", payload.Size()), slog.Bool("async", opts.Async))

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode tracker payload: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/tracker", opts.params(), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tracker response: %w", err)
	}

	isSuccess := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !isSuccess && resp.StatusCode != http.StatusConflict {
		return nil, &HTTPError{
			Method:     http.MethodPost,
			URL:        c.baseURL + "/tracker",
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw), maxErrorBodyBytes),
		}
	}

	var report ImportReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode tracker import report: %w", err)
	}

	if resp.StatusCode == http.StatusConflict || report.Rejected() {
		return &report, fmt.Errorf("%w: %s", ErrImportRejected, RejectionSummary(report))
	}
	return &report, nil
}

// RejectionSummary renders the first error reports of an import report.
func RejectionSummary(report ImportReport) string {
	const maxReports = 5

	parts := []string{}
	if report.Message != "" {
		parts = append(parts, report.Message)
	}
	for i, er := range report.ValidationReport.ErrorReports {
		if i == maxReports {
			parts = append(parts, fmt.Sprintf("and %d more", len(report.ValidationReport.ErrorReports)-maxReports))
			break
		}
		parts = append(parts, fmt.Sprintf("%s %s %s: %s", er.ErrorCode, er.TrackerType, er.UID, er.Message))
	}
	if len(parts) == 0 {
		return "status " + report.Status
	}
	return strings.Join(parts, "; ")
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &HTTPError{
			Method:     http.MethodGet,
			URL:        c.baseURL + path,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method string, path string, params url.Values, body []byte) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordHTTP(path, 0, err, time.Since(start))
		slog.Debug("tracker request failed", slog.String("method", method), slog.String("path", path), slog.String("error", err.Error()))
		return nil, err
	}
	metrics.RecordHTTP(path, resp.StatusCode, nil, time.Since(start))
	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
