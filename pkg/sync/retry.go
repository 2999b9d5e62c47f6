package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	DEFAULT_RETRY_BASE_BACKOFF = 2 * time.Second
	DEFAULT_RETRY_MAX_BACKOFF  = 30 * time.Second
)

// RetryPolicy wraps page sources and sinks from the outside; the pipeline
// itself never retries. MaxAttempts <= 1 disables retries.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`

	sleep func(ctx context.Context, d time.Duration) bool
}

func (rp RetryPolicy) enabled() bool {
	return rp.MaxAttempts > 1
}

// delay is base * 2^(attempt-1), clamped to MaxBackoff.
func (rp RetryPolicy) delay(attempt int) time.Duration {
	base := rp.BaseBackoff
	if base <= 0 {
		base = DEFAULT_RETRY_BASE_BACKOFF
	}
	max := rp.MaxBackoff
	if max <= 0 {
		max = DEFAULT_RETRY_MAX_BACKOFF
	}
	d := base << uint(attempt-1)
	if d > max || d <= 0 {
		d = max
	}
	return d
}

func (rp RetryPolicy) wait(ctx context.Context, d time.Duration) bool {
	if rp.sleep != nil {
		return rp.sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (rp RetryPolicy) do(ctx context.Context, what string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= rp.MaxAttempts; attempt++ {
		err = fn()
		if err == nil || errors.Is(err, ErrValidationRejected) || attempt == rp.MaxAttempts {
			return err
		}
		wait := rp.delay(attempt)
		slog.Warn(what+" failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", rp.MaxAttempts),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
		if !rp.wait(ctx, wait) {
			return err
		}
	}
	return err
}

// RetryPageSource retries failed page requests. An empty page is a valid
// response and is not retried.
func RetryPageSource[T any](source PageSource[T], rp RetryPolicy) PageSource[T] {
	if !rp.enabled() {
		return source
	}
	return func(ctx context.Context, page int, pageSize int) ([]T, error) {
		var records []T
		err := rp.do(ctx, "page request", func() error {
			var err error
			records, err = source(ctx, page, pageSize)
			return err
		})
		return records, err
	}
}

// RetrySink retries batches that failed because the destination was
// unavailable. Rejected batches are returned immediately.
func RetrySink[P any](sink Sink[P], rp RetryPolicy) Sink[P] {
	if !rp.enabled() {
		return sink
	}
	return func(ctx context.Context, batch []P) error {
		return rp.do(ctx, "batch submission", func() error {
			return sink(ctx, batch)
		})
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
