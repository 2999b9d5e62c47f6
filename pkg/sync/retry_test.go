package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(waits *[]time.Duration) func(context.Context, time.Duration) bool {
	return func(_ context.Context, d time.Duration) bool {
		*waits = append(*waits, d)
		return true
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	rp := RetryPolicy{BaseBackoff: time.Second, MaxBackoff: 5 * time.Second}
	assert.Equal(t, time.Second, rp.delay(1))
	assert.Equal(t, 2*time.Second, rp.delay(2))
	assert.Equal(t, 4*time.Second, rp.delay(3))
	assert.Equal(t, 5*time.Second, rp.delay(4))

	assert.Equal(t, DEFAULT_RETRY_BASE_BACKOFF, RetryPolicy{}.delay(1))
}

func TestRetryPageSource(t *testing.T) {
	var waits []time.Duration
	calls := 0
	source := RetryPageSource(func(_ context.Context, page int, _ int) ([]int, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("timeout")
		}
		return []int{page}, nil
	}, RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Second, sleep: noSleep(&waits)})

	records, err := source(context.Background(), 4, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, records)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestRetryPageSourceGivesUp(t *testing.T) {
	var waits []time.Duration
	calls := 0
	source := RetryPageSource(func(context.Context, int, int) ([]int, error) {
		calls++
		return nil, errors.New("timeout")
	}, RetryPolicy{MaxAttempts: 2, sleep: noSleep(&waits)})

	f := NewFetcher(source, 1, 10)
	_, _, err := f.Next(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, f.Requests())
}

func TestRetrySinkDoesNotRetryRejectedBatches(t *testing.T) {
	var waits []time.Duration
	calls := 0
	sink := RetrySink(func(context.Context, []int) error {
		calls++
		return fmt.Errorf("%w: E1000", ErrValidationRejected)
	}, RetryPolicy{MaxAttempts: 5, sleep: noSleep(&waits)})

	err := sink(context.Background(), []int{1})
	assert.ErrorIs(t, err, ErrValidationRejected)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
}

func TestRetrySinkRetriesUnavailableDestination(t *testing.T) {
	var waits []time.Duration
	calls := 0
	sink := RetrySink(func(context.Context, []int) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("%w: 502", ErrDestinationUnavailable)
		}
		return nil
	}, RetryPolicy{MaxAttempts: 3, sleep: noSleep(&waits)})

	assert.NoError(t, sink(context.Background(), []int{1}))
	assert.Equal(t, 2, calls)
}

func TestRetryDisabled(t *testing.T) {
	calls := 0
	sink := RetrySink(func(context.Context, []int) error {
		calls++
		return errors.New("down")
	}, RetryPolicy{})

	assert.Error(t, sink(context.Background(), nil))
	assert.Equal(t, 1, calls)
}

func TestRetryStopsWhenContextIsDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	sink := RetrySink(func(context.Context, []int) error {
		calls++
		return errors.New("down")
	}, RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Hour})

	assert.Error(t, sink(ctx, nil))
	assert.Equal(t, 1, calls)
}
