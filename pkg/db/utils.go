package db

import (
	"errors"
	"log/slog"
	"time"
)

const (
	DEFAULT_DB_INIT_MAX_RETRIES    = 25
	DEFAULT_DB_INIT_RETRY_INTERVAL = 30 * time.Second
)

// InitDBWithRetry calls initFunc until it succeeds, waiting retryInterval
// between attempts.
func InitDBWithRetry(name string, maxRetries int, retryInterval time.Duration, initFunc func() error) error {
	if maxRetries < 1 {
		maxRetries = DEFAULT_DB_INIT_MAX_RETRIES
	}
	if retryInterval < 0 {
		retryInterval = DEFAULT_DB_INIT_RETRY_INTERVAL
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := initFunc()
		if err == nil {
			return nil
		}
		if attempt == maxRetries {
			slog.Error("Error connecting to "+name+" DB, final attempt failed",
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Int("max_retries", maxRetries))
		} else {
			slog.Error("Error connecting to "+name+" DB, retrying...",
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_in", retryInterval))
			time.Sleep(retryInterval)
		}
	}
	return errors.New("failed to connect to " + name + " DB after all retries")
}
