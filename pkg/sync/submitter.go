package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Sink writes one batch to the destination. Errors wrapping
// ErrValidationRejected mean the destination refused the batch; any other
// error is treated as the destination being unavailable.
type Sink[P any] func(ctx context.Context, batch []P) error

type FailedBatch struct {
	Index int
	Size  int
	Err   error
}

type SubmissionResult struct {
	Batches   int
	Submitted int
	Failed    []FailedBatch
}

func (r SubmissionResult) FailedRecords() int {
	n := 0
	for _, f := range r.Failed {
		n += f.Size
	}
	return n
}

// BatchSubmitter posts payloads in chunks of at most MaxBatchSize
// (all at once when MaxBatchSize <= 0). A failed chunk is logged and
// recorded, the remaining chunks are still sent.
type BatchSubmitter[P any] struct {
	Sink         Sink[P]
	MaxBatchSize int
	// OnFailure is called for every failed chunk, after logging.
	OnFailure func(ctx context.Context, failed FailedBatch, batch []P)
}

func (s BatchSubmitter[P]) Submit(ctx context.Context, payloads []P) SubmissionResult {
	result := SubmissionResult{}
	if len(payloads) == 0 {
		return result
	}

	for i, batch := range chunk(payloads, s.MaxBatchSize) {
		result.Batches++
		err := s.Sink(ctx, batch)
		if err == nil {
			result.Submitted += len(batch)
			continue
		}

		if !errors.Is(err, ErrValidationRejected) && !errors.Is(err, ErrDestinationUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDestinationUnavailable, err)
		}
		failed := FailedBatch{Index: i, Size: len(batch), Err: err}
		result.Failed = append(result.Failed, failed)

		slog.Error("batch submission failed",
			slog.Int("batch", i),
			slog.Int("size", len(batch)),
			slog.Bool("rejected", errors.Is(err, ErrValidationRejected)),
			slog.String("error", err.Error()),
		)
		if s.OnFailure != nil {
			s.OnFailure(ctx, failed, batch)
		}
	}
	return result
}

func chunk[P any](items []P, size int) [][]P {
	if size <= 0 || size >= len(items) {
		return [][]P{items}
	}
	out := make([][]P, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
