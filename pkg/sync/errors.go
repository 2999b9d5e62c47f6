package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable aborts a run: without the page it is unknown
	// whether more pages exist.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrDestinationUnavailable marks failed destination lookups and submissions.
	ErrDestinationUnavailable = errors.New("destination unavailable")
	// ErrUnresolvedRecord is per record and never fatal.
	ErrUnresolvedRecord = errors.New("unresolved record")
	// ErrValidationRejected is per batch and never fatal.
	ErrValidationRejected = errors.New("validation rejected")
)

// PageError ties a fault to the page it happened on.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// UnresolvedRecord describes a source record that could not be matched to a
// destination record or to the nested sub-record needed for merging.
type UnresolvedRecord struct {
	Key    string
	Reason string
}

func (u UnresolvedRecord) Error() string {
	return fmt.Sprintf("unresolved record %q: %s", u.Key, u.Reason)
}

func (u UnresolvedRecord) Unwrap() error {
	return ErrUnresolvedRecord
}
