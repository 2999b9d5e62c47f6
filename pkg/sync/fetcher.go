package sync

import (
	"context"
	"fmt"
)

const (
	DEFAULT_PAGE_SIZE = 50
)

// PageSource returns the records of one page. An empty slice means there
// are no more pages.
type PageSource[T any] func(ctx context.Context, page int, pageSize int) ([]T, error)

type Page[T any] struct {
	Number  int
	Size    int
	Records []T
}

// Fetcher walks a PageSource from a start page until the first empty page.
// It is single use: once exhausted or failed it issues no further requests.
type Fetcher[T any] struct {
	source   PageSource[T]
	pageSize int
	next     int
	done     bool
	requests int
}

func NewFetcher[T any](source PageSource[T], startPage int, pageSize int) *Fetcher[T] {
	if startPage < 1 {
		startPage = 1
	}
	if pageSize <= 0 {
		pageSize = DEFAULT_PAGE_SIZE
	}
	return &Fetcher[T]{
		source:   source,
		pageSize: pageSize,
		next:     startPage,
	}
}

// NextPage is the page the next call to Next will request. Persisting it
// allows a later run to resume.
func (f *Fetcher[T]) NextPage() int {
	return f.next
}

func (f *Fetcher[T]) PageSize() int {
	return f.pageSize
}

// Requests is the number of page requests issued so far.
func (f *Fetcher[T]) Requests() int {
	return f.requests
}

func (f *Fetcher[T]) Done() bool {
	return f.done
}

// Next fetches the next page. ok is false once an empty page was returned.
// Any source failure is reported as ErrSourceUnavailable and ends the sequence.
func (f *Fetcher[T]) Next(ctx context.Context) (page Page[T], ok bool, err error) {
	if f.done {
		return Page[T]{}, false, nil
	}

	number := f.next
	f.requests++
	records, err := f.source(ctx, number, f.pageSize)
	if err != nil {
		f.done = true
		return Page[T]{}, false, &PageError{Page: number, Err: fmt.Errorf("%w: %w", ErrSourceUnavailable, err)}
	}
	if len(records) == 0 {
		f.done = true
		return Page[T]{}, false, nil
	}

	f.next++
	return Page[T]{Number: number, Size: f.pageSize, Records: records}, true, nil
}
