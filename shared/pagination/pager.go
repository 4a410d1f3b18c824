// Package pagination walks cursor-based list endpoints one page at a time.
package pagination

import (
	"context"
	"errors"
)

// ErrDone is returned by Next once the cursor is exhausted.
var ErrDone = errors.New("pagination: no more pages")

// FetchFunc retrieves the page identified by token. An empty token means the
// first page; an empty next token means there are no further pages.
type FetchFunc[T any] func(ctx context.Context, token string) (items []T, next string, err error)

// Pager is a lazy sequence of pages. Nothing is fetched until Next is called,
// and a failed Next leaves the cursor in place so the same page is requested
// again on the following call.
type Pager[T any] struct {
	fetch   FetchFunc[T]
	token   string
	fetched int
	done    bool

	// Before, when set, runs ahead of every fetch with the zero-based index
	// of the page about to be requested.
	Before func(ctx context.Context, page int) error
}

// New returns a pager over fetch.
func New[T any](fetch FetchFunc[T]) *Pager[T] {
	return &Pager[T]{fetch: fetch}
}

// Next returns the items of the next page.
func (p *Pager[T]) Next(ctx context.Context) ([]T, error) {
	if p.done {
		return nil, ErrDone
	}

	if p.Before != nil {
		if err := p.Before(ctx, p.fetched); err != nil {
			return nil, err
		}
	}

	items, next, err := p.fetch(ctx, p.token)
	if err != nil {
		return nil, err
	}

	p.fetched++
	p.token = next
	if next == "" {
		p.done = true
	}
	return items, nil
}

// Done reports whether the cursor has been exhausted.
func (p *Pager[T]) Done() bool {
	return p.done
}

// Pages returns how many pages have been fetched successfully.
func (p *Pager[T]) Pages() int {
	return p.fetched
}
