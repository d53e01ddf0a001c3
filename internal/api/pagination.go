package api

import (
	"context"
)

// Page is one page of a cursor-paginated listing.
type Page[T any] struct {
	Items  []T
	Cursor string // empty on the last page
}

// HasMore reports whether another page follows.
func (p Page[T]) HasMore() bool {
	return p.Cursor != ""
}

// PageFunc fetches the page starting at cursor ("" for the first page).
type PageFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Paginator walks a cursor-paginated endpoint one page at a time.
type Paginator[T any] struct {
	fetch  PageFunc[T]
	cursor string
	done   bool
}

// NewPaginator creates a paginator positioned before the first page.
func NewPaginator[T any](fetch PageFunc[T]) *Paginator[T] {
	return &Paginator[T]{fetch: fetch}
}

// HasMore reports whether Next may return more items.
func (p *Paginator[T]) HasMore() bool {
	return !p.done
}

// Next fetches the next page. It returns nil once the listing is exhausted.
func (p *Paginator[T]) Next(ctx context.Context) ([]T, error) {
	if p.done {
		return nil, nil
	}

	page, err := p.fetch(ctx, p.cursor)
	if err != nil {
		return nil, err
	}

	// A cursor that does not advance would loop forever.
	if !page.HasMore() || page.Cursor == p.cursor {
		p.done = true
	}
	p.cursor = page.Cursor
	return page.Items, nil
}

// All fetches every remaining page.
func (p *Paginator[T]) All(ctx context.Context) ([]T, error) {
	var all []T
	for p.HasMore() {
		items, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}
