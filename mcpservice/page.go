package mcpservice

import "strconv"

// Page is one page of a listing. Items is never nil.
type Page[T any] struct {
	Items      []T
	NextCursor *string
}

// PageOption configures a Page built by NewPage.
type PageOption[T any] func(*Page[T])

// WithNextCursor marks that more results follow.
func WithNextCursor[T any](cursor string) PageOption[T] {
	return func(p *Page[T]) { p.NextCursor = &cursor }
}

// NewPage builds a Page, replacing a nil items slice with an empty one.
func NewPage[T any](items []T, opts ...PageOption[T]) Page[T] {
	if items == nil {
		items = make([]T, 0)
	}
	p := Page[T]{Items: items}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// paginate slices all by an offset cursor. Unparseable or out of range
// cursors restart from the beginning.
func paginate[T any](all []T, cursor *string, size int) Page[T] {
	start := 0
	if cursor != nil && *cursor != "" {
		if n, err := strconv.Atoi(*cursor); err == nil && n >= 0 && n <= len(all) {
			start = n
		}
	}
	end := min(start+size, len(all))
	items := make([]T, end-start)
	copy(items, all[start:end])
	if end < len(all) {
		return NewPage(items, WithNextCursor[T](strconv.Itoa(end)))
	}
	return NewPage(items)
}
