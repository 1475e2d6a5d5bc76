package models

import "strconv"

// Pagination defaults shared by every list endpoint.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a normalized 1-based page request.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"pageSize"`
}

// NewPage clamps raw values: page >= 1, size within [1, MaxPageSize].
func NewPage(number, size int) Page {
	if number < 1 {
		number = DefaultPage
	}
	switch {
	case size < 1:
		size = 1
	case size > MaxPageSize:
		size = MaxPageSize
	}

	return Page{Number: number, Size: size}
}

// ParsePage builds a Page from query-string values; absent or unparsable
// values use the defaults before clamping.
func ParsePage(page, pageSize string) Page {
	n, err := strconv.Atoi(page)
	if err != nil {
		n = DefaultPage
	}
	s, err := strconv.Atoi(pageSize)
	if err != nil {
		s = DefaultPageSize
	}

	return NewPage(n, s)
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// PageResult is the envelope returned by list endpoints.
type PageResult[T any] struct {
	Data     []T `json:"data"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// NewPageResult wraps items with their page coordinates. A nil slice becomes empty.
func NewPageResult[T any](items []T, p Page) PageResult[T] {
	if items == nil {
		items = []T{}
	}

	return PageResult[T]{Data: items, Page: p.Number, PageSize: p.Size}
}
