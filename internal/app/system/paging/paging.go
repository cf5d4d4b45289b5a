// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/waffle/pantry/query"
)

// PageSize is the default number of rows returned by list endpoints.
const PageSize = 50

// MaxPageSize caps the "limit" query parameter.
const MaxPageSize = 500

// ParseLimit reads the "limit" query parameter, falling back to PageSize
// when missing or invalid and clamping to MaxPageSize.
func ParseLimit(r *http.Request) int64 {
	n, err := strconv.ParseInt(query.Get(r, "limit"), 10, 64)
	if err != nil || n < 1 {
		return PageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// ParseOffset reads the "offset" query parameter. Returns 0 if not present
// or invalid.
func ParseOffset(r *http.Request) int64 {
	n, err := strconv.ParseInt(query.Get(r, "offset"), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Page is the JSON envelope of a list fetched with look-ahead paging.
type Page[T any] struct {
	Items   []T   `json:"items"`
	Limit   int64 `json:"limit"`
	Offset  int64 `json:"offset"`
	HasMore bool  `json:"has_more"`
}

// NewPage trims rows fetched with LimitPlusOne and wraps them.
func NewPage[T any](rows []T, limit, offset int64) Page[T] {
	items, more := Trim(rows, limit)
	return Page[T]{Items: items, Limit: limit, Offset: offset, HasMore: more}
}

// LimitPlusOne returns limit+1 for look-ahead pagination (fetch one extra
// document to detect a next page).
func LimitPlusOne(limit int64) int64 { return limit + 1 }

// Trim cuts rows fetched with LimitPlusOne back to limit and reports
// whether more rows exist.
func Trim[T any](rows []T, limit int64) ([]T, bool) {
	if int64(len(rows)) > limit {
		return rows[:limit], true
	}
	return rows, false
}
