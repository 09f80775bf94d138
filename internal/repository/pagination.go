package repository

// Page bounds for project listings.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest is a 1-based page selection.
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalized clamps the request into the default and maximum bounds.
func (p PageRequest) Normalized() PageRequest {
	out := PageRequest{Page: max(p.Page, DefaultPage), PageSize: p.PageSize}
	switch {
	case out.PageSize < 1:
		out.PageSize = DefaultPageSize
	case out.PageSize > MaxPageSize:
		out.PageSize = MaxPageSize
	}
	return out
}

func (p PageRequest) offset() int { return (p.Page - 1) * p.PageSize }

// emptyPage returns a page with no items yet, echoing the normalized request.
func emptyPage[T any](req PageRequest) PageResult[T] {
	return PageResult[T]{Items: []T{}, Page: req.Page, PageSize: req.PageSize}
}

type PageResult[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// withTotal records the row count and derives the page count from it.
func (r *PageResult[T]) withTotal(total int64) {
	r.Total = total
	r.TotalPages = 0
	if total > 0 && r.PageSize > 0 {
		r.TotalPages = int((total + int64(r.PageSize) - 1) / int64(r.PageSize))
	}
}
