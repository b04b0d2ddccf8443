package shared

import "math"

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

// Page is a limit/offset window over a listing.
type Page struct {
	Limit  int
	Offset int
}

// NewPage clamps limit and offset into a usable window.
func NewPage(limit, offset int) Page {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata for a window over total rows.
func NewPagination(page Page, total int) Pagination {
	page = NewPage(page.Limit, page.Offset)
	totalPages := int(math.Ceil(float64(total) / float64(page.Limit)))
	return Pagination{Limit: page.Limit, Offset: page.Offset, Total: total, TotalPages: totalPages}
}
