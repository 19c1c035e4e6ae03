package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPerPage = 12
	MaxPerPage     = 100
)

// Params are the page coordinates read from a query string.
type Params struct {
	Page    int
	PerPage int
}

// Offset is the number of rows to skip. Pages below 1 count as page 1.
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// FromRequest reads ?page= and ?limit= (per_page is accepted as an alias).
// Missing or out-of-range values fall back to page 1 and DefaultPerPage.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	p := Params{Page: 1, PerPage: DefaultPerPage}

	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
	}

	limit := q.Get("limit")
	if limit == "" {
		limit = q.Get("per_page")
	}
	if v, err := strconv.Atoi(limit); err == nil && v > 0 {
		p.PerPage = min(v, MaxPerPage)
	}
	return p
}
