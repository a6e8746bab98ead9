package shared

import (
	"math"
	"net/url"
	"strconv"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	page, perPage = normalizePage(page, perPage)
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// PageRequest is the page/perPage pair requested by a caller.
type PageRequest struct {
	Page    int
	PerPage int
}

// PageFromQuery reads page and pageSize query parameters.
func PageFromQuery(q url.Values) PageRequest {
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("pageSize"))
	page, perPage = normalizePage(page, perPage)
	return PageRequest{Page: page, PerPage: perPage}
}

// Limit returns the SQL LIMIT for the request.
func (p PageRequest) Limit() int {
	_, perPage := normalizePage(p.Page, p.PerPage)
	return perPage
}

// Offset returns the SQL OFFSET for the request.
func (p PageRequest) Offset() int {
	page, perPage := normalizePage(p.Page, p.PerPage)
	return (page - 1) * perPage
}

func normalizePage(page, perPage int) (int, int) {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	if page <= 0 {
		page = 1
	}
	return page, perPage
}
