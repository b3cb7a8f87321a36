package shared

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Sort directions accepted by list endpoints.
const (
	SortAsc  = "asc"
	SortDesc = "desc"

	DefaultPerPage = 20
	MaxPerPage     = 100
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
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// ListParams are the common list filters read from a query string.
type ListParams struct {
	Page    int
	PerPage int
	SortBy  string
	SortDir string
	Search  string
}

// ParseListParams reads page, per_page, sort, dir and q, clamping page sizes.
func ParseListParams(q url.Values) ListParams {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	dir := strings.ToLower(q.Get("dir"))
	if dir != SortDesc {
		dir = SortAsc
	}
	return ListParams{
		Page:    page,
		PerPage: perPage,
		SortBy:  strings.TrimSpace(q.Get("sort")),
		SortDir: dir,
		Search:  strings.TrimSpace(q.Get("q")),
	}
}

// Offset returns the row offset for the current page.
func (p ListParams) Offset() int {
	if p.Page < 1 || p.PerPage < 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// Pagination builds response metadata for the given total.
func (p ListParams) Pagination(total int) Pagination {
	return NewPagination(p.Page, p.PerPage, total)
}
