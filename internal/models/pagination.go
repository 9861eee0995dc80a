package models

// Pagination describes a page of results
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPagination normalizes page/limit and computes the page count
func NewPagination(total, page, limit int) Pagination {
	page, limit = NormalizePage(page, limit)
	return Pagination{
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: (total + limit - 1) / limit,
	}
}

// NormalizePage applies defaults to page and limit (page 1, limit 10, max 100)
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

// Page is a page of items with its pagination info
type Page[T any] struct {
	Items      []*T       `json:"items"`
	Pagination Pagination `json:"pagination"`
}
