package core

const (
	DefaultPageSize = 25
	MaxPageSize     = 200
)

// Page is one slice of a paginated listing.
type Page[T any] struct {
	Items   []T  `json:"items"`
	Page    int  `json:"page"`
	Size    int  `json:"size"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasPrev bool `json:"has_prev"`
	HasNext bool `json:"has_next"`
}

// Paginate returns the 1-based page of items. Size is clamped to
// 1..MaxPageSize (0 means DefaultPageSize) and page to 1..Pages.
func Paginate[T any](items []T, page, size int) Page[T] {
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	total := len(items)
	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	start := (page - 1) * size
	end := start + size
	if end > total {
		end = total
	}
	return Page[T]{
		Items:   items[start:end],
		Page:    page,
		Size:    size,
		Total:   total,
		Pages:   pages,
		HasPrev: page > 1,
		HasNext: page < pages,
	}
}

// PrintPage is a slice of line items laid out on one printed page.
type PrintPage struct {
	Number int
	Offset int // index of the first item in the document
	Items  []LineItem
	Last   bool
}

// PaginateItems splits line items into printed pages. The first page holds
// firstPage rows because of the header block, the following ones perPage.
// A document without items still yields one empty page.
func PaginateItems(items []LineItem, firstPage, perPage int) []PrintPage {
	if firstPage < 1 {
		firstPage = 1
	}
	if perPage < 1 {
		perPage = firstPage
	}
	var pages []PrintPage
	offset := 0
	for n := 1; ; n++ {
		limit := perPage
		if n == 1 {
			limit = firstPage
		}
		end := offset + limit
		if end > len(items) {
			end = len(items)
		}
		pages = append(pages, PrintPage{Number: n, Offset: offset, Items: items[offset:end]})
		offset = end
		if offset >= len(items) {
			break
		}
	}
	pages[len(pages)-1].Last = true
	return pages
}
