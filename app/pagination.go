package app

// support for pagination

import "math"

// A Page is a window onto a paginated list.
type Page struct {
	Number      int  `json:"number"`
	StartOffset int  `json:"-"`
	EndOffset   int  `json:"-"`
	HasPrevious bool `json:"hasPrevious"`
	HasNext     bool `json:"hasNext"`
}

// A Paginator splits Total items into pages of PageSize.
type Paginator struct {
	// PageSize is the number of elements per page
	PageSize int `json:"pageSize"`
	// Total is the total number of elements
	Total int `json:"total"`
	// NumPages is the number of total pages
	NumPages int `json:"numPages"`
}

func NewPaginator(pageSize, objCount int) *Paginator {
	if pageSize < 1 {
		pageSize = 1
	}
	return &Paginator{
		PageSize: pageSize,
		Total:    objCount,
		NumPages: int(math.Ceil(float64(objCount) / float64(pageSize))),
	}
}

// Page at ordinal num.  Numbers below 1 are treated as 1.
func (p *Paginator) Page(num int) *Page {
	if num < 1 {
		num = 1
	}
	return &Page{
		Number:      num,
		StartOffset: (num - 1) * p.PageSize,
		EndOffset:   num * p.PageSize,
		HasPrevious: num > 1,
		HasNext:     num*p.PageSize < p.Total,
	}
}
