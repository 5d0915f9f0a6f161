package params

import "math"

// Chat screens page with explicit offsets carried in button payloads:
// offset=10, limit=5 → LIMIT 5 OFFSET 10 → ComputeMeta(total) decides
// whether Previous and Next buttons are shown.

// Pagination holds pagination info and computed metadata.
type Pagination struct {
	Limit      int  `json:"limit"`  // items per page
	Offset     int  `json:"offset"` // SQL OFFSET value
	Page       int  `json:"page"`   // zero-based page number
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// FromOffset builds a pagination window starting at offset. Negative offsets
// are clamped to zero.
func FromOffset(offset, limit int) Pagination {
	if limit <= 0 {
		limit = 1
	}
	if offset < 0 {
		offset = 0
	}
	return Pagination{Limit: limit, Offset: offset, Page: offset / limit}
}

// FromPage builds a window for a zero-based page number.
func FromPage(page, limit int) Pagination {
	if page < 0 {
		page = 0
	}
	return FromOffset(page*limit, limit)
}

// ComputeMeta updates pagination after fetching total count.
func (p *Pagination) ComputeMeta(total int) {
	p.Total = total
	if p.Limit > 0 {
		p.TotalPages = int(math.Ceil(float64(total) / float64(p.Limit)))
	}
	p.HasPrev = p.Offset > 0
	p.HasNext = p.Offset+p.Limit < total
}

// PrevOffset is the offset of the previous page, never below zero.
func (p Pagination) PrevOffset() int {
	return max(p.Offset-p.Limit, 0)
}

func (p Pagination) NextOffset() int {
	return p.Offset + p.Limit
}

// Clamp moves an offset that points past the end onto the last page.
func (p *Pagination) Clamp(total int) {
	if total <= 0 || p.Offset < total {
		return
	}
	last := (total - 1) / p.Limit
	p.Offset = last * p.Limit
	p.Page = last
}
