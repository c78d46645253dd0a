package view

import "github.com/pitabwire/gridview/model"

// DefaultPageSize is used when a view is created without a page size.
const DefaultPageSize = 10

// TotalPages returns ceil(total/size), or 0 when there are no records.
func TotalPages(total, size int) int {
	if total <= 0 {
		return 0
	}
	if size < 1 {
		size = 1
	}
	pages := total / size
	if total%size > 0 {
		pages++
	}
	return pages
}

// Offset returns the index of the first record of a 1-based page.
func Offset(index, size int) int {
	if index < 1 {
		index = 1
	}
	if size < 1 {
		size = 1
	}
	return (index - 1) * size
}

// Paginate slices one page out of records. A page past the end yields no
// items while still reporting the real totals. Non-positive index and size
// are treated as 1.
func Paginate(records []model.Record, page model.PageRequest) model.PageResult {
	if page.Index < 1 {
		page.Index = 1
	}
	if page.Size < 1 {
		page.Size = 1
	}

	total := len(records)
	result := model.PageResult{
		Items:      []model.Record{},
		TotalCount: total,
		TotalPages: TotalPages(total, page.Size),
		Page:       page.Index,
		PageSize:   page.Size,
	}

	offset := Offset(page.Index, page.Size)
	if offset >= total {
		return result
	}
	end := offset + page.Size
	if end > total {
		end = total
	}
	result.Items = records[offset:end:end]
	return result
}
