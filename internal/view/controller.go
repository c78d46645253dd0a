package view

import (
	"strings"

	"github.com/pitabwire/gridview/model"
)

// Controller owns the mutable ViewState of one view and keeps the page
// position consistent with it. Setters report whether they changed the
// state. A Controller is not safe for concurrent use; callers serialize
// access to it.
type Controller struct {
	pipeline  Pipeline
	state     model.ViewState
	lastTotal int
}

// NewController creates a controller seeded with initial. A non-positive
// page size becomes DefaultPageSize and the index starts at 1 if invalid.
func NewController(p Pipeline, initial model.ViewState) *Controller {
	st := initial.Clone()
	st.Sort = st.Sort.Normalize()
	if st.Page.Size < 1 {
		st.Page.Size = DefaultPageSize
	}
	if st.Page.Index < 1 {
		st.Page.Index = 1
	}
	for k, f := range st.Filters {
		if !f.Active() {
			delete(st.Filters, k)
			continue
		}
		f.Key = k
		st.Filters[k] = f
	}
	return &Controller{pipeline: p, state: st}
}

// State returns a copy of the current view state.
func (c *Controller) State() model.ViewState {
	return c.state.Clone()
}

// LastTotal returns the filtered record count of the most recent Compute.
func (c *Controller) LastTotal() int {
	return c.lastTotal
}

// SetPage moves to a 1-based page. Indexes below 1 are ignored. An index
// past the last page is kept until the next Compute clamps it.
func (c *Controller) SetPage(index int) bool {
	if index < 1 || index == c.state.Page.Index {
		return false
	}
	c.state.Page.Index = index
	return true
}

// SetPageSize changes the page size while keeping the first visible record
// on screen: the new index is floor(((index-1)*oldSize)/newSize)+1, reset to 1
// if that lies past the last page for the last known total.
func (c *Controller) SetPageSize(size int) bool {
	if size < 1 || size == c.state.Page.Size {
		return false
	}
	old := c.state.Page
	index := ((old.Index-1)*old.Size)/size + 1
	if index > TotalPages(c.lastTotal, size) {
		index = 1
	}
	c.state.Page = model.PageRequest{Index: index, Size: size}
	return true
}

// SetSearchText replaces the free-text query and returns to page 1.
func (c *Controller) SetSearchText(text string) bool {
	if text == c.state.SearchText {
		return false
	}
	c.state.SearchText = text
	c.resetPage()
	return true
}

// SetFilter installs or replaces the filter for f.Key and returns to page 1.
// An inactive filter (empty, "all", empty set) removes the field's filter.
func (c *Controller) SetFilter(f model.FilterSpec) bool {
	key := strings.TrimSpace(f.Key)
	if key == "" {
		return false
	}
	f.Key = key
	if !f.Active() {
		return c.RemoveFilter(key)
	}
	if cur, ok := c.state.Filters[key]; ok && cur.Equal(f) {
		return false
	}
	if c.state.Filters == nil {
		c.state.Filters = make(model.FilterState)
	}
	c.state.Filters[key] = f.Clone()
	c.resetPage()
	return true
}

// RemoveFilter drops the filter on key and returns to page 1.
func (c *Controller) RemoveFilter(key string) bool {
	if _, ok := c.state.Filters[key]; !ok {
		return false
	}
	delete(c.state.Filters, key)
	c.resetPage()
	return true
}

// ClearFilters drops every filter and returns to page 1.
func (c *Controller) ClearFilters() bool {
	if len(c.state.Filters) == 0 {
		return false
	}
	c.state.Filters = make(model.FilterState)
	c.resetPage()
	return true
}

// SetSort replaces the sort directive and returns to page 1.
func (c *Controller) SetSort(d model.SortDirective) bool {
	d = d.Normalize()
	if d == c.state.Sort {
		return false
	}
	c.state.Sort = d
	c.resetPage()
	return true
}

// ToggleSort advances the asc, desc, none cycle for key.
func (c *Controller) ToggleSort(key string) bool {
	return c.SetSort(NextDirective(c.state.Sort, key))
}

// Compute runs the pipeline over records, clamps the page index to the
// resulting page count and returns the visible page.
func (c *Controller) Compute(records []model.Record) model.PageResult {
	matched := c.pipeline.Apply(records, c.state)
	c.lastTotal = len(matched)

	pages := TotalPages(c.lastTotal, c.state.Page.Size)
	if c.state.Page.Index > pages {
		c.state.Page.Index = max(1, pages)
	}
	return Paginate(matched, c.state.Page)
}

func (c *Controller) resetPage() {
	c.state.Page.Index = 1
}
