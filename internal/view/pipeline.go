package view

import "github.com/pitabwire/gridview/model"

// Pipeline runs the view stages in the fixed order Search, Filter, Sort,
// Paginate. The zero Pipeline searches every field and orders strings
// byte-wise.
type Pipeline struct {
	// SearchKeys limits free-text search to these fields.
	SearchKeys []string
	// Collation is a BCP 47 tag for locale-aware string ordering.
	Collation string
}

// Compute returns the visible page for state.
func (p Pipeline) Compute(records []model.Record, state model.ViewState) model.PageResult {
	return Paginate(p.Apply(records, state), state.Page)
}

// Apply runs search, filter and sort and returns the full ordered result
// that pagination slices and counts. Which filters are active is decided
// against the whole input, so a search that leaves only records lacking a
// filtered field cannot switch that filter off.
func (p Pipeline) Apply(records []model.Record, state model.ViewState) []model.Record {
	active := activeFilters(records, state.Filters)
	out := Search(records, state.SearchText, p.SearchKeys)
	out = filterBy(out, active)
	if p.Collation != "" {
		return SortCollated(out, state.Sort, p.Collation)
	}
	return Sort(out, state.Sort)
}

// Compute runs the zero Pipeline.
func Compute(records []model.Record, state model.ViewState) model.PageResult {
	return Pipeline{}.Compute(records, state)
}
