package model

import (
	"fmt"
	"strings"
)

// FilterKind selects how a FilterSpec constrains its field.
type FilterKind string

// Filter kinds.
const (
	FilterText    FilterKind = "text"
	FilterExact   FilterKind = "exact"
	FilterSet     FilterKind = "set"
	FilterRange   FilterKind = "range"
	FilterBoolean FilterKind = "boolean"
)

// ParseFilterKind validates a filter kind name. The empty string means exact.
func ParseFilterKind(s string) (FilterKind, error) {
	switch k := FilterKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return FilterExact, nil
	case FilterText, FilterExact, FilterSet, FilterRange, FilterBoolean:
		return k, nil
	default:
		return "", fmt.Errorf("unknown filter kind %q", s)
	}
}

// AllSentinel is the "no selection" marker a filter control sends when every
// value is acceptable.
const AllSentinel = "all"

// FilterSpec is a single field constraint. Which payload field is read
// depends on Kind: Value for text, exact and boolean; Values for set; Start
// and End for range.
type FilterSpec struct {
	Key    string     `json:"key"`
	Kind   FilterKind `json:"kind"`
	Value  Value      `json:"value"`
	Values []Value    `json:"values,omitempty"`
	Start  Value      `json:"start"`
	End    Value      `json:"end"`
}

// IsNoSelection reports whether v is one of the "no constraint" markers:
// null, blank text or the "all" sentinel.
func IsNoSelection(v Value) bool {
	if v.IsNull() {
		return true
	}
	s, ok := v.Str()
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, AllSentinel)
}

// Members returns the allowed values of a set filter, skipping no-selection
// markers. A list or scalar Value is accepted when Values is empty.
func (f FilterSpec) Members() []Value {
	src := f.Values
	if len(src) == 0 {
		if items, ok := f.Value.ListVal(); ok {
			src = items
		} else if !f.Value.IsNull() {
			src = []Value{f.Value}
		}
	}
	out := make([]Value, 0, len(src))
	for _, v := range src {
		if !IsNoSelection(v) {
			out = append(out, v)
		}
	}
	return out
}

// Active reports whether the filter constrains anything. Empty, "all" and
// empty-set filters never exclude a record.
func (f FilterSpec) Active() bool {
	switch f.Kind {
	case FilterSet:
		return len(f.Members()) > 0
	case FilterRange:
		return !IsNoSelection(f.Start) || !IsNoSelection(f.End)
	default:
		return !IsNoSelection(f.Value)
	}
}

// Equal reports whether two specs describe the same constraint.
func (f FilterSpec) Equal(o FilterSpec) bool {
	if f.Key != o.Key || f.Kind != o.Kind {
		return false
	}
	if !f.Value.Equal(o.Value) || !f.Start.Equal(o.Start) || !f.End.Equal(o.End) {
		return false
	}
	if len(f.Values) != len(o.Values) {
		return false
	}
	for i := range f.Values {
		if !f.Values[i].Equal(o.Values[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of f.
func (f FilterSpec) Clone() FilterSpec {
	if f.Values != nil {
		f.Values = append([]Value(nil), f.Values...)
	}
	return f
}

// FilterState is the set of active filters keyed by field.
type FilterState map[string]FilterSpec

// Clone returns a deep copy of s.
func (s FilterState) Clone() FilterState {
	out := make(FilterState, len(s))
	for k, f := range s {
		out[k] = f.Clone()
	}
	return out
}

// SortDirection orders a sorted column.
type SortDirection string

// Sort directions.
const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// ParseSortDirection accepts asc/ascending and desc/descending in any case.
// Anything else yields ascending.
func ParseSortDirection(s string) SortDirection {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desc", "descending":
		return SortDescending
	default:
		return SortAscending
	}
}

// SortDirective is the single active sort column. An empty Key means the
// records keep their input order and Direction is ignored.
type SortDirective struct {
	Key       string        `json:"key,omitempty"`
	Direction SortDirection `json:"direction,omitempty"`
}

// Normalize clears the direction when no key is set and defaults it to
// ascending otherwise.
func (d SortDirective) Normalize() SortDirective {
	if d.Key == "" {
		return SortDirective{}
	}
	if d.Direction != SortDescending {
		d.Direction = SortAscending
	}
	return d
}

// PageRequest selects one page. Index is 1-based.
type PageRequest struct {
	Index int `json:"index"`
	Size  int `json:"size"`
}

// PageResult is the visible page plus count metadata of one pipeline run.
type PageResult struct {
	Items      []Record `json:"items"`
	TotalCount int      `json:"total_count"`
	TotalPages int      `json:"total_pages"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}

// ViewState is the search, filter, sort and page configuration of one view.
type ViewState struct {
	SearchText string        `json:"search_text"`
	Filters    FilterState   `json:"filters"`
	Sort       SortDirective `json:"sort"`
	Page       PageRequest   `json:"page"`
}

// Clone returns a deep copy of s.
func (s ViewState) Clone() ViewState {
	s.Filters = s.Filters.Clone()
	return s
}
