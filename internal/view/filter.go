package view

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/pitabwire/gridview/model"
)

// Filter keeps the records that satisfy every active filter in state.
// Filters are evaluated in ascending key order. Inactive filters (empty,
// "all", empty set) and filters on a field no record carries are skipped.
func Filter(records []model.Record, state model.FilterState) []model.Record {
	return filterBy(records, activeFilters(records, state))
}

// filterBy keeps the records that satisfy every filter in active.
func filterBy(records []model.Record, active []model.FilterSpec) []model.Record {
	if len(active) == 0 {
		return records
	}

	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if matchesAll(r, active) {
			out = append(out, r)
		}
	}
	return out
}

// activeFilters returns the filters of state that constrain records, in key
// order. The map key is authoritative for the field name.
func activeFilters(records []model.Record, state model.FilterState) []model.FilterSpec {
	if len(state) == 0 {
		return nil
	}
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var active []model.FilterSpec
	for _, k := range keys {
		spec := state[k]
		spec.Key = k
		if !spec.Active() {
			continue
		}
		if !anyHas(records, k) {
			continue
		}
		active = append(active, spec)
	}
	return active
}

func matchesAll(r model.Record, filters []model.FilterSpec) bool {
	for _, f := range filters {
		if !Matches(r, f) {
			return false
		}
	}
	return true
}

// Matches reports whether r satisfies a single filter. Null field values
// never match; inactive filters always do.
func Matches(r model.Record, f model.FilterSpec) bool {
	if !f.Active() {
		return true
	}
	v := Get(r, f.Key)
	if v.IsNull() {
		return false
	}

	switch f.Kind {
	case model.FilterText:
		return textContains(v, strings.ToLower(f.Value.Text()))
	case model.FilterSet:
		return matchesAny(v, f.Members())
	case model.FilterRange:
		return inRange(v, f.Start, f.End)
	case model.FilterBoolean:
		want, ok := f.Value.Coerce(model.KindBool)
		if !ok {
			return false
		}
		got, ok := v.Coerce(model.KindBool)
		return ok && got.Equal(want)
	default:
		return matchesAny(v, []model.Value{f.Value})
	}
}

// matchesAny reports whether v equals one of want. A list value matches when
// any of its elements does.
func matchesAny(v model.Value, want []model.Value) bool {
	if items, ok := v.ListVal(); ok {
		for _, item := range items {
			if !item.IsNull() && matchesAny(item, want) {
				return true
			}
		}
		return false
	}
	for _, w := range want {
		if equalCoerced(v, w) {
			return true
		}
	}
	return false
}

// equalCoerced compares a record value with a filter value, converting the
// filter value to the record's kind first ("42" equals 42).
func equalCoerced(v, want model.Value) bool {
	w, ok := want.Coerce(v.Kind())
	if !ok {
		return false
	}
	return v.Equal(w)
}

// inRange applies inclusive bounds. A no-selection bound leaves that side
// open. Values that cannot be ordered against a bound fail the test. A
// calendar-date upper bound covers the whole day.
func inRange(v, start, end model.Value) bool {
	if !model.IsNoSelection(start) {
		c, ok := compareBound(v, start)
		if !ok || c < 0 {
			return false
		}
	}
	if model.IsNoSelection(end) {
		return true
	}
	if next, ok := dayAfter(end); ok {
		c, ok := compareBound(v, next)
		return ok && c < 0
	}
	c, ok := compareBound(v, end)
	return ok && c <= 0
}

// dayAfter returns the midnight following a date-only bound such as
// "2024-03-15".
func dayAfter(bound model.Value) (model.Value, bool) {
	s, ok := bound.Str()
	if !ok {
		return model.Null(), false
	}
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return model.Null(), false
	}
	return model.Time(d.AddDate(0, 0, 1)), true
}

// compareBound orders v against bound. Text values are parsed into the
// bound's kind (a date stored as text against a timestamp bound); otherwise
// the bound is parsed into v's kind.
func compareBound(v, bound model.Value) (int, bool) {
	if v.Kind() == bound.Kind() {
		return compareScalar(v, bound)
	}
	if v.Kind() == model.KindString {
		a, ok := v.Coerce(bound.Kind())
		if !ok {
			return 0, false
		}
		return compareScalar(a, bound)
	}
	b, ok := bound.Coerce(v.Kind())
	if !ok {
		return 0, false
	}
	return compareScalar(v, b)
}

// compareScalar orders two values of the same orderable kind.
func compareScalar(a, b model.Value) (int, bool) {
	switch a.Kind() {
	case model.KindNumber:
		x, _ := a.Num()
		y, _ := b.Num()
		return cmp.Compare(x, y), true
	case model.KindTime:
		x, _ := a.TimeVal()
		y, _ := b.TimeVal()
		return x.Compare(y), true
	case model.KindString:
		x, _ := a.Str()
		y, _ := b.Str()
		return strings.Compare(x, y), true
	default:
		return 0, false
	}
}
