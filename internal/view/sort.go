package view

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/pitabwire/gridview/model"
)

// Sort orders records by directive with a stable sort. Records whose key is
// null sort last in both directions. An empty key returns the input as is.
func Sort(records []model.Record, directive model.SortDirective) []model.Record {
	return sortRecords(records, directive, strings.Compare)
}

// SortCollated is Sort with strings ordered by the collation rules of the
// given BCP 47 language tag. An unparseable tag falls back to byte order.
func SortCollated(records []model.Record, directive model.SortDirective, tag string) []model.Record {
	return sortRecords(records, directive, stringComparer(tag))
}

func stringComparer(tag string) func(a, b string) int {
	if tag == "" {
		return strings.Compare
	}
	lang, err := language.Parse(tag)
	if err != nil {
		return strings.Compare
	}
	// Collator keeps internal buffers, so each sort gets its own.
	c := collate.New(lang)
	return c.CompareString
}

func sortRecords(records []model.Record, directive model.SortDirective, compareStrings func(a, b string) int) []model.Record {
	directive = directive.Normalize()
	if directive.Key == "" || len(records) < 2 {
		return records
	}
	desc := directive.Direction == model.SortDescending

	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b model.Record) int {
		va, vb := Get(a, directive.Key), Get(b, directive.Key)
		switch an, bn := va.IsNull(), vb.IsNull(); {
		case an && bn:
			return 0
		case an:
			return 1
		case bn:
			return -1
		}
		c := compareValues(va, vb, compareStrings)
		if desc {
			return -c
		}
		return c
	})
	return out
}

// kindRank orders values of different kinds so the comparator stays total.
func kindRank(k model.Kind) int {
	switch k {
	case model.KindBool:
		return 0
	case model.KindNumber:
		return 1
	case model.KindTime:
		return 2
	case model.KindString:
		return 3
	case model.KindList:
		return 4
	default:
		return 5
	}
}

// compareValues is the three-way comparator for two non-null values.
func compareValues(a, b model.Value, compareStrings func(a, b string) int) int {
	if a.Kind() != b.Kind() {
		return cmp.Compare(kindRank(a.Kind()), kindRank(b.Kind()))
	}
	switch a.Kind() {
	case model.KindNumber:
		x, _ := a.Num()
		y, _ := b.Num()
		return cmp.Compare(x, y)
	case model.KindString:
		x, _ := a.Str()
		y, _ := b.Str()
		return compareStrings(x, y)
	case model.KindTime:
		x, _ := a.TimeVal()
		y, _ := b.TimeVal()
		return x.Compare(y)
	case model.KindBool:
		x, _ := a.BoolVal()
		y, _ := b.BoolVal()
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case model.KindList:
		x, _ := a.ListVal()
		y, _ := b.ListVal()
		for i := 0; i < len(x) && i < len(y); i++ {
			if x[i].IsNull() || y[i].IsNull() {
				if c := cmp.Compare(nullRank(x[i]), nullRank(y[i])); c != 0 {
					return c
				}
				continue
			}
			if c := compareValues(x[i], y[i], compareStrings); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(x), len(y))
	default:
		return 0
	}
}

func nullRank(v model.Value) int {
	if v.IsNull() {
		return 1
	}
	return 0
}

// NextDirective advances the header-click cycle for key: a new column starts
// ascending, ascending turns descending, and descending clears the sort so
// records return to input order.
func NextDirective(current model.SortDirective, key string) model.SortDirective {
	current = current.Normalize()
	if key == "" {
		return model.SortDirective{}
	}
	if current.Key != key {
		return model.SortDirective{Key: key, Direction: model.SortAscending}
	}
	if current.Direction == model.SortAscending {
		return model.SortDirective{Key: key, Direction: model.SortDescending}
	}
	return model.SortDirective{}
}
