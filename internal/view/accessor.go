// Package view implements the search, filter, sort and paginate pipeline that
// turns an in-memory record collection into one visible page, and the
// controller that keeps page position consistent as view state changes.
//
// Every function in this package is total: anomalous input degrades to "no
// matching records" instead of an error, and input records are never
// modified.
package view

import (
	"strings"

	"github.com/pitabwire/gridview/model"
)

// Get resolves key on r. A literal key wins; otherwise a dotted key descends
// into nested records. Missing fields resolve to null.
func Get(r model.Record, key string) model.Value {
	v, _ := lookup(r, key)
	return v
}

// Has reports whether key resolves on r, even to an explicit null.
func Has(r model.Record, key string) bool {
	_, ok := lookup(r, key)
	return ok
}

func lookup(r model.Record, key string) (model.Value, bool) {
	if r == nil || key == "" {
		return model.Null(), false
	}
	if v, ok := r[key]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(key, ".")
	if !found {
		return model.Null(), false
	}
	v, ok := r[head]
	if !ok {
		return model.Null(), false
	}
	nested, ok := v.RecordVal()
	if !ok {
		return model.Null(), false
	}
	return lookup(nested, rest)
}

// anyHas reports whether at least one record resolves key.
func anyHas(records []model.Record, key string) bool {
	for _, r := range records {
		if Has(r, key) {
			return true
		}
	}
	return false
}
