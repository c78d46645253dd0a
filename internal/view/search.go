package view

import (
	"strings"

	"github.com/pitabwire/gridview/model"
)

// Search keeps the records where any of keys contains query, ignoring case.
// With no keys every top-level field is inspected. A blank query returns the
// input unchanged.
func Search(records []model.Record, query string, keys []string) []model.Record {
	if strings.TrimSpace(query) == "" {
		return records
	}
	q := strings.ToLower(query)

	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if matchesQuery(r, q, keys) {
			out = append(out, r)
		}
	}
	return out
}

func matchesQuery(r model.Record, lowerQuery string, keys []string) bool {
	if len(keys) == 0 {
		for _, v := range r {
			if textContains(v, lowerQuery) {
				return true
			}
		}
		return false
	}
	for _, k := range keys {
		if textContains(Get(r, k), lowerQuery) {
			return true
		}
	}
	return false
}

// textContains reports whether the canonical text of v contains lowerQuery.
// Null and nested record values never match.
func textContains(v model.Value, lowerQuery string) bool {
	switch v.Kind() {
	case model.KindNull, model.KindRecord:
		return false
	}
	return strings.Contains(strings.ToLower(v.Text()), lowerQuery)
}
