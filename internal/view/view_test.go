package view

import (
	"slices"
	"testing"
	"time"

	"github.com/pitabwire/gridview/model"
)

func rec(kv ...any) model.Record {
	r := make(model.Record, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i].(string)] = model.FromAny(kv[i+1])
	}
	return r
}

func people() []model.Record {
	return []model.Record{
		rec("name", "Ahmet", "status", "active"),
		rec("name", "Zeynep", "status", "inactive"),
		rec("name", "Mehmet", "status", "active"),
		rec("name", "Ayşe", "status", "active"),
		rec("name", "Can", "status", "pending"),
	}
}

// sparse omits status on some records, the way rows decoded from JSON do.
func sparse() []model.Record {
	return []model.Record{
		rec("name", "Ahmet", "status", "active"),
		rec("name", "Zeynep", "status", "inactive"),
		rec("name", "Can"),
		rec("name", "Mehmet", "status", "active"),
		rec("name", "Cansu"),
	}
}

func orders() []model.Record {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 9, 0, 0, 0, time.UTC) }
	return []model.Record{
		rec("id", 1, "customer", "Acme", "amount", 120.5, "placed", day(1), "paid", true, "tags", []any{"b2b", "priority"}),
		rec("id", 2, "customer", "Globex", "amount", 80, "placed", day(3), "paid", false, "tags", []any{"b2c"}),
		rec("id", 3, "customer", "Initech", "amount", nil, "placed", day(5), "paid", true),
		rec("id", 4, "customer", "acme labs", "amount", 80, "placed", nil, "paid", false, "tags", []any{"b2b"}),
		rec("id", 5, "customer", "Umbrella", "amount", 300, "placed", day(9), "paid", true, "address", map[string]any{"city": "Raccoon City"}),
	}
}

func numbered(n int) []model.Record {
	out := make([]model.Record, n)
	for i := range out {
		out[i] = rec("n", i+1, "parity", []string{"even", "odd"}[(i+1)%2])
	}
	return out
}

func field(records []model.Record, key string) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = Get(r, key).Text()
	}
	return out
}

func equalFields(t *testing.T, what string, got, want []string) {
	t.Helper()
	if !slices.Equal(got, want) {
		t.Errorf("%s = %v, want %v", what, got, want)
	}
}
