package view

import (
	"slices"
	"testing"

	"github.com/pitabwire/gridview/model"
)

func TestCompute_endToEnd(t *testing.T) {
	res := Compute(people(), model.ViewState{
		Filters: model.FilterState{"status": {Kind: model.FilterExact, Value: model.String("active")}},
		Sort:    model.SortDirective{Key: "name", Direction: model.SortAscending},
		Page:    model.PageRequest{Index: 1, Size: 2},
	})

	equalFields(t, "names", field(res.Items, "name"), []string{"Ahmet", "Ayşe"})
	if res.TotalCount != 3 || res.TotalPages != 2 || res.Page != 1 {
		t.Errorf("total = %d pages = %d page = %d, want 3 2 1", res.TotalCount, res.TotalPages, res.Page)
	}
}

func TestPipeline_searchAndFilterCompose(t *testing.T) {
	p := Pipeline{SearchKeys: []string{"customer"}}
	res := p.Compute(orders(), model.ViewState{
		SearchText: "acme",
		Filters:    model.FilterState{"paid": {Kind: model.FilterBoolean, Value: model.Bool(false)}},
		Page:       model.PageRequest{Index: 1, Size: 10},
	})
	equalFields(t, "ids", field(res.Items, "id"), []string{"4"})
}

func TestPipeline_searchNarrowingToSparseRecordsKeepsFilter(t *testing.T) {
	status := model.FilterState{"status": {Kind: model.FilterExact, Value: model.String("active")}}
	tests := []struct {
		name   string
		search string
		want   []string
	}{
		{"filter only", "", []string{"Ahmet", "Mehmet"}},
		{"search hits only records without status", "can", []string{}},
		{"search hits mixed records", "met", []string{"Ahmet", "Mehmet"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Compute(sparse(), model.ViewState{
				SearchText: tt.search,
				Filters:    status,
				Page:       model.PageRequest{Index: 1, Size: 10},
			})
			equalFields(t, "names", field(res.Items, "name"), tt.want)
			if res.TotalCount != len(tt.want) {
				t.Errorf("total = %d, want %d", res.TotalCount, len(tt.want))
			}
		})
	}
}

func TestPipeline_doesNotMutateInput(t *testing.T) {
	in := orders()
	before := field(in, "id")
	_ = Pipeline{Collation: "en"}.Compute(in, model.ViewState{
		SearchText: "a",
		Sort:       model.SortDirective{Key: "customer", Direction: model.SortDescending},
		Page:       model.PageRequest{Index: 1, Size: 2},
	})
	equalFields(t, "input", field(in, "id"), before)
}

func TestNewController_defaults(t *testing.T) {
	c := NewController(Pipeline{}, model.ViewState{
		Filters: model.FilterState{"status": {Kind: model.FilterExact, Value: model.String("all")}},
		Sort:    model.SortDirective{Direction: model.SortDescending},
	})
	st := c.State()
	if want := (model.PageRequest{Index: 1, Size: DefaultPageSize}); st.Page != want {
		t.Errorf("page = %+v, want %+v", st.Page, want)
	}
	if len(st.Filters) != 0 {
		t.Errorf("filters = %v, want none", st.Filters)
	}
	if st.Sort != (model.SortDirective{}) {
		t.Errorf("sort = %+v, want none", st.Sort)
	}
}

func TestController_SetPageSize_preservesPosition(t *testing.T) {
	c := NewController(Pipeline{}, model.ViewState{Page: model.PageRequest{Index: 1, Size: 10}})
	recs := numbered(57)
	c.Compute(recs)
	if !c.SetPage(3) {
		t.Fatal("SetPage(3) = false")
	}
	if got := field(c.Compute(recs).Items, "n")[0]; got != "21" {
		t.Fatalf("first record = %s, want 21", got)
	}

	if !c.SetPageSize(20) {
		t.Fatal("SetPageSize(20) = false")
	}
	if want := (model.PageRequest{Index: 2, Size: 20}); c.State().Page != want {
		t.Errorf("page = %+v, want %+v", c.State().Page, want)
	}
	if got := field(c.Compute(recs).Items, "n")[0]; got != "21" {
		t.Errorf("first record = %s, want 21", got)
	}
}

func TestController_SetPageSize_resetsWhenPastEnd(t *testing.T) {
	c := NewController(Pipeline{}, model.ViewState{Page: model.PageRequest{Index: 1, Size: 5}})
	c.Compute(numbered(12))
	if !c.SetPage(9) {
		t.Fatal("SetPage(9) = false")
	}

	// record 41 would land on page 11 of 4-sized pages, but 12 records only fill 3
	if !c.SetPageSize(4) {
		t.Fatal("SetPageSize(4) = false")
	}
	if want := (model.PageRequest{Index: 1, Size: 4}); c.State().Page != want {
		t.Errorf("page = %+v, want %+v", c.State().Page, want)
	}

	// without a prior Compute there is no total to preserve against
	fresh := NewController(Pipeline{}, model.ViewState{Page: model.PageRequest{Index: 4, Size: 10}})
	if !fresh.SetPageSize(5) {
		t.Fatal("SetPageSize(5) = false")
	}
	if got := fresh.State().Page.Index; got != 1 {
		t.Errorf("page = %d, want 1", got)
	}
}

func TestController_filterChangeResetsPage(t *testing.T) {
	recs := numbered(100)
	c := NewController(Pipeline{}, model.ViewState{Page: model.PageRequest{Index: 1, Size: 10}})
	c.Compute(recs)
	if !c.SetPage(4) {
		t.Fatal("SetPage(4) = false")
	}
	c.Compute(recs)

	if !c.SetFilter(model.FilterSpec{Key: "parity", Kind: model.FilterExact, Value: model.String("odd")}) {
		t.Fatal("SetFilter = false")
	}
	if got := c.State().Page.Index; got != 1 {
		t.Errorf("page = %d, want 1", got)
	}

	res := c.Compute(recs)
	if res.TotalCount != 50 || res.TotalPages != 5 {
		t.Errorf("total = %d pages = %d, want 50 5", res.TotalCount, res.TotalPages)
	}
}

func TestController_everySetterResetsPage(t *testing.T) {
	setters := map[string]func(c *Controller) bool{
		"search": func(c *Controller) bool { return c.SetSearchText("1") },
		"filter": func(c *Controller) bool {
			return c.SetFilter(model.FilterSpec{Key: "parity", Kind: model.FilterSet, Values: []model.Value{model.String("even")}})
		},
		"sort":   func(c *Controller) bool { return c.SetSort(model.SortDirective{Key: "n", Direction: model.SortDescending}) },
		"toggle": func(c *Controller) bool { return c.ToggleSort("n") },
	}
	for name, set := range setters {
		t.Run(name, func(t *testing.T) {
			c := NewController(Pipeline{}, model.ViewState{Page: model.PageRequest{Index: 3, Size: 10}})
			if !set(c) {
				t.Fatal("setter reported no change")
			}
			if got := c.State().Page.Index; got != 1 {
				t.Errorf("page = %d, want 1", got)
			}
		})
	}
}

func TestController_noopSettersKeepPage(t *testing.T) {
	c := NewController(Pipeline{}, model.ViewState{
		SearchText: "x",
		Filters:    model.FilterState{"parity": {Kind: model.FilterExact, Value: model.String("odd")}},
		Sort:       model.SortDirective{Key: "n", Direction: model.SortAscending},
		Page:       model.PageRequest{Index: 3, Size: 10},
	})

	noops := map[string]bool{
		"search":         c.SetSearchText("x"),
		"filter":         c.SetFilter(model.FilterSpec{Key: "parity", Kind: model.FilterExact, Value: model.String("odd")}),
		"sort":           c.SetSort(model.SortDirective{Key: "n"}),
		"page size":      c.SetPageSize(10),
		"page":           c.SetPage(3),
		"page zero":      c.SetPage(0),
		"remove missing": c.RemoveFilter("missing"),
	}
	for name, changed := range noops {
		if changed {
			t.Errorf("%s reported a change", name)
		}
	}
	if got := c.State().Page.Index; got != 3 {
		t.Errorf("page = %d, want 3", got)
	}
}

func TestController_inactiveFilterRemoves(t *testing.T) {
	c := NewController(Pipeline{}, model.ViewState{
		Filters: model.FilterState{"status": {Kind: model.FilterExact, Value: model.String("active")}},
	})
	if !c.SetFilter(model.FilterSpec{Key: "status", Kind: model.FilterExact, Value: model.String("All")}) {
		t.Fatal("SetFilter(All) = false")
	}
	if len(c.State().Filters) != 0 {
		t.Errorf("filters = %v, want none", c.State().Filters)
	}
	if c.ClearFilters() {
		t.Error("ClearFilters on empty state reported a change")
	}
}

func TestController_idempotentRecompute(t *testing.T) {
	c := NewController(Pipeline{}, model.ViewState{
		Sort: model.SortDirective{Key: "name", Direction: model.SortDescending},
		Page: model.PageRequest{Index: 2, Size: 2},
	})
	first := c.Compute(people())
	second := c.Compute(people())
	if !slices.Equal(field(first.Items, "name"), field(second.Items, "name")) || first.TotalCount != second.TotalCount {
		t.Errorf("first = %v, second = %v", field(first.Items, "name"), field(second.Items, "name"))
	}
}

func TestController_Compute_clampsPastLastPage(t *testing.T) {
	c := NewController(Pipeline{}, model.ViewState{Page: model.PageRequest{Index: 1, Size: 2}})
	if !c.SetPage(9) {
		t.Fatal("SetPage(9) = false")
	}
	if got := c.State().Page.Index; got != 9 {
		t.Errorf("page before compute = %d, want 9", got)
	}

	res := c.Compute(people())
	if res.Page != 3 {
		t.Errorf("page = %d, want 3", res.Page)
	}
	equalFields(t, "names", field(res.Items, "name"), []string{"Can"})
	if c.LastTotal() != 5 {
		t.Errorf("last total = %d, want 5", c.LastTotal())
	}

	res = c.Compute(nil)
	if res.Page != 1 || len(res.Items) != 0 {
		t.Errorf("empty compute = page %d items %d, want 1 0", res.Page, len(res.Items))
	}
}

func TestController_StateIsACopy(t *testing.T) {
	c := NewController(Pipeline{}, model.ViewState{
		Filters: model.FilterState{"status": {Kind: model.FilterExact, Value: model.String("active")}},
	})
	st := c.State()
	delete(st.Filters, "status")
	if len(c.State().Filters) != 1 {
		t.Error("mutating State() changed the controller")
	}
}
