package integration

import (
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/pitabwire/gridview/model"
)

func TestTableData_Queries(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ViewerClaims())

	tests := []struct {
		name      string
		query     string
		wantIDs   []int
		wantTotal int
		wantPages int
		wantPage  int
		wantSize  int
	}{
		{"default sort first page", "", []int{8, 3, 6, 5, 2}, 8, 2, 1, 5},
		{"second page", "?page=2", []int{4, 1, 7}, 8, 2, 2, 5},
		{"page past the end", "?page=9", []int{}, 8, 2, 9, 5},
		{"search is case insensitive", "?q=ACME", []int{4, 1}, 2, 1, 1, 5},
		{"search by order number", "?q=so-100&page_size=10", []int{8, 3, 6, 5, 2, 4, 1, 7}, 8, 1, 1, 10},
		{"set filter single value", "?filter[status]=paid", []int{3, 1, 7}, 3, 1, 1, 5},
		{"set filter several values", "?filter[status]=paid&filter[status]=shipped", []int{8, 3, 6, 1, 7}, 5, 1, 1, 5},
		{"set filter all is no constraint", "?filter[status]=all&page_size=10", []int{8, 3, 6, 5, 2, 4, 1, 7}, 8, 1, 1, 10},
		{"numeric range", "?filter[total][from]=100&filter[total][to]=250", []int{8, 6, 1}, 3, 1, 1, 5},
		{"open ended range", "?filter[total][from]=200", []int{6, 4}, 2, 1, 1, 5},
		{"date range", "?filter[placed_at][from]=2024-02-01&filter[placed_at][to]=2024-02-29", []int{5, 2}, 2, 1, 1, 5},
		{"date-only upper bound covers the day", "?filter[placed_at][from]=2024-03-15&filter[placed_at][to]=2024-03-15", []int{3}, 1, 1, 1, 5},
		{"search and filter combine", "?q=acme&filter[status]=paid", []int{1}, 1, 1, 1, 5},
		{"sort by total nulls last", "?sort=total&sort_dir=asc&page_size=10", []int{3, 2, 7, 1, 8, 6, 4, 5}, 8, 1, 1, 10},
		{"sort by total descending nulls last", "?sort=total&sort_dir=desc&page_size=10", []int{4, 6, 8, 1, 7, 2, 3, 5}, 8, 1, 1, 10},
		{"sort by text", "?sort=customer&page_size=10", []int{1, 4, 2, 6, 3, 7, 5, 8}, 8, 1, 1, 10},
		{"direction only flips default sort", "?sort_dir=asc&page_size=10", []int{1, 4, 2, 5, 6, 3, 8, 7}, 8, 1, 1, 10},
		{"no matches", "?q=nobody", []int{}, 0, 0, 1, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body DataBody
			h.AssertJSON(t, h.GET("/ui/tables/orders.list/data"+tt.query, token), http.StatusOK, &body)

			if got := body.Data.IDs(); !slices.Equal(got, tt.wantIDs) {
				t.Errorf("ids = %v, want %v", got, tt.wantIDs)
			}
			if body.Data.TotalCount != tt.wantTotal || body.Data.TotalPages != tt.wantPages {
				t.Errorf("total = %d pages = %d, want %d and %d",
					body.Data.TotalCount, body.Data.TotalPages, tt.wantTotal, tt.wantPages)
			}
			if body.Data.Page != tt.wantPage || body.Data.PageSize != tt.wantSize {
				t.Errorf("page = %d size = %d, want %d and %d",
					body.Data.Page, body.Data.PageSize, tt.wantPage, tt.wantSize)
			}
		})
	}
}

func TestTableData_DecodesSchemaTypes(t *testing.T) {
	h := NewTestHarness(t)

	var body DataBody
	h.AssertJSON(t, h.GET("/ui/tables/orders.list/data?page_size=10", h.GenerateToken(ViewerClaims())), http.StatusOK, &body)

	byID := make(map[int]map[string]any)
	for i, id := range body.Data.IDs() {
		byID[id] = body.Data.Items[i]
	}
	if got := byID[1]["total"]; got != 120.5 {
		t.Errorf("total = %v, want 120.5", got)
	}
	if got := byID[5]["total"]; got != nil {
		t.Errorf("null total = %v, want null", got)
	}
	if got, _ := byID[8]["placed_at"].(string); got != "2024-03-20T14:00:00Z" {
		t.Errorf("placed_at = %q, want RFC 3339 timestamp", got)
	}
}

func TestTableData_InlineSource(t *testing.T) {
	h := NewTestHarness(t)

	var body DataBody
	h.AssertJSON(t, h.GET("/ui/tables/orders.audit/data?q=cancel", h.GenerateToken(AuditorClaims())), http.StatusOK, &body)
	if got := body.Data.IDs(); !slices.Equal(got, []int{2}) {
		t.Errorf("ids = %v, want [2]", got)
	}
}

func TestTableData_ValidationErrors(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ViewerClaims())

	tests := []struct {
		name   string
		query  string
		field  string
		detail string
	}{
		{"unknown sort column", "?sort=nope", "sort", model.ErrUnknownField},
		{"unsortable column", "?sort=status", "sort", model.ErrFieldNotSortable},
		{"unknown filter column", "?filter[nope]=x", "filter[nope]", model.ErrUnknownField},
		{"page size too large", "?page_size=1000", "page_size", "RANGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body ErrorBody
			h.AssertJSON(t, h.GET("/ui/tables/orders.list/data"+tt.query, token), http.StatusUnprocessableEntity, &body)
			if body.Error.Code != model.ErrValidationError {
				t.Fatalf("code = %q, want VALIDATION_ERROR", body.Error.Code)
			}
			if len(body.Error.Details) != 1 {
				t.Fatalf("details = %+v, want one", body.Error.Details)
			}
			if d := body.Error.Details[0]; d.Field != tt.field || d.Code != tt.detail {
				t.Errorf("detail = %+v, want field %q code %q", d, tt.field, tt.detail)
			}
		})
	}
}

func TestTableData_MalformedFilterParam(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/ui/tables/orders.list/data?filter[total][between]=1", h.GenerateToken(ViewerClaims()))
	h.AssertError(t, resp, http.StatusBadRequest, model.ErrBadRequest)
}

func TestTableData_MetricsRecorded(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ViewerClaims())

	h.AssertStatus(t, h.GET("/ui/tables/orders.list/data", token), http.StatusOK)
	h.AssertStatus(t, h.GET("/ui/tables/orders.list/data?page=2", token), http.StatusOK)

	body := string(h.ReadBody(h.GET("/metrics", "")))
	for _, want := range []string{
		`gridview_pipeline_duration_seconds_count{mode="stateless",table_id="orders.list"} 2`,
		`gridview_http_requests_total{method="GET",path_pattern="/ui/tables/{tableId}/data",status="200"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}
