package integration

import (
	"net/http"
	"testing"
)

func TestHarness_Startup(t *testing.T) {
	h := NewTestHarness(t)

	// Verify the server is running.
	resp := h.GET("/ui/health", "")
	h.AssertStatus(t, resp, http.StatusOK)

	if n := h.Registry.TableCount(); n != 2 {
		t.Errorf("tables loaded = %d, want 2", n)
	}
	if h.Schemas.Len() == 0 {
		t.Error("no schemas indexed")
	}
}

func TestHarness_HealthEndpoints(t *testing.T) {
	h := NewTestHarness(t, WithRedis())

	t.Run("health", func(t *testing.T) {
		resp := h.GET("/ui/health", "")
		var body map[string]string
		h.AssertJSON(t, resp, http.StatusOK, &body)
		if body["status"] != "ok" {
			t.Errorf("health status = %q, want ok", body["status"])
		}
	})

	t.Run("ready", func(t *testing.T) {
		resp := h.GET("/ui/ready", "")
		var body struct {
			Status string                    `json:"status"`
			Checks map[string]map[string]any `json:"checks"`
		}
		h.AssertJSON(t, resp, http.StatusOK, &body)
		for _, check := range []string{"definitions", "schemas", "dataset_cache"} {
			if body.Checks[check]["status"] != "ok" {
				t.Errorf("check %s = %v, want ok", check, body.Checks[check])
			}
		}
	})

	t.Run("ready fails when redis is down", func(t *testing.T) {
		h.Redis.Close()
		resp := h.GET("/ui/ready", "")
		h.AssertStatus(t, resp, http.StatusServiceUnavailable)
	})
}

func TestHarness_AuthenticationRequired(t *testing.T) {
	h := NewTestHarness(t)

	t.Run("no token returns 401", func(t *testing.T) {
		resp := h.GET("/ui/tables", "")
		h.AssertStatus(t, resp, http.StatusUnauthorized)
	})

	t.Run("expired token returns 401", func(t *testing.T) {
		token := h.GenerateExpiredToken(ViewerClaims())
		resp := h.GET("/ui/tables", token)
		h.AssertStatus(t, resp, http.StatusUnauthorized)
	})

	t.Run("invalid token returns 401", func(t *testing.T) {
		resp := h.GET("/ui/tables", "invalid-token")
		h.AssertStatus(t, resp, http.StatusUnauthorized)
	})
}

func TestHarness_TableList(t *testing.T) {
	h := NewTestHarness(t)

	tests := []struct {
		name   string
		claims TestClaims
		want   []string
	}{
		{"viewer", ViewerClaims(), []string{"orders.list"}},
		{"auditor", AuditorClaims(), []string{"orders.audit", "orders.list"}},
		{"admin", AdminClaims(), []string{"orders.audit", "orders.list"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body struct {
				Data []struct {
					ID     string `json:"id"`
					Domain string `json:"domain"`
				} `json:"data"`
			}
			h.AssertJSON(t, h.GET("/ui/tables", h.GenerateToken(tt.claims)), http.StatusOK, &body)

			if len(body.Data) != len(tt.want) {
				t.Fatalf("tables = %+v, want %v", body.Data, tt.want)
			}
			for i, id := range tt.want {
				if body.Data[i].ID != id || body.Data[i].Domain != "orders" {
					t.Errorf("table[%d] = %+v, want %s in domain orders", i, body.Data[i], id)
				}
			}
		})
	}
}

func TestHarness_TableDescriptor(t *testing.T) {
	h := NewTestHarness(t)

	var desc struct {
		ID           string `json:"id"`
		DataEndpoint string `json:"data_endpoint"`
		Columns      []struct {
			Field     string            `json:"field"`
			Type      string            `json:"type"`
			StatusMap map[string]string `json:"status_map"`
		} `json:"columns"`
		Filters []struct {
			Field           string `json:"field"`
			Kind            string `json:"kind"`
			OptionsEndpoint string `json:"options_endpoint"`
		} `json:"filters"`
		DefaultSort struct {
			Key       string `json:"key"`
			Direction string `json:"direction"`
		} `json:"default_sort"`
		PageSize        int   `json:"page_size"`
		PageSizeOptions []int `json:"page_size_options"`
		CanRefresh      bool  `json:"can_refresh"`
	}
	h.AssertJSON(t, h.GET("/ui/tables/orders.list", h.GenerateToken(ViewerClaims())), http.StatusOK, &desc)

	if desc.DataEndpoint != "/ui/tables/orders.list/data" {
		t.Errorf("data_endpoint = %q", desc.DataEndpoint)
	}
	if len(desc.Columns) != 6 || desc.Columns[3].StatusMap["paid"] != "success" {
		t.Errorf("columns = %+v", desc.Columns)
	}
	if len(desc.Filters) != 3 || desc.Filters[0].OptionsEndpoint != "/ui/tables/orders.list/filters/status/options" {
		t.Errorf("filters = %+v", desc.Filters)
	}
	if desc.PageSize != 5 || len(desc.PageSizeOptions) != 3 {
		t.Errorf("page size = %d options %v, want 5 and [5 10 25]", desc.PageSize, desc.PageSizeOptions)
	}
	if desc.CanRefresh {
		t.Error("viewer should not be offered refresh")
	}
}

func TestHarness_DefinitionReload(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ViewerClaims())

	h.WriteFile("definitions/billing.yaml", `domain: billing
version: "1.0.0"
tables:
  - id: billing.invoices
    title: Invoices
    columns:
      - field: id
        label: ID
        type: number
        sortable: true
      - field: amount
        label: Amount
        type: number
    default_sort: id
    data_source:
      type: inline
      records:
        - id: 1
          amount: 10
        - id: 2
          amount: 20
`)
	if err := h.Reloader.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if n := h.Registry.TableCount(); n != 3 {
		t.Fatalf("tables after reload = %d, want 3", n)
	}

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	h.AssertJSON(t, h.GET("/ui/tables", token), http.StatusOK, &list)
	if len(list.Data) != 2 || list.Data[0].ID != "billing.invoices" {
		t.Errorf("tables = %+v, want billing.invoices and orders.list", list.Data)
	}

	var data DataBody
	h.AssertJSON(t, h.GET("/ui/tables/billing.invoices/data", token), http.StatusOK, &data)
	if data.Data.TotalCount != 2 {
		t.Errorf("total_count = %d, want 2", data.Data.TotalCount)
	}
}

func TestHarness_InvalidReloadKeepsPreviousDefinitions(t *testing.T) {
	h := NewTestHarness(t)

	h.WriteFile("definitions/broken.yaml", "domain: broken\ntables:\n  - id: broken.table\n")
	if err := h.Reloader.Reload(); err == nil {
		t.Fatal("expected reload error for a table without columns")
	}
	if n := h.Registry.TableCount(); n != 2 {
		t.Errorf("tables after failed reload = %d, want 2", n)
	}

	resp := h.GET("/ui/tables/orders.list", h.GenerateToken(ViewerClaims()))
	h.AssertStatus(t, resp, http.StatusOK)
}
