package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return InitMetrics(reg), reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.RecordHTTPRequest("GET", "/test", 200, time.Millisecond, 100)
	m.RecordPipeline("orders", "stateless", time.Millisecond, 100, 10)
	m.RecordViewOpened("orders")
	m.RecordViewEvent("search", true)
	m.RecordViewsEvicted("idle", 1)
	m.RecordDatasetLoad("orders", "inline", "success", time.Millisecond)
	m.RecordDatasetCacheHit("orders")
	m.RecordDatasetCacheMiss("orders")
	m.SetDatasetCircuitBreakerState("orders", 0)
	m.RecordCapabilityCacheHit()
	m.RecordCapabilityCacheMiss()
	m.RecordDefinitionReload("success")
	m.SetTablesLoaded(3)
	m.SetSchemasIndexed(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	expected := []string{
		"gridview_http_requests_total",
		"gridview_http_request_duration_seconds",
		"gridview_http_response_size_bytes",
		"gridview_pipeline_duration_seconds",
		"gridview_pipeline_rows",
		"gridview_views_active",
		"gridview_view_events_total",
		"gridview_views_opened_total",
		"gridview_views_evicted_total",
		"gridview_dataset_loads_total",
		"gridview_dataset_load_duration_seconds",
		"gridview_dataset_cache_hits_total",
		"gridview_dataset_cache_misses_total",
		"gridview_dataset_circuit_breaker_state",
		"gridview_capability_cache_hits_total",
		"gridview_capability_cache_misses_total",
		"gridview_definition_reload_total",
		"gridview_tables_loaded",
		"gridview_schemas_indexed",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestMetrics_nilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordHTTPRequest("GET", "/", 200, time.Millisecond, 0)
	m.RecordPipeline("orders", "view", time.Millisecond, 1, 1)
	m.RecordViewOpened("orders")
	m.RecordViewClosed()
	m.RecordViewsEvicted("idle", 2)
	m.RecordViewEvent("page", false)
	m.RecordDatasetLoad("orders", "file", "error", time.Millisecond)
	m.SetTablesLoaded(1)
}

func TestRecordPipeline(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordPipeline("orders", "view", 2*time.Millisecond, 57, 12)
	m.RecordPipeline("orders", "stateless", time.Millisecond, 57, 57)

	if got := testutil.CollectAndCount(m.PipelineDuration); got != 2 {
		t.Errorf("pipeline duration series = %d, want 2", got)
	}
	if got := testutil.CollectAndCount(m.PipelineRows); got != 2 {
		t.Errorf("pipeline row series = %d, want 2 (input, matched)", got)
	}
}

func TestViewLifecycleGauge(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordViewOpened("orders")
	m.RecordViewOpened("orders")
	m.RecordViewOpened("customers")
	m.RecordViewClosed()
	m.RecordViewsEvicted("idle", 1)
	m.RecordViewsEvicted("idle", 0)

	if got := testutil.ToFloat64(m.ViewsActive); got != 1 {
		t.Errorf("views active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ViewsOpenedTotal.WithLabelValues("orders")); got != 2 {
		t.Errorf("orders views opened = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ViewsEvictedTotal.WithLabelValues("idle")); got != 1 {
		t.Errorf("idle evictions = %v, want 1", got)
	}
}

func TestRecordViewEvent(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordViewEvent("set_filter", true)
	m.RecordViewEvent("set_filter", false)
	m.RecordViewEvent("set_filter", true)

	if got := testutil.ToFloat64(m.ViewEventsTotal.WithLabelValues("set_filter", "true")); got != 2 {
		t.Errorf("changed set_filter events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ViewEventsTotal.WithLabelValues("set_filter", "false")); got != 1 {
		t.Errorf("unchanged set_filter events = %v, want 1", got)
	}
}

func TestDatasetMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordDatasetLoad("orders", "postgres", "success", 30*time.Millisecond)
	m.RecordDatasetLoad("orders", "postgres", "error", 5*time.Millisecond)
	m.RecordDatasetCacheHit("orders")
	m.RecordDatasetCacheHit("orders")
	m.RecordDatasetCacheMiss("orders")
	m.SetDatasetCircuitBreakerState("orders", 2)

	if got := testutil.ToFloat64(m.DatasetLoadsTotal.WithLabelValues("orders", "postgres", "error")); got != 1 {
		t.Errorf("failed loads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DatasetCacheHitsTotal.WithLabelValues("orders")); got != 2 {
		t.Errorf("cache hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DatasetCacheMissesTotal.WithLabelValues("orders")); got != 1 {
		t.Errorf("cache misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DatasetCircuitBreakerState.WithLabelValues("orders")); got != 2 {
		t.Errorf("breaker state = %v, want 2 (open)", got)
	}
}

func TestSystemGauges(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetTablesLoaded(5)
	m.SetTablesLoaded(7)
	m.SetSchemasIndexed(4)
	m.RecordDefinitionReload("failure")

	if got := testutil.ToFloat64(m.TablesLoaded); got != 7 {
		t.Errorf("tables loaded = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.SchemasIndexed); got != 4 {
		t.Errorf("schemas indexed = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.DefinitionReloadTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("reload failures = %v, want 1", got)
	}
}

func TestMetricsMiddleware_recordsRoutePattern(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/ui/tables/{tableId}/data", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/ui/views/{viewId}/events", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/ui/tables/orders/data", nil),
		httptest.NewRequest(http.MethodPost, "/ui/views/abc/events", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ui/tables/{tableId}/data", "200")); got != 1 {
		t.Errorf("data requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/ui/views/{viewId}/events", "400")); got != 1 {
		t.Errorf("400 event requests = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.HTTPResponseSizeBytes); got == 0 {
		t.Error("expected response size histogram to have observations")
	}
}

func TestMetricsMiddleware_fallsBackToPath(t *testing.T) {
	m, _ := newTestMetrics(t)

	handler := m.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/raw/path", nil))

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/raw/path", "200")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}

func TestHandlerFor_servesRegistry(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.SetTablesLoaded(2)

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gridview_tables_loaded 2") {
		t.Error("metrics output missing gridview_tables_loaded")
	}
}
