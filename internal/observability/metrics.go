package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets     = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	pipelineDurationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1}
	loadDurationBuckets     = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	rowCountBuckets         = []float64{0, 10, 100, 1000, 10000, 100000}
	bodySizeBuckets         = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Pipeline metrics
	PipelineDuration *prometheus.HistogramVec
	PipelineRows     *prometheus.HistogramVec

	// View metrics
	ViewsActive       prometheus.Gauge
	ViewEventsTotal   *prometheus.CounterVec
	ViewsOpenedTotal  *prometheus.CounterVec
	ViewsEvictedTotal *prometheus.CounterVec

	// Dataset metrics
	DatasetLoadsTotal          *prometheus.CounterVec
	DatasetLoadDuration        *prometheus.HistogramVec
	DatasetCacheHitsTotal      *prometheus.CounterVec
	DatasetCacheMissesTotal    *prometheus.CounterVec
	DatasetCircuitBreakerState *prometheus.GaugeVec

	// Capability cache
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter

	// System metrics
	DefinitionReloadTotal *prometheus.CounterVec
	TablesLoaded          prometheus.Gauge
	SchemasIndexed        prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridview_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridview_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridview_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridview_pipeline_duration_seconds",
			Help:    "Search, filter, sort and paginate duration in seconds.",
			Buckets: pipelineDurationBuckets,
		}, []string{"table_id", "mode"}),
		PipelineRows: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridview_pipeline_rows",
			Help:    "Records entering and surviving the pipeline.",
			Buckets: rowCountBuckets,
		}, []string{"table_id", "stage"}),

		ViewsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridview_views_active",
			Help: "Number of open views.",
		}),
		ViewEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridview_view_events_total",
			Help: "Total number of view events applied.",
		}, []string{"type", "changed"}),
		ViewsOpenedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridview_views_opened_total",
			Help: "Total number of views opened.",
		}, []string{"table_id"}),
		ViewsEvictedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridview_views_evicted_total",
			Help: "Total number of views removed without an explicit close.",
		}, []string{"reason"}),

		DatasetLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridview_dataset_loads_total",
			Help: "Total number of data source loads.",
		}, []string{"table_id", "source", "status"}),
		DatasetLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridview_dataset_load_duration_seconds",
			Help:    "Data source load duration in seconds.",
			Buckets: loadDurationBuckets,
		}, []string{"table_id", "source"}),
		DatasetCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridview_dataset_cache_hits_total",
			Help: "Total dataset cache hits.",
		}, []string{"table_id"}),
		DatasetCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridview_dataset_cache_misses_total",
			Help: "Total dataset cache misses.",
		}, []string{"table_id"}),
		DatasetCircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridview_dataset_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"table_id"}),

		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridview_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridview_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),

		DefinitionReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridview_definition_reload_total",
			Help: "Total definition reloads.",
		}, []string{"status"}),
		TablesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridview_tables_loaded",
			Help: "Number of table definitions loaded.",
		}),
		SchemasIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridview_schemas_indexed",
			Help: "Number of indexed OpenAPI record schemas.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSizeBytes,
		m.PipelineDuration,
		m.PipelineRows,
		m.ViewsActive,
		m.ViewEventsTotal,
		m.ViewsOpenedTotal,
		m.ViewsEvictedTotal,
		m.DatasetLoadsTotal,
		m.DatasetLoadDuration,
		m.DatasetCacheHitsTotal,
		m.DatasetCacheMissesTotal,
		m.DatasetCircuitBreakerState,
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
		m.DefinitionReloadTotal,
		m.TablesLoaded,
		m.SchemasIndexed,
	)

	return m
}

// --- Recording helpers ---
//
// Every helper is a no-op on a nil *Metrics so components can run without
// a registry in tests.

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, respSize int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordPipeline records one pipeline run. mode is "stateless" or "view".
func (m *Metrics) RecordPipeline(tableID, mode string, duration time.Duration, inputRows, matchedRows int) {
	if m == nil {
		return
	}
	m.PipelineDuration.WithLabelValues(tableID, mode).Observe(duration.Seconds())
	m.PipelineRows.WithLabelValues(tableID, "input").Observe(float64(inputRows))
	m.PipelineRows.WithLabelValues(tableID, "matched").Observe(float64(matchedRows))
}

// RecordViewOpened records a new view.
func (m *Metrics) RecordViewOpened(tableID string) {
	if m == nil {
		return
	}
	m.ViewsOpenedTotal.WithLabelValues(tableID).Inc()
	m.ViewsActive.Inc()
}

// RecordViewClosed records an explicit close.
func (m *Metrics) RecordViewClosed() {
	if m == nil {
		return
	}
	m.ViewsActive.Dec()
}

// RecordViewsEvicted records views removed by the idle sweep or the view
// limit.
func (m *Metrics) RecordViewsEvicted(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ViewsEvictedTotal.WithLabelValues(reason).Add(float64(n))
	m.ViewsActive.Sub(float64(n))
}

// RecordViewEvent records an applied view event.
func (m *Metrics) RecordViewEvent(eventType string, changed bool) {
	if m == nil {
		return
	}
	m.ViewEventsTotal.WithLabelValues(eventType, strconv.FormatBool(changed)).Inc()
}

// RecordDatasetLoad records a data source load.
func (m *Metrics) RecordDatasetLoad(tableID, source, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DatasetLoadsTotal.WithLabelValues(tableID, source, status).Inc()
	m.DatasetLoadDuration.WithLabelValues(tableID, source).Observe(duration.Seconds())
}

// RecordDatasetCacheHit records a dataset cache hit.
func (m *Metrics) RecordDatasetCacheHit(tableID string) {
	if m == nil {
		return
	}
	m.DatasetCacheHitsTotal.WithLabelValues(tableID).Inc()
}

// RecordDatasetCacheMiss records a dataset cache miss.
func (m *Metrics) RecordDatasetCacheMiss(tableID string) {
	if m == nil {
		return
	}
	m.DatasetCacheMissesTotal.WithLabelValues(tableID).Inc()
}

// SetDatasetCircuitBreakerState sets the circuit breaker state for a table.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetDatasetCircuitBreakerState(tableID string, state float64) {
	if m == nil {
		return
	}
	m.DatasetCircuitBreakerState.WithLabelValues(tableID).Set(state)
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	if m == nil {
		return
	}
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	if m == nil {
		return
	}
	m.CapabilityCacheMissesTotal.Inc()
}

// RecordDefinitionReload records a definition reload.
func (m *Metrics) RecordDefinitionReload(status string) {
	if m == nil {
		return
	}
	m.DefinitionReloadTotal.WithLabelValues(status).Inc()
}

// SetTablesLoaded sets the number of loaded table definitions.
func (m *Metrics) SetTablesLoaded(count int) {
	if m == nil {
		return
	}
	m.TablesLoaded.Set(float64(count))
}

// SetSchemasIndexed sets the number of indexed record schemas.
func (m *Metrics) SetSchemasIndexed(count int) {
	if m == nil {
		return
	}
	m.SchemasIndexed.Set(float64(count))
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to keep label cardinality
// bounded.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start), sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a /metrics handler serving the given gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
