// Package integration provides a reusable test harness for end-to-end
// integration testing of the gridview server. It starts a full HTTP server
// over copied fixture definitions, data files and schemas, with an in-memory
// or miniredis-backed dataset cache and a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/gridview/internal/capability"
	"github.com/pitabwire/gridview/internal/config"
	"github.com/pitabwire/gridview/internal/dataset"
	"github.com/pitabwire/gridview/internal/definition"
	"github.com/pitabwire/gridview/internal/observability"
	"github.com/pitabwire/gridview/internal/schema"
	"github.com/pitabwire/gridview/internal/session"
	"github.com/pitabwire/gridview/internal/tables"
	"github.com/pitabwire/gridview/internal/transport"
	"github.com/pitabwire/gridview/model"
)

// TestHarness encapsulates a fully wired gridview instance for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Registry    *definition.Registry
	Schemas     *schema.Index
	Reloader    *definition.Reloader
	Datasets    *dataset.Provider
	Tables      *tables.TableProvider
	Views       *session.Manager
	CapResolver model.CapabilityResolver
	Metrics     *observability.Metrics
	Prometheus  *prometheus.Registry
	Redis       *miniredis.Miniredis

	// Dir is the temporary copy of testdata the server reads from. Tests
	// may rewrite or delete files under it.
	Dir string

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	policyFile    string
	redis         bool
	maxPerSubject int
	breaker       config.CircuitBreakerConfig
	cacheTTL      time.Duration
}

// WithPolicyFile sets the static policy YAML file for capability resolution.
// Relative paths are resolved from the testdata directory.
func WithPolicyFile(path string) HarnessOption {
	return func(c *harnessConfig) {
		c.policyFile = path
	}
}

// WithRedis backs the dataset cache with an in-process miniredis server.
func WithRedis() HarnessOption {
	return func(c *harnessConfig) {
		c.redis = true
	}
}

// WithViewLimit caps the number of open views per subject.
func WithViewLimit(n int) HarnessOption {
	return func(c *harnessConfig) {
		c.maxPerSubject = n
	}
}

// WithBreaker overrides the dataset circuit breaker settings.
func WithBreaker(failures int, timeout time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.breaker = config.CircuitBreakerConfig{
			FailureThreshold: failures,
			SuccessThreshold: 1,
			Timeout:          timeout,
		}
	}
}

// WithCacheTTL sets the default dataset cache TTL. Zero disables caching.
func WithCacheTTL(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.cacheTTL = d
	}
}

// NewTestHarness creates and starts a full gridview test instance. The
// server is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	defaults := config.Defaults()
	hc := &harnessConfig{
		policyFile:    "policies.yaml",
		maxPerSubject: defaults.Views.MaxViewsPerSubject,
		breaker:       defaults.Datasets.Breaker,
		cacheTTL:      defaults.Datasets.Cache.DefaultTTL,
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{t: t, Dir: t.TempDir()}

	// Step 1: Copy fixtures so tests can mutate them freely.
	if err := copyDir(testdataDir(), h.Dir); err != nil {
		t.Fatalf("copy testdata: %v", err)
	}

	// Step 2: Create JWT issuer and build config.
	h.issuer = newTokenIssuer()

	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = 10 * time.Second
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	h.cfg.Identity.Issuer = h.issuer.Issuer()
	h.cfg.Identity.Audience = h.issuer.Audience()
	h.cfg.Definitions.Directories = []string{filepath.Join(h.Dir, "definitions")}
	h.cfg.Specs.Directory = filepath.Join(h.Dir, "specs")
	h.cfg.Specs.Files = []string{"orders.yaml"}
	h.cfg.Datasets.BaseDir = h.Dir
	h.cfg.Datasets.Breaker = hc.breaker
	h.cfg.Datasets.Cache.DefaultTTL = hc.cacheTTL
	h.cfg.Views.MaxViewsPerSubject = hc.maxPerSubject
	h.cfg.Capability.Cache.TTL = 0 // no caching in tests

	// Step 3: Telemetry.
	h.Prometheus = prometheus.NewRegistry()
	h.Metrics = observability.InitMetrics(h.Prometheus)
	logger := zap.NewNop()

	// Step 4: Load schemas and definitions.
	h.Schemas = schema.NewIndex()
	if err := h.Schemas.Load(schema.SourcesFromDir(h.cfg.Specs.Directory, h.cfg.Specs.Files)); err != nil {
		t.Fatalf("load schemas: %v", err)
	}

	loader := definition.NewLoader()
	defs, err := loader.LoadAll(h.cfg.Definitions.Directories)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	validator := definition.NewValidator(h.cfg.Views.MaxPageSize)
	if verrs := validator.Validate(defs, h.Schemas); len(verrs) > 0 {
		t.Fatalf("definitions invalid: %v", verrs)
	}
	h.Registry = definition.NewRegistry(defs)
	h.Reloader = &definition.Reloader{
		Loader:      loader,
		Validator:   validator,
		Index:       h.Schemas,
		Registry:    h.Registry,
		Directories: h.cfg.Definitions.Directories,
		Metrics:     h.Metrics,
		Logger:      logger,
	}

	// Step 5: Build capability resolver.
	policyPath := hc.policyFile
	if !filepath.IsAbs(policyPath) {
		policyPath = filepath.Join(h.Dir, policyPath)
	}
	evaluator, err := capability.NewStaticPolicyEvaluator(policyPath)
	if err != nil {
		t.Fatalf("load policy file: %v", err)
	}
	h.CapResolver = capability.NewResolver(evaluator, h.cfg.Capability.Cache.TTL, 0, h.Metrics)

	// Step 6: Build the dataset cache.
	var cache dataset.Cache = dataset.NewMemoryCache(h.cfg.Datasets.Cache.MaxEntries)
	readiness := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return h.Registry.TableCount() > 0 },
		SchemasLoaded:     func() bool { return h.Schemas.Len() > 0 },
	}
	if hc.redis {
		h.Redis = miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: h.Redis.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		redisCache := dataset.NewRedisCache(client, h.cfg.Datasets.Cache.KeyPrefix)
		cache = redisCache
		readiness.DatasetCache = redisCache
	}

	// Step 7: Build providers.
	h.Datasets = dataset.NewProvider(h.Registry, cache, h.cfg.Datasets,
		dataset.WithSchemas(h.Schemas),
		dataset.WithMetrics(h.Metrics),
		dataset.WithLogger(logger),
	)
	h.Tables = tables.NewTableProvider(h.Registry, h.Datasets, h.cfg.Views, h.Metrics, logger)
	store := session.NewMemoryStore(h.cfg.Views.IdleTTL, h.cfg.Views.MaxViews, h.cfg.Views.MaxViewsPerSubject)
	h.Views = session.NewManager(store, h.Tables, h.Datasets, h.Metrics, logger)

	// Step 8: Build router with full middleware chain.
	router := transport.NewRouter(transport.Dependencies{
		Config:             h.cfg,
		Authenticate:       transport.JWTAuthenticator(h.cfg.Identity, h.issuer.Secret()),
		CapabilityResolver: h.CapResolver,
		Tables:             h.Tables,
		Views:              h.Views,
		Metrics:            h.Metrics,
		Logger:             logger,
		ReadyHandler:       observability.HandleReady(readiness),
		MetricsHandler:     observability.HandlerFor(h.Prometheus),
	})

	// Step 9: Start test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// Config returns the configuration the server was built with.
func (h *TestHarness) Config() *config.Config {
	return h.cfg
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// GenerateTokenWith signs a token with an arbitrary method and key.
func (h *TestHarness) GenerateTokenWith(method jwt.SigningMethod, key []byte, claims TestClaims) string {
	return h.issuer.GenerateTokenWith(method, key, claims)
}

// WriteFile replaces a file under the harness directory.
func (h *TestHarness) WriteFile(rel, content string) {
	h.t.Helper()
	path := filepath.Join(h.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		h.t.Fatalf("mkdir %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		h.t.Fatalf("write %s: %v", rel, err)
	}
}

// ReadFile returns the content of a file under the harness directory.
func (h *TestHarness) ReadFile(rel string) []byte {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.Dir, rel))
	if err != nil {
		h.t.Fatalf("read %s: %v", rel, err)
	}
	return data
}

// RemoveFile deletes a file under the harness directory.
func (h *TestHarness) RemoveFile(rel string) {
	h.t.Helper()
	if err := os.Remove(filepath.Join(h.Dir, rel)); err != nil {
		h.t.Fatalf("remove %s: %v", rel, err)
	}
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token, nil)
}

// GETWithHeaders performs an authenticated GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token, headers)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body, token, nil)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodDelete, path, nil, token, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// AssertError checks the status and the error envelope code.
func (h *TestHarness) AssertError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	var body ErrorBody
	h.AssertJSON(t, resp, status, &body)
	if body.Error.Code != code {
		t.Errorf("error code = %q, want %q (message %q)", body.Error.Code, code, body.Error.Message)
	}
}

// --- Response shapes ---

// Page mirrors the data payload of table and view responses.
type Page struct {
	Items      []map[string]any `json:"items"`
	TotalCount int              `json:"total_count"`
	TotalPages int              `json:"total_pages"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
}

// IDs returns the id field of every item, in order.
func (p Page) IDs() []int {
	out := make([]int, len(p.Items))
	for i, item := range p.Items {
		f, _ := item["id"].(float64)
		out[i] = int(f)
	}
	return out
}

// DataBody is the body of GET /ui/tables/{tableId}/data.
type DataBody struct {
	Data Page `json:"data"`
}

// ViewBody is the body of view endpoints.
type ViewBody struct {
	ID      string          `json:"id"`
	TableID string          `json:"table_id"`
	State   model.ViewState `json:"state"`
	Data    Page            `json:"data"`
}

// ErrorBody is the error envelope wrapper.
type ErrorBody struct {
	Error model.ErrorEnvelope `json:"error"`
}

// --- Default test claims ---

// ViewerClaims returns TestClaims for an order_viewer user.
func ViewerClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-viewer",
		TenantID:  "acme-corp",
		Email:     "viewer@acme.example.com",
		Roles:     []string{"order_viewer"},
	}
}

// AuditorClaims returns TestClaims for an order_auditor user.
func AuditorClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-auditor",
		TenantID:  "acme-corp",
		Email:     "auditor@acme.example.com",
		Roles:     []string{"order_auditor"},
	}
}

// AdminClaims returns TestClaims for an order_admin user.
func AdminClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-admin",
		TenantID:  "acme-corp",
		Email:     "admin@acme.example.com",
		Roles:     []string{"order_admin"},
	}
}

// --- Helpers ---

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// copyDir copies the tree at src into dst.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
