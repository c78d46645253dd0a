package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitabwire/gridview/internal/config"
	"github.com/pitabwire/gridview/model"
)

// --- test helpers ---

func testIdentity() config.IdentityConfig {
	cfg := config.Defaults().Identity
	cfg.Issuer = "https://issuer.example.com"
	cfg.Audience = "gridview"
	return cfg
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":       "user-1",
		"tenant_id": "tenant-1",
		"iss":       "https://issuer.example.com",
		"aud":       "gridview",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}
}

func sign(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims, key []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

// captureClaims records the claims the auth middleware stored in the context.
func captureClaims(out *map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*out = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func authRequest(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/ui/tables", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

// --- JWTAuthenticator ---

func TestJWTAuthenticator_validToken(t *testing.T) {
	var claims map[string]any
	handler := JWTAuthenticator(testIdentity(), testSecret)(captureClaims(&claims))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authRequest("Bearer "+sign(t, jwt.SigningMethodHS256, validClaims(), testSecret)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body)
	}
	if claims["sub"] != "user-1" || claims["tenant_id"] != "tenant-1" {
		t.Errorf("claims = %v", claims)
	}
}

func TestJWTAuthenticator_rejections(t *testing.T) {
	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "https://evil.example.com"
	wrongAudience := validClaims()
	wrongAudience["aud"] = "other"
	noExpiry := validClaims()
	delete(noExpiry, "exp")

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "Missing authorization header"},
		{"basic scheme", "Basic dXNlcjpwYXNz", "Invalid authorization header format"},
		{"malformed", "Bearer not-a-token", "Malformed token"},
		{"expired", "Bearer " + sign(t, jwt.SigningMethodHS256, expired, testSecret), "Token expired"},
		{"wrong issuer", "Bearer " + sign(t, jwt.SigningMethodHS256, wrongIssuer, testSecret), "Invalid token issuer"},
		{"wrong audience", "Bearer " + sign(t, jwt.SigningMethodHS256, wrongAudience, testSecret), "Invalid token audience"},
		{"wrong secret", "Bearer " + sign(t, jwt.SigningMethodHS256, validClaims(), []byte("other")), "Invalid token signature"},
		{"disallowed algorithm", "Bearer " + sign(t, jwt.SigningMethodHS512, validClaims(), testSecret), "Disallowed signing algorithm"},
		{"no expiry", "Bearer " + sign(t, jwt.SigningMethodHS256, noExpiry, testSecret), "Invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var claims map[string]any
			handler := JWTAuthenticator(testIdentity(), testSecret)(captureClaims(&claims))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, authRequest(tt.header))

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			ee := errorOf(t, w)
			if ee.Code != model.ErrUnauthorized || ee.Message != tt.message {
				t.Errorf("error = %+v, want message %q", ee, tt.message)
			}
			if claims != nil {
				t.Error("next handler should not run")
			}
		})
	}
}

func TestJWTAuthenticator_optionalIssuerAndAudience(t *testing.T) {
	cfg := testIdentity()
	cfg.Issuer = ""
	cfg.Audience = ""
	claims := jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Minute).Unix()}

	var got map[string]any
	w := httptest.NewRecorder()
	JWTAuthenticator(cfg, testSecret)(captureClaims(&got)).
		ServeHTTP(w, authRequest("Bearer "+sign(t, jwt.SigningMethodHS256, claims, testSecret)))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

// --- DevAuthenticator / NewAuthenticator ---

func TestDevAuthenticator_followsClaimPaths(t *testing.T) {
	cfg := testIdentity()
	cfg.Mode = config.IdentityNone
	cfg.ClaimPaths = map[string]string{"tenant_id": "org.tenant"}
	cfg.DevIdentity = config.DevIdentityConfig{SubjectID: "dev-user", TenantID: "dev-tenant", Roles: []string{"admin"}}

	var rctx *model.RequestContext
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx = model.RequestContextFrom(r.Context())
	})
	handler := DevAuthenticator(cfg)(BuildRequestContext(cfg.ClaimPaths)(inner))
	handler.ServeHTTP(httptest.NewRecorder(), authRequest(""))

	if rctx == nil {
		t.Fatal("request context not built")
	}
	if rctx.SubjectID != "dev-user" || rctx.TenantID != "dev-tenant" || !rctx.HasRole("admin") {
		t.Errorf("request context = %+v", rctx)
	}
}

func TestNewAuthenticator(t *testing.T) {
	cfg := testIdentity()
	cfg.SecretEnv = "GRIDVIEW_TEST_JWT_SECRET"

	t.Setenv(cfg.SecretEnv, "")
	if _, err := NewAuthenticator(cfg); err == nil {
		t.Error("expected error when the secret is unset")
	}

	t.Setenv(cfg.SecretEnv, string(testSecret))
	auth, err := NewAuthenticator(cfg)
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	var claims map[string]any
	w := httptest.NewRecorder()
	auth(captureClaims(&claims)).ServeHTTP(w, authRequest("Bearer "+sign(t, jwt.SigningMethodHS256, validClaims(), testSecret)))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	cfg.Mode = config.IdentityNone
	if _, err := NewAuthenticator(cfg); err != nil {
		t.Errorf("none mode error = %v", err)
	}

	cfg.Mode = "oidc"
	if _, err := NewAuthenticator(cfg); err == nil {
		t.Error("expected error for unsupported mode")
	}
}
