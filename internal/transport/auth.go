package transport

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitabwire/gridview/internal/config"
	"github.com/pitabwire/gridview/model"
)

const clockSkewLeeway = 30 * time.Second

// NewAuthenticator builds the authentication middleware for the configured
// identity mode. In hmac mode the shared secret is read from the
// environment variable named by cfg.SecretEnv.
func NewAuthenticator(cfg config.IdentityConfig) (func(http.Handler) http.Handler, error) {
	switch cfg.Mode {
	case config.IdentityNone:
		return DevAuthenticator(cfg), nil
	case config.IdentityHMAC, "":
		secret := os.Getenv(cfg.SecretEnv)
		if secret == "" {
			return nil, fmt.Errorf("identity: %s environment variable not set", cfg.SecretEnv)
		}
		return JWTAuthenticator(cfg, []byte(secret)), nil
	default:
		return nil, fmt.Errorf("identity: unsupported mode %q", cfg.Mode)
	}
}

// JWTAuthenticator returns middleware that verifies HMAC-signed JWT tokens
// from the Authorization header and stores verified claims in the request
// context.
func JWTAuthenticator(cfg config.IdentityConfig, secret []byte) func(http.Handler) http.Handler {
	methods := cfg.Algorithms
	if len(methods) == 0 {
		methods = []string{jwt.SigningMethodHS256.Alg()}
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithLeeway(clockSkewLeeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	keyFunc := func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				WriteError(w, r, model.NewUnauthorizedError("Missing authorization header"))
				return
			}
			tokenStr, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				WriteError(w, r, model.NewUnauthorizedError("Invalid authorization header format"))
				return
			}

			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(tokenStr, claims, keyFunc)
			if err != nil {
				WriteError(w, r, model.NewUnauthorizedError(classifyJWTError(err)))
				return
			}
			if !token.Valid {
				WriteError(w, r, model.NewUnauthorizedError("Invalid token"))
				return
			}

			ctx := WithClaims(r.Context(), map[string]any(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DevAuthenticator returns middleware that runs every request as the
// configured development identity. Claims are laid out along the configured
// claim paths so BuildRequestContext reads them like verified ones.
func DevAuthenticator(cfg config.IdentityConfig) func(http.Handler) http.Handler {
	path := func(name string) string {
		if p, ok := cfg.ClaimPaths[name]; ok && p != "" {
			return p
		}
		return name
	}
	roles := make([]any, len(cfg.DevIdentity.Roles))
	for i, role := range cfg.DevIdentity.Roles {
		roles[i] = role
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := make(map[string]any)
			setClaim(claims, path(ClaimSubjectID), cfg.DevIdentity.SubjectID)
			setClaim(claims, path(ClaimTenantID), cfg.DevIdentity.TenantID)
			setClaim(claims, path(ClaimRoles), roles)
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func classifyJWTError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "Malformed token"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "Invalid token issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "Invalid token audience"
	case strings.Contains(err.Error(), "signing method"):
		return "Disallowed signing algorithm"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "Invalid token signature"
	default:
		return "Invalid token"
	}
}
