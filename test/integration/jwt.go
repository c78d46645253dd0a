package integration

import (
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestClaims holds the configurable claims for generating test JWT tokens.
type TestClaims struct {
	SubjectID string
	TenantID  string
	Email     string
	Roles     []string
	Extra     map[string]any
}

// tokenIssuer signs HS256 tokens with a shared secret, matching the
// server's hmac identity mode.
type tokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
}

// newTokenIssuer creates a token issuer with a fixed test secret.
func newTokenIssuer() *tokenIssuer {
	return &tokenIssuer{
		secret:   []byte("gridview-integration-secret"),
		issuer:   "https://auth.test.gridview.dev",
		audience: "gridview-test",
	}
}

// GenerateToken creates a valid, signed JWT token with the given claims.
func (ti *tokenIssuer) GenerateToken(claims TestClaims) string {
	now := time.Now()
	return ti.sign(jwt.SigningMethodHS256, ti.mapClaims(claims, now, now.Add(time.Hour)))
}

// GenerateExpiredToken creates a JWT token that expired in the past.
func (ti *tokenIssuer) GenerateExpiredToken(claims TestClaims) string {
	now := time.Now()
	return ti.sign(jwt.SigningMethodHS256, ti.mapClaims(claims, now.Add(-2*time.Hour), now.Add(-time.Hour)))
}

// GenerateTokenWith signs claims with an arbitrary method and key, for
// rejection tests.
func (ti *tokenIssuer) GenerateTokenWith(method jwt.SigningMethod, key []byte, claims TestClaims) string {
	now := time.Now()
	return ti.sign(method, ti.mapClaims(claims, now, now.Add(time.Hour)), key)
}

func (ti *tokenIssuer) mapClaims(claims TestClaims, issuedAt, expires time.Time) jwt.MapClaims {
	mapClaims := jwt.MapClaims{
		"iss":       ti.issuer,
		"aud":       ti.audience,
		"iat":       jwt.NewNumericDate(issuedAt),
		"exp":       jwt.NewNumericDate(expires),
		"sub":       claims.SubjectID,
		"tenant_id": claims.TenantID,
		"email":     claims.Email,
	}

	if len(claims.Roles) > 0 {
		// Store as []any to match JWT decode behavior.
		roles := make([]any, len(claims.Roles))
		for i, r := range claims.Roles {
			roles[i] = r
		}
		mapClaims["roles"] = roles
	}

	maps.Copy(mapClaims, claims.Extra)
	return mapClaims
}

func (ti *tokenIssuer) sign(method jwt.SigningMethod, claims jwt.MapClaims, key ...[]byte) string {
	secret := ti.secret
	if len(key) > 0 {
		secret = key[0]
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	if err != nil {
		panic("sign JWT: " + err.Error())
	}
	return signed
}

// Secret returns the shared signing secret.
func (ti *tokenIssuer) Secret() []byte {
	return ti.secret
}

// Issuer returns the expected token issuer claim.
func (ti *tokenIssuer) Issuer() string {
	return ti.issuer
}

// Audience returns the expected token audience claim.
func (ti *tokenIssuer) Audience() string {
	return ti.audience
}
