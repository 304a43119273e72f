package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testKeyID = "test-key-1"

// tokenIssuer signs admin test tokens and serves the matching JWKS document
// over a local HTTP server, so the real JWT middleware validates them end to
// end.
type tokenIssuer struct {
	t        *testing.T
	key      *rsa.PrivateKey
	server   *httptest.Server
	issuer   string
	audience string
}

// TestClaims describes the identity a generated token carries.
type TestClaims struct {
	SubjectID string
	Scope     string
}

func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}

	iss := &tokenIssuer{
		t:        t,
		key:      key,
		issuer:   "https://auth.test.shadeview.example",
		audience: "shadeview-admin",
	}

	mux := http.NewServeMux()
	// Method-qualified mux patterns need Go 1.22+; enforce the method by
	// hand so the harness runs on Go 1.21.
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		iss.serveJWKS(w, r)
	})
	iss.server = httptest.NewServer(mux)
	t.Cleanup(iss.server.Close)

	return iss
}

func (i *tokenIssuer) Issuer() string   { return i.issuer }
func (i *tokenIssuer) Audience() string { return i.audience }

// JWKSURL returns the URL of the served key set.
func (i *tokenIssuer) JWKSURL() string {
	return i.server.URL + "/.well-known/jwks.json"
}

// GenerateToken signs a token valid for one hour.
func (i *tokenIssuer) GenerateToken(claims TestClaims) string {
	return i.sign(claims, time.Now().Add(-time.Minute), time.Now().Add(time.Hour))
}

// GenerateExpiredToken signs a token whose expiry is already in the past.
func (i *tokenIssuer) GenerateExpiredToken(claims TestClaims) string {
	return i.sign(claims, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
}

func (i *tokenIssuer) sign(claims TestClaims, issuedAt, expiresAt time.Time) string {
	i.t.Helper()

	payload := jwt.MapClaims{
		"iss": i.issuer,
		"aud": i.audience,
		"sub": claims.SubjectID,
		"iat": issuedAt.Unix(),
		"exp": expiresAt.Unix(),
	}
	if claims.Scope != "" {
		payload["scope"] = claims.Scope
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, payload)
	token.Header["kid"] = testKeyID

	signed, err := token.SignedString(i.key)
	if err != nil {
		i.t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (i *tokenIssuer) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	pub := i.key.Public().(*rsa.PublicKey)

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": testKeyID,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jwks)
}
