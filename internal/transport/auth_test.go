package transport

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngasani/shadeview/internal/config"
	"github.com/ngasani/shadeview/model"
)

const authTestKeyID = "auth-test-key"

type authFixture struct {
	key    *rsa.PrivateKey
	server *httptest.Server
	jwks   *JWKSClient
	cfg    config.AdminAuthConfig
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub := key.Public().(*rsa.PublicKey)
	doc := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": authTestKeyID,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
			// A non-RSA entry that must be skipped during parsing.
			{
				"kty": "EC",
				"kid": "ec-key",
				"crv": "P-256",
			},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(server.Close)

	return &authFixture{
		key:    key,
		server: server,
		jwks:   NewJWKSClient(server.URL, time.Hour, nil),
		cfg: config.AdminAuthConfig{
			Enabled:       true,
			Issuer:        "https://auth.example.com",
			Audience:      "shadeview-admin",
			Algorithms:    []string{"RS256"},
			RequiredScope: "catalog:write",
		},
	}
}

func (f *authFixture) signToken(t *testing.T, extra jwt.MapClaims) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss": f.cfg.Issuer,
		"aud": f.cfg.Audience,
		"sub": "admin-user",
		"iat": time.Now().Add(-time.Minute).Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = authTestKeyID
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func (f *authFixture) serve(t *testing.T, token string) (*httptest.ResponseRecorder, bool) {
	t.Helper()

	reached := false
	handler := JWTAuthenticator(f.cfg, f.jwks)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		claims := ClaimsFrom(r.Context())
		assert.Equal(t, "admin-user", claims["sub"])
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/catalog/curtains/companies", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, reached
}

func TestJWTAuthenticatorAllowsScopedToken(t *testing.T) {
	f := newAuthFixture(t)

	rec, reached := f.serve(t, f.signToken(t, jwt.MapClaims{"scope": "profile catalog:write"}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}

func TestJWTAuthenticatorAcceptsScopesArray(t *testing.T) {
	f := newAuthFixture(t)

	rec, reached := f.serve(t, f.signToken(t, jwt.MapClaims{"scopes": []string{"catalog:write"}}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}

func TestJWTAuthenticatorForbidsMissingScope(t *testing.T) {
	f := newAuthFixture(t)

	rec, reached := f.serve(t, f.signToken(t, jwt.MapClaims{"scope": "catalog:read"}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)
	env := decodeErrorEnvelope(t, rec)
	assert.Equal(t, model.ErrForbidden, env.Code)
}

func TestJWTAuthenticatorRejectsMissingToken(t *testing.T) {
	f := newAuthFixture(t)

	rec, reached := f.serve(t, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

func TestJWTAuthenticatorRejectsExpiredToken(t *testing.T) {
	f := newAuthFixture(t)

	token := f.signToken(t, jwt.MapClaims{
		"scope": "catalog:write",
		"iat":   time.Now().Add(-2 * time.Hour).Unix(),
		"exp":   time.Now().Add(-time.Hour).Unix(),
	})
	rec, reached := f.serve(t, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
	env := decodeErrorEnvelope(t, rec)
	assert.Equal(t, "Token expired", env.Message)
}

func TestJWTAuthenticatorRejectsWrongAudience(t *testing.T) {
	f := newAuthFixture(t)

	token := f.signToken(t, jwt.MapClaims{
		"scope": "catalog:write",
		"aud":   "some-other-service",
	})
	rec, reached := f.serve(t, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

func TestJWKSClientSkipsNonRSAKeys(t *testing.T) {
	f := newAuthFixture(t)

	key, err := f.jwks.GetKey(authTestKeyID)
	require.NoError(t, err)
	assert.NotNil(t, key)

	_, err = f.jwks.GetKey("ec-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown signing key")
}

func TestJWKSClientUsesCachedKeyWhenRefreshFails(t *testing.T) {
	f := newAuthFixture(t)
	f.jwks.ttl = 0
	f.jwks.minRefresh = 0

	_, err := f.jwks.GetKey(authTestKeyID)
	require.NoError(t, err)

	// The provider goes away; the cached key keeps verification working.
	f.server.Close()
	key, err := f.jwks.GetKey(authTestKeyID)
	require.NoError(t, err)
	assert.NotNil(t, key)
}
