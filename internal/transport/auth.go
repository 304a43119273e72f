package transport

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ngasani/shadeview/internal/config"
	"github.com/ngasani/shadeview/model"
)

// JWKSClient fetches the identity provider's signing keys and caches them.
// Only RSA keys are kept: the admin surface accepts RS256 tokens and
// nothing else, so other key types in the document are skipped.
type JWKSClient struct {
	url        string
	ttl        time.Duration
	minRefresh time.Duration
	httpClient *http.Client
	logger     *zap.Logger

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time
}

// NewJWKSClient creates a JWKS client that fetches keys from the given URL
// and caches them for the given TTL.
func NewJWKSClient(url string, ttl time.Duration, logger *zap.Logger) *JWKSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JWKSClient{
		url:        url,
		ttl:        ttl,
		minRefresh: 5 * time.Minute,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		keys:       make(map[string]*rsa.PublicKey),
	}
}

// GetKey returns the public key for the given key ID, refreshing the cached
// document when it has expired. A failed refresh falls back to the cached
// key so a flaky identity provider does not lock admins out mid-rotation.
func (c *JWKSClient) GetKey(kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	fresh := time.Since(c.lastFetch) <= c.ttl
	c.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}

	if err := c.refresh(); err != nil {
		c.mu.RLock()
		key, ok = c.keys[kid]
		c.mu.RUnlock()
		if ok {
			c.logger.Warn("jwks refresh failed, using cached key", zap.Error(err))
			return key, nil
		}
		return nil, fmt.Errorf("jwks: fetch failed: %w", err)
	}

	c.mu.RLock()
	key, ok = c.keys[kid]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("jwks: unknown signing key %q", kid)
	}
	return key, nil
}

// jwksDocument is the subset of RFC 7517 this service consumes.
type jwksDocument struct {
	Keys []struct {
		KeyType string `json:"kty"`
		KeyID   string `json:"kid"`
		N       string `json:"n"`
		E       string `json:"e"`
	} `json:"keys"`
}

func (c *JWKSClient) refresh() error {
	c.mu.RLock()
	tooSoon := time.Since(c.lastFetch) < c.minRefresh && len(c.keys) > 0
	c.mu.RUnlock()
	if tooSoon {
		return nil
	}

	resp, err := c.httpClient.Get(c.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("jwks: parse error: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.KeyType != "RSA" || k.KeyID == "" {
			continue
		}
		key, err := rsaKeyFromModulus(k.N, k.E)
		if err != nil {
			c.logger.Warn("jwks key skipped", zap.String("kid", k.KeyID), zap.Error(err))
			continue
		}
		keys[k.KeyID] = key
	}

	c.mu.Lock()
	c.keys = keys
	c.lastFetch = time.Now()
	c.mu.Unlock()

	return nil
}

func rsaKeyFromModulus(n, e string) (*rsa.PublicKey, error) {
	if n == "" || e == "" {
		return nil, errors.New("missing modulus or exponent")
	}
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// JWTAuthenticator returns middleware guarding the catalog admin routes. A
// request needs a verified bearer token whose scope claim grants the
// configured admin scope; a valid token without it is forbidden, not
// unauthorized, so the frontend can distinguish "log in" from "not allowed".
func JWTAuthenticator(cfg config.AdminAuthConfig, jwks *JWKSClient) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || tokenStr == "" {
				WriteError(w, model.NewUnauthorizedError("Missing bearer token"))
				return
			}

			token, err := jwt.Parse(tokenStr,
				func(token *jwt.Token) (any, error) {
					kid, _ := token.Header["kid"].(string)
					if kid == "" {
						return nil, errors.New("missing kid in token header")
					}
					return jwks.GetKey(kid)
				},
				jwt.WithValidMethods(cfg.Algorithms),
				jwt.WithIssuer(cfg.Issuer),
				jwt.WithAudience(cfg.Audience),
				jwt.WithLeeway(30*time.Second),
				jwt.WithExpirationRequired(),
			)
			if err != nil {
				WriteError(w, model.NewUnauthorizedError(describeTokenError(err)))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				WriteError(w, model.NewUnauthorizedError("Invalid token"))
				return
			}

			if cfg.RequiredScope != "" && !hasScope(claims, cfg.RequiredScope) {
				WriteError(w, model.NewForbiddenError("Token lacks the catalog admin scope"))
				return
			}

			ctx := WithClaims(r.Context(), map[string]any(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// hasScope reports whether the claims grant the given scope. Both claim
// shapes in the wild are accepted: a space-delimited "scope" string and a
// "scopes" array.
func hasScope(claims jwt.MapClaims, want string) bool {
	if v, ok := claims["scope"].(string); ok {
		for _, s := range strings.Fields(v) {
			if s == want {
				return true
			}
		}
	}
	if list, ok := claims["scopes"].([]any); ok {
		for _, entry := range list {
			if s, ok := entry.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

// describeTokenError maps verification failures to stable user-facing
// messages without leaking parser internals.
func describeTokenError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "Invalid token issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "Invalid token audience"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "Invalid token signature"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "Token not valid yet"
	case strings.Contains(err.Error(), "signing method"):
		return "Disallowed signing algorithm"
	case strings.Contains(err.Error(), "kid"):
		return "Unknown signing key"
	default:
		return "Invalid token"
	}
}
