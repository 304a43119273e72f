// Package integration provides a reusable test harness for end-to-end
// testing of the ShadeView server. It starts a full HTTP server with a mock
// rendering service, in-memory stores, and a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ngasani/shadeview/internal/catalog"
	"github.com/ngasani/shadeview/internal/config"
	"github.com/ngasani/shadeview/internal/observability"
	"github.com/ngasani/shadeview/internal/renderer"
	"github.com/ngasani/shadeview/internal/session"
	"github.com/ngasani/shadeview/internal/simulate"
	"github.com/ngasani/shadeview/internal/transport"
	"github.com/ngasani/shadeview/model"
)

// TestHarness encapsulates a fully wired ShadeView instance with a mock
// rendering service for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Engine           *session.Engine
	Orchestrator     *simulate.Orchestrator
	Catalog          *catalog.Store
	SessionStore     *session.MemoryStore
	IdempotencyStore *simulate.MemoryIdempotencyStore
	Renderer         *MockRenderer

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	seed               *model.Catalog
	idempotencyEnabled bool
	handlerTimeout     time.Duration
	rendererCfg        func(*config.RendererConfig)
}

// WithCatalog replaces the default seeded catalog.
func WithCatalog(seed *model.Catalog) HarnessOption {
	return func(c *harnessConfig) {
		c.seed = seed
	}
}

// WithIdempotency enables simulate-request deduplication with an in-memory
// store.
func WithIdempotency() HarnessOption {
	return func(c *harnessConfig) {
		c.idempotencyEnabled = true
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithRendererConfig tweaks the renderer client configuration, for breaker
// and retry scenarios.
func WithRendererConfig(fn func(*config.RendererConfig)) HarnessOption {
	return func(c *harnessConfig) {
		c.rendererCfg = fn
	}
}

// NewTestHarness creates and starts a full test instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}
	if hc.seed == nil {
		hc.seed = SeedCatalog()
	}

	h := &TestHarness{t: t}

	h.Renderer = NewMockRenderer(t)

	h.Catalog = catalog.NewStore(hc.seed)
	h.SessionStore = session.NewMemoryStore()
	h.Engine = session.NewEngine(h.SessionStore, h.Catalog)

	if hc.idempotencyEnabled {
		h.IdempotencyStore = simulate.NewMemoryIdempotencyStore(5 * time.Minute)
	}

	h.issuer = newTokenIssuer(t)

	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Renderer.BaseURL = h.Renderer.URL()
	h.cfg.Renderer.Timeout = 5 * time.Second
	h.cfg.Renderer.Retry.MaxAttempts = 1
	h.cfg.Observability.Metrics.Enabled = false
	h.cfg.AdminAuth = config.AdminAuthConfig{
		Enabled:       true,
		Issuer:        h.issuer.Issuer(),
		Audience:      h.issuer.Audience(),
		JWKSURL:       h.issuer.JWKSURL(),
		JWKSCacheTTL:  time.Hour,
		Algorithms:    []string{"RS256"},
		RequiredScope: "catalog:write",
	}
	if hc.rendererCfg != nil {
		hc.rendererCfg(&h.cfg.Renderer)
	}

	// Each harness gets its own registry so parallel tests do not collide.
	metrics := observability.InitMetrics(prometheus.NewRegistry())

	rendererClient := renderer.NewClient(h.cfg.Renderer, "test-api-key", metrics.RecordRendererRequest)

	var idem simulate.IdempotencyStore
	if h.IdempotencyStore != nil {
		idem = h.IdempotencyStore
	}
	h.Orchestrator = simulate.NewOrchestrator(h.Engine, h.Catalog, rendererClient, idem, metrics, zap.NewNop())

	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), time.Hour, zap.NewNop())

	router := transport.NewRouter(transport.Dependencies{
		Config:       h.cfg,
		Logger:       zap.NewNop(),
		Engine:       h.Engine,
		Orchestrator: h.Orchestrator,
		Catalog:      h.Catalog,
		Metrics:      metrics,
		AdminAuth:    transport.JWTAuthenticator(h.cfg.AdminAuth, jwks),
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// AdminToken creates a valid JWT carrying the catalog admin scope.
func (h *TestHarness) AdminToken() string {
	return h.issuer.GenerateToken(TestClaims{SubjectID: "admin-user", Scope: "catalog:write"})
}

// ReadOnlyToken creates a valid JWT without the catalog admin scope.
func (h *TestHarness) ReadOnlyToken() string {
	return h.issuer.GenerateToken(TestClaims{SubjectID: "viewer-user", Scope: "catalog:read"})
}

// ExpiredAdminToken creates a JWT that has already expired.
func (h *TestHarness) ExpiredAdminToken() string {
	return h.issuer.GenerateExpiredToken(TestClaims{SubjectID: "admin-user", Scope: "catalog:write"})
}

// --- HTTP client helpers ---

// GET performs a GET request.
func (h *TestHarness) GET(path string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, "", nil)
}

// POST performs a POST request with a JSON body.
func (h *TestHarness) POST(path string, body any) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, "", nil)
}

// POSTAuth performs a POST request with a bearer token.
func (h *TestHarness) POSTAuth(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// POSTWithHeaders performs a POST request with additional headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, "", headers)
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

	client := &http.Client{Timeout: 30 * time.Second}
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
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
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

// --- Flow helpers ---

// NewSession creates a session and returns its descriptor.
func (h *TestHarness) NewSession(t *testing.T) model.SessionDescriptor {
	t.Helper()
	var desc model.SessionDescriptor
	h.AssertJSON(t, h.POST("/ui/sessions", nil), http.StatusCreated, &desc)
	return desc
}

// Upload uploads a small test image to the session.
func (h *TestHarness) Upload(t *testing.T, sessionID string) model.SessionDescriptor {
	t.Helper()
	var desc model.SessionDescriptor
	h.AssertJSON(t, h.POST("/ui/sessions/"+sessionID+"/image", map[string]any{
		"filename":  "window.jpg",
		"mime_type": "image/jpeg",
		"data":      TestImageBytes(),
	}), http.StatusOK, &desc)
	return desc
}

// PickProductType chooses a product type for the session.
func (h *TestHarness) PickProductType(t *testing.T, sessionID string, pt model.ProductType) model.SessionDescriptor {
	t.Helper()
	var desc model.SessionDescriptor
	h.AssertJSON(t, h.POST("/ui/sessions/"+sessionID+"/product-type", map[string]any{
		"product_type": pt,
	}), http.StatusOK, &desc)
	return desc
}

// TestImageBytes returns a tiny stand-in for an uploaded window photo.
func TestImageBytes() []byte {
	return []byte("\xff\xd8\xff\xe0test-window-photo")
}

// --- Seed catalog fixture ---

// SeedCatalog builds the default catalog used by the harness. IDs are stable
// so tests can reference them directly.
func SeedCatalog() *model.Catalog {
	return &model.Catalog{
		Buckets: map[model.ProductType][]model.FabricCompany{
			model.ProductTypeCurtains: {
				{
					ID:   "drapery-dreams",
					Name: "Drapery Dreams",
					Products: []model.Product{
						{
							ID:   "velvet-luxe",
							Name: "Velvet Luxe",
							Colors: []model.Color{
								{ID: "ruby-red", Name: "Ruby Red", Hex: "#9B111E"},
								{ID: "emerald-green", Name: "Emerald Green", Hex: "#50C878"},
							},
						},
						{
							ID:   "linen-breeze",
							Name: "Linen Breeze",
							Colors: []model.Color{
								{ID: "oat-white", Name: "Oat White", Hex: "#F5F0E6"},
							},
						},
					},
				},
				{
					ID:   "window-works",
					Name: "Window Works",
					Products: []model.Product{
						{
							ID:   "classic-weave",
							Name: "Classic Weave",
							Colors: []model.Color{
								{ID: "storm-grey", Name: "Storm Grey", Hex: "#7D8491"},
							},
						},
					},
				},
			},
			model.ProductTypeRollerBlinds: {
				{
					ID:   "shade-masters",
					Name: "Shade Masters",
					Products: []model.Product{
						{
							ID:   "blockout-prime",
							Name: "Blockout Prime",
							Colors: []model.Color{
								{ID: "charcoal", Name: "Charcoal", Hex: "#36454F"},
								{ID: "cloud-white", Name: "Cloud White", Hex: "#F7F7F7"},
							},
						},
					},
				},
			},
			model.ProductTypeVerticalBlinds: {
				{
					ID:   "slat-and-co",
					Name: "Slat & Co",
					Products: []model.Product{
						{
							ID:   "duo-vane",
							Name: "Duo Vane",
							Colors: []model.Color{
								{ID: "sandstone", Name: "Sandstone", Hex: "#C2B280"},
							},
						},
					},
				},
			},
		},
	}
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
