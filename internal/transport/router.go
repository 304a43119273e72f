package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ngasani/shadeview/internal/catalog"
	"github.com/ngasani/shadeview/internal/config"
	"github.com/ngasani/shadeview/internal/observability"
	"github.com/ngasani/shadeview/internal/session"
	"github.com/ngasani/shadeview/internal/simulate"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Engine       *session.Engine
	Orchestrator *simulate.Orchestrator
	Catalog      *catalog.Store
	Metrics      *observability.Metrics

	// AdminAuth guards the catalog admin routes. Nil disables the guard,
	// which is only acceptable in tests and local development.
	AdminAuth func(http.Handler) http.Handler

	// Readiness is the handler for /ui/ready.
	Readiness http.HandlerFunc
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// heavier middleware layers.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware, applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	readiness := deps.Readiness
	if readiness == nil {
		readiness = func(w http.ResponseWriter, _ *http.Request) {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		}
	}

	// Public operational routes.
	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", readiness)
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler())
	}

	// Session and catalog routes.
	r.Group(func(r chi.Router) {
		if deps.Config.Observability.Tracing.Enabled {
			r.Use(observability.TracingMiddleware)
		}
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Get("/ui/catalog", handleGetCatalog(deps.Catalog))
		r.Get("/ui/product-types", handleGetProductTypes())

		r.Post("/ui/sessions", handleCreateSession(deps.Engine, deps.Metrics))
		r.Route("/ui/sessions/{sessionId}", func(r chi.Router) {
			r.Get("/", handleGetSession(deps.Engine))
			r.Post("/image", handleUploadImage(deps.Engine, deps.Config.Server.MaxUploadBytes))
			r.Get("/image", handleGetImage(deps.Engine))
			r.Post("/product-type", handleChooseProductType(deps.Engine))
			r.Post("/selection", handleApplySelection(deps.Engine))
			r.Post("/mode", handleSetMode(deps.Engine, deps.Orchestrator))
			r.Post("/simulate", handleSimulate(deps.Engine, deps.Orchestrator))
			r.Post("/view", handleSetResultView(deps.Engine))
			r.Get("/result/{view}", handleGetResultImage(deps.Engine))
			r.Post("/back", handleBack(deps.Engine, deps.Metrics))
			r.Post("/reset", handleReset(deps.Engine, deps.Metrics))
			r.Post("/admin", handleOpenAdmin(deps.Engine))
		})

		// Catalog admin writes sit behind JWT verification.
		r.Group(func(r chi.Router) {
			if deps.AdminAuth != nil {
				r.Use(deps.AdminAuth)
			}
			r.Post("/admin/catalog/{productType}/companies", handleAddCompany(deps.Catalog, deps.Metrics))
			r.Post("/admin/catalog/{productType}/companies/{companyId}/products", handleAddProduct(deps.Catalog, deps.Metrics))
			r.Post("/admin/catalog/{productType}/companies/{companyId}/products/{productId}/colors", handleAddColor(deps.Catalog, deps.Metrics))
		})
	})

	return r
}
