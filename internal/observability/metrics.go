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
	rendererDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	runDurationBuckets      = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120}
	bodySizeBuckets         = []float64{100, 1024, 10240, 102400, 1048576, 10485760}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Session metrics
	SessionsStartedTotal    prometheus.Counter
	SessionTransitionsTotal *prometheus.CounterVec
	SessionResetsTotal      prometheus.Counter

	// Simulation run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Renderer metrics
	RendererRequestsTotal       *prometheus.CounterVec
	RendererRequestDuration     *prometheus.HistogramVec
	RendererCircuitBreakerState prometheus.Gauge
	IdempotentReplaysTotal      prometheus.Counter

	// Catalog metrics
	CatalogCompaniesLoaded *prometheus.GaugeVec
	CatalogWritesTotal     *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shadeview_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shadeview_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shadeview_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shadeview_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Sessions
		SessionsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shadeview_sessions_started_total",
			Help: "Total number of visualization sessions started.",
		}),
		SessionTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shadeview_session_transitions_total",
			Help: "Total number of session step transitions.",
		}, []string{"from", "to"}),
		SessionResetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shadeview_session_resets_total",
			Help: "Total number of session resets.",
		}),

		// Runs
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shadeview_runs_total",
			Help: "Total number of simulation runs.",
		}, []string{"mode", "status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shadeview_run_duration_seconds",
			Help:    "Simulation run duration in seconds.",
			Buckets: runDurationBuckets,
		}, []string{"mode"}),

		// Renderer
		RendererRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shadeview_renderer_requests_total",
			Help: "Total number of rendering service requests.",
		}, []string{"operation", "status"}),
		RendererRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shadeview_renderer_request_duration_seconds",
			Help:    "Rendering service request duration in seconds.",
			Buckets: rendererDurationBuckets,
		}, []string{"operation"}),
		RendererCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shadeview_renderer_circuit_breaker_state",
			Help: "Renderer circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		IdempotentReplaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shadeview_idempotent_replays_total",
			Help: "Total number of simulate requests suppressed as duplicates.",
		}),

		// Catalog
		CatalogCompaniesLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shadeview_catalog_companies_loaded",
			Help: "Number of fabric companies loaded per product type.",
		}, []string{"product_type"}),
		CatalogWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shadeview_catalog_writes_total",
			Help: "Total number of admin catalog writes.",
		}, []string{"entity", "status"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Sessions
		m.SessionsStartedTotal,
		m.SessionTransitionsTotal,
		m.SessionResetsTotal,
		// Runs
		m.RunsTotal,
		m.RunDuration,
		// Renderer
		m.RendererRequestsTotal,
		m.RendererRequestDuration,
		m.RendererCircuitBreakerState,
		m.IdempotentReplaysTotal,
		// Catalog
		m.CatalogCompaniesLoaded,
		m.CatalogWritesTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordSessionStart records a new session.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStartedTotal.Inc()
}

// RecordSessionTransition records a step transition.
func (m *Metrics) RecordSessionTransition(from, to string) {
	m.SessionTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordSessionReset records a session reset.
func (m *Metrics) RecordSessionReset() {
	m.SessionResetsTotal.Inc()
}

// RecordRun records a completed or failed simulation run.
func (m *Metrics) RecordRun(mode, status string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(mode, status).Inc()
	m.RunDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordRendererRequest records a rendering service call.
func (m *Metrics) RecordRendererRequest(operation, status string, duration time.Duration) {
	m.RendererRequestsTotal.WithLabelValues(operation, status).Inc()
	m.RendererRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetRendererBreakerState sets the breaker gauge.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetRendererBreakerState(state float64) {
	m.RendererCircuitBreakerState.Set(state)
}

// RecordIdempotentReplay records a simulate request suppressed as a duplicate.
func (m *Metrics) RecordIdempotentReplay() {
	m.IdempotentReplaysTotal.Inc()
}

// SetCatalogCompaniesLoaded sets the per-product-type company count.
func (m *Metrics) SetCatalogCompaniesLoaded(productType string, count float64) {
	m.CatalogCompaniesLoaded.WithLabelValues(productType).Set(count)
}

// RecordCatalogWrite records an admin catalog write.
func (m *Metrics) RecordCatalogWrite(entity, status string) {
	m.CatalogWritesTotal.WithLabelValues(entity, status).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
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
