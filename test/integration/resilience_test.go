package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngasani/shadeview/internal/config"
	"github.com/ngasani/shadeview/model"
)

// TestCircuitBreakerOpensAfterConsecutiveFailures verifies the breaker stops
// calling the rendering service once the failure threshold is reached.
func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	h := NewTestHarness(t, WithRendererConfig(func(cfg *config.RendererConfig) {
		cfg.CircuitBreaker.FailureThreshold = 2
		cfg.CircuitBreaker.Timeout = time.Minute
	}))
	h.Renderer.FailNext(KindDayComposite, 10)

	desc := h.NewSession(t)
	sessionID := desc.ID
	base := "/ui/sessions/" + sessionID

	h.Upload(t, sessionID)
	h.PickProductType(t, sessionID, model.ProductTypeCurtains)

	// Two failed runs trip the breaker.
	h.AssertJSON(t, h.POST(base+"/simulate", nil), http.StatusOK, &desc)
	require.Equal(t, model.StepConfigure, desc.Step)
	h.AssertJSON(t, h.POST(base+"/simulate", nil), http.StatusOK, &desc)
	require.Equal(t, model.StepConfigure, desc.Step)
	require.Equal(t, 2, h.Renderer.CountByKind(KindDayComposite))

	// The third run is rejected without reaching the service.
	h.AssertJSON(t, h.POST(base+"/simulate", nil), http.StatusOK, &desc)
	assert.Equal(t, model.StepConfigure, desc.Step)
	assert.Contains(t, desc.ErrorMessage, "temporarily unavailable")
	assert.Equal(t, 2, h.Renderer.CountByKind(KindDayComposite))
}

// TestRecommendationRetriesTransientFailure verifies the recommendation call
// retries once and the run still completes.
func TestRecommendationRetriesTransientFailure(t *testing.T) {
	h := NewTestHarness(t, WithRendererConfig(func(cfg *config.RendererConfig) {
		cfg.Retry.MaxAttempts = 2
		cfg.Retry.BackoffInitial = 10 * time.Millisecond
	}))
	h.Renderer.FailNext(KindRecommendation, 1)

	desc := h.NewSession(t)
	sessionID := desc.ID
	base := "/ui/sessions/" + sessionID

	h.Upload(t, sessionID)
	h.PickProductType(t, sessionID, model.ProductTypeVerticalBlinds)

	h.AssertJSON(t, h.POST(base+"/mode", map[string]any{"mode": "automatic"}), http.StatusOK, &desc)
	assert.Equal(t, model.StepResult, desc.Step)
	assert.NotEmpty(t, desc.Recommendation)
	assert.Equal(t, 2, h.Renderer.CountByKind(KindRecommendation))
	assert.Equal(t, 1, h.Renderer.CountByKind(KindDayComposite))
	assert.Equal(t, 1, h.Renderer.CountByKind(KindNightComposite))
}

// TestRecommendationFailureAfterRetries verifies an automatic run fails with
// the remote message once retries are exhausted, before any composite is
// requested.
func TestRecommendationFailureAfterRetries(t *testing.T) {
	h := NewTestHarness(t, WithRendererConfig(func(cfg *config.RendererConfig) {
		cfg.Retry.MaxAttempts = 2
		cfg.Retry.BackoffInitial = 10 * time.Millisecond
	}))
	h.Renderer.SetFailure(http.StatusBadGateway, "upstream model error")
	h.Renderer.FailNext(KindRecommendation, 2)

	desc := h.NewSession(t)
	sessionID := desc.ID
	base := "/ui/sessions/" + sessionID

	h.Upload(t, sessionID)
	h.PickProductType(t, sessionID, model.ProductTypeCurtains)

	h.AssertJSON(t, h.POST(base+"/mode", map[string]any{"mode": "automatic"}), http.StatusOK, &desc)
	assert.Equal(t, model.StepConfigure, desc.Step)
	assert.Equal(t, "upstream model error", desc.ErrorMessage)
	assert.Equal(t, 0, h.Renderer.CountByKind(KindDayComposite))
}
