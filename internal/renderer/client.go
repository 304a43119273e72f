package renderer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ngasani/shadeview/internal/config"
	"github.com/ngasani/shadeview/model"
)

// RequestRecorder receives the outcome of every rendering service call:
// the operation name, an outcome label ("200", "503", "rejected",
// "unreachable"), and the round-trip duration.
type RequestRecorder func(operation, outcome string, duration time.Duration)

// Client talks to the generative rendering service over HTTP. Calls are
// guarded by a circuit breaker; only the recommendation call is retried,
// composites are generated fresh on every attempt the user makes.
type Client struct {
	baseURL    string
	modelName  string
	apiKey     string
	httpClient *http.Client
	breaker    *CircuitBreaker
	retry      config.RetryConfig
	record     RequestRecorder
}

// NewClient creates a renderer client from service configuration. The API
// key comes from the environment variable named in the config, never from
// the config file itself. The recorder may be nil, disabling per-call
// instrumentation.
func NewClient(cfg config.RendererConfig, apiKey string, record RequestRecorder) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cb := cfg.CircuitBreaker
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		modelName: cfg.Model,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxConnsPerHost:     5,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breaker: NewCircuitBreaker(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout),
		retry:   cfg.Retry,
		record:  record,
	}
}

// generateRequest is the wire format of one generation call.
type generateRequest struct {
	Model  string       `json:"model"`
	Prompt string       `json:"prompt"`
	Image  *inlineImage `json:"image,omitempty"`
}

type inlineImage struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// generateResponse is the wire format of a generation response. A response
// is a sequence of parts; each part holds either text or inline image data.
type generateResponse struct {
	Parts []responsePart `json:"parts"`
	Error *remoteError   `json:"error,omitempty"`
}

type responsePart struct {
	Text       string       `json:"text,omitempty"`
	InlineData *inlineImage `json:"inline_data,omitempty"`
}

type remoteError struct {
	Message string `json:"message"`
}

// Recommend asks the service for a textual covering recommendation for the
// uploaded window photo. Retried with backoff: the call has no side effects.
func (c *Client) Recommend(ctx context.Context, image []byte, mimeType string, t model.ProductType) (string, error) {
	req := generateRequest{
		Model:  c.modelName,
		Prompt: recommendationPrompt(t),
		Image:  &inlineImage{MIMEType: mimeType, Data: base64.StdEncoding.EncodeToString(image)},
	}

	maxAttempts := c.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", model.NewRemoteError(ctx.Err().Error())
			case <-time.After(c.backoff(attempt)):
			}
		}

		resp, err := c.generate(ctx, opRecommend, req)
		if err != nil {
			lastErr = err
			continue
		}
		for _, part := range resp.Parts {
			if part.Text != "" {
				return part.Text, nil
			}
		}
		return "", model.NewRemoteError("the recommendation response contained no text")
	}
	return "", lastErr
}

// Composite asks the service to render the covering onto the window photo.
// Not retried: a repeated generation is a new image, and the user retries
// explicitly from the configuration screen.
func (c *Client) Composite(ctx context.Context, req CompositeRequest) ([]byte, error) {
	wire := generateRequest{
		Model:  c.modelName,
		Prompt: compositePrompt(req),
		Image:  &inlineImage{MIMEType: req.MIMEType, Data: base64.StdEncoding.EncodeToString(req.Image)},
	}

	resp, err := c.generate(ctx, opComposite, wire)
	if err != nil {
		return nil, err
	}

	for _, part := range resp.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			img, decErr := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if decErr != nil {
				return nil, model.NewRemoteError(fmt.Sprintf("undecodable image payload: %v", decErr))
			}
			return img, nil
		}
	}
	return nil, model.NewNoImageReturnedError("the render response contained no image part")
}

// Operation labels reported to the request recorder.
const (
	opRecommend = "recommend"
	opComposite = "composite"
)

// generate performs one HTTP round trip with circuit breaker protection.
func (c *Client) generate(ctx context.Context, operation string, req generateRequest) (generateResponse, error) {
	if err := c.breaker.Allow(); err != nil {
		c.observe(operation, "rejected", 0)
		return generateResponse{}, model.NewRemoteError("the rendering service is temporarily unavailable")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return generateResponse{}, model.NewRemoteError(fmt.Sprintf("encode request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return generateResponse{}, model.NewRemoteError(fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	started := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.breaker.RecordFailure()
		c.observe(operation, "unreachable", time.Since(started))
		return generateResponse{}, model.NewRemoteError(fmt.Sprintf("rendering service unreachable: %v", err))
	}
	defer httpResp.Body.Close()
	c.observe(operation, strconv.Itoa(httpResp.StatusCode), time.Since(started))

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 32<<20))
	if err != nil {
		c.breaker.RecordFailure()
		return generateResponse{}, model.NewRemoteError(fmt.Sprintf("read response: %v", err))
	}

	var resp generateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		c.breaker.RecordFailure()
		return generateResponse{}, model.NewRemoteError(fmt.Sprintf("unparsable response (status %d)", httpResp.StatusCode))
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		c.breaker.RecordFailure()
		msg := fmt.Sprintf("rendering service returned status %d", httpResp.StatusCode)
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return generateResponse{}, model.NewRemoteError(msg)
	}

	c.breaker.RecordSuccess()
	return resp, nil
}

// observe reports a call outcome to the recorder, if one is configured.
func (c *Client) observe(operation, outcome string, d time.Duration) {
	if c.record != nil {
		c.record(operation, outcome, d)
	}
}

// backoff computes the delay before the given retry attempt.
func (c *Client) backoff(attempt int) time.Duration {
	initial := c.retry.BackoffInitial
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	multiplier := c.retry.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 2
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
	}
	if c.retry.BackoffMax > 0 && delay > c.retry.BackoffMax {
		delay = c.retry.BackoffMax
	}
	return delay
}

// BreakerState exposes the breaker state for metrics and diagnostics.
func (c *Client) BreakerState() BreakerState {
	return c.breaker.State()
}

// recommendationPrompt builds the instruction for a styling recommendation.
func recommendationPrompt(t model.ProductType) string {
	return fmt.Sprintf(
		"You are an interior design assistant. Look at this window photo and recommend a %s style, fabric, and color that suits the room. Answer in two or three sentences for a homeowner.",
		productLabel(t),
	)
}

// compositePrompt builds the instruction for one composite render.
func compositePrompt(req CompositeRequest) string {
	timeOfDay := "bright daytime"
	if !req.Daytime {
		timeOfDay = "evening with warm interior lighting"
	}

	covering := productLabel(req.ProductType)
	if req.ProductType == model.ProductTypeCurtains && req.CurtainStyle != "" {
		covering = fmt.Sprintf("%s %s", curtainStyleLabel(req.CurtainStyle), covering)
	}

	return fmt.Sprintf(
		"Render a photorealistic image of this exact window fitted with %s in %q (%s). Keep the room, walls, and framing unchanged. Show the scene in %s.",
		covering, req.ProductLabel, req.ColorLabel, timeOfDay,
	)
}

func productLabel(t model.ProductType) string {
	switch t {
	case model.ProductTypeVerticalBlinds:
		return "vertical blinds"
	case model.ProductTypeRollerBlinds:
		return "roller blinds"
	case model.ProductTypeCurtains:
		return "curtains"
	default:
		return string(t)
	}
}

func curtainStyleLabel(s model.CurtainStyle) string {
	switch s {
	case model.CurtainStyleSWave:
		return "s-wave"
	case model.CurtainStylePinchPleat:
		return "pinch pleat"
	default:
		return string(s)
	}
}
