package integration

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// RequestKind classifies calls the mock rendering service receives.
type RequestKind string

const (
	KindRecommendation RequestKind = "recommendation"
	KindDayComposite   RequestKind = "day_composite"
	KindNightComposite RequestKind = "night_composite"
)

// RecordedRequest captures one call to the mock rendering service.
type RecordedRequest struct {
	Kind   RequestKind
	Prompt string
	Model  string
}

// MockRenderer is a stand-in for the external generative image service. It
// speaks the same wire protocol as the real service and records every request
// for later assertions. Behavior can be scripted per request kind.
type MockRenderer struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest

	failNext       map[RequestKind]int
	failStatus     int
	failMessage    string
	omitImage      map[RequestKind]bool
	recommendation string
}

// NewMockRenderer starts a mock rendering service. The server is cleaned up
// when the test completes.
func NewMockRenderer(t *testing.T) *MockRenderer {
	m := &MockRenderer{
		t:              t,
		failNext:       make(map[RequestKind]int),
		failStatus:     http.StatusInternalServerError,
		failMessage:    "model unavailable",
		omitImage:      make(map[RequestKind]bool),
		recommendation: "Sheer linen curtains in a soft ivory would brighten this room while keeping the view.",
	}

	mux := http.NewServeMux()
	// Method-qualified mux patterns ("POST /v1/generate") need Go 1.22+;
	// enforce the method by hand so the harness runs on Go 1.21.
	mux.HandleFunc("/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		m.handleGenerate(w, r)
	})

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

// URL returns the mock service's base URL.
func (m *MockRenderer) URL() string {
	return m.server.URL
}

// FailNext makes the next n requests of the given kind return the configured
// error status.
func (m *MockRenderer) FailNext(kind RequestKind, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[kind] = n
}

// SetFailure configures the status and message used for injected failures.
func (m *MockRenderer) SetFailure(status int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStatus = status
	m.failMessage = message
}

// OmitImage makes composite responses of the given kind return only text,
// with no image part.
func (m *MockRenderer) OmitImage(kind RequestKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitImage[kind] = true
}

// SetRecommendation overrides the recommendation text the mock returns.
func (m *MockRenderer) SetRecommendation(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recommendation = text
}

// Requests returns a copy of all recorded requests.
func (m *MockRenderer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// CountByKind returns how many requests of the given kind were received.
func (m *MockRenderer) CountByKind(kind RequestKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, req := range m.requests {
		if req.Kind == kind {
			n++
		}
	}
	return n
}

// Reset clears recorded requests and scripted behavior.
func (m *MockRenderer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.failNext = make(map[RequestKind]int)
	m.omitImage = make(map[RequestKind]bool)
}

type generateRequest struct {
	Model  string       `json:"model"`
	Prompt string       `json:"prompt"`
	Image  *inlineImage `json:"image,omitempty"`
}

type inlineImage struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type responsePart struct {
	Text       string       `json:"text,omitempty"`
	InlineData *inlineImage `json:"inline_data,omitempty"`
}

type generateResponse struct {
	Parts []responsePart `json:"parts"`
	Error *remoteError   `json:"error,omitempty"`
}

type remoteError struct {
	Message string `json:"message"`
}

func (m *MockRenderer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	kind := classifyPrompt(req.Prompt)

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{Kind: kind, Prompt: req.Prompt, Model: req.Model})

	if m.failNext[kind] > 0 {
		m.failNext[kind]--
		status, message := m.failStatus, m.failMessage
		m.mu.Unlock()
		writeGenerateError(w, status, message)
		return
	}

	omit := m.omitImage[kind]
	recommendation := m.recommendation
	m.mu.Unlock()

	var resp generateResponse
	switch {
	case kind == KindRecommendation:
		resp.Parts = []responsePart{{Text: recommendation}}
	case omit:
		resp.Parts = []responsePart{{Text: "I could not produce an image for this request."}}
	default:
		resp.Parts = []responsePart{{InlineData: &inlineImage{
			MIMEType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(compositeBytes(kind)),
		}}}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeGenerateError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(generateResponse{Error: &remoteError{Message: message}})
}

func classifyPrompt(prompt string) RequestKind {
	// Composite prompts must be checked before the recommendation keyword:
	// automatic-mode render prompts mention "a designer-recommended fabric",
	// which would otherwise be misread as a recommendation request.
	switch {
	case strings.Contains(prompt, "evening"):
		return KindNightComposite
	case strings.Contains(prompt, "Render a photorealistic image"):
		return KindDayComposite
	case strings.Contains(prompt, "recommend"):
		return KindRecommendation
	default:
		return KindDayComposite
	}
}

// compositeBytes returns distinguishable fake image payloads so tests can
// tell the day and night results apart.
func compositeBytes(kind RequestKind) []byte {
	if kind == KindNightComposite {
		return []byte("\x89PNG\r\n\x1a\nnight-composite")
	}
	return []byte("\x89PNG\r\n\x1a\nday-composite")
}
