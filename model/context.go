package model

import "context"

// RequestContext carries per-request metadata for the lifetime of an API
// call. It is immutable after construction and safe for concurrent reads.
type RequestContext struct {
	SubjectID     string
	Claims        map[string]any
	DeviceID      string
	CorrelationID string
	TraceID       string
	Locale        string
}

// Claim returns the value of the given claim key, or nil if not present.
func (rc *RequestContext) Claim(key string) any {
	if rc.Claims == nil {
		return nil
	}
	return rc.Claims[key]
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns
// nil if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}
