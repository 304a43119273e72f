// Package renderer is the client for the external generative rendering
// service: the only collaborator that produces composites and styling
// recommendations. This repository does no image processing of its own.
package renderer

import (
	"context"

	"github.com/ngasani/shadeview/model"
)

// CompositeRequest describes one composite render: the user's window photo
// plus the covering to depict on it.
type CompositeRequest struct {
	Image        []byte
	MIMEType     string
	ProductType  model.ProductType
	ProductLabel string
	ColorLabel   string
	Daytime      bool
	CurtainStyle model.CurtainStyle
}

// Renderer produces recommendations and composites.
//
// Both methods fail with a REMOTE_ERROR envelope on any transport or
// processing failure. Composite additionally fails with NO_IMAGE_RETURNED
// when the service answers successfully but the response carries no image
// part; that case is surfaced to the user as retryable, never treated as
// success.
type Renderer interface {
	Recommend(ctx context.Context, image []byte, mimeType string, t model.ProductType) (string, error)
	Composite(ctx context.Context, req CompositeRequest) ([]byte, error)
}
