// Package session owns the navigation state machine for the visualization
// flow and the persistence of session aggregates.
package session

import (
	"context"

	"github.com/ngasani/shadeview/model"
)

// Store persists session aggregates and their audit events.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, sess model.Session) error

	// Get retrieves a session by ID. Returns NOT_FOUND if it does not exist.
	Get(ctx context.Context, id string) (model.Session, error)

	// Update persists an updated session with optimistic locking. The
	// version must match the stored version; CONFLICT otherwise.
	Update(ctx context.Context, sess model.Session) error

	// AppendEvent adds an event to the session's audit trail.
	AppendEvent(ctx context.Context, event model.SessionEvent) error

	// GetEvents retrieves all events for a session ordered by timestamp.
	GetEvents(ctx context.Context, sessionID string) ([]model.SessionEvent, error)

	// Delete removes a session and its events.
	Delete(ctx context.Context, id string) error
}
