package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ngasani/shadeview/model"
)

// MemoryStore is an in-memory Store for testing and single-instance
// deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	events   map[string][]model.SessionEvent
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]model.Session),
		events:   make(map[string][]model.SessionEvent),
	}
}

// Create persists a new session.
func (s *MemoryStore) Create(_ context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("session %q already exists", sess.ID),
		)
	}

	s.sessions[sess.ID] = sess
	return nil
}

// Get retrieves a session by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[id]
	if !exists {
		return model.Session{}, model.NewNotFoundError(
			fmt.Sprintf("session %q not found", id),
		)
	}
	return sess, nil
}

// Update persists an updated session with optimistic locking.
func (s *MemoryStore) Update(_ context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.sessions[sess.ID]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("session %q not found", sess.ID),
		)
	}

	if existing.Version != sess.Version {
		return model.NewConflictError(
			fmt.Sprintf("session %q version conflict (expected %d, got %d)", sess.ID, sess.Version, existing.Version),
		)
	}

	sess.Version++
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sess.ID] = sess
	return nil
}

// AppendEvent adds an event to the session's audit trail.
func (s *MemoryStore) AppendEvent(_ context.Context, event model.SessionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[event.SessionID] = append(s.events[event.SessionID], event)
	return nil
}

// GetEvents retrieves all events for a session ordered by timestamp.
func (s *MemoryStore) GetEvents(_ context.Context, sessionID string) ([]model.SessionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.sessions[sessionID]; !exists {
		return nil, model.NewNotFoundError(
			fmt.Sprintf("session %q not found", sessionID),
		)
	}

	events := s.events[sessionID]
	result := make([]model.SessionEvent, len(events))
	copy(result, events)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// Delete removes a session and its events.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("session %q not found", id),
		)
	}
	delete(s.sessions, id)
	delete(s.events, id)
	return nil
}

// HealthCheck reports the store as always healthy.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}
