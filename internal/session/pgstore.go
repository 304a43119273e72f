package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ngasani/shadeview/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5. The session body
// (selection, image, result, flags) is stored as a JSONB document; only the
// columns needed for lookup and locking are broken out.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL session store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// sessionBody is the JSONB portion of a stored session.
type sessionBody struct {
	ProductType  model.ProductType       `json:"product_type,omitempty"`
	CurtainStyle model.CurtainStyle      `json:"curtain_style,omitempty"`
	Mode         model.SimulationMode    `json:"mode,omitempty"`
	Selection    *model.ManualSelection  `json:"selection,omitempty"`
	Image        *model.UploadedImage    `json:"image,omitempty"`
	Result       *model.SimulationResult `json:"result,omitempty"`
	ResultView   model.ResultView        `json:"result_view,omitempty"`
	Loading      bool                    `json:"loading"`
	StageLabel   string                  `json:"stage_label,omitempty"`
	ErrorMessage string                  `json:"error_message,omitempty"`
}

func packBody(sess model.Session) ([]byte, error) {
	return json.Marshal(sessionBody{
		ProductType:  sess.ProductType,
		CurtainStyle: sess.CurtainStyle,
		Mode:         sess.Mode,
		Selection:    sess.Selection,
		Image:        sess.Image,
		Result:       sess.Result,
		ResultView:   sess.ResultView,
		Loading:      sess.Loading,
		StageLabel:   sess.StageLabel,
		ErrorMessage: sess.ErrorMessage,
	})
}

func unpackBody(data []byte, sess *model.Session) error {
	var body sessionBody
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	sess.ProductType = body.ProductType
	sess.CurtainStyle = body.CurtainStyle
	sess.Mode = body.Mode
	sess.Selection = body.Selection
	sess.Image = body.Image
	sess.Result = body.Result
	sess.ResultView = body.ResultView
	sess.Loading = body.Loading
	sess.StageLabel = body.StageLabel
	sess.ErrorMessage = body.ErrorMessage
	return nil
}

// Create inserts a new session.
func (s *PgStore) Create(ctx context.Context, sess model.Session) error {
	body, err := packBody(sess)
	if err != nil {
		return fmt.Errorf("marshal session body: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, step, body, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.Step, body, sess.Version, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (s *PgStore) Get(ctx context.Context, id string) (model.Session, error) {
	var sess model.Session
	var body []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, step, body, version, created_at, updated_at
		FROM sessions
		WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.Step, &body, &sess.Version, &sess.CreatedAt, &sess.UpdatedAt)
	if err == pgx.ErrNoRows {
		return model.Session{}, model.NewNotFoundError(
			fmt.Sprintf("session %q not found", id),
		)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("query session: %w", err)
	}

	if err := unpackBody(body, &sess); err != nil {
		return model.Session{}, fmt.Errorf("unmarshal session body: %w", err)
	}
	return sess, nil
}

// Update persists an updated session with optimistic locking.
func (s *PgStore) Update(ctx context.Context, sess model.Session) error {
	body, err := packBody(sess)
	if err != nil {
		return fmt.Errorf("marshal session body: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET
			step = $1,
			body = $2,
			version = $3,
			updated_at = $4
		WHERE id = $5 AND version = $6`,
		sess.Step, body, sess.Version+1, time.Now().UTC(),
		sess.ID, sess.Version,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("session %q version conflict (expected %d)", sess.ID, sess.Version),
		)
	}
	return nil
}

// AppendEvent adds an event to the session audit trail.
func (s *PgStore) AppendEvent(ctx context.Context, event model.SessionEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_events (id, session_id, step, event, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.SessionID, event.Step, event.Event, event.Detail, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

// GetEvents retrieves all events for a session.
func (s *PgStore) GetEvents(ctx context.Context, sessionID string) ([]model.SessionEvent, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, step, event, detail, created_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	var events []model.SessionEvent
	for rows.Next() {
		var evt model.SessionEvent
		if err := rows.Scan(
			&evt.ID, &evt.SessionID, &evt.Step, &evt.Event, &evt.Detail, &evt.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Delete removes a session and its events.
func (s *PgStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM session_events WHERE session_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session events: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(
			fmt.Sprintf("session %q not found", id),
		)
	}
	return nil
}

// HealthCheck verifies connectivity to the database.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
