package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ngasani/shadeview/internal/catalog"
	"github.com/ngasani/shadeview/internal/selection"
	"github.com/ngasani/shadeview/model"
)

// Engine is the navigation state machine. Every session mutation funnels
// through it: handlers and the simulation orchestrator never write to the
// store directly. A per-session lock serializes mutations so the session
// keeps the single-writer property it was designed around, even though the
// HTTP server is concurrent.
type Engine struct {
	store   Store
	catalog *catalog.Store

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is a reference-counted per-session mutex. The count tracks
// in-flight operations so idle entries can be evicted from the lock map.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewEngine creates a session engine backed by the given store and catalog.
func NewEngine(store Store, cat *catalog.Store) *Engine {
	return &Engine{
		store:   store,
		catalog: cat,
		locks:   make(map[string]*sessionLock),
	}
}

// Start creates a new session at the upload step.
func (e *Engine) Start(ctx context.Context) (model.Session, error) {
	now := time.Now().UTC()
	sess := model.Session{
		ID:        uuid.New().String(),
		Step:      model.StepUpload,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Create(ctx, sess); err != nil {
		return model.Session{}, err
	}
	if err := e.appendEvent(ctx, sess.ID, model.StepUpload, eventStepEntered, ""); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// Load returns the raw session aggregate.
func (e *Engine) Load(ctx context.Context, id string) (model.Session, error) {
	return e.store.Get(ctx, id)
}

// Describe returns the transport-facing session descriptor including the
// audit history.
func (e *Engine) Describe(ctx context.Context, id string) (model.SessionDescriptor, error) {
	sess, err := e.store.Get(ctx, id)
	if err != nil {
		return model.SessionDescriptor{}, err
	}

	desc := model.SessionDescriptor{
		ID:           sess.ID,
		Step:         sess.Step,
		ProductType:  sess.ProductType,
		CurtainStyle: sess.CurtainStyle,
		Mode:         sess.Mode,
		Selection:    sess.Selection,
		HasImage:     sess.Image != nil,
		HasResult:    sess.Result != nil,
		ResultView:   sess.ResultView,
		Loading:      sess.Loading,
		StageLabel:   sess.StageLabel,
		ErrorMessage: sess.ErrorMessage,
	}
	if sess.Result != nil {
		desc.HasDayImage = len(sess.Result.DayImage) > 0
		desc.HasNightImage = len(sess.Result.NightImage) > 0
		desc.Recommendation = sess.Result.RecommendationText
	}

	events, err := e.store.GetEvents(ctx, id)
	if err != nil {
		return model.SessionDescriptor{}, err
	}
	history := make([]model.HistoryEntry, 0, len(events))
	for _, evt := range events {
		history = append(history, model.HistoryEntry{
			Step:      evt.Step,
			Event:     evt.Event,
			Detail:    evt.Detail,
			Timestamp: evt.Timestamp.Format(time.RFC3339),
		})
	}
	desc.History = history
	return desc, nil
}

// AcquireImage stores the uploaded window photo and advances to product
// selection.
func (e *Engine) AcquireImage(ctx context.Context, id string, img model.UploadedImage) (model.Session, error) {
	return e.mutate(ctx, id, func(sess *model.Session) error {
		if sess.Loading {
			return model.NewSessionLockedError()
		}
		if sess.Step != model.StepUpload {
			return model.NewInvalidTransitionError(
				fmt.Sprintf("cannot accept an image at step %q", sess.Step),
			)
		}
		sess.Image = &img
		sess.ErrorMessage = ""
		sess.Step = model.StepSelectProduct
		e.noteEvent(ctx, sess.ID, model.StepUpload, eventImageStored, img.Filename)
		e.noteEvent(ctx, sess.ID, model.StepSelectProduct, eventStepEntered, "")
		return nil
	})
}

// ChooseProductType records the covering category and advances to
// configuration. Choosing a different product type than before re-initializes
// the manual selection; re-entering with the same type keeps the prior
// selection so back/forward navigation resumes where the user left off.
func (e *Engine) ChooseProductType(ctx context.Context, id string, t model.ProductType, style model.CurtainStyle) (model.Session, error) {
	if !t.Valid() {
		return model.Session{}, model.NewBadRequestError(
			fmt.Sprintf("unknown product type %q", t),
		)
	}
	return e.mutate(ctx, id, func(sess *model.Session) error {
		if sess.Loading {
			return model.NewSessionLockedError()
		}
		if sess.Step != model.StepSelectProduct {
			return model.NewInvalidTransitionError(
				fmt.Sprintf("cannot choose a product type at step %q", sess.Step),
			)
		}

		if sess.ProductType != t || sess.Selection == nil {
			sess.Selection = selection.Init(e.catalog.Snapshot(), t)
		}
		sess.ProductType = t

		if t == model.ProductTypeCurtains {
			if style.Valid() {
				sess.CurtainStyle = style
			} else if sess.CurtainStyle == "" {
				sess.CurtainStyle = model.CurtainStyleSWave
			}
		} else {
			sess.CurtainStyle = ""
		}

		sess.Step = model.StepConfigure
		e.noteEvent(ctx, sess.ID, model.StepConfigure, eventStepEntered, string(t))
		return nil
	})
}

// ApplySelection executes one selection intent against the session's manual
// selection, cascading dependent resets.
func (e *Engine) ApplySelection(ctx context.Context, id string, intent selection.Intent) (model.Session, error) {
	return e.mutate(ctx, id, func(sess *model.Session) error {
		if sess.Loading {
			return model.NewSessionLockedError()
		}
		if sess.Step != model.StepConfigure {
			return model.NewInvalidTransitionError(
				fmt.Sprintf("cannot change the selection at step %q", sess.Step),
			)
		}
		if sess.Selection == nil {
			return model.NewValidationError([]model.FieldError{
				{Field: "selection", Code: "missing", Message: "the catalog has no entries for this product type"},
			})
		}

		next, err := selection.Apply(e.catalog.Snapshot(), sess.ProductType, *sess.Selection, intent)
		if err != nil {
			return model.NewValidationError([]model.FieldError{
				{Field: "selection", Code: "unresolved", Message: err.Error()},
			})
		}
		sess.Selection = &next
		return nil
	})
}

// SetMode records the simulation mode chosen on the configuration screen.
func (e *Engine) SetMode(ctx context.Context, id string, mode model.SimulationMode) (model.Session, error) {
	if mode != model.ModeManual && mode != model.ModeAutomatic {
		return model.Session{}, model.NewBadRequestError(
			fmt.Sprintf("unknown simulation mode %q", mode),
		)
	}
	return e.mutate(ctx, id, func(sess *model.Session) error {
		if sess.Loading {
			return model.NewSessionLockedError()
		}
		if sess.Step != model.StepConfigure {
			return model.NewInvalidTransitionError(
				fmt.Sprintf("cannot change the mode at step %q", sess.Step),
			)
		}
		sess.Mode = mode
		return nil
	})
}

// SetResultView toggles between the day and night composite on the result
// screen.
func (e *Engine) SetResultView(ctx context.Context, id string, view model.ResultView) (model.Session, error) {
	if view != model.ResultViewDay && view != model.ResultViewNight {
		return model.Session{}, model.NewBadRequestError(
			fmt.Sprintf("unknown result view %q", view),
		)
	}
	return e.mutate(ctx, id, func(sess *model.Session) error {
		if sess.Step != model.StepResult {
			return model.NewInvalidTransitionError(
				fmt.Sprintf("cannot switch the result view at step %q", sess.Step),
			)
		}
		sess.ResultView = view
		return nil
	})
}

// Back moves one step backwards in the forward chain without clearing any
// data, so moving forward again resumes the prior state. Backing out of the
// upload step leaves the flow and resets the session. Rejected while a run
// is loading.
func (e *Engine) Back(ctx context.Context, id string) (model.Session, error) {
	return e.mutate(ctx, id, func(sess *model.Session) error {
		if sess.Loading {
			return model.NewSessionLockedError()
		}
		if sess.Step == model.StepUpload {
			clearSessionFields(sess)
			e.noteEvent(ctx, sess.ID, model.StepUpload, eventSessionReset, "back past upload")
			return nil
		}
		target, ok := backTarget[sess.Step]
		if !ok {
			return model.NewInvalidTransitionError(
				fmt.Sprintf("cannot go back from step %q", sess.Step),
			)
		}
		sess.Step = target
		e.noteEvent(ctx, sess.ID, target, eventStepEntered, "back")
		return nil
	})
}

// Reset clears every session field except the catalog reference and returns
// to the upload step. Rejected while a run is loading.
func (e *Engine) Reset(ctx context.Context, id string) (model.Session, error) {
	return e.mutate(ctx, id, func(sess *model.Session) error {
		if sess.Loading {
			return model.NewSessionLockedError()
		}
		clearSessionFields(sess)
		e.noteEvent(ctx, sess.ID, model.StepUpload, eventSessionReset, "")
		e.noteEvent(ctx, sess.ID, model.StepUpload, eventStepEntered, "")
		return nil
	})
}

// OpenAdmin enters the catalog administration screen. Reachable from any
// step while no run is loading; back from admin always returns to upload.
func (e *Engine) OpenAdmin(ctx context.Context, id string) (model.Session, error) {
	return e.mutate(ctx, id, func(sess *model.Session) error {
		if sess.Loading {
			return model.NewSessionLockedError()
		}
		sess.Step = model.StepAdmin
		e.noteEvent(ctx, sess.ID, model.StepAdmin, eventStepEntered, "")
		return nil
	})
}

// BeginRun transitions configure → simulate and raises the loading flag that
// gates every other mutating affordance until the run finishes.
func (e *Engine) BeginRun(ctx context.Context, id string, mode model.SimulationMode) (model.Session, error) {
	return e.mutate(ctx, id, func(sess *model.Session) error {
		if sess.Loading {
			return model.NewSessionLockedError()
		}
		if sess.Step != model.StepConfigure {
			return model.NewInvalidTransitionError(
				fmt.Sprintf("cannot start a run at step %q", sess.Step),
			)
		}
		sess.Mode = mode
		sess.Loading = true
		sess.StageLabel = ""
		sess.ErrorMessage = ""
		sess.Step = model.StepSimulate
		e.noteEvent(ctx, sess.ID, model.StepSimulate, eventRunStarted, string(mode))
		e.noteEvent(ctx, sess.ID, model.StepSimulate, eventStepEntered, "")
		return nil
	})
}

// SetStage updates the loading-stage label shown while a run is in flight.
// The label is persisted mid-run so a concurrent descriptor read observes
// the stage the run is currently in.
func (e *Engine) SetStage(ctx context.Context, id, label string) error {
	_, err := e.mutate(ctx, id, func(sess *model.Session) error {
		if !sess.Loading {
			return model.NewInvalidTransitionError("no run in flight")
		}
		sess.StageLabel = label
		return nil
	})
	return err
}

// CompleteRun stores the simulation result, clears the loading state, and
// advances to the result step with the day view selected.
func (e *Engine) CompleteRun(ctx context.Context, id string, result model.SimulationResult) (model.Session, error) {
	return e.mutate(ctx, id, func(sess *model.Session) error {
		if !sess.Loading {
			return model.NewInvalidTransitionError("no run in flight")
		}
		sess.Result = &result
		sess.ResultView = model.ResultViewDay
		sess.Loading = false
		sess.StageLabel = ""
		sess.ErrorMessage = ""
		sess.Step = model.StepResult
		e.noteEvent(ctx, sess.ID, model.StepResult, eventRunCompleted, "")
		e.noteEvent(ctx, sess.ID, model.StepResult, eventStepEntered, "")
		return nil
	})
}

// FailRun records the failure message, clears the loading state, and routes
// back to the configuration step so the user can retry. Any result from a
// previous successful run is left untouched.
func (e *Engine) FailRun(ctx context.Context, id, message string) (model.Session, error) {
	return e.mutate(ctx, id, func(sess *model.Session) error {
		if !sess.Loading {
			return model.NewInvalidTransitionError("no run in flight")
		}
		sess.ErrorMessage = message
		sess.Loading = false
		sess.StageLabel = ""
		sess.Step = model.StepConfigure
		e.noteEvent(ctx, sess.ID, model.StepConfigure, eventRunFailed, message)
		e.noteEvent(ctx, sess.ID, model.StepConfigure, eventStepEntered, "")
		return nil
	})
}

// clearSessionFields returns a session to its initial state, keeping only
// identity and bookkeeping columns.
func clearSessionFields(sess *model.Session) {
	sess.Step = model.StepUpload
	sess.ProductType = ""
	sess.CurtainStyle = ""
	sess.Mode = ""
	sess.Selection = nil
	sess.Image = nil
	sess.Result = nil
	sess.ResultView = ""
	sess.Loading = false
	sess.StageLabel = ""
	sess.ErrorMessage = ""
}

// mutate loads a session, applies fn under the per-session lock, and
// persists the change. Errors from fn abort without writing.
func (e *Engine) mutate(ctx context.Context, id string, fn func(*model.Session) error) (model.Session, error) {
	unlock := e.lock(id)
	defer unlock()

	sess, err := e.store.Get(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	if err := fn(&sess); err != nil {
		return model.Session{}, err
	}
	if err := e.store.Update(ctx, sess); err != nil {
		return model.Session{}, err
	}
	// Reflect the version bump applied by the store.
	sess.Version++
	return sess, nil
}

// lock acquires the per-session mutex, creating it on first use. The entry
// is evicted once the last holder releases it, so the map stays bounded by
// the number of in-flight operations rather than the number of sessions ever
// seen.
func (e *Engine) lock(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sessionLock{}
		e.locks[id] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}

// noteEvent appends an audit event, ignoring append failures: the audit
// trail is advisory and must not block a transition.
func (e *Engine) noteEvent(ctx context.Context, sessionID string, step model.Step, event, detail string) {
	_ = e.appendEvent(ctx, sessionID, step, event, detail)
}

func (e *Engine) appendEvent(ctx context.Context, sessionID string, step model.Step, event, detail string) error {
	return e.store.AppendEvent(ctx, model.SessionEvent{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Step:      step,
		Event:     event,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}
