// Package simulate sequences simulation runs: the ordered remote calls that
// turn an uploaded window photo into day and night composites, and the
// routing of their outcomes back into the session state machine.
package simulate

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ngasani/shadeview/internal/catalog"
	"github.com/ngasani/shadeview/internal/observability"
	"github.com/ngasani/shadeview/internal/renderer"
	"github.com/ngasani/shadeview/internal/selection"
	"github.com/ngasani/shadeview/internal/session"
	"github.com/ngasani/shadeview/model"
)

// Stage labels shown while a run is in flight. One label per outstanding
// remote call; the calls are issued strictly in this order.
const (
	StageRecommendation = "Generating AI recommendation..."
	StageDaytime        = "Simulating daytime view..."
	StageNighttime      = "Simulating nighttime view..."
)

// Automatic runs render with fixed placeholder labels instead of a catalog
// selection; the recommendation text describes the suggested styling.
const (
	autoProductLabel = "a designer-recommended fabric"
	autoColorLabel   = "a neutral tone that complements the room"
)

// Orchestrator drives simulation runs. Calls are strictly sequential: the
// night composite is only requested after the day composite resolves. The
// ordering exists for the loading-stage labels the user watches, not
// because the rendering service requires it.
type Orchestrator struct {
	engine   *session.Engine
	catalog  *catalog.Store
	renderer renderer.Renderer
	idem     IdempotencyStore
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewOrchestrator creates a simulation orchestrator. The idempotency store
// and metrics may be nil, disabling deduplication and run instrumentation.
func NewOrchestrator(engine *session.Engine, cat *catalog.Store, r renderer.Renderer, idem IdempotencyStore, metrics *observability.Metrics, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		engine:   engine,
		catalog:  cat,
		renderer: r,
		idem:     idem,
		metrics:  metrics,
		logger:   logger,
	}
}

// RunManual executes a manual simulation run for the session.
//
// Preconditions: an uploaded image, a product type, and a selection that
// resolves against the current catalog. A wholly absent image, type, or
// selection makes the run a silent no-op rather than an error: the session
// is returned unchanged. A selection that is present but no longer resolves
// is a validation failure shown inline on the configuration screen.
func (o *Orchestrator) RunManual(ctx context.Context, sessionID, idemKey string) (model.Session, error) {
	sess, err := o.engine.Load(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}

	done, cached, err := o.checkIdempotent(ctx, sessionID, model.ModeManual, idemKey)
	if err != nil {
		return model.Session{}, err
	}
	if done {
		return cached, nil
	}

	if sess.Image == nil || sess.ProductType == "" || sess.Selection == nil {
		o.logger.Debug("manual run not started, preconditions missing",
			zap.String("session_id", sessionID),
			zap.Bool("has_image", sess.Image != nil),
			zap.String("product_type", string(sess.ProductType)),
		)
		return sess, nil
	}

	resolved, err := selection.Resolve(o.catalog.Snapshot(), sess.ProductType, sess.Selection)
	if err != nil {
		return model.Session{}, err
	}

	sess, err = o.engine.BeginRun(ctx, sessionID, model.ModeManual)
	if err != nil {
		return model.Session{}, err
	}
	started := time.Now()

	o.logger.Info("manual run started",
		zap.String("session_id", sessionID),
		zap.String("product_type", string(sess.ProductType)),
		zap.String("company", resolved.Company.Name),
		zap.String("product", resolved.Product.Name),
		zap.String("color", resolved.Color.Name),
	)

	base := renderer.CompositeRequest{
		Image:        sess.Image.Data,
		MIMEType:     sess.Image.MIMEType,
		ProductType:  sess.ProductType,
		ProductLabel: fmt.Sprintf("%s %s", resolved.Company.Name, resolved.Product.Name),
		ColorLabel:   fmt.Sprintf("%s %s", resolved.Color.Name, resolved.Color.Hex),
		CurtainStyle: sess.CurtainStyle,
	}

	dayImg, nightImg, failErr := o.renderDayNight(ctx, sessionID, base)
	if failErr != nil {
		return o.fail(ctx, sessionID, model.ModeManual, idemKey, started, failErr)
	}

	return o.complete(ctx, sessionID, model.ModeManual, idemKey, started, model.SimulationResult{
		DayImage:   dayImg,
		NightImage: nightImg,
	})
}

// RunAuto executes an automatic simulation run: a textual recommendation
// followed by day and night composites rendered with the placeholder
// styling labels.
//
// Preconditions: an uploaded image and a product type. Like the manual run,
// a session missing them is returned unchanged.
func (o *Orchestrator) RunAuto(ctx context.Context, sessionID, idemKey string) (model.Session, error) {
	sess, err := o.engine.Load(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}

	done, cached, err := o.checkIdempotent(ctx, sessionID, model.ModeAutomatic, idemKey)
	if err != nil {
		return model.Session{}, err
	}
	if done {
		return cached, nil
	}

	if sess.Image == nil || sess.ProductType == "" {
		o.logger.Debug("automatic run not started, preconditions missing",
			zap.String("session_id", sessionID),
			zap.Bool("has_image", sess.Image != nil),
			zap.String("product_type", string(sess.ProductType)),
		)
		return sess, nil
	}

	sess, err = o.engine.BeginRun(ctx, sessionID, model.ModeAutomatic)
	if err != nil {
		return model.Session{}, err
	}
	started := time.Now()

	o.logger.Info("automatic run started",
		zap.String("session_id", sessionID),
		zap.String("product_type", string(sess.ProductType)),
	)

	if err := o.engine.SetStage(ctx, sessionID, StageRecommendation); err != nil {
		return model.Session{}, err
	}
	recommendation, err := o.renderer.Recommend(ctx, sess.Image.Data, sess.Image.MIMEType, sess.ProductType)
	if err != nil {
		return o.fail(ctx, sessionID, model.ModeAutomatic, idemKey, started, err)
	}

	base := renderer.CompositeRequest{
		Image:        sess.Image.Data,
		MIMEType:     sess.Image.MIMEType,
		ProductType:  sess.ProductType,
		ProductLabel: autoProductLabel,
		ColorLabel:   autoColorLabel,
		CurtainStyle: sess.CurtainStyle,
	}

	dayImg, nightImg, failErr := o.renderDayNight(ctx, sessionID, base)
	if failErr != nil {
		return o.fail(ctx, sessionID, model.ModeAutomatic, idemKey, started, failErr)
	}

	return o.complete(ctx, sessionID, model.ModeAutomatic, idemKey, started, model.SimulationResult{
		DayImage:           dayImg,
		NightImage:         nightImg,
		RecommendationText: recommendation,
	})
}

// renderDayNight issues the day composite, then the night composite. Any
// failure aborts the remaining calls.
func (o *Orchestrator) renderDayNight(ctx context.Context, sessionID string, base renderer.CompositeRequest) (day, night []byte, err error) {
	if err := o.engine.SetStage(ctx, sessionID, StageDaytime); err != nil {
		return nil, nil, err
	}
	dayReq := base
	dayReq.Daytime = true
	day, err = o.renderer.Composite(ctx, dayReq)
	if err != nil {
		return nil, nil, err
	}

	if err := o.engine.SetStage(ctx, sessionID, StageNighttime); err != nil {
		return nil, nil, err
	}
	nightReq := base
	nightReq.Daytime = false
	night, err = o.renderer.Composite(ctx, nightReq)
	if err != nil {
		return nil, nil, err
	}

	return day, night, nil
}

// fail records the run failure on the session and routes back to configure.
func (o *Orchestrator) fail(ctx context.Context, sessionID string, mode model.SimulationMode, idemKey string, started time.Time, cause error) (model.Session, error) {
	o.logger.Warn("simulation run failed",
		zap.String("session_id", sessionID),
		zap.String("mode", string(mode)),
		zap.Error(cause),
	)
	if o.metrics != nil {
		o.metrics.RecordRun(string(mode), "failed", time.Since(started))
	}
	sess, err := o.engine.FailRun(ctx, sessionID, userMessage(cause))
	if err != nil {
		return model.Session{}, err
	}
	o.storeIdempotent(ctx, sessionID, mode, idemKey, sess)
	return sess, nil
}

// complete stores the result and advances to the result screen.
func (o *Orchestrator) complete(ctx context.Context, sessionID string, mode model.SimulationMode, idemKey string, started time.Time, result model.SimulationResult) (model.Session, error) {
	o.logger.Info("simulation run completed",
		zap.String("session_id", sessionID),
		zap.String("mode", string(mode)),
		zap.Int("day_bytes", len(result.DayImage)),
		zap.Int("night_bytes", len(result.NightImage)),
	)
	if o.metrics != nil {
		o.metrics.RecordRun(string(mode), "completed", time.Since(started))
	}
	sess, err := o.engine.CompleteRun(ctx, sessionID, result)
	if err != nil {
		return model.Session{}, err
	}
	o.storeIdempotent(ctx, sessionID, mode, idemKey, sess)
	return sess, nil
}

// userMessage extracts the message shown to the user from a run failure.
func userMessage(err error) string {
	if ee, ok := err.(*model.ErrorEnvelope); ok {
		return ee.Message
	}
	return err.Error()
}

// checkIdempotent returns the session recorded for a previously seen
// idempotency key, suppressing a duplicate run. Reusing a key with different
// run inputs is a conflict and is reported to the caller.
func (o *Orchestrator) checkIdempotent(ctx context.Context, sessionID string, mode model.SimulationMode, idemKey string) (bool, model.Session, error) {
	if o.idem == nil || idemKey == "" {
		return false, model.Session{}, nil
	}
	outcome, found, err := o.idem.Check(ctx, idemKey, runHash(sessionID, mode))
	if err != nil {
		return false, model.Session{}, err
	}
	if !found || outcome == nil {
		return false, model.Session{}, nil
	}
	sess, err := o.engine.Load(ctx, sessionID)
	if err != nil {
		return false, model.Session{}, err
	}
	if o.metrics != nil {
		o.metrics.RecordIdempotentReplay()
	}
	o.logger.Debug("duplicate simulate request suppressed",
		zap.String("session_id", sessionID),
		zap.String("idempotency_key", idemKey),
	)
	return true, sess, nil
}

func (o *Orchestrator) storeIdempotent(ctx context.Context, sessionID string, mode model.SimulationMode, idemKey string, sess model.Session) {
	if o.idem == nil || idemKey == "" {
		return
	}
	outcome := RunOutcome{
		SessionID:    sess.ID,
		Step:         sess.Step,
		ErrorMessage: sess.ErrorMessage,
	}
	if err := o.idem.Store(ctx, idemKey, runHash(sessionID, mode), outcome); err != nil {
		o.logger.Warn("idempotency store write failed", zap.Error(err))
	}
}

// runHash fingerprints the run inputs for idempotency conflict detection.
func runHash(sessionID string, mode model.SimulationMode) string {
	sum := sha256.Sum256([]byte(sessionID + "|" + string(mode)))
	return fmt.Sprintf("%x", sum)
}
