package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngasani/shadeview/internal/catalog"
	"github.com/ngasani/shadeview/internal/selection"
	"github.com/ngasani/shadeview/model"
)

func testCatalogStore() *catalog.Store {
	return catalog.NewStore(&model.Catalog{
		Buckets: map[model.ProductType][]model.FabricCompany{
			model.ProductTypeCurtains: {
				{
					ID:   "co-1",
					Name: "Drapery Dreams",
					Products: []model.Product{
						{
							ID:   "p-1",
							Name: "Velvet Luxe",
							Colors: []model.Color{
								{ID: "c-1", Name: "Ruby Red", Hex: "#9B111E"},
								{ID: "c-2", Name: "Emerald Green", Hex: "#50C878"},
							},
						},
					},
				},
			},
			model.ProductTypeRollerBlinds: {
				{
					ID:   "co-2",
					Name: "Shade Masters",
					Products: []model.Product{
						{
							ID:     "p-2",
							Name:   "Blockout Prime",
							Colors: []model.Color{{ID: "c-3", Name: "Charcoal", Hex: "#36454F"}},
						},
					},
				},
			},
		},
	})
}

func newTestEngine() *Engine {
	return NewEngine(NewMemoryStore(), testCatalogStore())
}

func testImage() model.UploadedImage {
	return model.UploadedImage{Data: []byte("photo"), MIMEType: "image/jpeg", Filename: "window.jpg"}
}

// advanceToConfigure walks a fresh session to the configuration step.
func advanceToConfigure(t *testing.T, e *Engine) model.Session {
	t.Helper()
	ctx := context.Background()

	sess, err := e.Start(ctx)
	require.NoError(t, err)
	_, err = e.AcquireImage(ctx, sess.ID, testImage())
	require.NoError(t, err)
	sess, err = e.ChooseProductType(ctx, sess.ID, model.ProductTypeCurtains, "")
	require.NoError(t, err)
	return sess
}

func TestStartCreatesUploadSession(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	sess, err := e.Start(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, model.StepUpload, sess.Step)
	assert.Equal(t, 1, sess.Version)

	desc, err := e.Describe(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, desc.HasImage)
	require.NotEmpty(t, desc.History)
	assert.Equal(t, "step_entered", desc.History[0].Event)
}

func TestAcquireImageAdvancesStep(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	sess, err := e.Start(ctx)
	require.NoError(t, err)

	sess, err = e.AcquireImage(ctx, sess.ID, testImage())
	require.NoError(t, err)
	assert.Equal(t, model.StepSelectProduct, sess.Step)
	require.NotNil(t, sess.Image)
	assert.Equal(t, "image/jpeg", sess.Image.MIMEType)

	// A second image at select_product is rejected.
	_, err = e.AcquireImage(ctx, sess.ID, testImage())
	require.Error(t, err)
	assert.Equal(t, model.ErrInvalidTransition, err.(*model.ErrorEnvelope).Code)
}

func TestChooseProductTypeInitializesSelection(t *testing.T) {
	e := newTestEngine()
	sess := advanceToConfigure(t, e)

	assert.Equal(t, model.StepConfigure, sess.Step)
	assert.Equal(t, model.ProductTypeCurtains, sess.ProductType)
	assert.Equal(t, model.CurtainStyleSWave, sess.CurtainStyle)
	require.NotNil(t, sess.Selection)
	assert.Equal(t, "co-1", sess.Selection.CompanyID)
	assert.Equal(t, "p-1", sess.Selection.ProductID)
	assert.Equal(t, "c-1", sess.Selection.ColorID)
}

func TestChooseDifferentProductTypeResetsSelection(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	sess := advanceToConfigure(t, e)

	_, err := e.ApplySelection(ctx, sess.ID, selection.ChooseColor{ColorID: "c-2"})
	require.NoError(t, err)

	// Back to select_product, then switch the type.
	_, err = e.Back(ctx, sess.ID)
	require.NoError(t, err)
	sess, err = e.ChooseProductType(ctx, sess.ID, model.ProductTypeRollerBlinds, "")
	require.NoError(t, err)
	require.NotNil(t, sess.Selection)
	assert.Equal(t, "co-2", sess.Selection.CompanyID)
	assert.Empty(t, sess.CurtainStyle)

	// Re-entering the same type keeps the selection as it is.
	_, err = e.Back(ctx, sess.ID)
	require.NoError(t, err)
	sess, err = e.ChooseProductType(ctx, sess.ID, model.ProductTypeRollerBlinds, "")
	require.NoError(t, err)
	assert.Equal(t, "co-2", sess.Selection.CompanyID)
}

func TestBackNeverClearsData(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	sess := advanceToConfigure(t, e)

	sess, err := e.Back(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepSelectProduct, sess.Step)
	assert.NotNil(t, sess.Image)
	assert.NotNil(t, sess.Selection)
	assert.Equal(t, model.ProductTypeCurtains, sess.ProductType)

	sess, err = e.Back(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepUpload, sess.Step)
	assert.NotNil(t, sess.Image)
}

func TestBackAtUploadResetsSession(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	sess := advanceToConfigure(t, e)

	for i := 0; i < 2; i++ {
		var err error
		sess, err = e.Back(ctx, sess.ID)
		require.NoError(t, err)
	}
	require.Equal(t, model.StepUpload, sess.Step)
	require.NotNil(t, sess.Image)

	// One more back leaves the flow: everything is cleared.
	sess, err := e.Back(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepUpload, sess.Step)
	assert.Nil(t, sess.Image)
	assert.Nil(t, sess.Selection)
	assert.Empty(t, sess.ProductType)
}

func TestResetClearsAllButCatalog(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	sess := advanceToConfigure(t, e)

	_, err := e.BeginRun(ctx, sess.ID, model.ModeManual)
	require.NoError(t, err)
	sess, err = e.CompleteRun(ctx, sess.ID, model.SimulationResult{
		DayImage:   []byte("day"),
		NightImage: []byte("night"),
	})
	require.NoError(t, err)
	require.NotNil(t, sess.Result)

	sess, err = e.Reset(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepUpload, sess.Step)
	assert.Nil(t, sess.Image)
	assert.Nil(t, sess.Result)
	assert.Nil(t, sess.Selection)
	assert.Empty(t, sess.Mode)
	assert.Empty(t, sess.ErrorMessage)

	// The catalog is shared state and unaffected by a session reset.
	assert.Len(t, e.catalog.Companies(model.ProductTypeCurtains), 1)
}

func TestLoadingGatesMutations(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	sess := advanceToConfigure(t, e)

	_, err := e.BeginRun(ctx, sess.ID, model.ModeManual)
	require.NoError(t, err)

	assertLocked := func(err error) {
		t.Helper()
		require.Error(t, err)
		assert.Equal(t, model.ErrSessionLocked, err.(*model.ErrorEnvelope).Code)
	}

	_, err = e.Back(ctx, sess.ID)
	assertLocked(err)
	_, err = e.Reset(ctx, sess.ID)
	assertLocked(err)
	_, err = e.BeginRun(ctx, sess.ID, model.ModeManual)
	assertLocked(err)
	_, err = e.ApplySelection(ctx, sess.ID, selection.ChooseColor{ColorID: "c-2"})
	assertLocked(err)
	_, err = e.SetMode(ctx, sess.ID, model.ModeManual)
	assertLocked(err)
	_, err = e.OpenAdmin(ctx, sess.ID)
	assertLocked(err)
	_, err = e.AcquireImage(ctx, sess.ID, testImage())
	assertLocked(err)
}

func TestRunLifecycle(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	sess := advanceToConfigure(t, e)

	sess, err := e.BeginRun(ctx, sess.ID, model.ModeAutomatic)
	require.NoError(t, err)
	assert.Equal(t, model.StepSimulate, sess.Step)
	assert.True(t, sess.Loading)
	assert.Equal(t, model.ModeAutomatic, sess.Mode)

	require.NoError(t, e.SetStage(ctx, sess.ID, "Simulating daytime view..."))
	sess, err = e.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Simulating daytime view...", sess.StageLabel)

	sess, err = e.CompleteRun(ctx, sess.ID, model.SimulationResult{
		DayImage:           []byte("day"),
		NightImage:         []byte("night"),
		RecommendationText: "sheer curtains",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StepResult, sess.Step)
	assert.False(t, sess.Loading)
	assert.Empty(t, sess.StageLabel)
	assert.Equal(t, model.ResultViewDay, sess.ResultView)
	require.NotNil(t, sess.Result)
	assert.Equal(t, "sheer curtains", sess.Result.RecommendationText)
}

func TestFailRunRoutesBackToConfigure(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	sess := advanceToConfigure(t, e)

	// First run succeeds.
	_, err := e.BeginRun(ctx, sess.ID, model.ModeManual)
	require.NoError(t, err)
	_, err = e.CompleteRun(ctx, sess.ID, model.SimulationResult{DayImage: []byte("day"), NightImage: []byte("night")})
	require.NoError(t, err)

	// Back to configure and fail the second run.
	_, err = e.Back(ctx, sess.ID)
	require.NoError(t, err)
	_, err = e.BeginRun(ctx, sess.ID, model.ModeManual)
	require.NoError(t, err)
	sess, err = e.FailRun(ctx, sess.ID, "model overloaded")
	require.NoError(t, err)

	assert.Equal(t, model.StepConfigure, sess.Step)
	assert.False(t, sess.Loading)
	assert.Equal(t, "model overloaded", sess.ErrorMessage)
	// The earlier result survives a failed rerun.
	require.NotNil(t, sess.Result)
	assert.Equal(t, []byte("day"), sess.Result.DayImage)
}

func TestStageAndCompletionRequireRunInFlight(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	sess := advanceToConfigure(t, e)

	err := e.SetStage(ctx, sess.ID, "label")
	require.Error(t, err)
	assert.Equal(t, model.ErrInvalidTransition, err.(*model.ErrorEnvelope).Code)

	_, err = e.CompleteRun(ctx, sess.ID, model.SimulationResult{})
	require.Error(t, err)
	_, err = e.FailRun(ctx, sess.ID, "nope")
	require.Error(t, err)
}

func TestBeginRunRequiresConfigureStep(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	sess, err := e.Start(ctx)
	require.NoError(t, err)

	_, err = e.BeginRun(ctx, sess.ID, model.ModeManual)
	require.Error(t, err)
	assert.Equal(t, model.ErrInvalidTransition, err.(*model.ErrorEnvelope).Code)
}

func TestOpenAdminAndBack(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	sess := advanceToConfigure(t, e)

	sess, err := e.OpenAdmin(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepAdmin, sess.Step)
	// Admin does not disturb the flow data.
	assert.NotNil(t, sess.Image)

	sess, err = e.Back(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepUpload, sess.Step)
	assert.NotNil(t, sess.Image)
}

func TestSetResultViewOnlyAtResult(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	sess := advanceToConfigure(t, e)

	_, err := e.SetResultView(ctx, sess.ID, model.ResultViewNight)
	require.Error(t, err)

	_, err = e.BeginRun(ctx, sess.ID, model.ModeManual)
	require.NoError(t, err)
	_, err = e.CompleteRun(ctx, sess.ID, model.SimulationResult{DayImage: []byte("d"), NightImage: []byte("n")})
	require.NoError(t, err)

	sess, err = e.SetResultView(ctx, sess.ID, model.ResultViewNight)
	require.NoError(t, err)
	assert.Equal(t, model.ResultViewNight, sess.ResultView)
}

// TestSessionLocksEvictedWhenIdle verifies the per-session lock map does not
// accumulate an entry for every session ever touched.
func TestSessionLocksEvictedWhenIdle(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		sess, err := e.Start(ctx)
		require.NoError(t, err)
		_, err = e.AcquireImage(ctx, sess.ID, testImage())
		require.NoError(t, err)
		_, err = e.Back(ctx, sess.ID)
		require.NoError(t, err)
	}

	e.mu.Lock()
	held := len(e.locks)
	e.mu.Unlock()
	assert.Zero(t, held)
}
