package session

import "github.com/ngasani/shadeview/model"

// backTarget maps each step to the step "back" returns to. Simulate is
// absent: it is a transient loading state and back is rejected while a run
// is in flight. Upload is absent too; back at upload leaves the flow
// entirely, which resets the session to its initial state.
var backTarget = map[model.Step]model.Step{
	model.StepSelectProduct: model.StepUpload,
	model.StepConfigure:     model.StepSelectProduct,
	model.StepResult:        model.StepConfigure,
	model.StepAdmin:         model.StepUpload,
}

// Audit event names.
const (
	eventStepEntered  = "step_entered"
	eventImageStored  = "image_stored"
	eventRunStarted   = "run_started"
	eventRunCompleted = "run_completed"
	eventRunFailed    = "run_failed"
	eventSessionReset = "session_reset"
)
