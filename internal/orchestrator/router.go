package orchestrator

import "github.com/svylabs/ilumina/internal/model"

// StepNone marks the terminal state: the router has nothing left to
// schedule once implement_all_actions succeeds.
const StepNone model.Step = ""

// successors is the linear pipeline ordering. The verify⇄debug loop is the
// only edge not in this table; NextStep handles it from the error status.
var successors = map[model.Step]model.Step{
	model.StepBeginAnalysis:             model.StepAnalyzeProject,
	model.StepAnalyzeProject:            model.StepAnalyzeActors,
	model.StepAnalyzeActors:             model.StepAnalyzeDeployment,
	model.StepAnalyzeDeployment:         model.StepImplementDeploymentScript,
	model.StepImplementDeploymentScript: model.StepVerifyDeploymentScript,
	model.StepVerifyDeploymentScript:    model.StepScaffold,
	model.StepDebugDeploymentScript:     model.StepVerifyDeploymentScript,
	model.StepScaffold:                  model.StepAnalyzeAllActions,
	model.StepAnalyzeAllActions:         model.StepAnalyzeAllSnapshots,
	model.StepAnalyzeAllSnapshots:       model.StepImplementSnapshots,
	model.StepImplementSnapshots:        model.StepImplementAllActions,
	model.StepImplementAllActions:       StepNone,
}

// NextStep computes the next step to run for a submission at (step,
// status). A valid override wins unconditionally; an unknown or absent
// step restarts analysis from analyze_project. Steps advance only on
// success. The single automatic error-recovery edge sends a failed
// verify_deployment_script to debug_deployment_script; every other error
// re-runs the step it failed on, which is what an external re-trigger
// re-POSTs.
func NextStep(step model.Step, status model.Status, override model.Step) model.Step {
	if override != "" && override.Valid() {
		return override
	}

	next, known := successors[step]
	if !known {
		return model.StepAnalyzeProject
	}

	switch status {
	case model.StatusSuccess:
		return next
	case model.StatusError:
		if step == model.StepVerifyDeploymentScript {
			return model.StepDebugDeploymentScript
		}
		return step
	default:
		return step
	}
}
