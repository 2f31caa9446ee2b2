package model

// Step identifies a unit of pipeline work with its own status lifecycle.
type Step string

const (
	StepBeginAnalysis            Step = "begin_analysis"
	StepAnalyzeProject           Step = "analyze_project"
	StepAnalyzeActors            Step = "analyze_actors"
	StepAnalyzeDeployment        Step = "analyze_deployment"
	StepImplementDeploymentScript Step = "implement_deployment_script"
	StepVerifyDeploymentScript   Step = "verify_deployment_script"
	StepDebugDeploymentScript    Step = "debug_deployment_script"
	StepScaffold                 Step = "scaffold"
	StepAnalyzeAllActions        Step = "analyze_all_actions"
	StepAnalyzeAllSnapshots      Step = "analyze_all_snapshots"
	StepImplementSnapshots       Step = "implement_snapshots"
	StepImplementAllActions      Step = "implement_all_actions"

	// Fan-out children and their fan-in checks. These never appear as the
	// submission's own step; they carry entity-level work.
	StepAnalyzeAction                   Step = "analyze_action"
	StepAnalyzeSnapshot                 Step = "analyze_snapshot"
	StepImplementAction                 Step = "implement_action"
	StepCheckContractActionsAnalyzed    Step = "check_contract_actions_analyzed"
	StepCheckContractActionsImplemented Step = "check_contract_actions_implemented"
	StepCheckContractSnapshotsAnalyzed  Step = "check_contract_snapshots_analyzed"

	// Simulation lifecycle tasks. Like the fan-out children, they carry
	// queue work and never become the submission's own step.
	StepRunSimulation Step = "run_simulation"
	StepSplitBatch    Step = "split_simulation_batch"
)

// Valid reports whether s names a known pipeline step.
func (s Step) Valid() bool {
	switch s {
	case StepBeginAnalysis, StepAnalyzeProject, StepAnalyzeActors,
		StepAnalyzeDeployment, StepImplementDeploymentScript,
		StepVerifyDeploymentScript, StepDebugDeploymentScript, StepScaffold,
		StepAnalyzeAllActions, StepAnalyzeAllSnapshots, StepImplementSnapshots,
		StepImplementAllActions, StepAnalyzeAction, StepAnalyzeSnapshot,
		StepImplementAction, StepCheckContractActionsAnalyzed,
		StepCheckContractActionsImplemented, StepCheckContractSnapshotsAnalyzed,
		StepRunSimulation, StepSplitBatch:
		return true
	}
	return false
}

// Status represents the lifecycle state of a step or per-entity record.
type Status string

const (
	StatusCreated    Status = "created"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// RequestContext distinguishes the autonomous pipeline from interactive
// re-runs. Background requests enqueue the next step on completion;
// anything else returns the step result synchronously to the caller.
type RequestContext string

const ContextBackground RequestContext = "bg"

// Background reports whether the context should auto-advance the pipeline.
func (c RequestContext) Background() bool {
	return c == ContextBackground
}
