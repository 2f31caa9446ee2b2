// Package orchestrator is the step state machine: routing between steps,
// the uniform step-executor contract, fan-out/fan-in for per-entity work,
// and bounded-admission simulation batches. Each Execute call handles one
// task delivery; all cross-step coordination goes through the store and
// the queue, never through in-process state.
package orchestrator

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/svylabs/ilumina/internal/analyzer"
	"github.com/svylabs/ilumina/internal/blob"
	"github.com/svylabs/ilumina/internal/gitrepo"
	"github.com/svylabs/ilumina/internal/model"
	"github.com/svylabs/ilumina/internal/queue"
	"github.com/svylabs/ilumina/internal/runner"
	"github.com/svylabs/ilumina/internal/scaffold"
	"github.com/svylabs/ilumina/internal/store"
)

// ErrPrerequisite marks a missing prerequisite artifact (e.g. a step asked
// to run before its inputs exist). The HTTP layer maps it to a 400.
var ErrPrerequisite = eris.New("orchestrator: missing prerequisite")

// baseWorkspace is the shared clone of the submitted repository. All
// steps, fan-out children included, read from it; generated files go to
// the scaffolded simulation workspace instead.
const baseWorkspace = "base"

// Config bounds simulation batches.
type Config struct {
	MaxSimultaneousRuns int
	SplitDelay          time.Duration
}

// Orchestrator executes pipeline steps against injected collaborators.
type Orchestrator struct {
	store    store.Store
	blobs    blob.Store
	tasks    queue.Queue
	llm      *analyzer.Analyzer
	scaffold *scaffold.Scaffolder
	git      *gitrepo.Git
	runner   *runner.Runner
	cfg      Config
}

// New wires an Orchestrator. All clients are injected; the orchestrator
// holds no ambient global state.
func New(st store.Store, blobs blob.Store, tasks queue.Queue, llm *analyzer.Analyzer, sc *scaffold.Scaffolder, git *gitrepo.Git, run *runner.Runner, cfg Config) *Orchestrator {
	if cfg.MaxSimultaneousRuns <= 0 {
		cfg.MaxSimultaneousRuns = 5
	}
	if cfg.SplitDelay <= 0 {
		cfg.SplitDelay = 30 * time.Second
	}
	return &Orchestrator{
		store:    st,
		blobs:    blobs,
		tasks:    tasks,
		llm:      llm,
		scaffold: sc,
		git:      git,
		runner:   run,
		cfg:      cfg,
	}
}

// Result is the outcome a step handler reports to its caller. Background
// tasks only log it; foreground callers receive it as the response body.
type Result struct {
	SubmissionID string       `json:"submission_id"`
	Step         model.Step   `json:"step"`
	Status       model.Status `json:"status"`
	Message      string       `json:"message,omitempty"`
	Output       any          `json:"output,omitempty"`
}

// outcome is the internal return of one step function.
type outcome struct {
	message string
	meta    *model.StepMetadata
	output  any
	// fanout keeps the parent step in_progress; the fan-in check owns the
	// success transition.
	fanout bool
}

// Execute runs one delivered task to completion. The returned error covers
// infrastructure failures only (unknown submission, store unavailable);
// step-level failures are recorded as status error and reported in the
// Result so the handler can answer the queue with a 200.
func (o *Orchestrator) Execute(ctx context.Context, task queue.Task) (*Result, error) {
	if !task.Step.Valid() {
		return nil, eris.Errorf("orchestrator: unknown step %q", task.Step)
	}

	zap.L().Info("executing step",
		zap.String("submission_id", task.SubmissionID),
		zap.String("step", string(task.Step)),
		zap.String("request_context", string(task.RequestContext)),
	)

	switch task.Step {
	case model.StepAnalyzeAction, model.StepAnalyzeSnapshot, model.StepImplementAction:
		return o.executeChild(ctx, task)
	case model.StepCheckContractActionsAnalyzed,
		model.StepCheckContractActionsImplemented,
		model.StepCheckContractSnapshotsAnalyzed:
		return o.executeCheck(ctx, task)
	case model.StepRunSimulation:
		return o.executeRunSimulation(ctx, task)
	case model.StepSplitBatch:
		return o.executeSplitBatch(ctx, task)
	default:
		return o.executeParent(ctx, task)
	}
}

// Route computes and enqueues the next step for a submission, the
// /analyze entry point. The override, when valid, wins over the table.
func (o *Orchestrator) Route(ctx context.Context, submissionID string, override model.Step) (model.Step, error) {
	sub, err := o.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return StepNone, err
	}

	next := NextStep(sub.Step, sub.Status, override)
	if next == StepNone {
		return StepNone, nil
	}

	if _, err := o.tasks.Enqueue(ctx, queue.Task{
		SubmissionID:   submissionID,
		Step:           next,
		RequestContext: model.ContextBackground,
	}); err != nil {
		return StepNone, err
	}
	return next, nil
}

func (o *Orchestrator) executeParent(ctx context.Context, task queue.Task) (*Result, error) {
	sub, err := o.store.GetSubmission(ctx, task.SubmissionID)
	if err != nil {
		return nil, err
	}

	if err := o.store.UpdateStepStatus(ctx, sub.ID, task.Step, model.StatusInProgress, "", nil); err != nil {
		return nil, err
	}

	out, stepErr := o.runParentStep(ctx, sub, task)
	if stepErr != nil {
		return o.recordFailure(ctx, sub.ID, task, out, stepErr)
	}

	status := model.StatusSuccess
	if out.fanout {
		// Children own the success transition via the fan-in check.
		status = model.StatusInProgress
	}
	if err := o.store.UpdateStepStatus(ctx, sub.ID, task.Step, status, out.message, out.meta); err != nil {
		return nil, err
	}

	if !out.fanout && task.RequestContext.Background() {
		if next := NextStep(task.Step, model.StatusSuccess, ""); next != StepNone {
			if _, err := o.tasks.Enqueue(ctx, queue.Task{
				SubmissionID:   sub.ID,
				Step:           next,
				RequestContext: model.ContextBackground,
			}); err != nil {
				return nil, err
			}
		}
	}

	return &Result{
		SubmissionID: sub.ID,
		Step:         task.Step,
		Status:       status,
		Message:      out.message,
		Output:       out.output,
	}, nil
}

func (o *Orchestrator) runParentStep(ctx context.Context, sub *model.Submission, task queue.Task) (*outcome, error) {
	switch task.Step {
	case model.StepBeginAnalysis:
		return o.beginAnalysis(ctx, sub)
	case model.StepAnalyzeProject:
		return o.analyzeProject(ctx, sub)
	case model.StepAnalyzeActors:
		return o.analyzeActors(ctx, sub)
	case model.StepAnalyzeDeployment:
		return o.analyzeDeployment(ctx, sub)
	case model.StepImplementDeploymentScript:
		return o.implementDeploymentScript(ctx, sub)
	case model.StepVerifyDeploymentScript:
		return o.verifyDeploymentScript(ctx, sub)
	case model.StepDebugDeploymentScript:
		return o.debugDeploymentScript(ctx, sub)
	case model.StepScaffold:
		return o.scaffoldHarness(ctx, sub)
	case model.StepAnalyzeAllActions:
		return o.analyzeAllActions(ctx, sub)
	case model.StepAnalyzeAllSnapshots:
		return o.analyzeAllSnapshots(ctx, sub)
	case model.StepImplementSnapshots:
		return o.implementSnapshots(ctx, sub)
	case model.StepImplementAllActions:
		return o.implementAllActions(ctx, sub)
	default:
		return nil, eris.Errorf("orchestrator: %s is not a submission step", task.Step)
	}
}

// recordFailure persists the error status and fires the single automatic
// recovery edge (verify → debug) for background tasks. Everything else
// stops and waits for an external re-trigger.
func (o *Orchestrator) recordFailure(ctx context.Context, submissionID string, task queue.Task, out *outcome, stepErr error) (*Result, error) {
	msg := stepErr.Error()
	var meta *model.StepMetadata
	if out != nil {
		meta = out.meta
	}

	if err := o.store.UpdateStepStatus(ctx, submissionID, task.Step, model.StatusError, msg, meta); err != nil {
		return nil, err
	}

	zap.L().Warn("step failed",
		zap.String("submission_id", submissionID),
		zap.String("step", string(task.Step)),
		zap.String("message", msg),
	)

	if task.RequestContext.Background() {
		next := NextStep(task.Step, model.StatusError, "")
		if next != task.Step && next != StepNone {
			if _, err := o.tasks.Enqueue(ctx, queue.Task{
				SubmissionID:   submissionID,
				Step:           next,
				RequestContext: model.ContextBackground,
			}); err != nil {
				return nil, err
			}
		}
	}

	return &Result{
		SubmissionID: submissionID,
		Step:         task.Step,
		Status:       model.StatusError,
		Message:      msg,
	}, nil
}

// artifactVersion resolves a prerequisite artifact through the version the
// producing step recorded; it never trusts "latest written".
func (o *Orchestrator) artifact(ctx context.Context, sub *model.Submission, producer model.Step, kind model.ArtifactKind, v any) error {
	ver := sub.Metadata(producer).ArtifactVersion
	if ver == 0 {
		return eris.Wrapf(ErrPrerequisite, "%s artifact (run %s first)", kind, producer)
	}
	return blob.ReadArtifact(ctx, o.blobs, model.ArtifactVersion{
		SubmissionID: sub.ID,
		Kind:         kind,
		Version:      ver,
	}, v)
}

// publishArtifact allocates a fresh version, writes the artifact, and
// returns metadata recording the winning version.
func (o *Orchestrator) publishArtifact(ctx context.Context, submissionID string, kind model.ArtifactKind, v any) (*model.StepMetadata, int, error) {
	ver, err := o.store.AllocateVersion(ctx, submissionID, kind)
	if err != nil {
		return nil, 0, err
	}
	if err := blob.WriteArtifact(ctx, o.blobs, ver, v); err != nil {
		return nil, 0, err
	}
	return &model.StepMetadata{ArtifactVersion: ver.Version}, ver.Version, nil
}

// reuseArtifact short-circuits a redelivered artifact step: when a version
// is already recorded and its blob exists, the step is done.
func (o *Orchestrator) reuseArtifact(ctx context.Context, sub *model.Submission, step model.Step, kind model.ArtifactKind) *outcome {
	meta := sub.Metadata(step)
	if meta.ArtifactVersion == 0 {
		return nil
	}
	ver := model.ArtifactVersion{SubmissionID: sub.ID, Kind: kind, Version: meta.ArtifactVersion}
	ok, err := o.blobs.Exists(ctx, ver.Path())
	if err != nil || !ok {
		return nil
	}
	zap.L().Info("artifact already recorded, skipping regeneration",
		zap.String("submission_id", sub.ID),
		zap.String("kind", string(kind)),
		zap.Int("version", meta.ArtifactVersion),
	)
	return &outcome{
		message: string(kind) + " already recorded",
		meta:    &meta,
	}
}
