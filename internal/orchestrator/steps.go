package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/svylabs/ilumina/internal/analyzer"
	"github.com/svylabs/ilumina/internal/model"
	"github.com/svylabs/ilumina/internal/scaffold"
)

// beginAnalysis validates the submitted repository and prepares the shared
// analysis workspace.
func (o *Orchestrator) beginAnalysis(ctx context.Context, sub *model.Submission) (*outcome, error) {
	if err := o.git.LsRemote(ctx, sub.RepositoryURL); err != nil {
		return nil, eris.Wrapf(err, "repository unreachable: %s", sub.RepositoryURL)
	}
	if _, err := o.scaffold.PrepareWorkspace(ctx, sub.ID, baseWorkspace, sub.RepositoryURL); err != nil {
		return nil, err
	}
	return &outcome{
		message: "repository validated",
		meta:    &model.StepMetadata{WorkspaceID: baseWorkspace},
	}, nil
}

func (o *Orchestrator) analyzeProject(ctx context.Context, sub *model.Submission) (*outcome, error) {
	if out := o.reuseArtifact(ctx, sub, model.StepAnalyzeProject, model.ArtifactProjectSummary); out != nil {
		return out, nil
	}

	dir, err := o.scaffold.PrepareWorkspace(ctx, sub.ID, baseWorkspace, sub.RepositoryURL)
	if err != nil {
		return nil, err
	}
	src, err := analyzer.CollectSource(dir)
	if err != nil {
		return nil, err
	}

	summary, err := o.llm.AnalyzeProject(ctx, src)
	if err != nil {
		return nil, err
	}

	meta, version, err := o.publishArtifact(ctx, sub.ID, model.ArtifactProjectSummary, summary)
	if err != nil {
		return nil, err
	}
	return &outcome{
		message: fmt.Sprintf("project summary v%d (%d contracts)", version, len(summary.Contracts)),
		meta:    meta,
		output:  summary,
	}, nil
}

func (o *Orchestrator) analyzeActors(ctx context.Context, sub *model.Submission) (*outcome, error) {
	if out := o.reuseArtifact(ctx, sub, model.StepAnalyzeActors, model.ArtifactActorSummary); out != nil {
		return out, nil
	}

	var summary model.ProjectSummary
	if err := o.artifact(ctx, sub, model.StepAnalyzeProject, model.ArtifactProjectSummary, &summary); err != nil {
		return nil, err
	}

	actors, err := o.llm.AnalyzeActors(ctx, &summary)
	if err != nil {
		return nil, err
	}

	meta, version, err := o.publishArtifact(ctx, sub.ID, model.ArtifactActorSummary, actors)
	if err != nil {
		return nil, err
	}
	return &outcome{
		message: fmt.Sprintf("actor summary v%d (%d actors)", version, len(actors.Actors)),
		meta:    meta,
		output:  actors,
	}, nil
}

func (o *Orchestrator) analyzeDeployment(ctx context.Context, sub *model.Submission) (*outcome, error) {
	if out := o.reuseArtifact(ctx, sub, model.StepAnalyzeDeployment, model.ArtifactDeploymentInstructions); out != nil {
		return out, nil
	}

	var summary model.ProjectSummary
	if err := o.artifact(ctx, sub, model.StepAnalyzeProject, model.ArtifactProjectSummary, &summary); err != nil {
		return nil, err
	}

	instructions, err := o.llm.AnalyzeDeployment(ctx, &summary)
	if err != nil {
		return nil, err
	}

	meta, version, err := o.publishArtifact(ctx, sub.ID, model.ArtifactDeploymentInstructions, instructions)
	if err != nil {
		return nil, err
	}
	return &outcome{
		message: fmt.Sprintf("deployment instructions v%d (%d contracts)", version, len(instructions.Sequence)),
		meta:    meta,
		output:  instructions,
	}, nil
}

func (o *Orchestrator) implementDeploymentScript(ctx context.Context, sub *model.Submission) (*outcome, error) {
	if o.scaffold.WorkspaceFileExists(sub.ID, baseWorkspace, scaffold.DeployScriptFileName) &&
		stepSucceeded(sub, model.StepImplementDeploymentScript) {
		return &outcome{message: "deployment script already generated"}, nil
	}

	var summary model.ProjectSummary
	if err := o.artifact(ctx, sub, model.StepAnalyzeProject, model.ArtifactProjectSummary, &summary); err != nil {
		return nil, err
	}
	var instructions model.DeploymentInstructions
	if err := o.artifact(ctx, sub, model.StepAnalyzeDeployment, model.ArtifactDeploymentInstructions, &instructions); err != nil {
		return nil, err
	}

	script, err := o.llm.ImplementDeploymentScript(ctx, &summary, &instructions)
	if err != nil {
		return nil, err
	}
	if err := o.scaffold.WriteWorkspaceFile(sub.ID, baseWorkspace, scaffold.DeployScriptFileName, script); err != nil {
		return nil, err
	}
	return &outcome{
		message: "deployment script generated",
		meta:    &model.StepMetadata{WorkspaceID: baseWorkspace},
	}, nil
}

// verifyDeploymentScript runs the generated script against a local network.
// A nonzero exit is a step error carrying the exit code; a timeout is
// additionally marked no_log so log handling skips the missing output.
func (o *Orchestrator) verifyDeploymentScript(ctx context.Context, sub *model.Submission) (*outcome, error) {
	dir := o.scaffold.WorkspaceDir(sub.ID, baseWorkspace)
	if !o.scaffold.WorkspaceFileExists(sub.ID, baseWorkspace, scaffold.DeployScriptFileName) {
		return nil, eris.Wrap(ErrPrerequisite, "deployment script (run implement_deployment_script first)")
	}

	res, err := o.runner.Run(ctx, dir, "npx", "hardhat", "run", scaffold.DeployScriptFileName, "--network", "hardhat")
	if err != nil {
		return nil, err
	}

	if res.TimedOut {
		code := -1
		return &outcome{meta: &model.StepMetadata{NoLog: true, ExitCode: &code}},
			eris.New("deployment verification timed out")
	}
	if res.ExitCode != 0 {
		return &outcome{meta: &model.StepMetadata{ExitCode: &res.ExitCode}},
			eris.Errorf("deployment script exited %d: %s", res.ExitCode, tail(res.Output(), 2000))
	}

	return &outcome{
		message: "deployment script verified",
		output:  map[string]string{"stdout": tail(res.Stdout, 2000)},
	}, nil
}

// debugDeploymentScript repairs the script using the failure recorded by
// the last verification run, closing the verify⇄debug loop.
func (o *Orchestrator) debugDeploymentScript(ctx context.Context, sub *model.Submission) (*outcome, error) {
	script, err := o.scaffold.ReadWorkspaceFile(sub.ID, baseWorkspace, scaffold.DeployScriptFileName)
	if err != nil {
		return nil, eris.Wrap(ErrPrerequisite, "deployment script to debug")
	}

	failure := sub.Message
	if failure == "" {
		failure = "verification failed with no recorded output"
	}

	fixed, err := o.llm.DebugDeploymentScript(ctx, script, failure)
	if err != nil {
		return nil, err
	}
	if err := o.scaffold.WriteWorkspaceFile(sub.ID, baseWorkspace, scaffold.DeployScriptFileName, fixed); err != nil {
		return nil, err
	}
	return &outcome{message: "deployment script repaired"}, nil
}

func (o *Orchestrator) scaffoldHarness(ctx context.Context, sub *model.Submission) (*outcome, error) {
	var actors model.ActorSummary
	if err := o.artifact(ctx, sub, model.StepAnalyzeActors, model.ArtifactActorSummary, &actors); err != nil {
		return nil, err
	}

	scenarios, err := o.llm.GenerateScenarios(ctx, &actors)
	if err != nil {
		return nil, err
	}

	if _, err := o.scaffold.ScaffoldSimulation(ctx, sub.ID, &actors, scenarios); err != nil {
		return nil, err
	}

	// The verified deployment script moves into the harness so generated
	// actions run against the same deployment.
	if script, err := o.scaffold.ReadWorkspaceFile(sub.ID, baseWorkspace, scaffold.DeployScriptFileName); err == nil {
		if err := o.scaffold.WriteGenerated(sub.ID, scaffold.DeployScriptFileName, script); err != nil {
			return nil, err
		}
	}

	return &outcome{
		message: fmt.Sprintf("harness scaffolded (%d scenarios)", len(scenarios)),
		output:  scenarios,
	}, nil
}

func (o *Orchestrator) implementSnapshots(ctx context.Context, sub *model.Submission) (*outcome, error) {
	if o.scaffold.GeneratedExists(sub.ID, scaffold.SnapshotFileName) &&
		stepSucceeded(sub, model.StepImplementSnapshots) {
		return &outcome{message: "snapshot provider already generated"}, nil
	}

	var summary model.ProjectSummary
	if err := o.artifact(ctx, sub, model.StepAnalyzeProject, model.ArtifactProjectSummary, &summary); err != nil {
		return nil, err
	}

	records, err := o.store.ListSnapshotAnalyses(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.Wrap(ErrPrerequisite, "snapshot analyses (run analyze_all_snapshots first)")
	}

	for _, rec := range records {
		if rec.Status != model.StatusSuccess {
			return nil, eris.Wrapf(ErrPrerequisite, "snapshot analysis for %s is %s", rec.ContractName, rec.Status)
		}
	}

	var mu sync.Mutex
	details := make(map[string]json.RawMessage, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, rec := range records {
		g.Go(func() error {
			var detail json.RawMessage
			if err := o.blobs.ReadJSON(gctx, snapshotDetailPath(sub.ID, rec.ContractName), &detail); err != nil {
				return err
			}
			mu.Lock()
			details[rec.ContractName] = detail
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	code, err := o.llm.ImplementSnapshots(ctx, &summary, details)
	if err != nil {
		return nil, err
	}
	if err := o.scaffold.WriteGenerated(sub.ID, scaffold.SnapshotFileName, code); err != nil {
		return nil, err
	}

	return &outcome{
		message: fmt.Sprintf("snapshot provider generated (%d contracts)", len(details)),
	}, nil
}

// stepSucceeded reports whether the submission has ever recorded success
// for the step, consulting the append-only completed-steps log.
func stepSucceeded(sub *model.Submission, step model.Step) bool {
	for _, done := range sub.CompletedSteps {
		if done.Step == step && done.Status == model.StatusSuccess {
			return true
		}
	}
	return false
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func actionDetailPath(submissionID, contract, function string) string {
	return fmt.Sprintf("workspaces/%s/action-details/%s_%s.json", submissionID, contract, function)
}

func snapshotDetailPath(submissionID, contract string) string {
	return fmt.Sprintf("workspaces/%s/snapshot-details/%s.json", submissionID, contract)
}
