// Package analyzer holds the LLM-backed analysis and code-generation
// collaborators used by the pipeline steps. Each method is one
// draft→verify→correct call sequence producing a typed artifact or a
// generated source file.
package analyzer

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/svylabs/ilumina/internal/model"
	"github.com/svylabs/ilumina/internal/resilience"
	"github.com/svylabs/ilumina/pkg/anthropic"
)

// Analyzer runs analysis prompts against the Anthropic API.
type Analyzer struct {
	client      anthropic.Client
	model       string
	reviewModel string
	maxTokens   int64
}

// Config holds model selection for the analyzer.
type Config struct {
	Model       string
	ReviewModel string
	MaxTokens   int64
}

// New creates an Analyzer. The client is wrapped with transient-error
// retry; overloaded-API failures never surface as step errors directly.
func New(client anthropic.Client, cfg Config) *Analyzer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.ReviewModel == "" {
		cfg.ReviewModel = cfg.Model
	}
	return &Analyzer{
		client:      newRetryingClient(client),
		model:       cfg.Model,
		reviewModel: cfg.ReviewModel,
		maxTokens:   cfg.MaxTokens,
	}
}

// AnalyzeProject summarizes the repository: dev tool, contracts, and the
// state-mutating functions of each contract.
func (a *Analyzer) AnalyzeProject(ctx context.Context, src string) (*model.ProjectSummary, error) {
	var summary model.ProjectSummary
	if err := a.threeStageJSON(ctx, "analyze_project", anthropic.StagePrompts{
		System:  anthropic.BuildCachedSystemBlocks(systemAnalyst),
		Draft:   promptAnalyzeProject(src),
		Verify:  verifyJSON("project summary", projectSummarySchema),
		Correct: correctJSON,
	}, &summary); err != nil {
		return nil, err
	}
	if len(summary.Contracts) == 0 {
		return nil, eris.New("analyzer: project summary lists no contracts")
	}
	return &summary, nil
}

// AnalyzeActors identifies market participants and maps each to the
// contract functions it can call.
func (a *Analyzer) AnalyzeActors(ctx context.Context, summary *model.ProjectSummary) (*model.ActorSummary, error) {
	var actors model.ActorSummary
	if err := a.threeStageJSON(ctx, "analyze_actors", anthropic.StagePrompts{
		System:  anthropic.BuildCachedSystemBlocks(systemAnalyst),
		Draft:   promptAnalyzeActors(summary),
		Verify:  verifyJSON("actor summary", actorSummarySchema),
		Correct: correctJSON,
	}, &actors); err != nil {
		return nil, err
	}
	if len(actors.Actors) == 0 {
		return nil, eris.New("analyzer: actor summary lists no actors")
	}
	return &actors, nil
}

// AnalyzeDeployment derives the ordered contract deployment sequence.
func (a *Analyzer) AnalyzeDeployment(ctx context.Context, summary *model.ProjectSummary) (*model.DeploymentInstructions, error) {
	var instructions model.DeploymentInstructions
	if err := a.threeStageJSON(ctx, "analyze_deployment", anthropic.StagePrompts{
		System:  anthropic.BuildCachedSystemBlocks(systemAnalyst),
		Draft:   promptAnalyzeDeployment(summary),
		Verify:  verifyJSON("deployment instructions", deploymentSchema),
		Correct: correctJSON,
	}, &instructions); err != nil {
		return nil, err
	}
	if len(instructions.Sequence) == 0 {
		return nil, eris.New("analyzer: deployment instructions list no contracts")
	}
	return &instructions, nil
}

// ImplementDeploymentScript generates the TypeScript deployment script
// following the deployment instructions.
func (a *Analyzer) ImplementDeploymentScript(ctx context.Context, summary *model.ProjectSummary, instructions *model.DeploymentInstructions) (string, error) {
	return a.threeStageCode(ctx, "implement_deployment_script", anthropic.StagePrompts{
		System:  anthropic.BuildCachedSystemBlocks(systemEngineer),
		Draft:   promptImplementDeployment(summary, instructions),
		Verify:  verifyCode("deployment script"),
		Correct: correctCode,
	})
}

// DebugDeploymentScript repairs a deployment script given the output of a
// failed verification run.
func (a *Analyzer) DebugDeploymentScript(ctx context.Context, script, failure string) (string, error) {
	return a.threeStageCode(ctx, "debug_deployment_script", anthropic.StagePrompts{
		System:  anthropic.BuildCachedSystemBlocks(systemEngineer),
		Draft:   promptDebugDeployment(script, failure),
		Verify:  verifyCode("repaired deployment script"),
		Correct: correctCode,
	})
}

// AnalyzeAction produces the detail document for one contract function: its
// parameters, state touched, and validation rules a simulated call needs.
func (a *Analyzer) AnalyzeAction(ctx context.Context, summary *model.ProjectSummary, contract, function string) (json.RawMessage, error) {
	return a.threeStageRaw(ctx, "analyze_action", anthropic.StagePrompts{
		System:  anthropic.BuildCachedSystemBlocks(systemAnalyst + "\n\n" + summaryContext(summary)),
		Draft:   promptAnalyzeAction(contract, function),
		Verify:  verifyJSON("action analysis", actionDetailSchema),
		Correct: correctJSON,
	})
}

// ImplementAction generates the TypeScript action class for one analyzed
// contract function.
func (a *Analyzer) ImplementAction(ctx context.Context, summary *model.ProjectSummary, detail json.RawMessage, contract, function string) (string, error) {
	return a.threeStageCode(ctx, "implement_action", anthropic.StagePrompts{
		System:  anthropic.BuildCachedSystemBlocks(systemEngineer + "\n\n" + summaryContext(summary)),
		Draft:   promptImplementAction(contract, function, detail),
		Verify:  verifyCode("action implementation"),
		Correct: correctCode,
	})
}

// AnalyzeSnapshot produces the state-snapshot layout for one contract: the
// variables a simulation must capture before and after each action.
func (a *Analyzer) AnalyzeSnapshot(ctx context.Context, summary *model.ProjectSummary, contract string) (json.RawMessage, error) {
	return a.threeStageRaw(ctx, "analyze_snapshot", anthropic.StagePrompts{
		System:  anthropic.BuildCachedSystemBlocks(systemAnalyst + "\n\n" + summaryContext(summary)),
		Draft:   promptAnalyzeSnapshot(contract),
		Verify:  verifyJSON("snapshot analysis", snapshotDetailSchema),
		Correct: correctJSON,
	})
}

// ImplementSnapshots generates the snapshot provider covering every
// analyzed contract.
func (a *Analyzer) ImplementSnapshots(ctx context.Context, summary *model.ProjectSummary, details map[string]json.RawMessage) (string, error) {
	return a.threeStageCode(ctx, "implement_snapshots", anthropic.StagePrompts{
		System:  anthropic.BuildCachedSystemBlocks(systemEngineer + "\n\n" + summaryContext(summary)),
		Draft:   promptImplementSnapshots(details),
		Verify:  verifyCode("snapshot provider"),
		Correct: correctCode,
	})
}

// GenerateScenarios proposes simulation scenarios from the actor summary.
// Runs on the review model; scenario naming does not need the large model.
func (a *Analyzer) GenerateScenarios(ctx context.Context, actors *model.ActorSummary) ([]model.Scenario, error) {
	result, err := anthropic.ThreeStage(ctx, a.client, a.reviewModel, a.maxTokens, anthropic.StagePrompts{
		System: anthropic.BuildCachedSystemBlocks(systemAnalyst),
		Draft:  promptGenerateScenarios(actors),
	})
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: generate scenarios")
	}
	result.Usage.LogCost(a.reviewModel, "generate_scenarios")

	var scenarios []model.Scenario
	if err := anthropic.DecodeJSON(result.Text, &scenarios); err != nil {
		return nil, eris.Wrap(err, "analyzer: generate scenarios")
	}
	return scenarios, nil
}

func (a *Analyzer) threeStageJSON(ctx context.Context, phase string, p anthropic.StagePrompts, out any) error {
	raw, err := a.threeStageRaw(ctx, phase, p)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return eris.Wrapf(err, "analyzer: %s: decode", phase)
	}
	return nil
}

func (a *Analyzer) threeStageRaw(ctx context.Context, phase string, p anthropic.StagePrompts) (json.RawMessage, error) {
	result, err := anthropic.ThreeStage(ctx, a.client, a.model, a.maxTokens, p)
	if err != nil {
		return nil, eris.Wrapf(err, "analyzer: %s", phase)
	}
	result.Usage.LogCost(a.model, phase)

	raw, err := anthropic.ExtractJSON(result.Text)
	if err != nil {
		return nil, eris.Wrapf(err, "analyzer: %s", phase)
	}
	return json.RawMessage(raw), nil
}

func (a *Analyzer) threeStageCode(ctx context.Context, phase string, p anthropic.StagePrompts) (string, error) {
	result, err := anthropic.ThreeStage(ctx, a.client, a.model, a.maxTokens, p)
	if err != nil {
		return "", eris.Wrapf(err, "analyzer: %s", phase)
	}
	result.Usage.LogCost(a.model, phase)

	code := extractCode(result.Text)
	if code == "" {
		return "", eris.Errorf("analyzer: %s: empty generated code", phase)
	}
	return code, nil
}

// retryingClient wraps a Client with transient-error retry.
type retryingClient struct {
	inner anthropic.Client
	cfg   resilience.RetryConfig
}

func newRetryingClient(inner anthropic.Client) anthropic.Client {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 4
	cfg.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	return &retryingClient{inner: inner, cfg: cfg}
}

func (c *retryingClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return resilience.DoVal(ctx, c.cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := c.inner.CreateMessage(ctx, req)
		if err != nil {
			zap.L().Debug("anthropic call failed", zap.Error(err))
		}
		return resp, err
	})
}
