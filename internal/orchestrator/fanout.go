package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/svylabs/ilumina/internal/model"
	"github.com/svylabs/ilumina/internal/queue"
	"github.com/svylabs/ilumina/internal/scaffold"
)

// analyzeAllActions fans one analyze_action child out per distinct
// (contract, function) pair in the actor summary. The expected child count
// is persisted before any child exists: a crash mid fan-out must leave the
// fan-in a count to hold against, never a partial set it can mistake for
// complete.
func (o *Orchestrator) analyzeAllActions(ctx context.Context, sub *model.Submission) (*outcome, error) {
	var actors model.ActorSummary
	if err := o.artifact(ctx, sub, model.StepAnalyzeActors, model.ArtifactActorSummary, &actors); err != nil {
		return nil, err
	}
	actions := actors.Actions()
	if len(actions) == 0 {
		return nil, eris.Wrap(ErrPrerequisite, "actor summary names no actions")
	}

	meta := &model.StepMetadata{ExpectedChildren: len(actions)}
	if err := o.store.UpdateStepStatus(ctx, sub.ID, model.StepAnalyzeAllActions, model.StatusInProgress, "", meta); err != nil {
		return nil, err
	}

	scheduled := 0
	for _, action := range actions {
		rec := &model.ActionAnalysis{
			ID:           uuid.New().String(),
			SubmissionID: sub.ID,
			ContractName: action.ContractName,
			FunctionName: action.FunctionName,
			Step:         model.StepAnalyzeAction,
			Status:       model.StatusScheduled,
			WorkspaceID:  baseWorkspace,
		}
		created, err := o.store.CreateActionAnalysis(ctx, rec)
		if err != nil {
			return nil, err
		}
		if !created {
			// Redelivered fan-out; the existing record's child owns it.
			continue
		}
		if _, err := o.tasks.Enqueue(ctx, queue.Task{
			SubmissionID:   sub.ID,
			Step:           model.StepAnalyzeAction,
			RequestContext: model.ContextBackground,
			ContractName:   rec.ContractName,
			FunctionName:   rec.FunctionName,
		}); err != nil {
			return nil, err
		}
		scheduled++
	}

	// One check regardless, so a fully redelivered fan-out still converges.
	if err := o.enqueueCheck(ctx, sub.ID, model.StepCheckContractActionsAnalyzed); err != nil {
		return nil, err
	}

	return &outcome{
		fanout:  true,
		message: fmt.Sprintf("scheduled %d of %d action analyses", scheduled, len(actions)),
		meta:    meta,
	}, nil
}

// analyzeAllSnapshots fans one analyze_snapshot child out per contract
// referenced by any actor action.
func (o *Orchestrator) analyzeAllSnapshots(ctx context.Context, sub *model.Submission) (*outcome, error) {
	var actors model.ActorSummary
	if err := o.artifact(ctx, sub, model.StepAnalyzeActors, model.ArtifactActorSummary, &actors); err != nil {
		return nil, err
	}
	contracts := actors.Contracts()
	if len(contracts) == 0 {
		return nil, eris.Wrap(ErrPrerequisite, "actor summary names no contracts")
	}

	meta := &model.StepMetadata{ExpectedChildren: len(contracts)}
	if err := o.store.UpdateStepStatus(ctx, sub.ID, model.StepAnalyzeAllSnapshots, model.StatusInProgress, "", meta); err != nil {
		return nil, err
	}

	scheduled := 0
	for _, contract := range contracts {
		rec := &model.SnapshotAnalysis{
			ID:           uuid.New().String(),
			SubmissionID: sub.ID,
			ContractName: contract,
			Step:         model.StepAnalyzeSnapshot,
			Status:       model.StatusScheduled,
			WorkspaceID:  baseWorkspace,
		}
		created, err := o.store.CreateSnapshotAnalysis(ctx, rec)
		if err != nil {
			return nil, err
		}
		if !created {
			continue
		}
		if _, err := o.tasks.Enqueue(ctx, queue.Task{
			SubmissionID:   sub.ID,
			Step:           model.StepAnalyzeSnapshot,
			RequestContext: model.ContextBackground,
			ContractName:   contract,
		}); err != nil {
			return nil, err
		}
		scheduled++
	}

	if err := o.enqueueCheck(ctx, sub.ID, model.StepCheckContractSnapshotsAnalyzed); err != nil {
		return nil, err
	}

	return &outcome{
		fanout:  true,
		message: fmt.Sprintf("scheduled %d of %d snapshot analyses", scheduled, len(contracts)),
		meta:    meta,
	}, nil
}

// implementAllActions moves every analyzed action record into the
// implement phase. Records already implemented (or still being
// implemented) are left alone; errored ones are retried.
func (o *Orchestrator) implementAllActions(ctx context.Context, sub *model.Submission) (*outcome, error) {
	records, err := o.store.ListActionAnalyses(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.Wrap(ErrPrerequisite, "action analyses (run analyze_all_actions first)")
	}

	meta := &model.StepMetadata{ExpectedChildren: len(records)}
	if err := o.store.UpdateStepStatus(ctx, sub.ID, model.StepImplementAllActions, model.StatusInProgress, "", meta); err != nil {
		return nil, err
	}

	scheduled := 0
	for _, rec := range records {
		if rec.Step == model.StepImplementAction && rec.Status != model.StatusError {
			continue
		}
		if rec.Step == model.StepAnalyzeAction && rec.Status != model.StatusSuccess {
			return nil, eris.Wrapf(ErrPrerequisite, "action %s.%s is not analyzed yet", rec.ContractName, rec.FunctionName)
		}
		if err := o.store.UpdateActionAnalysis(ctx, sub.ID, rec.ContractName, rec.FunctionName,
			model.StepImplementAction, model.StatusScheduled, ""); err != nil {
			return nil, err
		}
		if _, err := o.tasks.Enqueue(ctx, queue.Task{
			SubmissionID:   sub.ID,
			Step:           model.StepImplementAction,
			RequestContext: model.ContextBackground,
			ContractName:   rec.ContractName,
			FunctionName:   rec.FunctionName,
		}); err != nil {
			return nil, err
		}
		scheduled++
	}

	if err := o.enqueueCheck(ctx, sub.ID, model.StepCheckContractActionsImplemented); err != nil {
		return nil, err
	}

	return &outcome{
		fanout:  true,
		message: fmt.Sprintf("scheduled %d of %d action implementations", scheduled, len(records)),
		meta:    meta,
	}, nil
}

// executeChild runs one fanned-out per-entity task. The child is the only
// writer of its record; the parent submission is untouched except through
// the fan-in check the child re-triggers on success.
func (o *Orchestrator) executeChild(ctx context.Context, task queue.Task) (*Result, error) {
	sub, err := o.store.GetSubmission(ctx, task.SubmissionID)
	if err != nil {
		return nil, err
	}

	updateRecord := func(status model.Status, message string) error {
		if task.Step == model.StepAnalyzeSnapshot {
			return o.store.UpdateSnapshotAnalysis(ctx, sub.ID, task.ContractName, task.Step, status, message)
		}
		return o.store.UpdateActionAnalysis(ctx, sub.ID, task.ContractName, task.FunctionName, task.Step, status, message)
	}

	if err := updateRecord(model.StatusInProgress, ""); err != nil {
		return nil, err
	}

	var message string
	var workErr error
	switch task.Step {
	case model.StepAnalyzeAction:
		message, workErr = o.analyzeAction(ctx, sub, task)
	case model.StepAnalyzeSnapshot:
		message, workErr = o.analyzeSnapshot(ctx, sub, task)
	case model.StepImplementAction:
		message, workErr = o.implementAction(ctx, sub, task)
	}

	if workErr != nil {
		// A failed entity stays error while siblings continue; the fan-in
		// check simply never completes until this one is retried.
		if err := updateRecord(model.StatusError, workErr.Error()); err != nil {
			return nil, err
		}
		return &Result{
			SubmissionID: sub.ID,
			Step:         task.Step,
			Status:       model.StatusError,
			Message:      workErr.Error(),
		}, nil
	}

	if err := updateRecord(model.StatusSuccess, message); err != nil {
		return nil, err
	}

	if task.RequestContext.Background() {
		if err := o.enqueueCheck(ctx, sub.ID, checkStepFor(task.Step)); err != nil {
			return nil, err
		}
	}

	return &Result{
		SubmissionID: sub.ID,
		Step:         task.Step,
		Status:       model.StatusSuccess,
		Message:      message,
	}, nil
}

func (o *Orchestrator) analyzeAction(ctx context.Context, sub *model.Submission, task queue.Task) (string, error) {
	var summary model.ProjectSummary
	if err := o.artifact(ctx, sub, model.StepAnalyzeProject, model.ArtifactProjectSummary, &summary); err != nil {
		return "", err
	}

	detail, err := o.llm.AnalyzeAction(ctx, &summary, task.ContractName, task.FunctionName)
	if err != nil {
		return "", err
	}
	path := actionDetailPath(sub.ID, task.ContractName, task.FunctionName)
	if err := o.blobs.WriteJSON(ctx, path, detail); err != nil {
		return "", err
	}
	return fmt.Sprintf("analyzed %s.%s", task.ContractName, task.FunctionName), nil
}

func (o *Orchestrator) analyzeSnapshot(ctx context.Context, sub *model.Submission, task queue.Task) (string, error) {
	var summary model.ProjectSummary
	if err := o.artifact(ctx, sub, model.StepAnalyzeProject, model.ArtifactProjectSummary, &summary); err != nil {
		return "", err
	}

	detail, err := o.llm.AnalyzeSnapshot(ctx, &summary, task.ContractName)
	if err != nil {
		return "", err
	}
	if err := o.blobs.WriteJSON(ctx, snapshotDetailPath(sub.ID, task.ContractName), detail); err != nil {
		return "", err
	}
	return fmt.Sprintf("analyzed snapshot for %s", task.ContractName), nil
}

func (o *Orchestrator) implementAction(ctx context.Context, sub *model.Submission, task queue.Task) (string, error) {
	file := scaffold.ActionFileName(task.ContractName, task.FunctionName)
	if o.scaffold.GeneratedExists(sub.ID, file) {
		return fmt.Sprintf("%s already generated", file), nil
	}

	var summary model.ProjectSummary
	if err := o.artifact(ctx, sub, model.StepAnalyzeProject, model.ArtifactProjectSummary, &summary); err != nil {
		return "", err
	}

	var detail json.RawMessage
	if err := o.blobs.ReadJSON(ctx, actionDetailPath(sub.ID, task.ContractName, task.FunctionName), &detail); err != nil {
		return "", eris.Wrapf(ErrPrerequisite, "action analysis for %s.%s", task.ContractName, task.FunctionName)
	}

	code, err := o.llm.ImplementAction(ctx, &summary, detail, task.ContractName, task.FunctionName)
	if err != nil {
		return "", err
	}
	if err := o.scaffold.WriteGenerated(sub.ID, file, code); err != nil {
		return "", err
	}
	return fmt.Sprintf("generated %s", file), nil
}

// executeCheck is the fan-in: advance the parent step iff the child set is
// complete and uniformly successful. Level-triggered and idempotent; every
// child success re-enqueues it and a redundant run is a no-op.
func (o *Orchestrator) executeCheck(ctx context.Context, task queue.Task) (*Result, error) {
	sub, err := o.store.GetSubmission(ctx, task.SubmissionID)
	if err != nil {
		return nil, err
	}

	parent, childStep := parentStepFor(task.Step)

	if stepSucceeded(sub, parent) {
		return &Result{
			SubmissionID: sub.ID,
			Step:         task.Step,
			Status:       model.StatusSuccess,
			Message:      fmt.Sprintf("%s already complete", parent),
		}, nil
	}

	var tally childTally
	if task.Step == model.StepCheckContractSnapshotsAnalyzed {
		records, err := o.store.ListSnapshotAnalyses(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			tally.add(rec.Step, rec.Status, childStep)
		}
	} else {
		records, err := o.store.ListActionAnalyses(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			tally.add(rec.Step, rec.Status, childStep)
		}
	}

	expected := sub.Metadata(parent).ExpectedChildren
	if !tally.complete(expected) {
		msg := fmt.Sprintf("%d of %d children complete (%d failed)", tally.done, tally.total(expected), tally.failed)
		zap.L().Debug("fan-in not complete",
			zap.String("submission_id", sub.ID),
			zap.String("parent", string(parent)),
			zap.String("progress", msg),
		)
		return &Result{
			SubmissionID: sub.ID,
			Step:         task.Step,
			Status:       model.StatusInProgress,
			Message:      msg,
		}, nil
	}

	msg := fmt.Sprintf("all %d children succeeded", tally.done)
	if err := o.store.UpdateStepStatus(ctx, sub.ID, parent, model.StatusSuccess, msg, nil); err != nil {
		return nil, err
	}

	if task.RequestContext.Background() || task.RequestContext == "" {
		if next := NextStep(parent, model.StatusSuccess, ""); next != StepNone {
			if _, err := o.tasks.Enqueue(ctx, queue.Task{
				SubmissionID:   sub.ID,
				Step:           next,
				RequestContext: model.ContextBackground,
			}); err != nil {
				return nil, err
			}
		} else {
			// Terminal step: record the generated harness.
			if err := o.scaffold.CommitAndPush(ctx, sub.ID, "main", "Add generated simulation actions"); err != nil {
				zap.L().Warn("failed to commit generated harness", zap.Error(err))
			}
		}
	}

	return &Result{
		SubmissionID: sub.ID,
		Step:         task.Step,
		Status:       model.StatusSuccess,
		Message:      msg,
	}, nil
}

func (o *Orchestrator) enqueueCheck(ctx context.Context, submissionID string, check model.Step) error {
	_, err := o.tasks.Enqueue(ctx, queue.Task{
		SubmissionID:   submissionID,
		Step:           check,
		RequestContext: model.ContextBackground,
	})
	return err
}

func checkStepFor(child model.Step) model.Step {
	switch child {
	case model.StepAnalyzeAction:
		return model.StepCheckContractActionsAnalyzed
	case model.StepAnalyzeSnapshot:
		return model.StepCheckContractSnapshotsAnalyzed
	default:
		return model.StepCheckContractActionsImplemented
	}
}

func parentStepFor(check model.Step) (parent, child model.Step) {
	switch check {
	case model.StepCheckContractActionsAnalyzed:
		return model.StepAnalyzeAllActions, model.StepAnalyzeAction
	case model.StepCheckContractSnapshotsAnalyzed:
		return model.StepAnalyzeAllSnapshots, model.StepAnalyzeSnapshot
	default:
		return model.StepImplementAllActions, model.StepImplementAction
	}
}

// childTally classifies per-entity records against the child step the
// fan-in is waiting on. A record already on a later step counts as done;
// the earlier phase finished for it.
type childTally struct {
	done    int
	pending int
	failed  int
}

var childOrder = map[model.Step]int{
	model.StepAnalyzeAction:   0,
	model.StepImplementAction: 1,
}

func (t *childTally) add(step model.Step, status model.Status, waitingOn model.Step) {
	if childOrder[step] > childOrder[waitingOn] {
		t.done++
		return
	}
	switch status {
	case model.StatusSuccess:
		t.done++
	case model.StatusError:
		t.failed++
	default:
		t.pending++
	}
}

// complete requires a non-empty set, every expected record present, and
// zero pending or failed children.
func (t *childTally) complete(expected int) bool {
	n := t.done + t.pending + t.failed
	if n == 0 {
		return false
	}
	if expected > 0 && n < expected {
		return false
	}
	return t.pending == 0 && t.failed == 0
}

func (t *childTally) total(expected int) int {
	n := t.done + t.pending + t.failed
	if expected > n {
		return expected
	}
	return n
}
