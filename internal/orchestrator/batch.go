package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/svylabs/ilumina/internal/model"
	"github.com/svylabs/ilumina/internal/queue"
)

// NewSimulationRun creates a single run and schedules its execution.
func (o *Orchestrator) NewSimulationRun(ctx context.Context, submissionID, branch string) (*model.SimulationRun, error) {
	if _, err := o.store.GetSubmission(ctx, submissionID); err != nil {
		return nil, err
	}

	run := &model.SimulationRun{
		ID:           uuid.New().String(),
		SubmissionID: submissionID,
		Type:         model.SimulationTypeRun,
		Status:       model.StatusScheduled,
		Branch:       branch,
	}
	if err := o.store.CreateSimulationRun(ctx, run); err != nil {
		return nil, err
	}

	if _, err := o.tasks.Enqueue(ctx, queue.Task{
		SubmissionID:   submissionID,
		Step:           model.StepRunSimulation,
		RequestContext: model.ContextBackground,
		SimulationID:   run.ID,
	}); err != nil {
		return nil, err
	}
	return run, nil
}

// NewBatch creates a batch parent for num runs and schedules the first
// split. Children are admitted by the split step, never all at once.
func (o *Orchestrator) NewBatch(ctx context.Context, submissionID string, num int, branch string) (*model.SimulationRun, error) {
	if num <= 0 {
		return nil, eris.Wrap(ErrPrerequisite, "num_simulations must be positive")
	}
	if _, err := o.store.GetSubmission(ctx, submissionID); err != nil {
		return nil, err
	}

	batch := &model.SimulationRun{
		ID:             uuid.New().String(),
		SubmissionID:   submissionID,
		Type:           model.SimulationTypeBatch,
		Status:         model.StatusInProgress,
		Branch:         branch,
		NumSimulations: num,
	}
	if err := o.store.CreateSimulationRun(ctx, batch); err != nil {
		return nil, err
	}

	if _, err := o.tasks.Enqueue(ctx, queue.Task{
		SubmissionID:   submissionID,
		Step:           model.StepSplitBatch,
		RequestContext: model.ContextBackground,
		SimulationID:   batch.ID,
	}); err != nil {
		return nil, err
	}
	return batch, nil
}

// admission computes how many new runs a split may create: the free slots
// under the concurrency ceiling, capped by what is left to create, never
// negative.
func admission(maxRuns, inProgress, remaining int) int {
	n := maxRuns - inProgress
	if n > remaining {
		n = remaining
	}
	if n < 0 {
		n = 0
	}
	return n
}

// executeSplitBatch admits up to the concurrency ceiling, then reschedules
// itself until every child run exists and has finished. The final split
// invocation settles the batch status from the child tallies.
func (o *Orchestrator) executeSplitBatch(ctx context.Context, task queue.Task) (*Result, error) {
	batch, err := o.store.GetSimulationRun(ctx, task.SimulationID)
	if err != nil {
		return nil, err
	}
	if batch.Type != model.SimulationTypeBatch {
		return nil, eris.Errorf("orchestrator: %s is not a batch", batch.ID)
	}
	if batch.Status == model.StatusSuccess || batch.Status == model.StatusError {
		return &Result{
			SubmissionID: batch.SubmissionID,
			Step:         task.Step,
			Status:       batch.Status,
			Message:      "batch already settled",
		}, nil
	}

	progress, err := o.store.BatchProgress(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	remaining := batch.NumSimulations - progress.Total
	create := admission(o.cfg.MaxSimultaneousRuns, progress.Scheduled+progress.InProgress, remaining)

	for i := 0; i < create; i++ {
		child := &model.SimulationRun{
			ID:           uuid.New().String(),
			SubmissionID: batch.SubmissionID,
			BatchID:      batch.ID,
			Type:         model.SimulationTypeRun,
			Status:       model.StatusScheduled,
			Branch:       batch.Branch,
		}
		if err := o.store.CreateSimulationRun(ctx, child); err != nil {
			return nil, err
		}
		if _, err := o.tasks.Enqueue(ctx, queue.Task{
			SubmissionID:   batch.SubmissionID,
			Step:           model.StepRunSimulation,
			RequestContext: model.ContextBackground,
			SimulationID:   child.ID,
		}); err != nil {
			return nil, err
		}
	}

	progress.Total += create
	progress.Scheduled += create

	if progress.Done(batch.NumSimulations) {
		status := model.StatusSuccess
		if progress.Failed > 0 {
			status = model.StatusError
		}
		msg := fmt.Sprintf("batch complete: %d succeeded, %d failed", progress.Succeeded, progress.Failed)
		if err := o.store.UpdateSimulationRunStatus(ctx, batch.ID, status, msg, 0); err != nil {
			return nil, err
		}
		return &Result{
			SubmissionID: batch.SubmissionID,
			Step:         task.Step,
			Status:       status,
			Message:      msg,
		}, nil
	}

	if _, err := o.tasks.Enqueue(ctx, queue.Task{
		SubmissionID:   batch.SubmissionID,
		Step:           model.StepSplitBatch,
		RequestContext: model.ContextBackground,
		SimulationID:   batch.ID,
		Delay:          o.cfg.SplitDelay,
	}); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("admitted %d runs (%d of %d created)", create, progress.Total, batch.NumSimulations)
	zap.L().Info("batch split",
		zap.String("batch_id", batch.ID),
		zap.String("progress", msg),
	)
	return &Result{
		SubmissionID: batch.SubmissionID,
		Step:         task.Step,
		Status:       model.StatusInProgress,
		Message:      msg,
	}, nil
}

// executeRunSimulation runs the scaffolded harness once and records the
// result as a versioned simulations artifact.
func (o *Orchestrator) executeRunSimulation(ctx context.Context, task queue.Task) (*Result, error) {
	run, err := o.store.GetSimulationRun(ctx, task.SimulationID)
	if err != nil {
		return nil, err
	}
	if run.Status == model.StatusSuccess {
		return &Result{
			SubmissionID: run.SubmissionID,
			Step:         task.Step,
			Status:       run.Status,
			Message:      "run already complete",
		}, nil
	}

	if err := o.store.UpdateSimulationRunStatus(ctx, run.ID, model.StatusInProgress, "", 0); err != nil {
		return nil, err
	}

	dir := o.scaffold.SimulationDir(run.SubmissionID)
	if run.Branch != "" {
		if err := o.git.Checkout(ctx, dir, run.Branch); err != nil {
			return o.settleRun(ctx, run, task, model.StatusError, err.Error(), 0)
		}
	}

	res, err := o.runner.Run(ctx, dir, "npm", "run", "simulate")
	if err != nil {
		return o.settleRun(ctx, run, task, model.StatusError, err.Error(), 0)
	}
	if res.TimedOut {
		return o.settleRun(ctx, run, task, model.StatusError, "simulation timed out", 0)
	}
	if res.ExitCode != 0 {
		return o.settleRun(ctx, run, task, model.StatusError,
			fmt.Sprintf("simulation exited %d: %s", res.ExitCode, tail(res.Output(), 2000)), 0)
	}

	gas := parseGasUsed(res.Stdout)
	ver, err := o.store.AllocateVersion(ctx, run.SubmissionID, model.ArtifactSimulationResults)
	if err != nil {
		return nil, err
	}
	result := map[string]any{
		"run_id":   run.ID,
		"batch_id": run.BatchID,
		"gas_used": gas,
		"output":   tail(res.Stdout, 4000),
	}
	if err := o.blobs.WriteJSON(ctx, ver.Path(), result); err != nil {
		return nil, err
	}

	return o.settleRun(ctx, run, task, model.StatusSuccess,
		fmt.Sprintf("results recorded as %s v%d", ver.Kind, ver.Version), gas)
}

// settleRun records the run's terminal state; gasUsed is only meaningful on
// success and stays 0 on the failure paths.
func (o *Orchestrator) settleRun(ctx context.Context, run *model.SimulationRun, task queue.Task, status model.Status, message string, gasUsed int64) (*Result, error) {
	if err := o.store.UpdateSimulationRunStatus(ctx, run.ID, status, message, gasUsed); err != nil {
		return nil, err
	}
	return &Result{
		SubmissionID: run.SubmissionID,
		Step:         task.Step,
		Status:       status,
		Message:      message,
	}, nil
}

// parseGasUsed scans harness output for the last "gas_used: N" line.
func parseGasUsed(output string) int64 {
	var gas int64
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		rest, found := strings.CutPrefix(line, "gas_used:")
		if !found {
			continue
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64); err == nil {
			gas = n
		}
	}
	return gas
}
