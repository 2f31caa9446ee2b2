package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/svylabs/ilumina/internal/model"
	"github.com/svylabs/ilumina/internal/queue"
)

func TestExecute_RejectsUnknownStep(t *testing.T) {
	o := newTestOrchestrator(t, &mockStore{}, &captureQueue{}, newMemBlob())

	_, err := o.Execute(context.Background(), queue.Task{
		SubmissionID: "sub1",
		Step:         "not_a_step",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestRoute_EnqueuesNextStep(t *testing.T) {
	ctx := context.Background()
	sub := &model.Submission{
		ID:     "sub1",
		Step:   model.StepAnalyzeProject,
		Status: model.StatusSuccess,
	}

	st := &mockStore{}
	st.On("GetSubmission", mock.Anything, "sub1").Return(sub, nil)

	q := &captureQueue{}
	o := newTestOrchestrator(t, st, q, newMemBlob())

	next, err := o.Route(ctx, "sub1", "")
	require.NoError(t, err)
	assert.Equal(t, model.StepAnalyzeActors, next)

	require.Len(t, q.tasks, 1)
	assert.Equal(t, model.StepAnalyzeActors, q.tasks[0].Step)
	assert.True(t, q.tasks[0].RequestContext.Background())
}

func TestRoute_TerminalEnqueuesNothing(t *testing.T) {
	ctx := context.Background()
	sub := &model.Submission{
		ID:     "sub1",
		Step:   model.StepImplementAllActions,
		Status: model.StatusSuccess,
	}

	st := &mockStore{}
	st.On("GetSubmission", mock.Anything, "sub1").Return(sub, nil)

	q := &captureQueue{}
	o := newTestOrchestrator(t, st, q, newMemBlob())

	next, err := o.Route(ctx, "sub1", "")
	require.NoError(t, err)
	assert.Equal(t, StepNone, next)
	assert.Empty(t, q.steps())
}

func TestRoute_OverrideWins(t *testing.T) {
	ctx := context.Background()
	sub := &model.Submission{
		ID:     "sub1",
		Step:   model.StepAnalyzeProject,
		Status: model.StatusSuccess,
	}

	st := &mockStore{}
	st.On("GetSubmission", mock.Anything, "sub1").Return(sub, nil)

	q := &captureQueue{}
	o := newTestOrchestrator(t, st, q, newMemBlob())

	next, err := o.Route(ctx, "sub1", model.StepVerifyDeploymentScript)
	require.NoError(t, err)
	assert.Equal(t, model.StepVerifyDeploymentScript, next)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, model.StepVerifyDeploymentScript, q.tasks[0].Step)
}

func TestRoute_FreshSubmissionRestartsAnalysis(t *testing.T) {
	ctx := context.Background()
	sub := &model.Submission{ID: "sub1", Status: model.StatusCreated}

	st := &mockStore{}
	st.On("GetSubmission", mock.Anything, "sub1").Return(sub, nil)

	q := &captureQueue{}
	o := newTestOrchestrator(t, st, q, newMemBlob())

	next, err := o.Route(ctx, "sub1", "")
	require.NoError(t, err)
	assert.Equal(t, model.StepAnalyzeProject, next)
}

func TestVerifyFailure_AutoSchedulesDebug(t *testing.T) {
	ctx := context.Background()
	// No deployment script exists in the workspace, so verification fails
	// before anything runs.
	sub := &model.Submission{ID: "sub1", Step: model.StepVerifyDeploymentScript}

	st := &mockStore{}
	st.On("GetSubmission", mock.Anything, "sub1").Return(sub, nil)
	st.On("UpdateStepStatus", mock.Anything, "sub1", model.StepVerifyDeploymentScript, model.StatusInProgress, mock.Anything, mock.Anything).Return(nil)
	st.On("UpdateStepStatus", mock.Anything, "sub1", model.StepVerifyDeploymentScript, model.StatusError, mock.Anything, mock.Anything).Return(nil)

	q := &captureQueue{}
	o := newTestOrchestrator(t, st, q, newMemBlob())

	res, err := o.Execute(ctx, queue.Task{
		SubmissionID:   "sub1",
		Step:           model.StepVerifyDeploymentScript,
		RequestContext: model.ContextBackground,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusError, res.Status)

	// The verify step is the single error edge with an automatic recovery.
	steps := q.steps()
	require.Len(t, steps, 1)
	assert.Equal(t, model.StepDebugDeploymentScript, steps[0])
}

func TestVerifyFailure_ForegroundDoesNotSchedule(t *testing.T) {
	ctx := context.Background()
	sub := &model.Submission{ID: "sub1", Step: model.StepVerifyDeploymentScript}

	st := &mockStore{}
	st.On("GetSubmission", mock.Anything, "sub1").Return(sub, nil)
	st.On("UpdateStepStatus", mock.Anything, "sub1", model.StepVerifyDeploymentScript, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	q := &captureQueue{}
	o := newTestOrchestrator(t, st, q, newMemBlob())

	res, err := o.Execute(ctx, queue.Task{
		SubmissionID:   "sub1",
		Step:           model.StepVerifyDeploymentScript,
		RequestContext: "cli",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusError, res.Status)
	assert.Empty(t, q.steps())
}

func TestArtifact_MissingVersionIsPrerequisite(t *testing.T) {
	sub := &model.Submission{ID: "sub1"}
	o := newTestOrchestrator(t, &mockStore{}, &captureQueue{}, newMemBlob())

	var summary model.ProjectSummary
	err := o.artifact(context.Background(), sub, model.StepAnalyzeProject, model.ArtifactProjectSummary, &summary)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrerequisite)
}

func TestArtifact_ReadsRecordedVersionNotLatest(t *testing.T) {
	ctx := context.Background()
	sub := &model.Submission{
		ID: "sub1",
		StepMetadata: map[model.Step]model.StepMetadata{
			model.StepAnalyzeProject: {ArtifactVersion: 1},
		},
	}

	blobs := newMemBlob()
	v1 := model.ArtifactVersion{SubmissionID: "sub1", Kind: model.ArtifactProjectSummary, Version: 1}
	v2 := model.ArtifactVersion{SubmissionID: "sub1", Kind: model.ArtifactProjectSummary, Version: 2}
	require.NoError(t, blobs.WriteJSON(ctx, v1.Path(), model.ProjectSummary{Name: "recorded"}))
	// A later allocation whose producing step never finished.
	require.NoError(t, blobs.WriteJSON(ctx, v2.Path(), model.ProjectSummary{Name: "orphaned"}))

	o := newTestOrchestrator(t, &mockStore{}, &captureQueue{}, blobs)

	var summary model.ProjectSummary
	require.NoError(t, o.artifact(ctx, sub, model.StepAnalyzeProject, model.ArtifactProjectSummary, &summary))
	assert.Equal(t, "recorded", summary.Name)
}

func TestReuseArtifact(t *testing.T) {
	ctx := context.Background()

	t.Run("no recorded version means no reuse", func(t *testing.T) {
		sub := &model.Submission{ID: "sub1"}
		o := newTestOrchestrator(t, &mockStore{}, &captureQueue{}, newMemBlob())
		assert.Nil(t, o.reuseArtifact(ctx, sub, model.StepAnalyzeProject, model.ArtifactProjectSummary))
	})

	t.Run("recorded version with missing blob regenerates", func(t *testing.T) {
		sub := &model.Submission{
			ID: "sub1",
			StepMetadata: map[model.Step]model.StepMetadata{
				model.StepAnalyzeProject: {ArtifactVersion: 3},
			},
		}
		o := newTestOrchestrator(t, &mockStore{}, &captureQueue{}, newMemBlob())
		assert.Nil(t, o.reuseArtifact(ctx, sub, model.StepAnalyzeProject, model.ArtifactProjectSummary))
	})

	t.Run("recorded version with existing blob short-circuits", func(t *testing.T) {
		sub := &model.Submission{
			ID: "sub1",
			StepMetadata: map[model.Step]model.StepMetadata{
				model.StepAnalyzeProject: {ArtifactVersion: 3},
			},
		}
		blobs := newMemBlob()
		ver := model.ArtifactVersion{SubmissionID: "sub1", Kind: model.ArtifactProjectSummary, Version: 3}
		require.NoError(t, blobs.WriteJSON(ctx, ver.Path(), model.ProjectSummary{Name: "p"}))

		o := newTestOrchestrator(t, &mockStore{}, &captureQueue{}, blobs)
		out := o.reuseArtifact(ctx, sub, model.StepAnalyzeProject, model.ArtifactProjectSummary)
		require.NotNil(t, out)
		assert.Equal(t, 3, out.meta.ArtifactVersion)
		assert.Contains(t, out.message, "already recorded")
	})
}

func TestStepSucceeded(t *testing.T) {
	sub := &model.Submission{
		CompletedSteps: []model.CompletedStep{
			{Step: model.StepAnalyzeProject, Status: model.StatusError},
			{Step: model.StepAnalyzeProject, Status: model.StatusSuccess},
			{Step: model.StepAnalyzeActors, Status: model.StatusInProgress},
		},
	}
	assert.True(t, stepSucceeded(sub, model.StepAnalyzeProject))
	assert.False(t, stepSucceeded(sub, model.StepAnalyzeActors))
	assert.False(t, stepSucceeded(sub, model.StepScaffold))
}
