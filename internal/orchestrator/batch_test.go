package orchestrator

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/svylabs/ilumina/internal/model"
	"github.com/svylabs/ilumina/internal/queue"
)

func TestAdmission(t *testing.T) {
	cases := []struct {
		name       string
		max        int
		inProgress int
		remaining  int
		want       int
	}{
		{"empty batch start", 5, 0, 10, 5},
		{"ceiling full", 5, 5, 10, 0},
		{"one free slot", 5, 4, 10, 1},
		{"remaining below ceiling", 5, 0, 3, 3},
		{"nothing left to create", 5, 2, 0, 0},
		{"over-admitted never goes negative", 5, 7, 10, 0},
		{"negative remaining clamps to zero", 5, 0, -2, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, admission(tc.max, tc.inProgress, tc.remaining))
		})
	}
}

func TestParseGasUsed(t *testing.T) {
	out := `starting simulation
step 12 complete
gas_used: 41200
step 99 complete
gas_used: 183450
done`
	assert.Equal(t, int64(183450), parseGasUsed(out))
	assert.Equal(t, int64(0), parseGasUsed("no gas lines here"))
	assert.Equal(t, int64(0), parseGasUsed("gas_used: not-a-number"))
	assert.Equal(t, int64(7), parseGasUsed("  gas_used:   7  "))
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("short", 100))
	assert.Equal(t, "cdef", tail("abcdef", 4))
	assert.Equal(t, "", tail("", 10))
}

func TestNewBatch_RejectsNonPositiveCount(t *testing.T) {
	o := newTestOrchestrator(t, &mockStore{}, &captureQueue{}, newMemBlob())

	_, err := o.NewBatch(context.Background(), "sub1", 0, "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrPrerequisite))

	_, err = o.NewBatch(context.Background(), "sub1", -3, "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrPrerequisite))
}

func TestNewBatch_CreatesParentAndSchedulesSplit(t *testing.T) {
	ctx := context.Background()
	st := &mockStore{}
	st.On("GetSubmission", mock.Anything, "sub1").Return(&model.Submission{ID: "sub1"}, nil)
	st.On("CreateSimulationRun", mock.Anything, mock.MatchedBy(func(r *model.SimulationRun) bool {
		return r.Type == model.SimulationTypeBatch &&
			r.Status == model.StatusInProgress &&
			r.NumSimulations == 10
	})).Return(nil)

	q := &captureQueue{}
	o := newTestOrchestrator(t, st, q, newMemBlob())

	batch, err := o.NewBatch(ctx, "sub1", 10, "main")
	require.NoError(t, err)
	assert.Equal(t, "main", batch.Branch)

	steps := q.steps()
	require.Len(t, steps, 1)
	assert.Equal(t, model.StepSplitBatch, steps[0])
	assert.Equal(t, batch.ID, q.tasks[0].SimulationID)
	st.AssertExpectations(t)
}

func TestExecuteSplitBatch_AdmitsUpToCeiling(t *testing.T) {
	ctx := context.Background()
	batch := &model.SimulationRun{
		ID:             "batch1",
		SubmissionID:   "sub1",
		Type:           model.SimulationTypeBatch,
		Status:         model.StatusInProgress,
		NumSimulations: 10,
		Branch:         "main",
	}

	st := &mockStore{}
	st.On("GetSimulationRun", mock.Anything, "batch1").Return(batch, nil)
	st.On("BatchProgress", mock.Anything, "batch1").Return(model.BatchProgress{}, nil)
	st.On("CreateSimulationRun", mock.Anything, mock.MatchedBy(func(r *model.SimulationRun) bool {
		return r.BatchID == "batch1" &&
			r.Type == model.SimulationTypeRun &&
			r.Status == model.StatusScheduled &&
			r.Branch == "main"
	})).Return(nil).Times(5)

	q := &captureQueue{}
	o := newTestOrchestrator(t, st, q, newMemBlob())

	res, err := o.Execute(ctx, queue.Task{
		SubmissionID:   "sub1",
		Step:           model.StepSplitBatch,
		RequestContext: model.ContextBackground,
		SimulationID:   "batch1",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusInProgress, res.Status)
	assert.Contains(t, res.Message, "admitted 5 runs (5 of 10 created)")

	// Five run tasks plus the delayed self-reschedule.
	steps := q.steps()
	require.Len(t, steps, 6)
	for i := 0; i < 5; i++ {
		assert.Equal(t, model.StepRunSimulation, steps[i])
	}
	assert.Equal(t, model.StepSplitBatch, steps[5])
	assert.Positive(t, q.tasks[5].Delay)
	st.AssertExpectations(t)
}

func TestExecuteSplitBatch_HoldsWhileChildrenRun(t *testing.T) {
	ctx := context.Background()
	batch := &model.SimulationRun{
		ID:             "batch1",
		SubmissionID:   "sub1",
		Type:           model.SimulationTypeBatch,
		Status:         model.StatusInProgress,
		NumSimulations: 10,
	}

	st := &mockStore{}
	st.On("GetSimulationRun", mock.Anything, "batch1").Return(batch, nil)
	// Ceiling saturated: five created, all still running.
	st.On("BatchProgress", mock.Anything, "batch1").Return(model.BatchProgress{
		Total:      5,
		InProgress: 5,
	}, nil)

	q := &captureQueue{}
	o := newTestOrchestrator(t, st, q, newMemBlob())

	res, err := o.Execute(ctx, queue.Task{
		SubmissionID:   "sub1",
		Step:           model.StepSplitBatch,
		RequestContext: model.ContextBackground,
		SimulationID:   "batch1",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusInProgress, res.Status)
	assert.Contains(t, res.Message, "admitted 0 runs")

	// Only the self-reschedule; no new children.
	steps := q.steps()
	require.Len(t, steps, 1)
	assert.Equal(t, model.StepSplitBatch, steps[0])
	st.AssertNotCalled(t, "CreateSimulationRun", mock.Anything, mock.Anything)
}

func TestExecuteSplitBatch_SettlesOnCompletion(t *testing.T) {
	ctx := context.Background()
	batch := &model.SimulationRun{
		ID:             "batch1",
		SubmissionID:   "sub1",
		Type:           model.SimulationTypeBatch,
		Status:         model.StatusInProgress,
		NumSimulations: 10,
	}

	st := &mockStore{}
	st.On("GetSimulationRun", mock.Anything, "batch1").Return(batch, nil)
	st.On("BatchProgress", mock.Anything, "batch1").Return(model.BatchProgress{
		Total:     10,
		Succeeded: 10,
	}, nil)
	st.On("UpdateSimulationRunStatus", mock.Anything, "batch1", model.StatusSuccess, mock.Anything, int64(0)).Return(nil)

	q := &captureQueue{}
	o := newTestOrchestrator(t, st, q, newMemBlob())

	res, err := o.Execute(ctx, queue.Task{
		SubmissionID:   "sub1",
		Step:           model.StepSplitBatch,
		RequestContext: model.ContextBackground,
		SimulationID:   "batch1",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Contains(t, res.Message, "10 succeeded, 0 failed")
	assert.Empty(t, q.steps())
	st.AssertExpectations(t)
}

func TestExecuteSplitBatch_SettlesErrorOnFailedChildren(t *testing.T) {
	ctx := context.Background()
	batch := &model.SimulationRun{
		ID:             "batch1",
		SubmissionID:   "sub1",
		Type:           model.SimulationTypeBatch,
		Status:         model.StatusInProgress,
		NumSimulations: 4,
	}

	st := &mockStore{}
	st.On("GetSimulationRun", mock.Anything, "batch1").Return(batch, nil)
	st.On("BatchProgress", mock.Anything, "batch1").Return(model.BatchProgress{
		Total:     4,
		Succeeded: 3,
		Failed:    1,
	}, nil)
	st.On("UpdateSimulationRunStatus", mock.Anything, "batch1", model.StatusError, mock.Anything, int64(0)).Return(nil)

	q := &captureQueue{}
	o := newTestOrchestrator(t, st, q, newMemBlob())

	res, err := o.Execute(ctx, queue.Task{
		SubmissionID:   "sub1",
		Step:           model.StepSplitBatch,
		RequestContext: model.ContextBackground,
		SimulationID:   "batch1",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusError, res.Status)
	assert.Contains(t, res.Message, "3 succeeded, 1 failed")
	st.AssertExpectations(t)
}

func TestExecuteSplitBatch_SettledBatchIsNoOp(t *testing.T) {
	ctx := context.Background()
	batch := &model.SimulationRun{
		ID:           "batch1",
		SubmissionID: "sub1",
		Type:         model.SimulationTypeBatch,
		Status:       model.StatusSuccess,
	}

	st := &mockStore{}
	st.On("GetSimulationRun", mock.Anything, "batch1").Return(batch, nil)

	q := &captureQueue{}
	o := newTestOrchestrator(t, st, q, newMemBlob())

	res, err := o.Execute(ctx, queue.Task{
		SubmissionID:   "sub1",
		Step:           model.StepSplitBatch,
		RequestContext: model.ContextBackground,
		SimulationID:   "batch1",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Contains(t, res.Message, "already settled")
	assert.Empty(t, q.steps())
	st.AssertNotCalled(t, "BatchProgress", mock.Anything, mock.Anything)
}

func TestExecuteSplitBatch_RejectsNonBatchRun(t *testing.T) {
	ctx := context.Background()
	run := &model.SimulationRun{
		ID:           "run1",
		SubmissionID: "sub1",
		Type:         model.SimulationTypeRun,
		Status:       model.StatusScheduled,
	}

	st := &mockStore{}
	st.On("GetSimulationRun", mock.Anything, "run1").Return(run, nil)

	o := newTestOrchestrator(t, st, &captureQueue{}, newMemBlob())

	_, err := o.Execute(ctx, queue.Task{
		SubmissionID:   "sub1",
		Step:           model.StepSplitBatch,
		RequestContext: model.ContextBackground,
		SimulationID:   "run1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a batch")
}

func TestSettleRun_RecordsGasUsed(t *testing.T) {
	ctx := context.Background()
	run := &model.SimulationRun{ID: "run1", SubmissionID: "sub1", Type: model.SimulationTypeRun}

	st := &mockStore{}
	st.On("UpdateSimulationRunStatus", mock.Anything, "run1", model.StatusSuccess, "results recorded", int64(183450)).Return(nil)

	o := newTestOrchestrator(t, st, &captureQueue{}, newMemBlob())

	res, err := o.settleRun(ctx, run, queue.Task{Step: model.StepRunSimulation}, model.StatusSuccess, "results recorded", 183450)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, res.Status)
	st.AssertExpectations(t)
}

func TestExecuteRunSimulation_CompletedRunIsNoOp(t *testing.T) {
	ctx := context.Background()
	run := &model.SimulationRun{
		ID:           "run1",
		SubmissionID: "sub1",
		Type:         model.SimulationTypeRun,
		Status:       model.StatusSuccess,
	}

	st := &mockStore{}
	st.On("GetSimulationRun", mock.Anything, "run1").Return(run, nil)

	q := &captureQueue{}
	o := newTestOrchestrator(t, st, q, newMemBlob())

	res, err := o.Execute(ctx, queue.Task{
		SubmissionID:   "sub1",
		Step:           model.StepRunSimulation,
		RequestContext: model.ContextBackground,
		SimulationID:   "run1",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Contains(t, res.Message, "already complete")
	st.AssertNotCalled(t, "UpdateSimulationRunStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
