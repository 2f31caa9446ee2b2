package orchestrator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/svylabs/ilumina/internal/model"
	"github.com/svylabs/ilumina/internal/queue"
	"github.com/svylabs/ilumina/internal/store"
)

// mockStore implements store.Store for executor tests.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *mockStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Submission), args.Error(1)
}

func (m *mockStore) ListSubmissions(ctx context.Context, filter store.SubmissionFilter) ([]model.Submission, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Submission), args.Error(1)
}

func (m *mockStore) UpdateStepStatus(ctx context.Context, id string, step model.Step, status model.Status, message string, meta *model.StepMetadata) error {
	return m.Called(ctx, id, step, status, message, meta).Error(0)
}

func (m *mockStore) ListSubmissionLogs(ctx context.Context, submissionID string) ([]model.SubmissionLog, error) {
	args := m.Called(ctx, submissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SubmissionLog), args.Error(1)
}

func (m *mockStore) CreateActionAnalysis(ctx context.Context, rec *model.ActionAnalysis) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) UpdateActionAnalysis(ctx context.Context, submissionID, contract, function string, step model.Step, status model.Status, message string) error {
	return m.Called(ctx, submissionID, contract, function, step, status, message).Error(0)
}

func (m *mockStore) ListActionAnalyses(ctx context.Context, submissionID string) ([]model.ActionAnalysis, error) {
	args := m.Called(ctx, submissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ActionAnalysis), args.Error(1)
}

func (m *mockStore) CreateSnapshotAnalysis(ctx context.Context, rec *model.SnapshotAnalysis) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) UpdateSnapshotAnalysis(ctx context.Context, submissionID, contract string, step model.Step, status model.Status, message string) error {
	return m.Called(ctx, submissionID, contract, step, status, message).Error(0)
}

func (m *mockStore) ListSnapshotAnalyses(ctx context.Context, submissionID string) ([]model.SnapshotAnalysis, error) {
	args := m.Called(ctx, submissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SnapshotAnalysis), args.Error(1)
}

func (m *mockStore) AllocateVersion(ctx context.Context, submissionID string, kind model.ArtifactKind) (model.ArtifactVersion, error) {
	args := m.Called(ctx, submissionID, kind)
	return args.Get(0).(model.ArtifactVersion), args.Error(1)
}

func (m *mockStore) CreateSimulationRun(ctx context.Context, run *model.SimulationRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *mockStore) GetSimulationRun(ctx context.Context, id string) (*model.SimulationRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SimulationRun), args.Error(1)
}

func (m *mockStore) UpdateSimulationRunStatus(ctx context.Context, id string, status model.Status, message string, gasUsed int64) error {
	return m.Called(ctx, id, status, message, gasUsed).Error(0)
}

func (m *mockStore) ListSimulationRuns(ctx context.Context, submissionID string) ([]model.SimulationRun, error) {
	args := m.Called(ctx, submissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SimulationRun), args.Error(1)
}

func (m *mockStore) ListBatchRuns(ctx context.Context, batchID string) ([]model.SimulationRun, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SimulationRun), args.Error(1)
}

func (m *mockStore) BatchProgress(ctx context.Context, batchID string) (model.BatchProgress, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).(model.BatchProgress), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

// captureQueue records every enqueued task in order.
type captureQueue struct {
	mu    sync.Mutex
	tasks []queue.Task
	err   error
}

func (q *captureQueue) Enqueue(_ context.Context, task queue.Task) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.tasks = append(q.tasks, task)
	return "task-test", nil
}

func (q *captureQueue) steps() []model.Step {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.Step, len(q.tasks))
	for i, t := range q.tasks {
		out[i] = t.Step
	}
	return out
}

// memBlob is an in-memory blob.Store.
type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlob() *memBlob {
	return &memBlob{objects: map[string][]byte{}}
}

func (b *memBlob) WriteJSON(_ context.Context, path string, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.objects[path] = data
	return nil
}

func (b *memBlob) ReadJSON(_ context.Context, path string, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[path]
	if !ok {
		return store.ErrNotFound
	}
	return json.Unmarshal(data, v)
}

func (b *memBlob) Exists(_ context.Context, path string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[path]
	return ok, nil
}
