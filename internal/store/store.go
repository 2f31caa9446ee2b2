package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/svylabs/ilumina/internal/model"
)

// ErrNotFound is returned when a requested record does not exist. Callers
// check it with eris.Is to distinguish a miss from a storage failure.
var ErrNotFound = eris.New("store: not found")

// SubmissionFilter specifies criteria for listing submissions.
type SubmissionFilter struct {
	Status model.Status `json:"status,omitempty"`
	Step   model.Step   `json:"step,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for the orchestrator.
//
// UpdateStepStatus is a read-modify-write at field level: concurrent
// writers to different fields are safe, and the completed-steps log is
// advisory. Every status update also appends an immutable SubmissionLog
// snapshot.
type Store interface {
	// Submissions
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error)
	UpdateStepStatus(ctx context.Context, id string, step model.Step, status model.Status, message string, meta *model.StepMetadata) error
	ListSubmissionLogs(ctx context.Context, submissionID string) ([]model.SubmissionLog, error)

	// Per-entity analysis records. Create is idempotent: a duplicate
	// (submission, contract[, function]) key returns created=false and
	// leaves the existing record untouched.
	CreateActionAnalysis(ctx context.Context, rec *model.ActionAnalysis) (created bool, err error)
	UpdateActionAnalysis(ctx context.Context, submissionID, contract, function string, step model.Step, status model.Status, message string) error
	ListActionAnalyses(ctx context.Context, submissionID string) ([]model.ActionAnalysis, error)
	CreateSnapshotAnalysis(ctx context.Context, rec *model.SnapshotAnalysis) (created bool, err error)
	UpdateSnapshotAnalysis(ctx context.Context, submissionID, contract string, step model.Step, status model.Status, message string) error
	ListSnapshotAnalyses(ctx context.Context, submissionID string) ([]model.SnapshotAnalysis, error)

	// Artifact versions: strictly increasing per (submission, kind), safe
	// under concurrent allocation.
	AllocateVersion(ctx context.Context, submissionID string, kind model.ArtifactKind) (model.ArtifactVersion, error)

	// Simulation runs and batches
	CreateSimulationRun(ctx context.Context, run *model.SimulationRun) error
	GetSimulationRun(ctx context.Context, id string) (*model.SimulationRun, error)
	UpdateSimulationRunStatus(ctx context.Context, id string, status model.Status, message string, gasUsed int64) error
	ListSimulationRuns(ctx context.Context, submissionID string) ([]model.SimulationRun, error)
	ListBatchRuns(ctx context.Context, batchID string) ([]model.SimulationRun, error)
	BatchProgress(ctx context.Context, batchID string) (model.BatchProgress, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
