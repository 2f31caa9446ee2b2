package model

import "time"

// Submission is one end-to-end pipeline instance for a single repository.
// It is created once at intake, mutated by every step executor, and never
// deleted. Each executor only updates its own step's fields and appends to
// the completed-steps log.
type Submission struct {
	ID            string                  `json:"submission_id"`
	RepositoryURL string                  `json:"repository_url"`
	RunID         string                  `json:"run_id,omitempty"`
	Step          Step                    `json:"step,omitempty"`
	Status        Status                  `json:"status,omitempty"`
	Message       string                  `json:"message,omitempty"`
	CompletedSteps []CompletedStep        `json:"completed_steps,omitempty"`
	StepMetadata  map[Step]StepMetadata   `json:"step_metadata,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// CompletedStep is one entry in the submission's ordered audit log.
type CompletedStep struct {
	Step      Step      `json:"step"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepMetadata holds step-specific fields recorded alongside a status
// update: artifact versions that "won", fan-out expectations, timeout
// markers for log handling.
type StepMetadata struct {
	ArtifactVersion  int    `json:"artifact_version,omitempty"`
	ExpectedChildren int    `json:"expected_children,omitempty"`
	WorkspaceID      string `json:"workspace_id,omitempty"`
	NoLog            bool   `json:"no_log,omitempty"`
	ExitCode         *int   `json:"exit_code,omitempty"`
}

// Metadata returns the metadata recorded for a step, or the zero value.
func (s *Submission) Metadata(step Step) StepMetadata {
	if s.StepMetadata == nil {
		return StepMetadata{}
	}
	return s.StepMetadata[step]
}

// SubmissionLog is an immutable snapshot of a Submission taken after every
// status update, used only for audit and history queries.
type SubmissionLog struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	Step         Step      `json:"step"`
	Status       Status    `json:"status"`
	Message      string    `json:"message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
