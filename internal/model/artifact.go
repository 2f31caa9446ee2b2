package model

import "fmt"

// ArtifactKind names a class of generated artifact whose versions are
// allocated monotonically per submission.
type ArtifactKind string

const (
	ArtifactProjectSummary         ArtifactKind = "summary"
	ArtifactActorSummary           ArtifactKind = "actor-summary"
	ArtifactDeploymentInstructions ArtifactKind = "deployment-instructions"
	ArtifactSimulationResults      ArtifactKind = "simulations"
)

// ArtifactVersion is one allocated slot in the blob store. Writes never
// overwrite: each regeneration gets a fresh version and the submission
// records which one won.
type ArtifactVersion struct {
	SubmissionID string       `json:"submission_id"`
	Kind         ArtifactKind `json:"kind"`
	Version      int          `json:"version"`
}

// Path returns the blob store object path for this version.
func (v ArtifactVersion) Path() string {
	return fmt.Sprintf("workspaces/%s/%s/v%d.json", v.SubmissionID, v.Kind, v.Version)
}
