package model

import "time"

// ActionAnalysis tracks one (submission, contract, function) pair through
// the per-action analyze and implement steps. Its lifecycle is independent
// of the parent submission; the owning child executor is its only writer.
type ActionAnalysis struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	ContractName string    `json:"contract_name"`
	FunctionName string    `json:"function_name"`
	Step         Step      `json:"step"`
	Status       Status    `json:"status"`
	Message      string    `json:"message,omitempty"`
	WorkspaceID  string    `json:"workspace_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SnapshotAnalysis tracks one (submission, contract) pair through the
// snapshot analysis step.
type SnapshotAnalysis struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	ContractName string    `json:"contract_name"`
	Step         Step      `json:"step"`
	Status       Status    `json:"status"`
	Message      string    `json:"message,omitempty"`
	WorkspaceID  string    `json:"workspace_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Actor is one simulated participant identified by the actor analysis,
// together with the contract functions it may call.
type Actor struct {
	Name    string        `json:"name"`
	Summary string        `json:"summary"`
	Actions []ActorAction `json:"actions"`
}

// ActorAction names a single contract function an actor can invoke.
type ActorAction struct {
	ContractName string `json:"contract_name"`
	FunctionName string `json:"function_name"`
	Summary      string `json:"summary,omitempty"`
}

// DeployedContract is one contract the deployment analysis expects the
// deployment script to instantiate.
type DeployedContract struct {
	Name         string   `json:"name"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// ProjectSummary is the versioned artifact produced by project analysis.
type ProjectSummary struct {
	Name      string            `json:"name"`
	Summary   string            `json:"summary"`
	DevTool   string            `json:"dev_tool,omitempty"`
	Contracts []ContractSummary `json:"contracts"`
}

// ContractSummary describes one contract found in the repository.
type ContractSummary struct {
	Name      string            `json:"name"`
	Summary   string            `json:"summary,omitempty"`
	Path      string            `json:"path,omitempty"`
	Functions []FunctionSummary `json:"functions,omitempty"`
}

// FunctionSummary describes one externally callable, state-mutating
// function of a contract. View functions are not listed; they never become
// simulated actions.
type FunctionSummary struct {
	Name    string `json:"name"`
	Summary string `json:"summary,omitempty"`
}

// ActorSummary is the versioned artifact produced by actor analysis.
type ActorSummary struct {
	Actors []Actor `json:"actors"`
}

// Contracts returns the distinct contract names referenced by any actor
// action, in first-seen order.
func (s ActorSummary) Contracts() []string {
	seen := map[string]bool{}
	var out []string
	for _, actor := range s.Actors {
		for _, action := range actor.Actions {
			if !seen[action.ContractName] {
				seen[action.ContractName] = true
				out = append(out, action.ContractName)
			}
		}
	}
	return out
}

// Actions returns every distinct (contract, function) pair referenced by
// any actor, in first-seen order.
func (s ActorSummary) Actions() []ActorAction {
	type key struct{ c, f string }
	seen := map[key]bool{}
	var out []ActorAction
	for _, actor := range s.Actors {
		for _, action := range actor.Actions {
			k := key{action.ContractName, action.FunctionName}
			if !seen[k] {
				seen[k] = true
				out = append(out, action)
			}
		}
	}
	return out
}

// DeploymentInstructions is the versioned artifact produced by deployment
// analysis: the ordered contract deployment sequence the script must follow.
type DeploymentInstructions struct {
	Sequence []DeployedContract `json:"sequence"`
	Notes    string             `json:"notes,omitempty"`
}
