package model

import "time"

// SimulationType distinguishes a single run from a batch parent.
type SimulationType string

const (
	SimulationTypeRun   SimulationType = "run"
	SimulationTypeBatch SimulationType = "batch"
)

// SimulationRun tracks one simulation execution, or a batch parent that
// owns N child runs referencing it via BatchID.
type SimulationRun struct {
	ID             string         `json:"id"`
	SubmissionID   string         `json:"submission_id"`
	BatchID        string         `json:"batch_id,omitempty"`
	Type           SimulationType `json:"type"`
	Status         Status         `json:"status"`
	Branch         string         `json:"branch,omitempty"`
	NumSimulations int            `json:"num_simulations,omitempty"`
	Message        string         `json:"message,omitempty"`
	GasUsed        int64          `json:"gas_used,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Scenario is one proposed simulation configuration derived from the
// actor summary. It is written into the scaffolded workspace's config.
type Scenario struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Actors      []ScenarioActor `json:"actors" yaml:"actors"`
	Steps       int             `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// ScenarioActor sets how many instances of an actor a scenario runs.
type ScenarioActor struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

// BatchProgress aggregates child run statuses for a batch.
type BatchProgress struct {
	Total      int `json:"total"`
	Scheduled  int `json:"scheduled"`
	InProgress int `json:"in_progress"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
}

// Done reports whether every created child has reached a terminal status
// and the batch has created all the runs it was asked for.
func (p BatchProgress) Done(target int) bool {
	return p.Total >= target && p.Scheduled == 0 && p.InProgress == 0
}
