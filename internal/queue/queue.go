// Package queue provides the at-least-once delayed-delivery task queue
// that drives the pipeline. Enqueuing a task schedules a future HTTP POST
// to the step handler; handlers must tolerate duplicate delivery.
package queue

import (
	"context"
	"time"

	"github.com/svylabs/ilumina/internal/model"
)

// Task is one unit of work delivered to the step handler as a JSON body.
type Task struct {
	SubmissionID   string               `json:"submission_id"`
	Step           model.Step           `json:"step"`
	RequestContext model.RequestContext `json:"request_context,omitempty"`
	ContractName   string               `json:"contract_name,omitempty"`
	FunctionName   string               `json:"function_name,omitempty"`
	SimulationID   string               `json:"simulation_id,omitempty"`
	BatchID        string               `json:"batch_id,omitempty"`

	// Delay overrides the queue's default scheduling delay when positive.
	Delay time.Duration `json:"-"`
}

// Queue schedules tasks for future delivery. Delivery is at-least-once;
// there is no cancellation of an enqueued task.
type Queue interface {
	Enqueue(ctx context.Context, task Task) (taskName string, err error)
}
