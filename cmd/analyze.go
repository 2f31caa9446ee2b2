package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/svylabs/ilumina/internal/model"
	"github.com/svylabs/ilumina/internal/orchestrator"
	"github.com/svylabs/ilumina/internal/queue"
)

var analyzeStep string

// analyzeCmd runs one step in the foreground and prints the result instead
// of advancing the pipeline, the interactive counterpart of the /analyze
// endpoint.
var analyzeCmd = &cobra.Command{
	Use:   "analyze <submission-id>",
	Short: "Run a single pipeline step in the foreground",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		step := model.Step(analyzeStep)
		if analyzeStep == "" {
			sub, err := env.Store.GetSubmission(ctx, args[0])
			if err != nil {
				return err
			}
			step = nextForeground(sub)
		}

		result, err := env.Orch.Execute(ctx, queue.Task{
			SubmissionID:   args[0],
			Step:           step,
			RequestContext: "cli",
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// nextForeground picks the step to run for a submission when no explicit
// --step is given: advance past a completed step, retry the current one
// otherwise.
func nextForeground(sub *model.Submission) model.Step {
	return orchestrator.NextStep(sub.Step, sub.Status, "")
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeStep, "step", "", "step to run (default: the submission's next step)")
	rootCmd.AddCommand(analyzeCmd)
}
