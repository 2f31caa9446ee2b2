package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/svylabs/ilumina/internal/model"
)

var simulationsCmd = &cobra.Command{
	Use:   "simulations",
	Short: "Manage simulation runs and batches",
}

// -- simulations list --

var simulationsListCmd = &cobra.Command{
	Use:   "list <submission-id>",
	Short: "List simulation runs for a submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListSimulationRuns(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "simulations list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No simulation runs found.")
			return nil
		}

		formatSimulationRuns(os.Stdout, runs)
		return nil
	},
}

// -- simulations new --

var simulationsNewCmd = &cobra.Command{
	Use:   "new <submission-id>",
	Short: "Create and schedule a single simulation run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		branch, _ := cmd.Flags().GetString("branch")
		run, err := env.Orch.NewSimulationRun(ctx, args[0], branch)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- simulations batch --

var simulationsBatchCmd = &cobra.Command{
	Use:   "batch <submission-id>",
	Short: "Create a bounded-concurrency batch of simulation runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		num, _ := cmd.Flags().GetInt("num")
		branch, _ := cmd.Flags().GetString("branch")
		batch, err := env.Orch.NewBatch(ctx, args[0], num, branch)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(batch)
	},
}

func init() {
	simulationsNewCmd.Flags().String("branch", "", "harness branch to run")
	simulationsBatchCmd.Flags().Int("num", 1, "number of runs in the batch")
	simulationsBatchCmd.Flags().String("branch", "", "harness branch to run")

	simulationsCmd.AddCommand(simulationsListCmd)
	simulationsCmd.AddCommand(simulationsNewCmd)
	simulationsCmd.AddCommand(simulationsBatchCmd)
	rootCmd.AddCommand(simulationsCmd)
}

// formatSimulationRuns writes a tabular list of runs to w.
func formatSimulationRuns(out io.Writer, runs []model.SimulationRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tBATCH\tSTATUS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Type,
			truncateID(r.BatchID),
			r.Status,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}
