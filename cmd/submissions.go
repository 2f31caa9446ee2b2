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
	"github.com/svylabs/ilumina/internal/store"
)

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "Inspect pipeline submissions",
	Long:  "Commands for listing, viewing, and auditing submissions.",
}

// -- submissions list --

var submissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List submissions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		step, _ := cmd.Flags().GetString("step")
		limit, _ := cmd.Flags().GetInt("limit")

		subs, err := st.ListSubmissions(ctx, store.SubmissionFilter{
			Status: model.Status(status),
			Step:   model.Step(step),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "submissions list")
		}

		if len(subs) == 0 {
			fmt.Fprintln(os.Stderr, "No submissions found.")
			return nil
		}

		formatSubmissionsList(os.Stdout, subs)
		return nil
	},
}

// -- submissions show --

var submissionsShowCmd = &cobra.Command{
	Use:   "show <submission-id>",
	Short: "Show full details of a submission",
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

		sub, err := st.GetSubmission(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "submissions show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sub)
	},
}

// -- submissions history --

var submissionsHistoryCmd = &cobra.Command{
	Use:   "history <submission-id>",
	Short: "Show the ordered audit log of a submission",
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

		logs, err := st.ListSubmissionLogs(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "submissions history")
		}

		if len(logs) == 0 {
			fmt.Fprintln(os.Stderr, "No history found.")
			return nil
		}

		formatHistory(os.Stdout, logs)
		return nil
	},
}

func init() {
	submissionsListCmd.Flags().String("status", "", "filter by status (created, scheduled, in_progress, success, error)")
	submissionsListCmd.Flags().String("step", "", "filter by current step")
	submissionsListCmd.Flags().Int("limit", 50, "max number of submissions to display")

	submissionsCmd.AddCommand(submissionsListCmd)
	submissionsCmd.AddCommand(submissionsShowCmd)
	submissionsCmd.AddCommand(submissionsHistoryCmd)
	rootCmd.AddCommand(submissionsCmd)
}

// formatSubmissionsList writes a tabular list of submissions to w.
func formatSubmissionsList(out io.Writer, subs []model.Submission) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tREPOSITORY\tSTEP\tSTATUS\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t----------\t----\t------\t-------")

	for _, s := range subs {
		repo := s.RepositoryURL
		if len(repo) > 40 {
			repo = repo[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(s.ID),
			repo,
			s.Step,
			s.Status,
			s.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatHistory writes the audit log to w.
func formatHistory(out io.Writer, logs []model.SubmissionLog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tSTEP\tSTATUS\tMESSAGE")
	_, _ = fmt.Fprintln(w, "----\t----\t------\t-------")

	for _, l := range logs {
		msg := l.Message
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			l.CreatedAt.Format(time.RFC3339),
			l.Step,
			l.Status,
			msg,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
