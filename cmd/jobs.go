package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/stbl-strategies/catalog-cli/internal/jobstate"
	"github.com/stbl-strategies/catalog-cli/internal/model"
	"github.com/stbl-strategies/catalog-cli/internal/store"
)

var (
	jobsStatus    string
	jobsPlatform  string
	jobsLimit     int
	jobsPruneDays int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage acquisition jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs in the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		jobs, err := st.ListJobs(ctx, store.JobFilter{
			Status:   model.JobStatus(jobsStatus),
			Platform: model.Platform(jobsPlatform),
			Limit:    jobsLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPLATFORM\tSTATUS\tPROGRESS\tERRORS\tSTARTED")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%d\t%s\n",
				j.ID, j.Platform, j.Status, j.Progress, len(j.Errors),
				j.StartedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job's live snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Prefer the state directory: it is fresher than the index while
		// a job is running.
		reader := jobstate.NewReader(cfg.Jobs.StateDir)
		job, err := reader.Snapshot(args[0])
		if err != nil {
			st, serr := initStore(cmd.Context())
			if serr != nil {
				return err
			}
			defer st.Close()
			job, serr = st.GetJob(cmd.Context(), args[0])
			if serr != nil {
				return err
			}
		}
		return printJSON(job)
	},
}

var jobsEventsCmd = &cobra.Command{
	Use:   "events <job-id>",
	Short: "Print a job's event stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := jobstate.NewReader(cfg.Jobs.StateDir)
		events, err := reader.Events(args[0], 0, 0)
		if err != nil {
			return err
		}
		for _, ev := range events {
			fmt.Printf("%s  %-8s %s\n", ev.Timestamp.Format(time.RFC3339), ev.Type, ev.Content)
		}
		return nil
	},
}

var jobsApproveCmd = &cobra.Command{
	Use:   "approve <job-id>",
	Short: "Release a job held at awaiting_qa",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Pipeline.Approve(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(job)
	},
}

var jobsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete finished jobs older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := st.PruneJobs(ctx, time.Duration(jobsPruneDays)*24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d jobs\n", n)
		return nil
	},
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status")
	jobsListCmd.Flags().StringVar(&jobsPlatform, "platform", "", "filter by platform (esp or sage)")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 0, "max rows (default 100)")
	jobsPruneCmd.Flags().IntVar(&jobsPruneDays, "older-than-days", 30, "retention window in days")

	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsEventsCmd, jobsApproveCmd, jobsPruneCmd)
	rootCmd.AddCommand(jobsCmd)
}
