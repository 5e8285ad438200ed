package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelkb/kestrel/internal/errors"
	"github.com/kestrelkb/kestrel/internal/jobs"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect background jobs",
	}
	cmd.AddCommand(newJobsListCmd(), newJobsGetCmd())
	return cmd
}

func newJobsListCmd() *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			list := eng.ListJobs(limit)
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			printJobList(cmd, list)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of jobs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newJobsGetCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, ok := eng.GetJob(args[0])
			if !ok {
				return errors.New(errors.KindNotFound, "job %q not found", args[0])
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(job)
			}
			printJob(cmd, job)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func printJobList(cmd *cobra.Command, list []*jobs.Job) {
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "no jobs")
		return
	}
	for _, j := range list {
		fmt.Fprintf(out, "%s  %-10s %-8s started %s\n", j.ID, j.Type, j.Status, j.StartedAt.Format("15:04:05"))
	}
}

func printJob(cmd *cobra.Command, j *jobs.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:        %s\n", j.ID)
	fmt.Fprintf(out, "type:      %s\n", j.Type)
	fmt.Fprintf(out, "status:    %s\n", j.Status)
	fmt.Fprintf(out, "started:   %s\n", j.StartedAt.Format("2006-01-02 15:04:05"))
	if !j.CompletedAt.IsZero() {
		fmt.Fprintf(out, "completed: %s\n", j.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if j.Result != "" {
		fmt.Fprintf(out, "result:    %s\n", j.Result)
	}
	if j.Error != "" {
		fmt.Fprintf(out, "error:     %s\n", j.Error)
	}
}
