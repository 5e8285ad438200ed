package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelkb/kestrel/internal/errors"
	"github.com/kestrelkb/kestrel/internal/ingest"
	"github.com/kestrelkb/kestrel/internal/jobs"
	"github.com/kestrelkb/kestrel/internal/profiling"
	"github.com/kestrelkb/kestrel/internal/ui"
)

func newSyncCmd() *cobra.Command {
	var (
		gitPull      bool
		runUpdateCmd bool
		noTUI        bool
		wait         bool
		cpuProfile   string
		heapProfile  string
	)

	cmd := &cobra.Command{
		Use:   "sync <collection>",
		Short: "Sync a collection's files into the index",
		Long: `Re-scans a collection's root, converting changed files, re-chunking,
re-embedding, and re-linking them. Runs as a background job; pass
--wait to block until it finishes with a live progress view.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args[0], ingest.SyncOptions{
				GitPull:      gitPull,
				RunUpdateCmd: runUpdateCmd,
			}, noTUI, wait, cpuProfile, heapProfile)
		},
	}

	cmd.Flags().BoolVar(&gitPull, "git-pull", false, "run `git pull` in the collection root before syncing, if VCSPull is enabled")
	cmd.Flags().BoolVar(&runUpdateCmd, "run-update-command", false, "run the collection's configured pre-sync command before syncing")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "force plain text progress output")
	cmd.Flags().BoolVar(&wait, "wait", true, "block until the sync job finishes")
	cmd.Flags().StringVar(&cpuProfile, "profile-cpu", "", "write a CPU profile to this path for the duration of the sync")
	cmd.Flags().StringVar(&heapProfile, "profile-heap", "", "write a heap profile to this path after the sync completes")

	return cmd
}

func runSync(cmd *cobra.Command, collectionName string, opts ingest.SyncOptions, noTUI, wait bool, cpuProfile, heapProfile string) error {
	ctx := cmd.Context()

	col, err := eng.Store().GetCollection(ctx, collectionName)
	if err != nil {
		return err
	}

	if (cpuProfile != "" || heapProfile != "") && !wait {
		return errors.New(errors.KindInvalidInput, "--profile-cpu/--profile-heap require --wait: sync runs as a background job, so nothing is captured once this command returns early")
	}

	if cpuProfile != "" {
		profiler := profiling.NewProfiler()
		stopCPU, err := profiler.StartCPU(cpuProfile)
		if err != nil {
			return fmt.Errorf("start cpu profile: %w", err)
		}
		defer stopCPU()
		if heapProfile != "" {
			defer func() { _ = profiler.WriteHeap(heapProfile) }()
		}
	} else if heapProfile != "" {
		defer func() { _ = profiling.NewProfiler().WriteHeap(heapProfile) }()
	}

	jobID, err := eng.Sync(ctx, *col, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "started sync job %s for collection %q\n", jobID, col.Name)
	if !wait {
		return nil
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(noTUI),
		ui.WithProjectDir(col.Root),
	))
	if err := renderer.Start(ctx); err != nil {
		return err
	}

	job := waitForJob(ctx, renderer, jobID)

	switch job.Status {
	case jobs.StatusCompleted:
		renderer.Complete(ui.CompletionStats{})
		_ = renderer.Stop()
		fmt.Fprintln(cmd.OutOrStdout(), job.Result)
		return nil
	case jobs.StatusFailed:
		_ = renderer.Stop()
		return errors.New(errors.KindIngestError, "sync failed: %s", job.Error)
	default:
		_ = renderer.Stop()
		return errors.New(errors.KindRuntime, "sync job %s did not reach a terminal state", jobID)
	}
}

// waitForJob polls the job manager and feeds the renderer an
// indeterminate spinner until the job reaches a terminal state. Sync's
// job model (spec §4.4) reports only running/completed/failed, so the
// CLI cannot show true per-stage progress without the engine exposing
// stage callbacks it doesn't have; the spinner communicates liveness
// instead.
func waitForJob(ctx context.Context, renderer ui.Renderer, jobID string) *jobs.Job {
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, ok := eng.GetJob(jobID)
		if ok && job.Status != jobs.StatusRunning {
			return job
		}

		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageScanning,
			Message: "syncing...",
		})

		select {
		case <-ctx.Done():
			return &jobs.Job{ID: jobID, Status: jobs.StatusFailed, Error: ctx.Err().Error()}
		case <-ticker.C:
		}
	}
}
