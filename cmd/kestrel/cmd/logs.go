package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kestrelkb/kestrel/internal/logging"
)

// noEngineCommands includes "logs" (see root.go): it reads whatever log
// file the engine already wrote, so it must not itself start another
// engine (and another log writer) just to report on one.
func newLogsCmd() *cobra.Command {
	var (
		follow  bool
		lines   int
		level   string
		filter  string
		noColor bool
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View or follow the kestrel engine log",
		Long: `Shows the last N lines of the engine's log file. Use -f to follow
new entries in real time, like 'tail -f'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd, logsOptions{
				follow:  follow,
				lines:   lines,
				level:   level,
				filter:  filter,
				noColor: noColor,
				logFile: logFile,
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow log output (like tail -f)")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines to show")
	cmd.Flags().StringVar(&level, "level", "", "filter by log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&filter, "filter", "", "filter by keyword/pattern (regex)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.Flags().StringVar(&logFile, "file", "", "path to log file (overrides the default engine.log location)")

	return cmd
}

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	logFile string
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	paths, err := logging.FindLogFileBySource(logging.LogSourceEngine, opts.logFile)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: opts.noColor,
	}, out)

	fmt.Fprintf(errOut, "Log file: %s\n", paths[0])
	if opts.follow {
		fmt.Fprintln(errOut, "Following... (Ctrl+C to stop)")
	}
	fmt.Fprintln(errOut, "---")

	if opts.follow {
		return runFollow(cmd.Context(), errOut, viewer, paths[0])
	}

	entries, err := viewer.Tail(paths[0], opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)
	return nil
}

func runFollow(ctx context.Context, errOut io.Writer, viewer *logging.Viewer, path string) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)

	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case entry := <-entries:
			fmt.Fprintln(os.Stdout, viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			fmt.Fprintln(errOut, "\n---\nStopped.")
			return nil
		}
	}
}
