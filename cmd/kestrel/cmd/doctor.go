package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelkb/kestrel/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run system diagnostics before relying on kestrel.

Checks:
  - Disk space (100MB minimum)
  - Memory availability (1GB minimum)
  - Write permissions
  - File descriptor limits (1024 minimum)
  - Embedder reachability (non-critical: search falls back to BM25-only)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, verbose, jsonOut)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOut bool) error {
	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)

	results := checker.RunAll(cmd.Context(), eng.DataDir(), eng.Embedder())

	if jsonOut {
		return outputDoctorJSON(cmd, checker, results)
	}

	checker.PrintResults(results)

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("system check failed")
	}
	return nil
}

type doctorJSONOutput struct {
	Status   string             `json:"status"`
	Checks   []doctorJSONResult `json:"checks"`
	Warnings []string           `json:"warnings,omitempty"`
	Errors   []string           `json:"errors,omitempty"`
}

type doctorJSONResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func outputDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	out := doctorJSONOutput{
		Status: checker.SummaryStatus(results),
		Checks: make([]doctorJSONResult, len(results)),
	}

	for i, r := range results {
		out.Checks[i] = doctorJSONResult{
			Name:     r.Name,
			Status:   r.Status.String(),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}
		if r.IsCritical() {
			out.Errors = append(out.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			out.Warnings = append(out.Warnings, r.Name+": "+r.Message)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
