package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelkb/kestrel/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show query telemetry",
		Long:  `Display statistics about query patterns, performance, and usage, recorded locally by every search command.`,
	}
	cmd.AddCommand(newStatsQueriesCmd())
	return cmd
}

func newStatsQueriesCmd() *cobra.Command {
	var (
		jsonOut bool
		days    int
	)

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Show query pattern statistics",
		Long: `Display query telemetry including query type distribution, top
query terms, zero-result queries, and latency distribution, over the
trailing N days.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatsQueries(cmd, jsonOut, days)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	cmd.Flags().IntVar(&days, "days", 7, "number of trailing days to include")

	return cmd
}

// statsQueriesOutput is the JSON/text output shape for `kestrel stats queries`.
type statsQueriesOutput struct {
	TotalQueriesByType map[string]int64 `json:"total_queries_by_type"`
	TopTerms           []termCount      `json:"top_terms"`
	ZeroResultQueries  []string         `json:"zero_result_queries"`
	LatencyBuckets     map[string]int64 `json:"latency_buckets"`
}

type termCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func runStatsQueries(cmd *cobra.Command, jsonOut bool, days int) error {
	store, closeDB, err := openTelemetryStore()
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	to := time.Now().Format("2006-01-02")
	from := time.Now().AddDate(0, 0, -days).Format("2006-01-02")

	typeCounts, err := store.GetQueryTypeCounts(from, to)
	if err != nil {
		return fmt.Errorf("get query type counts: %w", err)
	}
	latencyCounts, err := store.GetLatencyCounts(from, to)
	if err != nil {
		return fmt.Errorf("get latency counts: %w", err)
	}
	topTerms, err := store.GetTopTerms(10)
	if err != nil {
		return fmt.Errorf("get top terms: %w", err)
	}
	zeroResults, err := store.GetZeroResultQueries(10)
	if err != nil {
		return fmt.Errorf("get zero-result queries: %w", err)
	}

	out := statsQueriesOutput{
		TotalQueriesByType: make(map[string]int64, len(typeCounts)),
		LatencyBuckets:     make(map[string]int64, len(latencyCounts)),
		ZeroResultQueries:  zeroResults,
	}
	for qt, c := range typeCounts {
		out.TotalQueriesByType[string(qt)] = c
	}
	for b, c := range latencyCounts {
		out.LatencyBuckets[string(b)] = c
	}
	for _, t := range topTerms {
		out.TopTerms = append(out.TopTerms, termCount{Term: t.Term, Count: t.Count})
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return printStatsText(cmd, out)
}

func printStatsText(cmd *cobra.Command, out statsQueriesOutput) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "Query types:")
	for qt, c := range out.TotalQueriesByType {
		fmt.Fprintf(w, "  %-10s %d\n", qt, c)
	}

	fmt.Fprintln(w, "\nLatency distribution:")
	for _, b := range []telemetry.LatencyBucket{
		telemetry.BucketP10, telemetry.BucketP50, telemetry.BucketP100,
		telemetry.BucketP500, telemetry.BucketP1000,
	} {
		fmt.Fprintf(w, "  %-6s %d\n", b, out.LatencyBuckets[string(b)])
	}

	fmt.Fprintln(w, "\nTop terms:")
	for _, t := range out.TopTerms {
		fmt.Fprintf(w, "  %-20s %d\n", t.Term, t.Count)
	}

	if len(out.ZeroResultQueries) > 0 {
		fmt.Fprintln(w, "\nRecent zero-result queries:")
		for _, q := range out.ZeroResultQueries {
			fmt.Fprintf(w, "  %s\n", q)
		}
	}
	return nil
}
