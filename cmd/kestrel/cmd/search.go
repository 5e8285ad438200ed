package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelkb/kestrel/internal/search"
	"github.com/kestrelkb/kestrel/internal/telemetry"
)

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		collection string
		lang       string
		tagsAll    []string
		tagsAny    []string
		jsonOut    bool
		explain    bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed collections",
		Long: `Runs hybrid BM25 + semantic search over the indexed collections,
fused by reciprocal rank fusion. Falls back to BM25-only when no
embedder is available or configured.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, search.SearchOptions{
				Limit:      limit,
				Collection: collection,
				Lang:       lang,
				TagsAll:    tagsAll,
				TagsAny:    tagsAny,
				Explain:    explain,
			}, jsonOut)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "restrict to one collection")
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "filter by language hint")
	cmd.Flags().StringSliceVar(&tagsAll, "tags-all", nil, "require every listed tag (repeatable)")
	cmd.Flags().StringSliceVar(&tagsAny, "tags-any", nil, "require at least one listed tag (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	cmd.Flags().BoolVar(&explain, "explain", false, "include the search decision process in the output")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts search.SearchOptions, jsonOut bool) error {
	ctx := cmd.Context()
	start := time.Now()

	results, meta, err := eng.Search(ctx, query, opts)
	latency := time.Since(start)

	recordQueryTelemetry(query, meta, len(results), latency)

	if err != nil {
		return err
	}

	if jsonOut {
		return printSearchJSON(cmd, results, meta)
	}
	return printSearchText(cmd, results, meta)
}

func printSearchJSON(cmd *cobra.Command, results []*search.SearchResult, meta search.SearchMeta) error {
	type hit struct {
		DocID string  `json:"doc_id"`
		URI   string  `json:"uri"`
		Title string  `json:"title"`
		Score float64 `json:"score"`
		Text  string  `json:"text"`
	}
	out := struct {
		Mode    search.Mode `json:"mode"`
		Results []hit       `json:"results"`
	}{Mode: meta.Mode}

	for _, r := range results {
		out.Results = append(out.Results, hit{
			DocID: r.Document.DocID,
			URI:   r.Document.URI,
			Title: r.Document.Title,
			Score: r.Score,
			Text:  r.Chunk.Text,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printSearchText(cmd *cobra.Command, results []*search.SearchResult, meta search.SearchMeta) error {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}

	for i, r := range results {
		fmt.Fprintf(out, "%d. %s  (score %.3f)\n", i+1, r.Document.Title, r.Score)
		fmt.Fprintf(out, "   %s\n", r.Document.URI)
		snippet := r.Chunk.Text
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		fmt.Fprintf(out, "   %s\n\n", strings.ReplaceAll(snippet, "\n", " "))
	}
	fmt.Fprintf(out, "mode: %s\n", meta.Mode)
	return nil
}

// recordQueryTelemetry records the query outcome for `kestrel stats`.
// Failures to open the telemetry store are swallowed: telemetry is an
// observability nicety (SPEC_FULL.md §9), never a reason to fail a search.
func recordQueryTelemetry(query string, meta search.SearchMeta, resultCount int, latency time.Duration) {
	store, closeDB, err := openTelemetryStore()
	if err != nil {
		return
	}
	defer func() { _ = closeDB() }()

	qt := telemetry.QueryTypeLexical
	if meta.Mode == search.ModeHybrid {
		qt = telemetry.QueryTypeMixed
		if meta.VectorsUsed {
			qt = telemetry.QueryTypeSemantic
		}
	}

	metrics := telemetry.NewQueryMetrics(store)
	metrics.Record(telemetry.QueryEvent{
		Query:       query,
		QueryType:   qt,
		ResultCount: resultCount,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
	_ = metrics.Flush()
	_ = metrics.Close()

	if resultCount == 0 {
		_ = store.AddZeroResultQuery(query, time.Now())
	}
}
