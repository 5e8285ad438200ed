package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kestrelkb/kestrel/internal/store"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the local index",
	}
	cmd.AddCommand(newIndexInfoCmd())
	return cmd
}

func newIndexInfoCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show index configuration and statistics",
		Long: `Reports collection, document and chunk counts, on-disk index sizes,
and the active embedder, for debugging dimension mismatches and
verifying a sync actually populated the index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := collectIndexInfo(cmd)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			printIndexInfo(cmd, info)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

type indexInfo struct {
	DataDir       string           `json:"data_dir"`
	Collections   []collectionInfo `json:"collections"`
	DocumentCount int              `json:"document_count"`
	DataDirBytes  int64            `json:"data_dir_bytes"`
	EmbedderModel string           `json:"embedder_model"`
	Dimensions    int              `json:"dimensions"`
	Available     bool             `json:"embedder_available"`
}

type collectionInfo struct {
	Name      string `json:"name"`
	Root      string `json:"root"`
	Documents int    `json:"documents"`
}

func collectIndexInfo(cmd *cobra.Command) (*indexInfo, error) {
	ctx := cmd.Context()

	collections, err := eng.Store().ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	info := &indexInfo{DataDir: eng.DataDir()}

	for _, c := range collections {
		docs, _, err := eng.Store().ListDocuments(ctx, store.DocumentFilter{Collection: c.Name, ActiveOnly: true, Limit: 100000})
		if err != nil {
			return nil, fmt.Errorf("list documents for %q: %w", c.Name, err)
		}
		info.Collections = append(info.Collections, collectionInfo{Name: c.Name, Root: c.Root, Documents: len(docs)})
		info.DocumentCount += len(docs)
	}

	size, err := dirSize(eng.DataDir())
	if err == nil {
		info.DataDirBytes = size
	}

	if e := eng.Embedder(); e != nil {
		info.EmbedderModel = e.ModelName()
		info.Dimensions = e.Dimensions()
		info.Available = e.Available(ctx)
	}

	return info, nil
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			total += fi.Size()
		}
		return nil
	})
	return total, err
}

func printIndexInfo(cmd *cobra.Command, info *indexInfo) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Data directory: %s (%s)\n\n", info.DataDir, formatBytes(info.DataDirBytes))

	fmt.Fprintln(out, "Collections:")
	for _, c := range info.Collections {
		fmt.Fprintf(out, "  %-20s %-40s %d documents\n", c.Name, c.Root, c.Documents)
	}
	fmt.Fprintf(out, "\nTotal documents: %d\n\n", info.DocumentCount)

	fmt.Fprintln(out, "Embedder:")
	if info.EmbedderModel == "" {
		fmt.Fprintln(out, "  (none configured)")
		return
	}
	fmt.Fprintf(out, "  Model:      %s\n", info.EmbedderModel)
	fmt.Fprintf(out, "  Dimensions: %d\n", info.Dimensions)
	fmt.Fprintf(out, "  Available:  %t\n", info.Available)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
