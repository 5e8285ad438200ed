package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrelkb/kestrel/internal/capture"
)

func newCaptureCmd() *cobra.Command {
	var (
		collection string
		path       string
		title      string
		file       string
		overwrite  bool
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a new note into a collection",
		Long: `Writes content into a collection's root and ingests it immediately
(spec §4.12). Content is read from --file, or from stdin when --file
is omitted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readCaptureContent(cmd, file)
			if err != nil {
				return err
			}
			return runCapture(cmd, capture.Request{
				Collection: collection,
				Path:       path,
				Title:      title,
				Content:    content,
				Overwrite:  overwrite,
			})
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "collection to capture into (required)")
	cmd.Flags().StringVarP(&path, "path", "p", "", "explicit relative path within the collection")
	cmd.Flags().StringVarP(&title, "title", "t", "", "a best-effort title, used to derive --path when omitted")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read content from this file instead of stdin")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing document at the resolved path")
	_ = cmd.MarkFlagRequired("collection")

	return cmd
}

func readCaptureContent(cmd *cobra.Command, file string) (string, error) {
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(b), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

func runCapture(cmd *cobra.Command, req capture.Request) error {
	result, err := eng.Capture(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "doc_id: %s\nuri:    %s\npath:   %s\ncreated: %t\noverwritten: %t\n",
		result.DocID, result.URI, result.AbsPath, result.Created, result.Overwritten)
	return nil
}
