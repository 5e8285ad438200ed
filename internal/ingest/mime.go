package ingest

import (
	"path/filepath"
	"strings"
)

// mimeByExt is a small extension-to-MIME table covering the document
// and plain-text extensions the Converter registry discriminates on.
// It deliberately does not try to be exhaustive the way the teacher's
// internal/mcp.mimeTypes table is for code-search result rendering:
// the Ingestor only needs enough of a MIME hint for Converter.CanHandle
// to have something to look at alongside the extension.
var mimeByExt = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".mdx":      "text/markdown",
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/plain",
}

// mimeForPath returns a best-effort MIME type for relPath. Unrecognized
// extensions get "application/octet-stream" rather than a text MIME:
// a converter should match by extension or by a genuinely text-typed
// MIME, not by virtue of every unknown file being assumed to be text.
func mimeForPath(relPath string) string {
	ext := strings.ToLower(filepath.Ext(relPath))
	if m, ok := mimeByExt[ext]; ok {
		return m
	}
	return "application/octet-stream"
}
