package convert

import (
	"strings"
	"unicode/utf8"

	kerrors "github.com/kestrelkb/kestrel/internal/errors"
)

// MarkdownConverter passes Markdown files through unchanged, beyond
// the untrusted-text guard (control characters outside the Markdown
// line vocabulary are stripped, per spec §4.5). The canonicalization
// pass itself is the Ingestor's job, not the converter's.
type MarkdownConverter struct{}

const markdownConverterVersion = "1"

// NewMarkdownConverter returns the Markdown passthrough converter.
func NewMarkdownConverter() *MarkdownConverter {
	return &MarkdownConverter{}
}

var markdownExts = map[string]struct{}{
	".md":       {},
	".markdown": {},
	".mdx":      {},
}

// CanHandle matches by extension; MIME is advisory only since many
// filesystems report Markdown as text/plain.
func (c *MarkdownConverter) CanHandle(mime, ext string) bool {
	_, ok := markdownExts[strings.ToLower(ext)]
	return ok
}

// Convert strips disallowed control characters and extracts a title
// from the first ATX heading, falling back to the relative path.
func (c *MarkdownConverter) Convert(input Input) (*Result, error) {
	if input.MaxBytes > 0 && int64(len(input.Bytes)) > input.MaxBytes {
		return nil, kerrors.New(kerrors.KindTooLarge, "file %s exceeds max size %d bytes", input.RelPath, input.MaxBytes)
	}
	if !utf8.Valid(input.Bytes) {
		return nil, kerrors.New(kerrors.KindCorrupt, "file %s is not valid UTF-8", input.RelPath)
	}

	text := stripControlCharacters(string(input.Bytes))
	if strings.TrimSpace(text) == "" {
		return nil, kerrors.New(kerrors.KindCorrupt, "file %s produced empty output", input.RelPath)
	}

	return &Result{
		Markdown: text,
		Title:    firstHeadingOrPath(text, input.RelPath),
		Meta: Meta{
			ConverterID:      "markdown",
			ConverterVersion: markdownConverterVersion,
			SourceMime:       "text/markdown",
		},
	}, nil
}

// stripControlCharacters removes control bytes other than tab,
// newline, and carriage return — the Markdown line vocabulary the
// engine trusts converter output to stay within.
func stripControlCharacters(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\t' || r == '\n' || r == '\r' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// firstHeadingOrPath returns the text of the first ATX heading
// (`# Title`) in the document, or relPath if none is found.
func firstHeadingOrPath(text, relPath string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			title := strings.TrimLeft(trimmed, "#")
			title = strings.TrimSpace(title)
			if title != "" {
				return title
			}
		}
	}
	return relPath
}
