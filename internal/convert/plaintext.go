package convert

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	kerrors "github.com/kestrelkb/kestrel/internal/errors"
)

// PlainTextConverter wraps non-Markdown text files in a minimal
// Markdown shell (a heading from the file name, then a fenced code
// block with the original content) so they participate in chunking
// and search like any other document.
type PlainTextConverter struct{}

const plainTextConverterVersion = "1"

// NewPlainTextConverter returns the plain-text fallback converter.
func NewPlainTextConverter() *PlainTextConverter {
	return &PlainTextConverter{}
}

var plainTextExts = map[string]struct{}{
	".txt": {}, ".text": {}, ".log": {},
}

// CanHandle matches by extension, or by MIME when it declares a text
// type the engine doesn't otherwise have a dedicated converter for.
func (c *PlainTextConverter) CanHandle(mime, ext string) bool {
	if _, ok := plainTextExts[strings.ToLower(ext)]; ok {
		return true
	}
	return strings.HasPrefix(mime, "text/plain")
}

// Convert wraps the raw bytes as a fenced code block under a heading
// derived from the file's base name.
func (c *PlainTextConverter) Convert(input Input) (*Result, error) {
	if input.MaxBytes > 0 && int64(len(input.Bytes)) > input.MaxBytes {
		return nil, kerrors.New(kerrors.KindTooLarge, "file %s exceeds max size %d bytes", input.RelPath, input.MaxBytes)
	}
	if !utf8.Valid(input.Bytes) {
		return nil, kerrors.New(kerrors.KindCorrupt, "file %s is not valid UTF-8", input.RelPath)
	}

	title := filepath.Base(input.RelPath)
	body := stripControlCharacters(string(input.Bytes))
	if strings.TrimSpace(body) == "" {
		return nil, kerrors.New(kerrors.KindCorrupt, "file %s produced empty output", input.RelPath)
	}

	fence := "```"
	for strings.Contains(body, fence) {
		fence += "`"
	}

	markdown := fmt.Sprintf("# %s\n\n%s\n%s\n%s\n", title, fence, body, fence)

	return &Result{
		Markdown: markdown,
		Title:    title,
		Meta: Meta{
			ConverterID:      "plaintext",
			ConverterVersion: plainTextConverterVersion,
			SourceMime:       "text/plain",
		},
	}, nil
}
