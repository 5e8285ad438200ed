package linkengine

import (
	"sort"

	"github.com/kestrelkb/kestrel/internal/store"
)

// Parse extracts every outgoing link from a document's converted
// Markdown (before canonicalization, per the package doc comment).
// sourceCollection and sourceRelPath identify the document the links
// are relative to; they become the default collection for bare wiki
// targets and the resolution base for relative Markdown links.
func Parse(content, sourceCollection, sourceRelPath string) ParseResult {
	excluded := excludedRanges(content)
	li := newLineIndex(content)

	links := parseWikiLinks(content, sourceCollection, excluded, li)
	links = append(links, parseMarkdownLinks(content, sourceCollection, sourceRelPath, excluded, li)...)

	sort.SliceStable(links, func(i, j int) bool {
		if links[i].StartLine != links[j].StartLine {
			return links[i].StartLine < links[j].StartLine
		}
		return links[i].StartCol < links[j].StartCol
	})

	return ParseResult{Links: links}
}
