package linkengine

import "regexp"

// Patterns for the byte ranges link matches must not intersect, per
// spec §4.6: code fences, inline code spans, frontmatter, and HTML
// comments. Grounded on the teacher's markdown_chunker.go precomputed-
// exclusion style (codeBlockPattern/frontmatterPattern), applied here
// to link syntax instead of headings.
var (
	fencedCodeBlockPattern = regexp.MustCompile("(?s)```.*?```")
	inlineCodeSpanPattern  = regexp.MustCompile("`[^`\n]+`")
	frontmatterPattern     = regexp.MustCompile(`(?s)\A---\n.*?\n---\n?`)
	htmlCommentPattern     = regexp.MustCompile(`(?s)<!--.*?-->`)
)

// excludedRange is a half-open [Start, End) byte range.
type excludedRange struct {
	Start, End int
}

// excludedRanges precomputes every byte range link matches must avoid.
func excludedRanges(content string) []excludedRange {
	var ranges []excludedRange
	for _, pattern := range []*regexp.Regexp{frontmatterPattern, fencedCodeBlockPattern, inlineCodeSpanPattern, htmlCommentPattern} {
		for _, loc := range pattern.FindAllStringIndex(content, -1) {
			ranges = append(ranges, excludedRange{Start: loc[0], End: loc[1]})
		}
	}
	return ranges
}

// intersectsExcluded reports whether [start, end) overlaps any
// precomputed excluded range.
func intersectsExcluded(start, end int, ranges []excludedRange) bool {
	for _, r := range ranges {
		if start < r.End && end > r.Start {
			return true
		}
	}
	return false
}
