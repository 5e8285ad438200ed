// Package canon implements the single deterministic canonicalization
// pass spec §4.4 step 5 applies to every converter's Markdown output,
// before mirrorHash is computed over the result (§4.4 step 6). A
// converter must never canonicalize itself — that guarantee belongs
// here, exactly once, so the same converter output always yields the
// same canonical bytes regardless of which converter produced it.
package canon

import (
	"strings"
)

// Result is the canonicalized form of a converter's Markdown output,
// with any "---"-delimited frontmatter extracted into Frontmatter and
// stripped from Markdown. TOML "+++" frontmatter is not recognised.
type Result struct {
	Markdown    string
	Frontmatter map[string]string
}

// Canonicalize normalizes line endings to "\n", strips trailing
// whitespace from every line, trims trailing blank lines, and
// extracts a leading frontmatter block into a metadata map.
func Canonicalize(input string) Result {
	normalized := normalizeLineEndings(input)

	frontmatter, body := extractFrontmatter(normalized)

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	lines = lines[:end]

	markdown := strings.Join(lines, "\n")
	if markdown != "" {
		markdown += "\n"
	}

	return Result{Markdown: markdown, Frontmatter: frontmatter}
}

func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// extractFrontmatter recognizes a leading "---\n...\n---\n" block as
// YAML frontmatter (simple key: value pairs only — the engine has no
// need for a full YAML parser here, just metadata extraction) and
// returns it alongside the remaining body.
func extractFrontmatter(s string) (map[string]string, string) {
	const delim = "---"

	if !strings.HasPrefix(s, delim+"\n") {
		return nil, s
	}

	rest := s[len(delim)+1:]
	closeIdx := strings.Index(rest, "\n"+delim+"\n")
	closeAtEOF := false
	if closeIdx == -1 {
		if strings.HasSuffix(rest, "\n"+delim) {
			closeIdx = len(rest) - len(delim) - 1
			closeAtEOF = true
		} else {
			return nil, s
		}
	}

	block := rest[:closeIdx]
	var bodyStart int
	if closeAtEOF {
		bodyStart = len(rest)
	} else {
		bodyStart = closeIdx + len(delim) + 2
	}
	body := rest[bodyStart:]

	meta := make(map[string]string)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key != "" {
			meta[key] = value
		}
	}
	if len(meta) == 0 {
		meta = nil
	}

	return meta, body
}
