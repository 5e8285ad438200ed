package linkengine

import (
	"path"
	"regexp"
	"strings"

	"github.com/kestrelkb/kestrel/internal/store"
)

// markdownLinkPattern matches [text](url) — including image links,
// which are filtered out separately below since RE2 has no
// lookbehind to exclude a preceding "!" in the pattern itself.
var markdownLinkPattern = regexp.MustCompile(`\[([^\[\]\n]*)\]\(([^()\s]+)\)`)

// safePercentCodes are percent-escapes that are decoded before a
// relative link is resolved; anything else is left verbatim per spec
// §4.6, since it may change the byte-meaning of the path (e.g. an
// encoded path separator).
var safePercentCodes = map[string]string{
	"%20": " ",
	"%28": "(",
	"%29": ")",
}

// parseMarkdownLinks finds every inline Markdown link in content that
// isn't an image link and doesn't intersect an excluded range,
// resolving relative targets against sourceRelPath.
func parseMarkdownLinks(content, sourceCollection, sourceRelPath string, excluded []excludedRange, li *lineIndex) []store.DocLink {
	var links []store.DocLink
	for _, loc := range markdownLinkPattern.FindAllStringSubmatchIndex(content, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && content[start-1] == '!' {
			continue // image link, not a document reference
		}
		if intersectsExcluded(start, end, excluded) {
			continue
		}

		text := content[loc[2]:loc[3]]
		rawURL := content[loc[4]:loc[5]]

		link, ok := buildMarkdownLink(text, rawURL, sourceCollection, sourceRelPath)
		if !ok {
			continue
		}
		startLine, startCol := li.Position(start)
		endLine, endCol := li.Position(end)
		link.StartLine, link.StartCol = startLine, startCol
		link.EndLine, link.EndCol = endLine, endCol
		links = append(links, link)
	}
	return links
}

func buildMarkdownLink(text, rawURL, sourceCollection, sourceRelPath string) (store.DocLink, bool) {
	if rawURL == "" {
		return store.DocLink{}, false
	}
	if isExternalURL(rawURL) {
		return store.DocLink{}, false
	}
	if strings.ContainsRune(rawURL, '\\') {
		return store.DocLink{}, false
	}

	target, anchor, _ := strings.Cut(rawURL, "#")
	decoded := decodeSafePercent(target)

	resolved, ok := resolveRelative(sourceRelPath, decoded)
	if !ok {
		return store.DocLink{}, false
	}

	return store.DocLink{
		LinkType:         store.LinkTypeMarkdown,
		TargetRef:        rawURL,
		TargetCollection: sourceCollection,
		TargetAnchor:     anchor,
		TargetRefNorm:    store.ResolutionKey(sourceCollection, resolved),
		LinkText:         text,
	}, true
}

// isExternalURL reports whether rawURL names a resource outside the
// document set: an absolute URL with a scheme (http:, mailto:, ...) or
// a protocol-relative URL (//host/path).
func isExternalURL(rawURL string) bool {
	if strings.HasPrefix(rawURL, "//") {
		return true
	}
	if i := strings.Index(rawURL, ":"); i > 0 {
		scheme := rawURL[:i]
		if isLikelyScheme(scheme) {
			return true
		}
	}
	return false
}

func isLikelyScheme(s string) bool {
	for i, r := range s {
		isAlpha := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isAlpha {
			return false
		}
		if !isAlpha && !isDigit && r != '+' && r != '-' && r != '.' {
			return false
		}
	}
	return len(s) > 0
}

// decodeSafePercent decodes only the percent-codes spec §4.6 deems
// safe (%20, %28, %29); any other escape, including %2F, %5C, and
// %00, is left verbatim so it cannot silently change the path's
// meaning.
func decodeSafePercent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '%' && i+3 <= len(s) {
			code := strings.ToUpper(s[i : i+3])
			if repl, ok := safePercentCodes[code]; ok {
				b.WriteString(repl)
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// resolveRelative resolves a link target relative to the document at
// sourceRelPath, rejecting absolute targets and anything that escapes
// above the collection root.
func resolveRelative(sourceRelPath, target string) (string, bool) {
	if target == "" {
		return "", false
	}
	if strings.HasPrefix(target, "/") {
		return "", false
	}

	dir := path.Dir(sourceRelPath)
	joined := path.Join(dir, target)
	cleaned := path.Clean(joined)

	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.HasPrefix(cleaned, "/") {
		return "", false
	}
	return cleaned, true
}
