package linkengine

import (
	"regexp"
	"strings"

	"github.com/kestrelkb/kestrel/internal/docref"
	"github.com/kestrelkb/kestrel/internal/store"
)

// wikiLinkPattern matches [[target]], [[target|alias]], and
// [[collection:target]], each with an optional #anchor, per spec
// §4.6. The body is captured whole and split manually below: "|" for
// the alias, "#" for the anchor, ":" for the collection prefix.
var wikiLinkPattern = regexp.MustCompile(`\[\[([^\[\]\n]+)\]\]`)

// parseWikiLinks finds every wiki-style link in content that doesn't
// intersect an excluded range, resolving each against sourceCollection
// unless the link names its own collection prefix.
func parseWikiLinks(content, sourceCollection string, excluded []excludedRange, li *lineIndex) []store.DocLink {
	var links []store.DocLink
	for _, loc := range wikiLinkPattern.FindAllStringSubmatchIndex(content, -1) {
		start, end := loc[0], loc[1]
		if intersectsExcluded(start, end, excluded) {
			continue
		}
		body := content[loc[2]:loc[3]]
		link, ok := buildWikiLink(body, sourceCollection)
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

func buildWikiLink(body, sourceCollection string) (store.DocLink, bool) {
	rest := body

	linkText := ""
	if target, alias, found := strings.Cut(rest, "|"); found {
		rest = target
		linkText = strings.TrimSpace(alias)
	}

	anchor := ""
	if target, frag, found := cutLast(rest, "#"); found {
		rest = target
		anchor = strings.TrimSpace(frag)
	}

	collection := sourceCollection
	target := rest
	if prefix, name, found := strings.Cut(rest, ":"); found && prefix != "" {
		collection = prefix
		target = name
	}

	target = strings.TrimSpace(target)
	if target == "" {
		return store.DocLink{}, false
	}
	if linkText == "" {
		linkText = target
	}

	return store.DocLink{
		LinkType:         store.LinkTypeWiki,
		TargetRef:        body,
		TargetCollection: docref.NormalizeName(collection),
		TargetAnchor:     anchor,
		TargetRefNorm:    store.ResolutionKey(collection, target),
		LinkText:         linkText,
	}, true
}

// cutLast splits s at the last occurrence of sep, for pulling a
// trailing #anchor off a wiki target that may itself legitimately
// contain "#" only as its final character sequence.
func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
