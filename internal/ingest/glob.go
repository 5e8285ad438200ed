package ingest

import (
	"regexp"
	"strings"
	"sync"
)

// globSet compiles a collection's include/exclude globs (spec §3) into
// anchored regexes, the same pattern-to-regex translation the
// teacher's internal/gitignore package uses for ** and single-segment
// wildcards, applied here to plain glob matching instead of gitignore
// negation rules.
type globSet struct {
	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

func newGlobSet() *globSet {
	return &globSet{compiled: make(map[string]*regexp.Regexp)}
}

func (g *globSet) match(pattern, relPath string) bool {
	g.mu.Lock()
	re, ok := g.compiled[pattern]
	if !ok {
		re = regexp.MustCompile("^" + globToRegex(pattern) + "$")
		g.compiled[pattern] = re
	}
	g.mu.Unlock()
	return re.MatchString(relPath)
}

// matchAny reports whether relPath matches any of patterns. An empty
// pattern list never matches (used for "no includes configured").
func (g *globSet) matchAny(patterns []string, relPath string) bool {
	for _, p := range patterns {
		if g.match(p, relPath) {
			return true
		}
	}
	return false
}

// included decides whether relPath should be ingested: it must match
// an include glob (or the include list is empty, meaning "everything")
// and must not match any exclude glob.
func (g *globSet) included(include, exclude []string, relPath string) bool {
	if g.matchAny(exclude, relPath) {
		return false
	}
	if len(include) == 0 {
		return true
	}
	return g.matchAny(include, relPath)
}

// globToRegex converts a glob pattern to a regex fragment: "**"
// matches across path segments, "*" matches within a segment, "?"
// matches one non-separator rune.
func globToRegex(pattern string) string {
	var b strings.Builder
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(".*")
				i += 2
				if i < len(pattern) && pattern[i] == '/' {
					i++
				}
				continue
			}
			b.WriteString("[^/]*")
			i++
		case '?':
			b.WriteString("[^/]")
			i++
		case '.', '+', '^', '$', '(', ')', '{', '}', '|', '\\':
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		default:
			b.WriteString(string(c))
			i++
		}
	}
	return b.String()
}
