package search

import (
	"strings"
)

// FilterFunc checks if a search result matches filter criteria.
type FilterFunc func(result *SearchResult) bool

// ApplyFilters filters results based on search options (spec §4.9
// search params: collection, lang, tagsAll, tagsAny). Filters use AND
// logic across categories; TagsAny is OR within itself.
func ApplyFilters(results []*SearchResult, opts SearchOptions, tagsByDoc map[string][]string) []*SearchResult {
	filters := buildFilters(opts, tagsByDoc)
	if len(filters) == 0 {
		return results
	}

	filtered := make([]*SearchResult, 0, len(results))
	for _, r := range results {
		if matchesAllFilters(r, filters) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func buildFilters(opts SearchOptions, tagsByDoc map[string][]string) []FilterFunc {
	var filters []FilterFunc

	if opts.Collection != "" {
		filters = append(filters, collectionFilter(opts.Collection))
	}
	if opts.Lang != "" {
		filters = append(filters, langFilter(opts.Lang))
	}
	if len(opts.TagsAll) > 0 {
		filters = append(filters, tagsAllFilter(opts.TagsAll, tagsByDoc))
	}
	if len(opts.TagsAny) > 0 {
		filters = append(filters, tagsAnyFilter(opts.TagsAny, tagsByDoc))
	}

	return filters
}

func matchesAllFilters(result *SearchResult, filters []FilterFunc) bool {
	for _, f := range filters {
		if !f(result) {
			return false
		}
	}
	return true
}

func collectionFilter(collection string) FilterFunc {
	return func(r *SearchResult) bool {
		return strings.EqualFold(r.Document.Collection, collection)
	}
}

func langFilter(lang string) FilterFunc {
	return func(r *SearchResult) bool {
		return strings.EqualFold(r.Document.LanguageHint, lang)
	}
}

func tagsAllFilter(required []string, tagsByDoc map[string][]string) FilterFunc {
	return func(r *SearchResult) bool {
		have := tagSet(tagsByDoc[r.Document.DocID])
		for _, t := range required {
			if !have[t] {
				return false
			}
		}
		return true
	}
}

func tagsAnyFilter(any []string, tagsByDoc map[string][]string) FilterFunc {
	return func(r *SearchResult) bool {
		have := tagSet(tagsByDoc[r.Document.DocID])
		for _, t := range any {
			if have[t] {
				return true
			}
		}
		return false
	}
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	return set
}

// ClampLimit enforces the [1, 100] bound of spec §8 Boundary.
func ClampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		limit = fallback
	}
	if limit < 1 {
		limit = 1
	}
	if limit > max {
		limit = max
	}
	return limit
}
