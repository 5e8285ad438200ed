package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrelkb/kestrel/internal/store"
)

func mkResult(docID, collection, lang string) *SearchResult {
	return &SearchResult{
		Document: store.Document{DocID: docID, Collection: collection, LanguageHint: lang},
	}
}

func TestApplyFilters_NoFilters(t *testing.T) {
	results := []*SearchResult{mkResult("a", "notes", "en")}
	out := ApplyFilters(results, SearchOptions{}, nil)
	assert.Equal(t, results, out)
}

func TestApplyFilters_Collection(t *testing.T) {
	results := []*SearchResult{
		mkResult("a", "work", "en"),
		mkResult("b", "personal", "en"),
	}
	out := ApplyFilters(results, SearchOptions{Collection: "WORK"}, nil)
	assert.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Document.DocID)
}

func TestApplyFilters_Lang(t *testing.T) {
	results := []*SearchResult{
		mkResult("a", "notes", "en"),
		mkResult("b", "notes", "fr"),
	}
	out := ApplyFilters(results, SearchOptions{Lang: "fr"}, nil)
	assert.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Document.DocID)
}

func TestApplyFilters_TagsAll(t *testing.T) {
	results := []*SearchResult{mkResult("a", "notes", "en"), mkResult("b", "notes", "en")}
	tagsByDoc := map[string][]string{
		"a": {"project", "urgent"},
		"b": {"project"},
	}
	out := ApplyFilters(results, SearchOptions{TagsAll: []string{"project", "urgent"}}, tagsByDoc)
	assert.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Document.DocID)
}

func TestApplyFilters_TagsAny(t *testing.T) {
	results := []*SearchResult{mkResult("a", "notes", "en"), mkResult("b", "notes", "en"), mkResult("c", "notes", "en")}
	tagsByDoc := map[string][]string{
		"a": {"urgent"},
		"b": {"idea"},
		"c": {"archive"},
	}
	out := ApplyFilters(results, SearchOptions{TagsAny: []string{"urgent", "idea"}}, tagsByDoc)
	assert.Len(t, out, 2)
}

func TestApplyFilters_CombinedAND(t *testing.T) {
	results := []*SearchResult{mkResult("a", "work", "en"), mkResult("b", "work", "fr")}
	out := ApplyFilters(results, SearchOptions{Collection: "work", Lang: "fr"}, nil)
	assert.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Document.DocID)
}

func TestClampLimit_UsesDefaultWhenUnset(t *testing.T) {
	assert.Equal(t, 10, ClampLimit(0, 10, 100))
	assert.Equal(t, 10, ClampLimit(-5, 10, 100))
}

func TestClampLimit_ClampsToMax(t *testing.T) {
	assert.Equal(t, 100, ClampLimit(500, 10, 100))
}

func TestClampLimit_PassesThroughInRange(t *testing.T) {
	assert.Equal(t, 42, ClampLimit(42, 10, 100))
}

func TestClampLimit_MinimumIsOne(t *testing.T) {
	assert.Equal(t, 1, ClampLimit(0, 0, 100))
}
