package search

// Note Synonym Dictionary for Query Expansion
//
// NoteSynonyms maps natural-language query terms to the vocabulary a
// personal knowledge base actually uses, bridging the gap between how
// a person phrases a question and how they phrased the note: a search
// for "deadline" should also surface notes that say "due date", a
// search for "meeting" should also catch "standup" and "sync".
//
// Design principles, carried over from the pack's code-search query
// expander:
// 1. Map user vocabulary -> note vocabulary (not vice versa).
// 2. Include common abbreviations and their expansions.
// 3. Keep entries short; long synonym lists dilute rather than help.
var NoteSynonyms = map[string][]string{
	// ==========================================================================
	// Task/Project Management Terms
	// ==========================================================================
	"task":     {"todo", "action item", "to-do"},
	"todo":     {"task", "action item", "to-do"},
	"deadline": {"due date", "due", "by when"},
	"due":      {"deadline", "due date"},
	"project":  {"initiative", "workstream"},
	"status":   {"progress", "update"},
	"blocked":  {"blocker", "stuck", "waiting on"},
	"done":     {"complete", "finished", "closed"},
	"priority": {"urgent", "important"},

	// ==========================================================================
	// Meeting/Collaboration Terms
	// ==========================================================================
	"meeting":    {"standup", "sync", "1:1", "one-on-one", "call"},
	"standup":    {"meeting", "sync", "daily"},
	"attendees":  {"participants", "invitees"},
	"agenda":     {"topics", "talking points"},
	"minutes":    {"notes", "recap", "summary"},
	"followup":   {"follow-up", "next steps", "action item"},
	"decision":   {"conclusion", "resolution", "outcome"},

	// ==========================================================================
	// Writing/Document Structure Terms
	// ==========================================================================
	"draft":    {"wip", "work in progress", "unfinished"},
	"summary":  {"tldr", "overview", "recap"},
	"outline":  {"structure", "skeleton", "toc"},
	"heading":  {"header", "title", "section"},
	"section":  {"heading", "part"},
	"appendix": {"addendum", "attachment"},
	"reference": {"citation", "source", "link"},

	// ==========================================================================
	// Linking/Organization Terms
	// ==========================================================================
	"link":      {"wikilink", "reference", "backlink"},
	"backlink":  {"incoming link", "reference", "mentioned by"},
	"tag":       {"label", "category"},
	"collection": {"notebook", "folder", "vault"},
	"archive":   {"archived", "old", "stale"},
	"related":   {"similar", "see also", "linked"},

	// ==========================================================================
	// Idea/Knowledge Terms
	// ==========================================================================
	"idea":    {"thought", "concept", "brainstorm"},
	"question": {"open question", "unknown", "unresolved"},
	"answer":  {"resolution", "solution"},
	"insight": {"takeaway", "learning", "finding"},
	"glossary": {"definitions", "terms", "vocabulary"},

	// ==========================================================================
	// Temporal Terms
	// ==========================================================================
	"today":     {"now", "current"},
	"yesterday": {"previous day", "last"},
	"weekly":    {"week", "recurring"},
	"recent":    {"latest", "newest", "last"},
	"history":   {"past", "log", "changelog"},

	// ==========================================================================
	// Natural Language -> Note Mappings
	// ==========================================================================
	"where":   {"location", "path", "collection"},
	"who":     {"owner", "author", "assignee"},
	"why":     {"reason", "rationale", "motivation"},
	"created": {"added", "new", "first written"},
	"updated": {"edited", "modified", "changed"},
}

// GetSynonyms returns all synonyms for a given term.
// Returns an empty slice if no synonyms exist.
func GetSynonyms(term string) []string {
	if synonyms, ok := NoteSynonyms[term]; ok {
		return synonyms
	}
	if synonyms, ok := NoteSynonyms[toLower(term)]; ok {
		return synonyms
	}
	return nil
}

// toLower is a simple lowercase helper to avoid importing strings.
func toLower(s string) string {
	b := make([]byte, len(s))
	for i := range s {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}
