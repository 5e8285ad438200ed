package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/kestrelkb/kestrel/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_SyncCollections_AndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cols := []Collection{
		{Name: "notes", Root: "/home/user/notes", Include: []string{"**/*.md"}, Active: true},
		{Name: "wiki", Root: "/home/user/wiki", Exclude: []string{"drafts/**"}, VCSPull: true},
	}
	require.NoError(t, s.SyncCollections(ctx, cols))

	got, err := s.GetCollection(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, "/home/user/notes", got.Root)
	assert.Equal(t, []string{"**/*.md"}, got.Include)
	assert.True(t, got.Active)

	got2, err := s.GetCollection(ctx, "wiki")
	require.NoError(t, err)
	assert.True(t, got2.VCSPull)
	assert.Equal(t, []string{"drafts/**"}, got2.Exclude)

	all, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteStore_SyncCollections_DeactivatesRemoved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SyncCollections(ctx, []Collection{{Name: "a", Root: "/a"}, {Name: "b", Root: "/b"}}))
	require.NoError(t, s.SyncCollections(ctx, []Collection{{Name: "a", Root: "/a"}}))

	a, err := s.GetCollection(ctx, "a")
	require.NoError(t, err)
	assert.True(t, a.Active)

	b, err := s.GetCollection(ctx, "b")
	require.NoError(t, err)
	assert.False(t, b.Active)
}

func TestSQLiteStore_GetCollection_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCollection(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindNotFound))
}

func TestSQLiteStore_UpsertDocument_AndGetVariants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SyncCollections(ctx, []Collection{{Name: "notes", Root: "/notes"}}))

	doc := &Document{
		DocID:       "doc-1",
		URI:         "kestrel://notes/readme.md",
		Collection:  "notes",
		RelPath:     "readme.md",
		Title:       "Readme",
		SourceHash:  "abc123",
		SourceMtime: time.Now().UTC(),
		MirrorHash:  "mirror-1",
		Active:      true,
	}
	require.NoError(t, s.UpsertDocument(ctx, doc))

	byPath, err := s.GetDocument(ctx, "notes", "readme.md")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", byPath.DocID)

	byID, err := s.GetDocumentByDocID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "mirror-1", byID.MirrorHash)

	byURI, err := s.GetDocumentByURI(ctx, "kestrel://notes/readme.md")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", byURI.DocID)
}

func TestSQLiteStore_UpsertDocument_MirrorHashChangePreservesOldChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &Document{DocID: "doc-1", URI: "kestrel://notes/a.md", Collection: "notes", RelPath: "a.md", MirrorHash: "hash-1", Active: true}
	require.NoError(t, s.UpsertDocument(ctx, doc))
	require.NoError(t, s.ReplaceChunksForMirror(ctx, "hash-1", []Chunk{{MirrorHash: "hash-1", Seq: 0, Text: "hello"}}))

	doc.MirrorHash = "hash-2"
	require.NoError(t, s.UpsertDocument(ctx, doc))
	require.NoError(t, s.ReplaceChunksForMirror(ctx, "hash-2", []Chunk{{MirrorHash: "hash-2", Seq: 0, Text: "world"}}))

	oldChunks, err := s.GetChunksByMirror(ctx, "hash-1")
	require.NoError(t, err)
	assert.Len(t, oldChunks, 1, "prior mirror's chunks remain, blob may still be shared")

	newChunks, err := s.GetChunksByMirror(ctx, "hash-2")
	require.NoError(t, err)
	assert.Len(t, newChunks, 1)
}

func TestSQLiteStore_DeactivateDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &Document{DocID: "doc-1", URI: "kestrel://notes/a.md", Collection: "notes", RelPath: "a.md", Active: true}
	require.NoError(t, s.UpsertDocument(ctx, doc))
	require.NoError(t, s.DeactivateDocument(ctx, "doc-1"))

	_, err := s.GetDocument(ctx, "notes", "a.md")
	require.Error(t, err, "deactivated document is no longer the active row at its path")

	byID, err := s.GetDocumentByDocID(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, byID.Active)
}

func TestSQLiteStore_DeactivateDocument_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeactivateDocument(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindNotFound))
}

func TestSQLiteStore_ListDocuments_FilterAndPaginate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		doc := &Document{
			DocID:      docIDFor(i),
			URI:        "kestrel://notes/" + docIDFor(i) + ".md",
			Collection: "notes",
			RelPath:    docIDFor(i) + ".md",
			Active:     true,
		}
		require.NoError(t, s.UpsertDocument(ctx, doc))
	}

	page1, cursor, err := s.ListDocuments(ctx, DocumentFilter{Collection: "notes", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page1, 2)
	assert.NotEmpty(t, cursor)

	page2, cursor2, err := s.ListDocuments(ctx, DocumentFilter{Collection: "notes", Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	assert.Len(t, page2, 2)
	assert.NotEqual(t, page1[0].DocID, page2[0].DocID)
	assert.NotEmpty(t, cursor2)

	page3, cursor3, err := s.ListDocuments(ctx, DocumentFilter{Collection: "notes", Limit: 2, Cursor: cursor2})
	require.NoError(t, err)
	assert.Len(t, page3, 1)
	assert.Empty(t, cursor3)
}

func docIDFor(i int) string {
	return "doc-" + string(rune('a'+i))
}

func TestSQLiteStore_ListDocuments_TagPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, &Document{DocID: "doc-1", URI: "kestrel://notes/a.md", Collection: "notes", RelPath: "a.md", Active: true}))
	require.NoError(t, s.UpsertDocument(ctx, &Document{DocID: "doc-2", URI: "kestrel://notes/b.md", Collection: "notes", RelPath: "b.md", Active: true}))
	require.NoError(t, s.SetTagsForDoc(ctx, "doc-1", []string{"project/alpha"}))
	require.NoError(t, s.SetTagsForDoc(ctx, "doc-2", []string{"project/beta"}))

	docs, _, err := s.ListDocuments(ctx, DocumentFilter{TagPrefix: "project/alpha"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].DocID)
}

func TestSQLiteStore_GetContent_PutContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetContent(ctx, "nonexistent")
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindNotFound))

	require.NoError(t, s.PutContent(ctx, "hash-1", []byte("# Hello\n\nWorld.\n")))

	body, err := s.GetContent(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "# Hello\n\nWorld.\n", string(body))
}

func TestSQLiteStore_PutContent_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutContent(ctx, "hash-1", []byte("original")))
	require.NoError(t, s.PutContent(ctx, "hash-1", []byte("original")))

	body, err := s.GetContent(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "original", string(body))
}

func TestSQLiteStore_ReplaceChunksForMirror(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks := []Chunk{
		{MirrorHash: "h1", Seq: 0, Text: "first", StartLine: 1, EndLine: 5, TokenCount: 10},
		{MirrorHash: "h1", Seq: 1, Text: "second", StartLine: 6, EndLine: 10, TokenCount: 12},
	}
	require.NoError(t, s.ReplaceChunksForMirror(ctx, "h1", chunks))

	got, err := s.GetChunksByMirror(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)
}

func TestSQLiteStore_ReplaceChunksForMirror_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks := []Chunk{{MirrorHash: "h1", Seq: 0, Text: "v1"}}
	require.NoError(t, s.ReplaceChunksForMirror(ctx, "h1", chunks))
	require.NoError(t, s.ReplaceChunksForMirror(ctx, "h1", chunks))

	got, err := s.GetChunksByMirror(ctx, "h1")
	require.NoError(t, err)
	assert.Len(t, got, 1, "replaying the same chunks must not duplicate rows")
}

func TestSQLiteStore_ReplaceLinksForDoc_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	links := []DocLink{
		{LinkType: LinkTypeWiki, TargetRef: "Other Page", TargetRefNorm: "other-page", StartLine: 3, EndLine: 3},
		{LinkType: LinkTypeMarkdown, TargetRef: "./b.md", TargetRefNorm: "b.md", StartLine: 10, EndLine: 10},
	}
	require.NoError(t, s.ReplaceLinksForDoc(ctx, "doc-1", links))

	got, err := s.GetLinksForDoc(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Other Page", got[0].TargetRef)
	assert.Equal(t, "./b.md", got[1].TargetRef)

	// Replacing with a smaller set fully replaces, not merges.
	require.NoError(t, s.ReplaceLinksForDoc(ctx, "doc-1", links[:1]))
	got2, err := s.GetLinksForDoc(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, got2, 1)
}

func TestSQLiteStore_GetBacklinksForDoc(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, &Document{DocID: "doc-target", URI: "kestrel://notes/target.md", Collection: "notes", RelPath: "target.md", Active: true}))
	require.NoError(t, s.UpsertDocument(ctx, &Document{DocID: "doc-source", URI: "kestrel://notes/source.md", Collection: "notes", RelPath: "source.md", Active: true}))

	require.NoError(t, s.ReplaceLinksForDoc(ctx, "doc-source", []DocLink{
		{LinkType: LinkTypeMarkdown, TargetRef: "./target.md", TargetRefNorm: ResolutionKey("notes", "target.md")},
	}))

	backlinks, err := s.GetBacklinksForDoc(ctx, "doc-target")
	require.NoError(t, err)
	require.Len(t, backlinks, 1)
	assert.Equal(t, "doc-source", backlinks[0].SourceDocID)
	assert.Equal(t, "kestrel://notes/source.md", backlinks[0].SourceURI)
}

func TestSQLiteStore_Tags_SetGetAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, &Document{DocID: "doc-1", URI: "kestrel://notes/a.md", Collection: "notes", RelPath: "a.md", Active: true}))
	require.NoError(t, s.UpsertDocument(ctx, &Document{DocID: "doc-2", URI: "kestrel://notes/b.md", Collection: "notes", RelPath: "b.md", Active: true}))

	require.NoError(t, s.SetTagsForDoc(ctx, "doc-1", []string{"project/alpha", "status/draft"}))
	require.NoError(t, s.SetTagsForDoc(ctx, "doc-2", []string{"project/alpha"}))

	tags, err := s.GetTagsForDoc(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"project/alpha", "status/draft"}, tags)

	counts, err := s.GetTagCounts(ctx, "", "")
	require.NoError(t, err)
	countMap := make(map[string]int)
	for _, c := range counts {
		countMap[c.Tag] = c.Count
	}
	assert.Equal(t, 2, countMap["project/alpha"])
	assert.Equal(t, 1, countMap["status/draft"])

	prefixed, err := s.GetTagCounts(ctx, "", "project/")
	require.NoError(t, err)
	require.Len(t, prefixed, 1)
	assert.Equal(t, "project/alpha", prefixed[0].Tag)
}

func TestSQLiteStore_SetTagsForDoc_ReplacesFully(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetTagsForDoc(ctx, "doc-1", []string{"a", "b"}))
	require.NoError(t, s.SetTagsForDoc(ctx, "doc-1", []string{"c"}))

	tags, err := s.GetTagsForDoc(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, tags)
}

func TestSQLiteStore_GetGraph_ResolvedAndUnresolvedEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, &Document{DocID: "doc-a", URI: "kestrel://notes/a.md", Collection: "notes", RelPath: "a.md", Title: "A", Active: true}))
	require.NoError(t, s.UpsertDocument(ctx, &Document{DocID: "doc-b", URI: "kestrel://notes/b.md", Collection: "notes", RelPath: "b.md", Title: "B", Active: true}))

	require.NoError(t, s.ReplaceLinksForDoc(ctx, "doc-a", []DocLink{
		{LinkType: LinkTypeMarkdown, TargetRef: "./b.md", TargetRefNorm: ResolutionKey("notes", "b.md")},
		{LinkType: LinkTypeWiki, TargetRef: "Missing Page", TargetRefNorm: ResolutionKey("notes", "missing-page.md")},
	}))

	graph, err := s.GetGraph(ctx, GraphOptions{Collection: "notes"})
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, 2)
	require.Len(t, graph.Edges, 2)

	var resolved, unresolved *GraphEdge
	for i := range graph.Edges {
		if graph.Edges[i].TargetDocID != "" {
			resolved = &graph.Edges[i]
		} else {
			unresolved = &graph.Edges[i]
		}
	}
	require.NotNil(t, resolved)
	assert.Equal(t, "doc-b", resolved.TargetDocID)
	require.NotNil(t, unresolved)
	assert.Equal(t, "Missing Page", unresolved.TargetRef)
}

func TestSQLiteStore_GetGraph_RespectsMaxNodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		id := docIDFor(i)
		require.NoError(t, s.UpsertDocument(ctx, &Document{DocID: id, URI: "kestrel://notes/" + id + ".md", Collection: "notes", RelPath: id + ".md", Active: true}))
	}

	graph, err := s.GetGraph(ctx, GraphOptions{Collection: "notes", MaxNodes: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(graph.Nodes), 3)
	assert.True(t, graph.Meta.NodesTruncated)
}

func TestSQLiteStore_GetGraph_RespectsMaxEdgesAndReportsTruncation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, &Document{DocID: "doc-a", URI: "kestrel://notes/a.md", Collection: "notes", RelPath: "a.md", Title: "A", Active: true}))
	require.NoError(t, s.UpsertDocument(ctx, &Document{DocID: "doc-b", URI: "kestrel://notes/b.md", Collection: "notes", RelPath: "b.md", Title: "B", Active: true}))
	require.NoError(t, s.UpsertDocument(ctx, &Document{DocID: "doc-c", URI: "kestrel://notes/c.md", Collection: "notes", RelPath: "c.md", Title: "C", Active: true}))

	require.NoError(t, s.ReplaceLinksForDoc(ctx, "doc-a", []DocLink{
		{LinkType: LinkTypeMarkdown, TargetRef: "./b.md", TargetRefNorm: ResolutionKey("notes", "b.md")},
		{LinkType: LinkTypeMarkdown, TargetRef: "./c.md", TargetRefNorm: ResolutionKey("notes", "c.md")},
	}))

	graph, err := s.GetGraph(ctx, GraphOptions{Collection: "notes", MaxEdges: 1})
	require.NoError(t, err)
	assert.Len(t, graph.Edges, 1)
	assert.True(t, graph.Meta.EdgesTruncated)

	full, err := s.GetGraph(ctx, GraphOptions{Collection: "notes"})
	require.NoError(t, err)
	assert.Len(t, full.Edges, 2)
	assert.False(t, full.Meta.EdgesTruncated)
	assert.False(t, full.Meta.NodesTruncated)
}

func TestSQLiteStore_Close_Idempotent(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestSQLiteStore_OperationsAfterClose(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.ListCollections(context.Background())
	require.Error(t, err)

	err = s.PutContent(context.Background(), "h", []byte("x"))
	require.Error(t, err)
}

func TestSQLiteStore_PersistentPath_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "index.db")

	s1, err := NewSQLiteStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s1.SyncCollections(ctx, []Collection{{Name: "notes", Root: "/notes"}}))
	require.NoError(t, s1.UpsertDocument(ctx, &Document{DocID: "doc-1", URI: "kestrel://notes/a.md", Collection: "notes", RelPath: "a.md", MirrorHash: "h1", Active: true}))
	require.NoError(t, s1.PutContent(ctx, "h1", []byte("content")))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	doc, err := s2.GetDocumentByDocID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "h1", doc.MirrorHash)

	body, err := s2.GetContent(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "content", string(body))
}

func TestSQLiteStore_Corrupted_AutoRecovers(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "index.db")

	require.NoError(t, os.WriteFile(path, []byte("not a sqlite database"), 0o644))

	s, err := NewSQLiteStore(path)
	require.NoError(t, err, "corrupted store should be detected and rebuilt rather than failing")
	defer func() { _ = s.Close() }()

	all, err := s.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}
