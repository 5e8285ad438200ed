package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelkb/kestrel/internal/chunk"
	"github.com/kestrelkb/kestrel/internal/convert"
	kerrors "github.com/kestrelkb/kestrel/internal/errors"
	"github.com/kestrelkb/kestrel/internal/ingest"
	"github.com/kestrelkb/kestrel/internal/locking"
	"github.com/kestrelkb/kestrel/internal/store"
)

func newTestCapturer(t *testing.T) (*Capturer, *store.SQLiteStore, store.Collection) {
	t.Helper()
	st, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	root := t.TempDir()
	col := store.Collection{Name: "notes", Root: root, Active: true}
	require.NoError(t, st.SyncCollections(context.Background(), []store.Collection{col}))

	lock := locking.New(t.TempDir(), "capture-test")
	ing := ingest.New(st, convert.NewRegistry(), chunk.NewMarkdownChunker(), nil)
	return New(st, ing, lock), st, col
}

func TestCapture_CreatesDocumentFromTitle(t *testing.T) {
	c, st, _ := newTestCapturer(t)

	res, err := c.Capture(context.Background(), Request{
		Collection: "notes",
		Title:      "My New Idea",
		Content:    "# My New Idea\n\nSome body text.\n",
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Overwritten)
	assert.NotEmpty(t, res.DocID)

	doc, err := st.GetDocument(context.Background(), "notes", "my-new-idea.md")
	require.NoError(t, err)
	assert.Equal(t, "My New Idea", doc.Title)
	assert.NotEmpty(t, doc.MirrorHash)
}

func TestCapture_DerivesSlugFromFirstHeadingWhenTitleEmpty(t *testing.T) {
	c, st, _ := newTestCapturer(t)

	_, err := c.Capture(context.Background(), Request{
		Collection: "notes",
		Content:    "# Heading From Body\n\nText.\n",
	})
	require.NoError(t, err)

	doc, err := st.GetDocument(context.Background(), "notes", "heading-from-body.md")
	require.NoError(t, err)
	assert.Equal(t, "Heading From Body", doc.Title)
}

func TestCapture_FallsBackToTimestampSlugWhenNoTitleOrHeading(t *testing.T) {
	c, _, _ := newTestCapturer(t)

	res, err := c.Capture(context.Background(), Request{
		Collection: "notes",
		Content:    "just some plain text with no heading\n",
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Contains(t, res.AbsPath, "note-")
}

func TestCapture_ExplicitPathGetsMarkdownExtension(t *testing.T) {
	c, st, _ := newTestCapturer(t)

	_, err := c.Capture(context.Background(), Request{
		Collection: "notes",
		Path:       "folder/report",
		Content:    "# Report\n",
	})
	require.NoError(t, err)

	doc, err := st.GetDocument(context.Background(), "notes", "folder/report.md")
	require.NoError(t, err)
	assert.Equal(t, "Report", doc.Title)
}

func TestCapture_RejectsPathTraversal(t *testing.T) {
	c, _, _ := newTestCapturer(t)

	_, err := c.Capture(context.Background(), Request{
		Collection: "notes",
		Path:       "../evil.md",
		Content:    "# Evil\n",
	})
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindInvalidPath))
}

func TestCapture_RejectsSensitiveDirectory(t *testing.T) {
	c, _, _ := newTestCapturer(t)

	_, err := c.Capture(context.Background(), Request{
		Collection: "notes",
		Path:       ".ssh/id_rsa",
		Content:    "not a key\n",
	})
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindInvalidPath))
}

func TestCapture_OverwriteFalseAgainstExistingFails(t *testing.T) {
	c, _, _ := newTestCapturer(t)
	req := Request{Collection: "notes", Path: "dup.md", Content: "# Dup\n\nOne.\n"}

	_, err := c.Capture(context.Background(), req)
	require.NoError(t, err)

	_, err = c.Capture(context.Background(), req)
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindDuplicate))
}

func TestCapture_OverwriteTrueReplacesContentAndSetsOverwritten(t *testing.T) {
	c, st, _ := newTestCapturer(t)
	path := "dup.md"

	_, err := c.Capture(context.Background(), Request{Collection: "notes", Path: path, Content: "# Dup\n\nOne.\n"})
	require.NoError(t, err)
	first, err := st.GetDocument(context.Background(), "notes", path)
	require.NoError(t, err)

	res, err := c.Capture(context.Background(), Request{Collection: "notes", Path: path, Content: "# Dup\n\nTwo.\n", Overwrite: true})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.True(t, res.Overwritten)

	second, err := st.GetDocument(context.Background(), "notes", path)
	require.NoError(t, err)
	assert.NotEqual(t, first.MirrorHash, second.MirrorHash)
}

func TestCapture_OverwriteWithUnchangedContentLeavesMirrorHashStable(t *testing.T) {
	c, st, _ := newTestCapturer(t)
	path := "stable.md"
	content := "# Stable\n\nSame every time.\n"

	_, err := c.Capture(context.Background(), Request{Collection: "notes", Path: path, Content: content})
	require.NoError(t, err)
	first, err := st.GetDocument(context.Background(), "notes", path)
	require.NoError(t, err)

	_, err = c.Capture(context.Background(), Request{Collection: "notes", Path: path, Content: content, Overwrite: true})
	require.NoError(t, err)
	second, err := st.GetDocument(context.Background(), "notes", path)
	require.NoError(t, err)

	assert.Equal(t, first.MirrorHash, second.MirrorHash)
	assert.Equal(t, first.DocID, second.DocID)
}

func TestCapture_WriteDisabledReturnsInvalidInput(t *testing.T) {
	c, _, _ := newTestCapturer(t)
	c.writeEnabled = false

	_, err := c.Capture(context.Background(), Request{Collection: "notes", Path: "x.md", Content: "# X\n"})
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindInvalidInput))
}

func TestCapture_UnknownCollectionFails(t *testing.T) {
	c, _, _ := newTestCapturer(t)

	_, err := c.Capture(context.Background(), Request{Collection: "does-not-exist", Path: "x.md", Content: "# X\n"})
	require.Error(t, err)
}

func TestCapture_CollectionNameIsCaseInsensitive(t *testing.T) {
	c, st, _ := newTestCapturer(t)

	_, err := c.Capture(context.Background(), Request{Collection: "NOTES", Path: "x.md", Content: "# X\n"})
	require.NoError(t, err)

	_, err = st.GetDocument(context.Background(), "notes", "x.md")
	require.NoError(t, err)
}

func TestCapture_LockFailureSurfacesAsLocked(t *testing.T) {
	lockDir := t.TempDir()
	other := locking.New(lockDir, "capture-test")
	require.NoError(t, other.Acquire(context.Background()))
	defer func() { _ = other.Release() }()

	st, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	root := t.TempDir()
	col := store.Collection{Name: "notes", Root: root, Active: true}
	require.NoError(t, st.SyncCollections(context.Background(), []store.Collection{col}))

	blocked := locking.New(lockDir, "capture-test")
	ing := ingest.New(st, convert.NewRegistry(), chunk.NewMarkdownChunker(), nil)
	c := New(st, ing, blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, err = c.Capture(ctx, Request{Collection: "notes", Path: "x.md", Content: "# X\n"})
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindLocked))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hello-world", slugify("Hello, World!"))
	assert.Equal(t, "a-b-c", slugify("  A   B---C  "))
	assert.Equal(t, "", slugify(""))
	assert.Equal(t, "", slugify("!!!"))
}

func TestFirstHeading(t *testing.T) {
	assert.Equal(t, "Title Here", firstHeading("intro text\n# Title Here\nbody"))
	assert.Equal(t, "", firstHeading("no heading at all\njust text"))
	assert.Equal(t, "Nested", firstHeading("## Nested\nbody"))
}

func TestEnsureMarkdownExt(t *testing.T) {
	assert.Equal(t, "a.md", ensureMarkdownExt("a"))
	assert.Equal(t, "a.md", ensureMarkdownExt("a.md"))
	assert.Equal(t, "a.MD", ensureMarkdownExt("a.MD"))
}

func TestWriteFileAtomic_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.md")
	require.NoError(t, writeFileAtomic(path, []byte("content")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
