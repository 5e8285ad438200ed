// Package capture implements the write path of spec §4.12: create or
// overwrite a single document atomically, then hand it to
// internal/ingest for conversion, chunking, and linking — the same
// atomic-write discipline as the teacher's internal/session.SaveSession
// (temp file + rename), layered on internal/docref's path guard and
// internal/locking's cross-process FileLock.
package capture

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelkb/kestrel/internal/docref"
	kerrors "github.com/kestrelkb/kestrel/internal/errors"
	"github.com/kestrelkb/kestrel/internal/ingest"
	"github.com/kestrelkb/kestrel/internal/locking"
	"github.com/kestrelkb/kestrel/internal/store"
)

// Request is a single capture call (spec §4.12).
type Request struct {
	// Collection is matched case-insensitively against a known
	// collection's name.
	Collection string

	// Path is an explicit relative path within the collection. If
	// empty, a path is derived from Title or the content's first
	// heading.
	Path string

	// Title is a best-effort human title. Used to derive Path when
	// Path is empty, and otherwise left for the Ingestor's converter
	// to pick up from the content itself.
	Title string

	// Content is the document body to write, verbatim.
	Content string

	// Overwrite allows replacing an existing document at the
	// resolved path. Without it, capturing over an existing document
	// fails with KindDuplicate.
	Overwrite bool
}

// Result is the outcome of a successful Capture (spec §4.12 step 6).
type Result struct {
	DocID       string
	URI         string
	AbsPath     string
	Created     bool
	Overwritten bool
}

// Capturer implements Capture. writeEnabled gates every call behind
// the engine's write-enabled guard (spec §4.12 step 1); it defaults to
// true and is intended for a future read-only deployment mode.
type Capturer struct {
	store        store.Store
	ingestor     *ingest.Ingestor
	lock         *locking.FileLock
	writeEnabled bool
	log          *slog.Logger
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithWriteEnabled toggles the write-enabled guard.
func WithWriteEnabled(enabled bool) Option {
	return func(c *Capturer) { c.writeEnabled = enabled }
}

// WithLogger attaches a logger; the default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Capturer) { c.log = log }
}

// New returns a Capturer backed by st and ingestor, serialized by
// lock.
func New(st store.Store, ingestor *ingest.Ingestor, lock *locking.FileLock, opts ...Option) *Capturer {
	c := &Capturer{
		store:        st,
		ingestor:     ingestor,
		lock:         lock,
		writeEnabled: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With(slog.String("component", "capture"))
	return c
}

// Capture creates or overwrites a single document (spec §4.12).
func (c *Capturer) Capture(ctx context.Context, req Request) (*Result, error) {
	if !c.writeEnabled {
		return nil, kerrors.New(kerrors.KindInvalidInput, "capture is disabled: engine is in read-only mode")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, kerrors.New(kerrors.KindInvalidInput, "capture content is empty")
	}

	if err := c.lock.Acquire(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = c.lock.Release() }()

	collection, err := c.resolveCollection(ctx, req.Collection)
	if err != nil {
		return nil, err
	}

	relPath, err := resolveRelPath(req)
	if err != nil {
		return nil, err
	}

	existing, err := c.store.GetDocument(ctx, collection.Name, relPath)
	if err != nil && !kerrors.IsKind(err, kerrors.KindNotFound) {
		return nil, kerrors.Wrap(kerrors.KindRuntime, err, "lookup existing document %q", relPath)
	}
	if existing != nil && !req.Overwrite {
		return nil, kerrors.New(kerrors.KindDuplicate, "document %q already exists in collection %q", relPath, collection.Name)
	}

	absPath := filepath.Join(collection.Root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, kerrors.Wrap(kerrors.KindRuntime, err, "create parent directories for %q", relPath)
	}
	if err := writeFileAtomic(absPath, []byte(req.Content)); err != nil {
		return nil, err
	}

	if _, err := c.ingestor.IngestFile(ctx, collection, relPath); err != nil {
		return nil, kerrors.Wrap(kerrors.KindIngestError, err, "ingest captured file %q", relPath)
	}

	doc, err := c.store.GetDocument(ctx, collection.Name, relPath)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindRuntime, err, "load captured document %q", relPath)
	}

	c.log.Info("captured document",
		slog.String("collection", collection.Name),
		slog.String("path", relPath),
		slog.Bool("overwritten", existing != nil))

	return &Result{
		DocID:       doc.DocID,
		URI:         doc.URI,
		AbsPath:     absPath,
		Created:     existing == nil,
		Overwritten: existing != nil,
	}, nil
}

func (c *Capturer) resolveCollection(ctx context.Context, name string) (store.Collection, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return store.Collection{}, kerrors.New(kerrors.KindInvalidInput, "collection name is empty")
	}
	col, err := c.store.GetCollection(ctx, normalized)
	if err != nil {
		return store.Collection{}, err
	}
	return *col, nil
}

// resolveRelPath implements spec §4.12 step 3: validate an explicit
// path, or derive a slug from the title or content's first heading,
// timestamp-suffixed when neither is present.
func resolveRelPath(req Request) (string, error) {
	if req.Path != "" {
		path := ensureMarkdownExt(req.Path)
		if err := docref.ValidatePath(path); err != nil {
			return "", err
		}
		return path, nil
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = firstHeading(req.Content)
	}

	slug := slugify(title)
	if slug == "" {
		slug = "note-" + time.Now().UTC().Format("20060102150405")
	}

	path := slug + ".md"
	if err := docref.ValidatePath(path); err != nil {
		return "", err
	}
	return path, nil
}

// ensureMarkdownExt appends ".md" when path does not already carry it,
// case-insensitively (spec §4.12 step 3).
func ensureMarkdownExt(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".md") {
		return path
	}
	return path + ".md"
}

// firstHeading returns the text of the first ATX heading (`# Title`)
// in content, or "" if none is found. Mirrors
// internal/convert.firstHeadingOrPath's heading scan, without that
// function's relPath fallback: the fallback here is the timestamped
// slug, not the source path.
func firstHeading(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if title != "" {
				return title
			}
		}
	}
	return ""
}

// slugify lowercases s and replaces runs of non-alphanumeric
// characters with a single hyphen, trimming leading/trailing hyphens.
// No slug-generation library appears anywhere in the example pack, so
// this follows the corpus's own precedent (e.g. internal/docref's
// hand-rolled path/tag normalization) rather than introducing one.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // treat start-of-string like a hyphen, to suppress a leading one
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// writeFileAtomic writes data to path via a temp file + rename (spec
// §4.12 step 4), unlinking the temp file if the rename fails.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp." + uuid.NewString()
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return kerrors.Wrap(kerrors.KindRuntime, err, "write temp file for %q", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return kerrors.Wrap(kerrors.KindRuntime, err, "rename temp file into %q", path)
	}
	return nil
}
