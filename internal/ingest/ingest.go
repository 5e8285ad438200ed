package ingest

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelkb/kestrel/internal/canon"
	"github.com/kestrelkb/kestrel/internal/chunk"
	"github.com/kestrelkb/kestrel/internal/convert"
	"github.com/kestrelkb/kestrel/internal/docref"
	kerrors "github.com/kestrelkb/kestrel/internal/errors"
	"github.com/kestrelkb/kestrel/internal/linkengine"
	"github.com/kestrelkb/kestrel/internal/store"
)

// DefaultMaxFileBytes bounds a single source file read, guarding
// against memory exhaustion on an unexpectedly large tracked file.
const DefaultMaxFileBytes = 10 * 1024 * 1024

// commandRunner executes a collection's optional pull/update command.
// Overridable in tests; the default shells out via os/exec the way the
// teacher's lifecycle.OllamaManager makes exec.Command swappable.
type commandRunner func(ctx context.Context, dir, command string) error

func runShellCommand(ctx context.Context, dir, command string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func runGitPull(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, "git", "pull", "--ff-only")
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Ingestor implements the sync algorithm of spec §4.4: discover files,
// convert and canonicalize each one, persist its blob/chunks/links,
// and upsert its document row — tolerating per-file failures so one
// bad file never aborts the rest of the collection.
type Ingestor struct {
	store        store.Store
	converters   *convert.Registry
	chunker      chunk.Chunker
	maxFileBytes int64
	runCommand   commandRunner
	gitPull      func(ctx context.Context, dir string) error
	log          *slog.Logger
}

// New returns an Ingestor backed by st, converters, and chunker.
func New(st store.Store, converters *convert.Registry, chunker chunk.Chunker, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		store:        st,
		converters:   converters,
		chunker:      chunker,
		maxFileBytes: DefaultMaxFileBytes,
		runCommand:   runShellCommand,
		gitPull:      runGitPull,
		log:          log.With(slog.String("component", "ingest")),
	}
}

// Sync runs the full collection sync of spec §4.4. It never returns
// an error for a single bad file; only collection-level failures
// (an unreadable root, a cancelled context) abort early.
func (ing *Ingestor) Sync(ctx context.Context, col store.Collection, opts SyncOptions) (*CollectionSyncResult, error) {
	start := time.Now()
	result := &CollectionSyncResult{Collection: col.Name}

	if opts.GitPull && col.VCSPull {
		if err := ing.gitPull(ctx, col.Root); err != nil {
			ing.log.Warn("git pull failed", slog.String("collection", col.Name), slog.String("error", err.Error()))
		}
	}
	if opts.RunUpdateCmd && col.PreSyncCommand != "" {
		if err := ing.runCommand(ctx, col.Root, col.PreSyncCommand); err != nil {
			ing.log.Warn("update command failed", slog.String("collection", col.Name), slog.String("error", err.Error()))
		}
	}

	relPaths, err := discoverFiles(ctx, col.Root, col.Include, col.Exclude)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindIngestError, err, "failed to walk collection %q root", col.Name)
	}

	for _, relPath := range relPaths {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(start)
			return result, ctx.Err()
		default:
		}

		outcome, syncErr := ing.syncFile(ctx, col, relPath)
		fr := FileResult{RelPath: relPath, Outcome: outcome, Err: syncErr}
		if syncErr != nil {
			ing.log.Warn("sync failed for file",
				slog.String("collection", col.Name),
				slog.String("path", relPath),
				slog.String("error", syncErr.Error()))
		}
		result.record(fr)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// IngestFile runs steps 3-8 of spec §4.4 for a single already-written
// file, with no VCS pull or pre-sync command (those are collection-level
// steps Sync performs before discovery runs). internal/capture calls
// this for the one relative path it just wrote (spec §4.12 step 5).
func (ing *Ingestor) IngestFile(ctx context.Context, col store.Collection, relPath string) (Outcome, error) {
	return ing.syncFile(ctx, col, relPath)
}

// syncFile runs steps 3-8 of spec §4.4 for a single file.
func (ing *Ingestor) syncFile(ctx context.Context, col store.Collection, relPath string) (Outcome, error) {
	absPath := filepath.Join(col.Root, filepath.FromSlash(relPath))

	info, err := os.Stat(absPath)
	if err != nil {
		return OutcomeError, kerrors.Wrap(kerrors.KindIngestError, err, "stat %q", relPath)
	}
	if info.Size() > ing.maxFileBytes {
		return OutcomeError, kerrors.New(kerrors.KindTooLarge, "file %q exceeds max size %d bytes", relPath, ing.maxFileBytes)
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return OutcomeError, kerrors.Wrap(kerrors.KindIngestError, err, "read %q", relPath)
	}
	sourceHash := canon.SourceHash(raw)

	uri, err := docref.BuildURI(col.Name, relPath)
	if err != nil {
		return OutcomeError, err
	}

	activeExisting, err := ing.store.GetDocument(ctx, col.Name, relPath)
	if err != nil && !kerrors.IsKind(err, kerrors.KindNotFound) {
		return OutcomeError, kerrors.Wrap(kerrors.KindIngestError, err, "lookup existing document %q", relPath)
	}
	if activeExisting != nil && activeExisting.SourceHash == sourceHash {
		return OutcomeSkipped, nil
	}

	existing := activeExisting
	if existing == nil {
		// The file may be resurrecting a previously deactivated
		// document sharing the same (collection, relPath): the
		// store's URI column is unique across active and inactive
		// rows alike, so its docid must be reused rather than
		// regenerated to avoid colliding with the old inactive row.
		if byURI, uerr := ing.store.GetDocumentByURI(ctx, uri); uerr == nil {
			existing = byURI
		} else if !kerrors.IsKind(uerr, kerrors.KindNotFound) {
			return OutcomeError, kerrors.Wrap(kerrors.KindIngestError, uerr, "lookup document by uri %q", uri)
		}
	}

	ext := extOf(relPath)
	mime := mimeForPath(relPath)
	converter, err := ing.converters.Select(mime, ext)
	if err != nil {
		return OutcomeError, err
	}

	converted, err := converter.Convert(convert.Input{
		RelPath:  relPath,
		Mime:     mime,
		Ext:      ext,
		Bytes:    raw,
		MaxBytes: ing.maxFileBytes,
	})
	if err != nil {
		return OutcomeError, err
	}

	canonical := canon.Canonicalize(converted.Markdown)
	mirrorHash := canon.MirrorHash(canonical.Markdown)

	if existing == nil || existing.MirrorHash != mirrorHash {
		if _, getErr := ing.store.GetContent(ctx, mirrorHash); getErr != nil {
			if err := ing.store.PutContent(ctx, mirrorHash, []byte(canonical.Markdown)); err != nil {
				return OutcomeError, kerrors.Wrap(kerrors.KindIngestError, err, "write blob for %q", relPath)
			}
			chunks, err := ing.chunker.Chunk(ctx, chunk.Input{MirrorHash: mirrorHash, Markdown: canonical.Markdown})
			if err != nil {
				return OutcomeError, kerrors.Wrap(kerrors.KindIngestError, err, "chunk %q", relPath)
			}
			storeChunks := make([]store.Chunk, len(chunks))
			for i, c := range chunks {
				storeChunks[i] = store.Chunk{
					MirrorHash: mirrorHash,
					Seq:        i,
					Text:       c.Content,
					StartLine:  c.StartLine,
					EndLine:    c.EndLine,
					TokenCount: c.TokenCount,
				}
			}
			if err := ing.store.ReplaceChunksForMirror(ctx, mirrorHash, storeChunks); err != nil {
				return OutcomeError, kerrors.Wrap(kerrors.KindIngestError, err, "persist chunks for %q", relPath)
			}
		}
	}

	title := converted.Title
	if t, ok := canonical.Frontmatter["title"]; ok && t != "" {
		title = t
	}

	doc := &store.Document{
		URI:              uri,
		Collection:       col.Name,
		RelPath:          relPath,
		Title:            title,
		SourceMime:       converted.Meta.SourceMime,
		SourceExt:        ext,
		SourceHash:       sourceHash,
		SourceSize:       info.Size(),
		SourceMtime:      info.ModTime(),
		MirrorHash:       mirrorHash,
		ConverterID:      converted.Meta.ConverterID,
		ConverterVersion: converted.Meta.ConverterVersion,
		Active:           true,
	}
	if existing != nil {
		doc.DocID = existing.DocID
		doc.CreatedAt = existing.CreatedAt
	} else {
		doc.DocID = uuid.NewString()
	}

	links := linkengine.Parse(converted.Markdown, col.Name, relPath).Links

	if err := ing.store.UpsertDocument(ctx, doc); err != nil {
		return OutcomeError, kerrors.Wrap(kerrors.KindIngestError, err, "upsert document %q", relPath)
	}
	for i := range links {
		links[i].SourceDocID = doc.DocID
	}
	if err := ing.store.ReplaceLinksForDoc(ctx, doc.DocID, links); err != nil {
		return OutcomeError, kerrors.Wrap(kerrors.KindIngestError, err, "replace links for %q", relPath)
	}

	if activeExisting == nil {
		return OutcomeAdded, nil
	}
	return OutcomeUpdated, nil
}

func extOf(relPath string) string {
	idx := strings.LastIndexByte(relPath, '.')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(relPath[idx:])
}
