package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/kestrelkb/kestrel/internal/docref"
	kerrors "github.com/kestrelkb/kestrel/internal/errors"
)

// SQLiteStore implements Store over a single SQLite database holding
// collections, documents, content blobs, chunks, links, and tags.
// WAL mode and a single writer connection give the transactional
// all-or-nothing guarantees spec §4.1 requires without an external
// lock manager.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// validateStoreIntegrity mirrors validateIntegrity in sqlite_bm25.go,
// checking for the metadata schema's marker table instead of FTS5's.
func validateStoreIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name='collections'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("metadata table 'collections' missing")
	}

	return nil
}

// NewSQLiteStore opens (or creates) the metadata database at path. An
// empty path creates an in-memory store for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}

		if validErr := validateStoreIntegrity(path); validErr != nil {
			slog.Warn("store_corrupted", slog.String("path", path), slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, kerrors.Wrap(kerrors.KindCorrupt, validErr, "store at %s is corrupted and could not be removed: %v", path, removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("store_cleared", slog.String("path", path), slog.String("reason", "corruption detected, resync required"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer connection avoids SQLite lock contention entirely.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS collections (
		name             TEXT PRIMARY KEY,
		root_path        TEXT NOT NULL,
		include_globs    TEXT NOT NULL DEFAULT '',
		exclude_globs    TEXT NOT NULL DEFAULT '',
		pre_sync_command TEXT NOT NULL DEFAULT '',
		vcs_pull         INTEGER NOT NULL DEFAULT 0,
		active           INTEGER NOT NULL DEFAULT 1,
		created_at       TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		docid             TEXT PRIMARY KEY,
		uri               TEXT NOT NULL UNIQUE,
		collection        TEXT NOT NULL,
		rel_path          TEXT NOT NULL,
		title             TEXT NOT NULL DEFAULT '',
		language_hint     TEXT NOT NULL DEFAULT '',
		source_mime       TEXT NOT NULL DEFAULT '',
		source_ext        TEXT NOT NULL DEFAULT '',
		source_hash       TEXT NOT NULL DEFAULT '',
		source_size       INTEGER NOT NULL DEFAULT 0,
		source_mtime      TEXT NOT NULL,
		mirror_hash       TEXT NOT NULL DEFAULT '',
		converter_id      TEXT NOT NULL DEFAULT '',
		converter_version TEXT NOT NULL DEFAULT '',
		active            INTEGER NOT NULL DEFAULT 1,
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_active_path
		ON documents(collection, rel_path) WHERE active = 1;
	CREATE INDEX IF NOT EXISTS idx_documents_mirror_hash ON documents(mirror_hash);

	CREATE TABLE IF NOT EXISTS content_blobs (
		mirror_hash TEXT PRIMARY KEY,
		body        BLOB NOT NULL,
		byte_size   INTEGER NOT NULL,
		created_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		mirror_hash TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		text        TEXT NOT NULL,
		start_line  INTEGER NOT NULL,
		end_line    INTEGER NOT NULL,
		token_count INTEGER NOT NULL,
		PRIMARY KEY (mirror_hash, seq)
	);

	CREATE TABLE IF NOT EXISTS doc_links (
		docid              TEXT NOT NULL,
		seq                INTEGER NOT NULL,
		link_type          TEXT NOT NULL,
		target_ref         TEXT NOT NULL,
		target_ref_norm    TEXT NOT NULL,
		target_collection  TEXT NOT NULL DEFAULT '',
		target_anchor      TEXT NOT NULL DEFAULT '',
		link_text          TEXT NOT NULL DEFAULT '',
		start_line         INTEGER NOT NULL,
		start_col          INTEGER NOT NULL,
		end_line           INTEGER NOT NULL,
		end_col            INTEGER NOT NULL,
		PRIMARY KEY (docid, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_doc_links_target ON doc_links(target_ref_norm);

	CREATE TABLE IF NOT EXISTS tags (
		docid TEXT NOT NULL,
		tag   TEXT NOT NULL,
		PRIMARY KEY (docid, tag)
	);
	CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag);

	CREATE TABLE IF NOT EXISTS kv_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SyncCollections reconciles the configured set of collections against
// the registry: inserted/updated in place, and any previously-known
// collection absent from the new set is marked inactive rather than
// deleted (documents still reference it by name).
func (s *SQLiteStore) SyncCollections(ctx context.Context, collections []Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE collections SET active = 0`); err != nil {
		return fmt.Errorf("deactivate collections: %w", err)
	}

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO collections (name, root_path, include_globs, exclude_globs, pre_sync_command, vcs_pull, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(name) DO UPDATE SET
			root_path = excluded.root_path,
			include_globs = excluded.include_globs,
			exclude_globs = excluded.exclude_globs,
			pre_sync_command = excluded.pre_sync_command,
			vcs_pull = excluded.vcs_pull,
			active = 1
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer upsert.Close()

	for _, c := range collections {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := upsert.ExecContext(ctx, c.Name, c.Root,
			joinGlobs(c.Include), joinGlobs(c.Exclude), c.PreSyncCommand,
			boolToInt(c.VCSPull), createdAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("upsert collection %s: %w", c.Name, err)
		}
	}

	return tx.Commit()
}

// GetCollection returns a single collection by name, or NOT_FOUND.
func (s *SQLiteStore) GetCollection(ctx context.Context, name string) (*Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT name, root_path, include_globs, exclude_globs, pre_sync_command, vcs_pull, active, created_at
		FROM collections WHERE name = ?`, name)

	c, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, kerrors.New(kerrors.KindNotFound, "collection %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return c, nil
}

// ListCollections returns every known collection, active or not.
func (s *SQLiteStore) ListCollections(ctx context.Context) ([]Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, root_path, include_globs, exclude_globs, pre_sync_command, vcs_pull, active, created_at
		FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var result []Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollection(row rowScanner) (*Collection, error) {
	var c Collection
	var include, exclude, createdAt string
	var vcsPull, active int
	if err := row.Scan(&c.Name, &c.Root, &include, &exclude, &c.PreSyncCommand, &vcsPull, &active, &createdAt); err != nil {
		return nil, err
	}
	c.Include = splitGlobs(include)
	c.Exclude = splitGlobs(exclude)
	c.VCSPull = vcsPull != 0
	c.Active = active != 0
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &c, nil
}

// GetDocument returns the active document at (collection, relPath).
func (s *SQLiteStore) GetDocument(ctx context.Context, collection, relPath string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx, documentSelectQuery+` WHERE collection = ? AND rel_path = ? AND active = 1`, collection, relPath)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, kerrors.New(kerrors.KindNotFound, "document %s/%s not found", collection, relPath)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// GetDocumentByDocID returns a document by its primary key.
func (s *SQLiteStore) GetDocumentByDocID(ctx context.Context, docID string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx, documentSelectQuery+` WHERE docid = ?`, docID)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, kerrors.New(kerrors.KindNotFound, "document %s not found", docID)
	}
	if err != nil {
		return nil, fmt.Errorf("get document by docid: %w", err)
	}
	return doc, nil
}

// GetDocumentByURI returns a document by its scheme://collection/relPath URI.
func (s *SQLiteStore) GetDocumentByURI(ctx context.Context, uri string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx, documentSelectQuery+` WHERE uri = ?`, uri)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, kerrors.New(kerrors.KindNotFound, "document %s not found", uri)
	}
	if err != nil {
		return nil, fmt.Errorf("get document by uri: %w", err)
	}
	return doc, nil
}

// GetDocumentByMirrorHash returns the active document currently backed
// by mirrorHash's converted content, used by graph assembly to resolve
// a vector-index neighbor's chunk back to its owning document.
func (s *SQLiteStore) GetDocumentByMirrorHash(ctx context.Context, mirrorHash string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx, documentSelectQuery+` WHERE mirror_hash = ? AND active = 1`, mirrorHash)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, kerrors.New(kerrors.KindNotFound, "document with mirror hash %s not found", mirrorHash)
	}
	if err != nil {
		return nil, fmt.Errorf("get document by mirror hash: %w", err)
	}
	return doc, nil
}

const documentSelectQuery = `
	SELECT docid, uri, collection, rel_path, title, language_hint, source_mime,
	       source_ext, source_hash, source_size, source_mtime, mirror_hash,
	       converter_id, converter_version, active, created_at, updated_at
	FROM documents`

func scanDocument(row rowScanner) (*Document, error) {
	var d Document
	var sourceMtime, createdAt, updatedAt string
	var active int
	if err := row.Scan(&d.DocID, &d.URI, &d.Collection, &d.RelPath, &d.Title, &d.LanguageHint,
		&d.SourceMime, &d.SourceExt, &d.SourceHash, &d.SourceSize, &sourceMtime, &d.MirrorHash,
		&d.ConverterID, &d.ConverterVersion, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Active = active != 0
	d.SourceMtime, _ = time.Parse(time.RFC3339Nano, sourceMtime)
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &d, nil
}

// ListDocuments returns documents matching filter, paginated by a
// docid cursor.
func (s *SQLiteStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, "", fmt.Errorf("store is closed")
	}

	query := documentSelectQuery + ` WHERE 1=1`
	var args []any

	if filter.Collection != "" {
		query += ` AND collection = ?`
		args = append(args, filter.Collection)
	}
	if filter.ActiveOnly {
		query += ` AND active = 1`
	}
	if filter.TagPrefix != "" {
		query += ` AND docid IN (SELECT docid FROM tags WHERE tag LIKE ? || '%')`
		args = append(args, filter.TagPrefix)
	}
	if filter.Cursor != "" {
		query += ` AND docid > ?`
		args = append(args, filter.Cursor)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY docid LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(docs) > limit {
		nextCursor = docs[limit-1].DocID
		docs = docs[:limit]
	}

	return docs, nextCursor, nil
}

// UpsertDocument inserts or replaces a document row inside a
// transaction. Chunks for a prior mirrorHash are never touched here:
// the blob may still be referenced by other documents.
func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	createdAt := now
	if !doc.CreatedAt.IsZero() {
		createdAt = doc.CreatedAt.Format(time.RFC3339Nano)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (docid, uri, collection, rel_path, title, language_hint,
			source_mime, source_ext, source_hash, source_size, source_mtime, mirror_hash,
			converter_id, converter_version, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(docid) DO UPDATE SET
			uri = excluded.uri,
			collection = excluded.collection,
			rel_path = excluded.rel_path,
			title = excluded.title,
			language_hint = excluded.language_hint,
			source_mime = excluded.source_mime,
			source_ext = excluded.source_ext,
			source_hash = excluded.source_hash,
			source_size = excluded.source_size,
			source_mtime = excluded.source_mtime,
			mirror_hash = excluded.mirror_hash,
			converter_id = excluded.converter_id,
			converter_version = excluded.converter_version,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, doc.DocID, doc.URI, doc.Collection, doc.RelPath, doc.Title, doc.LanguageHint,
		doc.SourceMime, doc.SourceExt, doc.SourceHash, doc.SourceSize,
		doc.SourceMtime.Format(time.RFC3339Nano), doc.MirrorHash,
		doc.ConverterID, doc.ConverterVersion, boolToInt(doc.Active), createdAt, now)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	return tx.Commit()
}

// DeactivateDocument marks a document inactive (soft delete), so a
// later sync resurrecting the file reuses its docid.
func (s *SQLiteStore) DeactivateDocument(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET active = 0, updated_at = ? WHERE docid = ?`, now, docID)
	if err != nil {
		return fmt.Errorf("deactivate document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return kerrors.New(kerrors.KindNotFound, "document %s not found", docID)
	}
	return nil
}

// GetContent returns the canonical Markdown for mirrorHash, or
// NOT_FOUND if no blob with that hash has been written.
func (s *SQLiteStore) GetContent(ctx context.Context, mirrorHash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM content_blobs WHERE mirror_hash = ?`, mirrorHash).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, kerrors.New(kerrors.KindNotFound, "blob %s not found", mirrorHash)
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	return body, nil
}

// PutContent writes a content blob once. Blobs are content-addressed
// and never mutated, so a write of an already-present hash is a no-op
// (content-addressed equality guarantees the bytes match).
func (s *SQLiteStore) PutContent(ctx context.Context, mirrorHash string, markdown []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO content_blobs (mirror_hash, body, byte_size, created_at)
		VALUES (?, ?, ?, ?)
	`, mirrorHash, markdown, len(markdown), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put content: %w", err)
	}
	return nil
}

// ReplaceChunksForMirror is idempotent: it is only ever invoked when no
// chunks yet exist for mirrorHash (the Ingestor checks first), but it
// guards with a delete-then-insert inside one transaction regardless,
// so a retried call never produces duplicate seqs.
func (s *SQLiteStore) ReplaceChunksForMirror(ctx context.Context, mirrorHash string, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE mirror_hash = ?`, mirrorHash); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (mirror_hash, seq, text, start_line, end_line, token_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	for _, c := range chunks {
		if _, err := insert.ExecContext(ctx, mirrorHash, c.Seq, c.Text, c.StartLine, c.EndLine, c.TokenCount); err != nil {
			return fmt.Errorf("insert chunk %s:%d: %w", mirrorHash, c.Seq, err)
		}
	}

	return tx.Commit()
}

// GetChunksByMirror returns every chunk for mirrorHash, ordered by seq.
func (s *SQLiteStore) GetChunksByMirror(ctx context.Context, mirrorHash string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT mirror_hash, seq, text, start_line, end_line, token_count
		FROM chunks WHERE mirror_hash = ? ORDER BY seq`, mirrorHash)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.MirrorHash, &c.Seq, &c.Text, &c.StartLine, &c.EndLine, &c.TokenCount); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ReplaceLinksForDoc fully replaces a document's outgoing links
// atomically: after this call, getLinksForDoc(docID) equals links as
// a set.
func (s *SQLiteStore) ReplaceLinksForDoc(ctx context.Context, docID string, links []DocLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_links WHERE docid = ?`, docID); err != nil {
		return fmt.Errorf("clear links: %w", err)
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO doc_links (docid, seq, link_type, target_ref, target_ref_norm,
			target_collection, target_anchor, link_text, start_line, start_col, end_line, end_col)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	for seq, l := range links {
		if _, err := insert.ExecContext(ctx, docID, seq, string(l.LinkType), l.TargetRef, l.TargetRefNorm,
			l.TargetCollection, l.TargetAnchor, l.LinkText, l.StartLine, l.StartCol, l.EndLine, l.EndCol); err != nil {
			return fmt.Errorf("insert link %d: %w", seq, err)
		}
	}

	return tx.Commit()
}

// GetLinksForDoc returns a document's outgoing links in extraction order.
func (s *SQLiteStore) GetLinksForDoc(ctx context.Context, docID string) ([]DocLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT link_type, target_ref, target_ref_norm, target_collection, target_anchor,
		       link_text, start_line, start_col, end_line, end_col
		FROM doc_links WHERE docid = ? ORDER BY seq`, docID)
	if err != nil {
		return nil, fmt.Errorf("get links: %w", err)
	}
	defer rows.Close()

	var links []DocLink
	for rows.Next() {
		var l DocLink
		var linkType string
		if err := rows.Scan(&linkType, &l.TargetRef, &l.TargetRefNorm, &l.TargetCollection, &l.TargetAnchor,
			&l.LinkText, &l.StartLine, &l.StartCol, &l.EndLine, &l.EndCol); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.SourceDocID = docID
		l.LinkType = LinkType(linkType)
		links = append(links, l)
	}
	return links, rows.Err()
}

// GetBacklinksForDoc returns every resolved incoming reference to docID.
func (s *SQLiteStore) GetBacklinksForDoc(ctx context.Context, docID string) ([]Backlink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	doc, err := s.docByIDLocked(ctx, docID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT dl.docid, d.uri, dl.link_type, dl.target_ref, dl.target_ref_norm,
		       dl.target_collection, dl.target_anchor, dl.link_text,
		       dl.start_line, dl.start_col, dl.end_line, dl.end_col
		FROM doc_links dl
		JOIN documents d ON d.docid = dl.docid
		WHERE dl.target_ref_norm = ?
		ORDER BY dl.docid, dl.seq`, ResolutionKey(doc.Collection, doc.RelPath))
	if err != nil {
		return nil, fmt.Errorf("get backlinks: %w", err)
	}
	defer rows.Close()

	var backlinks []Backlink
	for rows.Next() {
		var b Backlink
		var linkType string
		if err := rows.Scan(&b.SourceDocID, &b.SourceURI, &linkType, &b.Link.TargetRef, &b.Link.TargetRefNorm,
			&b.Link.TargetCollection, &b.Link.TargetAnchor, &b.Link.LinkText,
			&b.Link.StartLine, &b.Link.StartCol, &b.Link.EndLine, &b.Link.EndCol); err != nil {
			return nil, fmt.Errorf("scan backlink: %w", err)
		}
		b.Link.SourceDocID = b.SourceDocID
		b.Link.LinkType = LinkType(linkType)
		backlinks = append(backlinks, b)
	}
	return backlinks, rows.Err()
}

func (s *SQLiteStore) docByIDLocked(ctx context.Context, docID string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, documentSelectQuery+` WHERE docid = ?`, docID)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, kerrors.New(kerrors.KindNotFound, "document %s not found", docID)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// SetTagsForDoc replaces all tags on a document atomically.
func (s *SQLiteStore) SetTagsForDoc(ctx context.Context, docID string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE docid = ?`, docID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}

	insert, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO tags (docid, tag) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	for _, tag := range tags {
		if _, err := insert.ExecContext(ctx, docID, tag); err != nil {
			return fmt.Errorf("insert tag %s: %w", tag, err)
		}
	}

	return tx.Commit()
}

// GetTagsForDoc returns all tags on a document, sorted.
func (s *SQLiteStore) GetTagsForDoc(ctx context.Context, docID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT tag FROM tags WHERE docid = ? ORDER BY tag`, docID)
	if err != nil {
		return nil, fmt.Errorf("get tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// GetTagCounts returns distinct tags (optionally filtered by
// collection and/or prefix) with the number of active documents
// carrying each.
func (s *SQLiteStore) GetTagCounts(ctx context.Context, collection, prefix string) ([]TagCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	query := `
		SELECT t.tag, COUNT(DISTINCT t.docid) as cnt
		FROM tags t
		JOIN documents d ON d.docid = t.docid
		WHERE d.active = 1`
	var args []any

	if collection != "" {
		query += ` AND d.collection = ?`
		args = append(args, collection)
	}
	if prefix != "" {
		query += ` AND t.tag LIKE ? || '%'`
		args = append(args, prefix)
	}
	query += ` GROUP BY t.tag ORDER BY t.tag`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get tag counts: %w", err)
	}
	defer rows.Close()

	var counts []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan tag count: %w", err)
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}

// GetGraph returns a bounded set of nodes and edges forming the
// document link graph, starting from every active document in
// opts.Collection (or all collections when empty), breadth-expanded
// up to opts.MaxDepth hops and capped at opts.MaxNodes nodes and
// opts.MaxEdges edges. Either cap being hit is reported in the
// returned Graph's Meta (spec §4.6); similar-edge augmentation from
// the vector index happens one layer up, in engine.Context.Graph,
// since the store has no vector-index handle.
func (s *SQLiteStore) GetGraph(ctx context.Context, opts GraphOptions) (*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	maxNodes := opts.MaxNodes
	if maxNodes <= 0 {
		maxNodes = 500
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 2
	}
	maxEdges := opts.MaxEdges
	if maxEdges <= 0 {
		maxEdges = 2000
	}

	seedQuery := `SELECT docid, uri, title, collection, rel_path FROM documents WHERE active = 1`
	var seedArgs []any
	if opts.Collection != "" {
		seedQuery += ` AND collection = ?`
		seedArgs = append(seedArgs, opts.Collection)
	}
	seedQuery += ` ORDER BY docid`

	rows, err := s.db.QueryContext(ctx, seedQuery, seedArgs...)
	if err != nil {
		return nil, fmt.Errorf("seed graph nodes: %w", err)
	}

	nodes := make(map[string]GraphNode)
	// basenameToDocID resolves a link's target at query time by
	// (collection, normalizedBasename), per spec §4.6 — not by exact
	// URI match, since a wiki link or relative path rarely spells out
	// a document's full path. It covers every active document
	// regardless of maxNodes, since a link may target a document this
	// query's node cap excluded from the seed frontier.
	basenameToDocID := make(map[string]string)
	var frontier []string
	var meta GraphMeta
	seedCount := 0
	for rows.Next() {
		var n GraphNode
		var collection, relPath string
		if err := rows.Scan(&n.DocID, &n.URI, &n.Title, &collection, &relPath); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan seed node: %w", err)
		}
		seedCount++
		basenameToDocID[ResolutionKey(collection, relPath)] = n.DocID
		if len(nodes) < maxNodes {
			nodes[n.DocID] = n
			frontier = append(frontier, n.DocID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if seedCount > len(nodes) {
		meta.NodesTruncated = true
	}

	var edges []GraphEdge
	visitedEdges := make(map[string]struct{})

depthLoop:
	for depth := 0; depth < maxDepth && len(frontier) > 0 && len(nodes) < maxNodes; depth++ {
		var nextFrontier []string

		for _, docID := range frontier {
			linkRows, err := s.db.QueryContext(ctx, `
				SELECT link_type, target_ref, target_ref_norm FROM doc_links WHERE docid = ?`, docID)
			if err != nil {
				return nil, fmt.Errorf("query links for %s: %w", docID, err)
			}

			for linkRows.Next() {
				var linkType, targetRef, targetRefNorm string
				if err := linkRows.Scan(&linkType, &targetRef, &targetRefNorm); err != nil {
					linkRows.Close()
					return nil, fmt.Errorf("scan link: %w", err)
				}

				edgeKey := fmt.Sprintf("%s|%s", docID, targetRefNorm)
				if _, seen := visitedEdges[edgeKey]; seen {
					continue
				}
				visitedEdges[edgeKey] = struct{}{}

				if len(edges) >= maxEdges {
					meta.EdgesTruncated = true
					linkRows.Close()
					break depthLoop
				}

				targetDocID := basenameToDocID[targetRefNorm]
				edges = append(edges, GraphEdge{
					SourceDocID: docID,
					TargetDocID: targetDocID,
					TargetRef:   targetRef,
					LinkType:    LinkType(linkType),
				})

				if targetDocID != "" {
					if _, exists := nodes[targetDocID]; !exists {
						if len(nodes) < maxNodes {
							targetDoc, err := s.docByIDLocked(ctx, targetDocID)
							if err == nil {
								nodes[targetDocID] = GraphNode{DocID: targetDoc.DocID, URI: targetDoc.URI, Title: targetDoc.Title}
								nextFrontier = append(nextFrontier, targetDocID)
							}
						} else {
							meta.NodesTruncated = true
						}
					}
				}
			}
			linkRows.Close()
		}

		frontier = nextFrontier
	}
	if len(frontier) > 0 && len(nodes) >= maxNodes {
		meta.NodesTruncated = true
	}

	nodeList := make([]GraphNode, 0, len(nodes))
	for _, n := range nodes {
		nodeList = append(nodeList, n)
	}
	sort.Slice(nodeList, func(i, j int) bool { return nodeList[i].DocID < nodeList[j].DocID })

	return &Graph{Nodes: nodeList, Edges: edges, Meta: meta}, nil
}

// Close closes the store, checkpointing the WAL first for durability.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

// ResolutionKey is the (collection, normalizedBasename) matching key
// spec §4.6 resolves links by: the document's relative path's
// basename, minus extension, NFC-lowercased and trimmed. LinkEngine
// computes the same key for a link's target so GetGraph's lookup is a
// plain map hit.
func ResolutionKey(collection, relPath string) string {
	base := path.Base(relPath)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return docref.NormalizeName(collection) + "|" + docref.NormalizeName(base)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinGlobs(globs []string) string {
	out := ""
	for i, g := range globs {
		if i > 0 {
			out += "\n"
		}
		out += g
	}
	return out
}

func splitGlobs(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			result = append(result, s[start:i])
			start = i + 1
		}
	}
	result = append(result, s[start:])
	return result
}
