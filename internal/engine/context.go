// Package engine owns the process-wide singletons named by spec §5:
// the database connection, the BM25/vector indexes, the LLM ports,
// and the ToolMutex/JobManager that serialize access to them — all
// held by one Context struct built at startup and passed explicitly
// to every operation, per spec §9's design note. Shutdown sequencing
// (set a flag, drain ToolMutex, await jobs, close external resources
// in reverse construction order) is grounded on the teacher's
// cmd/amanmcp/cmd/daemon.go signal-handling shape.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/kestrelkb/kestrel/internal/capture"
	"github.com/kestrelkb/kestrel/internal/chunk"
	"github.com/kestrelkb/kestrel/internal/config"
	"github.com/kestrelkb/kestrel/internal/convert"
	"github.com/kestrelkb/kestrel/internal/embed"
	kerrors "github.com/kestrelkb/kestrel/internal/errors"
	"github.com/kestrelkb/kestrel/internal/ingest"
	"github.com/kestrelkb/kestrel/internal/jobs"
	"github.com/kestrelkb/kestrel/internal/locking"
	"github.com/kestrelkb/kestrel/internal/search"
	"github.com/kestrelkb/kestrel/internal/store"
)

// metadataFile, bm25File, and vectorFile are the on-disk names of the
// three persisted stores inside a data directory, matching the
// teacher's data-directory layout (`metadata.db`, `bm25.db`,
// `vectors.hnsw`).
const (
	metadataFile = "metadata.db"
	bm25File     = "bm25.db"
	vectorFile   = "vectors.hnsw"
)

// Context is the engine's single owned-state struct (spec §9). Every
// operation exposed to the MCP adapter and the CLI is a method on
// Context, taking it as the sole source of shared state.
type Context struct {
	cfg     *config.Config
	dataDir string
	log     *slog.Logger

	store      store.Store
	bm25       *store.SQLiteBM25Index
	vector     *store.HNSWStore
	vectorPath string
	embedder   embed.Embedder
	reranker   search.Reranker

	search   *search.Engine
	ingestor *ingest.Ingestor
	capturer *capture.Capturer

	jobManager *jobs.Manager
	toolMutex  *locking.ToolMutex
	writeLock  *locking.FileLock

	mu       sync.Mutex
	shutdown bool
}

// Options configures Context construction. DataDir defaults to
// "<cwd>/.kestrel" when empty.
type Options struct {
	Config  *config.Config
	DataDir string
	Logger  *slog.Logger
}

// New opens the metadata store, BM25 index, and vector index, builds
// the embedder (returning an error if it cannot), search engine,
// ingestor, and capturer, and returns a ready-to-use Context. Callers
// must call Close when done.
func New(ctx context.Context, opts Options) (*Context, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.New()
	}
	dataDir := opts.DataDir
	if dataDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, kerrors.Wrap(kerrors.KindRuntime, err, "resolve working directory")
		}
		dataDir = filepath.Join(cwd, ".kestrel")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "engine"))

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, kerrors.Wrap(kerrors.KindRuntime, err, "create data directory %q", dataDir)
	}

	metadataStore, err := store.NewSQLiteStore(filepath.Join(dataDir, metadataFile))
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindRuntime, err, "open metadata store")
	}

	bm25, err := store.NewSQLiteBM25Index(filepath.Join(dataDir, bm25File), store.DefaultBM25Config())
	if err != nil {
		_ = metadataStore.Close()
		return nil, kerrors.Wrap(kerrors.KindRuntime, err, "open bm25 index")
	}

	embedder, err := embed.NewEmbedder(ctx, embed.ProviderType(cfg.Embeddings.Provider), cfg.Embeddings.Model)
	if err != nil {
		_ = bm25.Close()
		_ = metadataStore.Close()
		return nil, kerrors.Wrap(kerrors.KindAdapterError, err, "build embedder")
	}

	dims := embedder.Dimensions()
	vector, err := store.NewHNSWStore(store.DefaultVectorIndexConfig(dims))
	if err != nil {
		_ = embedder.Close()
		_ = bm25.Close()
		_ = metadataStore.Close()
		return nil, kerrors.Wrap(kerrors.KindRuntime, err, "open vector index")
	}
	vectorPath := filepath.Join(dataDir, vectorFile)
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := vector.Load(vectorPath); err != nil {
			log.Warn("failed to load existing vector index, starting empty", slog.String("error", err.Error()))
		}
	}

	// No cross-encoder reranker ships with this engine (see DESIGN.md);
	// NoOpReranker satisfies RerankEnabled without claiming a quality
	// improvement Search doesn't actually have.
	var reranker search.Reranker
	if cfg.Search.RerankEnabled {
		reranker = &search.NoOpReranker{}
	}

	searchOpts := []search.EngineOption{search.WithLogger(log)}
	if reranker != nil {
		searchOpts = append(searchOpts, search.WithReranker(reranker))
	}
	searchEngine, err := search.NewEngine(bm25, vector, metadataStore, embedder, searchOpts...)
	if err != nil {
		_ = vector.Close()
		_ = embedder.Close()
		_ = bm25.Close()
		_ = metadataStore.Close()
		return nil, err
	}

	ingestor := ingest.New(metadataStore, convert.NewRegistry(), chunk.NewMarkdownChunker(), log)

	writeLock := locking.New(dataDir, "write")
	capturer := capture.New(metadataStore, ingestor, writeLock, capture.WithLogger(log))

	jobCfg := jobs.Config{TTL: cfg.Jobs.TTLDuration(), MaxCompleted: cfg.Jobs.MaxCompleted}

	c := &Context{
		cfg:        cfg,
		dataDir:    dataDir,
		log:        log,
		store:      metadataStore,
		bm25:       bm25,
		vector:     vector,
		vectorPath: vectorPath,
		embedder:   embedder,
		reranker:   reranker,
		search:     searchEngine,
		ingestor:   ingestor,
		capturer:   capturer,
		jobManager: jobs.New(jobCfg, ""),
		toolMutex:  &locking.ToolMutex{},
		writeLock:  writeLock,
	}
	return c, nil
}

// Search serializes through ToolMutex and delegates to the search
// engine (spec §4.9-4.11).
func (c *Context) Search(ctx context.Context, query string, opts search.SearchOptions) ([]*search.SearchResult, search.SearchMeta, error) {
	if err := c.enterOrShuttingDown(); err != nil {
		return nil, search.SearchMeta{}, err
	}
	release := c.toolMutex.Acquire()
	defer release()
	return c.search.Search(ctx, query, opts)
}

// Capture serializes through ToolMutex and delegates to the capturer
// (spec §4.12).
func (c *Context) Capture(ctx context.Context, req capture.Request) (*capture.Result, error) {
	if err := c.enterOrShuttingDown(); err != nil {
		return nil, err
	}
	release := c.toolMutex.Acquire()
	defer release()
	return c.capturer.Capture(ctx, req)
}

// Sync starts a background sync job for col (spec §4.3/§4.4), acquiring
// the write lock and registering the job with JobManager so concurrent
// sync attempts observe JOB_CONFLICT rather than racing the Ingestor.
func (c *Context) Sync(ctx context.Context, col store.Collection, syncOpts ingest.SyncOptions) (string, error) {
	if err := c.enterOrShuttingDown(); err != nil {
		return "", err
	}
	return c.jobManager.StartJob(ctx, jobs.TypeSync, c.writeLock, func(jobCtx context.Context) (string, error) {
		release := c.toolMutex.Acquire()
		defer release()
		result, err := c.ingestor.Sync(jobCtx, col, syncOpts)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("added=%d updated=%d skipped=%d errored=%d", result.Added, result.Updated, result.Skipped, result.Errored), nil
	})
}

// defaultSimilarK and similarScoreThreshold bound the "similar" edge
// augmentation Graph adds on top of the store's wiki/markdown graph
// (spec §4.6): each node's lead chunk is searched against the vector
// index for its nearest neighbors, and only neighbors scoring at or
// above the threshold become edges.
const (
	defaultSimilarK       = 5
	similarScoreThreshold = 0.75
)

// Graph serializes through ToolMutex, delegates to the store's bounded
// link-graph query, then augments the result with "similar" edges
// sourced from the vector index (spec §4.6) — a layer the store itself
// cannot do, since SQLiteStore has no vector-index handle.
func (c *Context) Graph(ctx context.Context, opts store.GraphOptions) (*store.Graph, error) {
	if err := c.enterOrShuttingDown(); err != nil {
		return nil, err
	}
	release := c.toolMutex.Acquire()
	defer release()

	graph, err := c.store.GetGraph(ctx, opts)
	if err != nil {
		return nil, err
	}
	c.addSimilarEdges(ctx, graph, opts)
	return graph, nil
}

// addSimilarEdges mutates graph in place, adding LinkTypeSimilar edges
// (and, where room remains under opts.MaxNodes, the documents they
// point at) from each existing node's nearest vector-index neighbors.
// A no-op when the graph is nil or the vector index is empty.
func (c *Context) addSimilarEdges(ctx context.Context, graph *store.Graph, opts store.GraphOptions) {
	if graph == nil || c.vector == nil || c.vector.Count() == 0 {
		return
	}

	maxNodes := opts.MaxNodes
	if maxNodes <= 0 {
		maxNodes = 500
	}
	maxEdges := opts.MaxEdges
	if maxEdges <= 0 {
		maxEdges = 2000
	}
	if len(graph.Edges) >= maxEdges {
		graph.Meta.EdgesTruncated = true
		return
	}

	nodeIndex := make(map[string]int, len(graph.Nodes))
	for i, n := range graph.Nodes {
		nodeIndex[n.DocID] = i
	}
	seenEdge := make(map[string]struct{}, len(graph.Edges))
	for _, e := range graph.Edges {
		seenEdge[e.SourceDocID+"|"+e.TargetDocID] = struct{}{}
	}

	// Snapshot the seed node list: nodes addSimilarEdges itself appends
	// don't get their own similar-neighbor pass in the same call.
	seedNodes := make([]store.GraphNode, len(graph.Nodes))
	copy(seedNodes, graph.Nodes)

	for _, node := range seedNodes {
		if len(graph.Edges) >= maxEdges {
			graph.Meta.EdgesTruncated = true
			return
		}

		doc, err := c.store.GetDocumentByDocID(ctx, node.DocID)
		if err != nil || doc.MirrorHash == "" {
			continue
		}

		vec, ok := c.vector.VectorFor(store.ChunkID(doc.MirrorHash, 0))
		if !ok {
			continue
		}

		neighbors, err := c.vector.SearchNearest(ctx, vec, defaultSimilarK+1)
		if err != nil {
			continue
		}

		for _, nb := range neighbors {
			if nb.Score < similarScoreThreshold {
				continue
			}

			mirrorHash, _, ok := store.SplitChunkID(nb.ID)
			if !ok || mirrorHash == doc.MirrorHash {
				continue // self-match on the source document's own chunk
			}

			targetDoc, err := c.store.GetDocumentByMirrorHash(ctx, mirrorHash)
			if err != nil {
				continue
			}

			edgeKey := node.DocID + "|" + targetDoc.DocID
			if _, dup := seenEdge[edgeKey]; dup {
				continue
			}

			if _, exists := nodeIndex[targetDoc.DocID]; !exists {
				if len(graph.Nodes) >= maxNodes {
					graph.Meta.NodesTruncated = true
					continue
				}
				graph.Nodes = append(graph.Nodes, store.GraphNode{DocID: targetDoc.DocID, URI: targetDoc.URI, Title: targetDoc.Title})
				nodeIndex[targetDoc.DocID] = len(graph.Nodes) - 1
			}

			seenEdge[edgeKey] = struct{}{}
			graph.Edges = append(graph.Edges, store.GraphEdge{
				SourceDocID: node.DocID,
				TargetDocID: targetDoc.DocID,
				TargetRef:   targetDoc.URI,
				LinkType:    store.LinkTypeSimilar,
				Score:       float64(nb.Score),
			})

			if len(graph.Edges) >= maxEdges {
				graph.Meta.EdgesTruncated = true
				return
			}
		}
	}
}

// GetJob and ListJobs expose JobManager's read-only operations without
// requiring ToolMutex: job bookkeeping is JobManager's own state, not
// the shared database connection or LLM session.
func (c *Context) GetJob(id string) (*jobs.Job, bool) { return c.jobManager.GetJob(id) }
func (c *Context) ListJobs(limit int) []*jobs.Job     { return c.jobManager.ListJobs(limit) }

func (c *Context) enterOrShuttingDown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return kerrors.New(kerrors.KindInvalidInput, "engine is shutting down")
	}
	return nil
}

// Close implements spec §5's shutdown sequence: set the shutdown
// flag, wait for ToolMutex to drain, wait for background jobs to
// settle, then persist the vector index and close external resources
// in reverse construction order (the search engine, which closes the
// bm25 and vector indexes it wraps, then the embedder and reranker,
// then the metadata store last since it was opened first).
func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	c.shutdown = true
	c.mu.Unlock()

	// Draining ToolMutex means waiting until no holder is mid-operation;
	// acquiring it once and releasing immediately is sufficient because
	// every operation above holds it for its entire duration.
	release := c.toolMutex.Acquire()
	release()

	if err := c.jobManager.Shutdown(ctx); err != nil {
		c.log.Warn("jobs did not settle before shutdown deadline", slog.String("error", err.Error()))
	}

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := c.vector.Save(c.vectorPath); err != nil {
		c.log.Warn("failed to persist vector index", slog.String("error", err.Error()))
	}
	record(c.search.Close())
	record(c.embedder.Close())
	if c.reranker != nil {
		record(c.reranker.Close())
	}
	record(c.store.Close())

	if firstErr != nil {
		return kerrors.Wrap(kerrors.KindRuntime, firstErr, "close engine context")
	}
	return nil
}

// DataDir returns the directory backing this Context's persisted
// state.
func (c *Context) DataDir() string { return c.dataDir }

// Store exposes the underlying metadata store for callers (the MCP
// adapter's collection-management tools) that need operations Context
// does not wrap directly.
func (c *Context) Store() store.Store { return c.store }

// Ingestor exposes the underlying Ingestor for collection sync tools
// that need SyncOptions control beyond the default background Sync.
func (c *Context) Ingestor() *ingest.Ingestor { return c.ingestor }

// Embedder exposes the configured embedder for diagnostics (kestrel
// doctor's reachability check). Never nil: New fails without one.
func (c *Context) Embedder() embed.Embedder { return c.embedder }
