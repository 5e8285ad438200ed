package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	kerrors "github.com/kestrelkb/kestrel/internal/errors"
	"github.com/kestrelkb/kestrel/internal/store"
)

// rerankCandidates bounds how many fused results are sent to the
// reranker; cross-encoders are expensive per-pair, so only the head of
// the fused list is worth rescoring.
const rerankCandidates = 50

// mirrorIndexPageSize bounds how many documents are listed per page
// when resolving chunk results back to their owning document.
const mirrorIndexPageSize = 500

// Engine answers BM25, VectorSearch, and Hybrid queries (spec
// §4.9-4.11) over the chunks and documents persisted by internal/store.
type Engine struct {
	bm25      store.BM25Index
	vector    store.VectorIndex
	documents store.Store
	embedder  EmbeddingPort
	expander  ExpansionPort
	reranker  Reranker
	fusion    *RRFFusion
	config    EngineConfig
	log       *slog.Logger

	mu sync.RWMutex
}

// EngineOption configures optional Engine dependencies.
type EngineOption func(*Engine)

// WithExpansionPort overrides the default rule-based QueryExpander.
func WithExpansionPort(p ExpansionPort) EngineOption {
	return func(e *Engine) { e.expander = p }
}

// WithReranker attaches a cross-encoder reranker. Without this option
// Hybrid never reranks, regardless of Thoroughness.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// WithEngineConfig overrides the default limits and fusion weights.
func WithEngineConfig(cfg EngineConfig) EngineOption {
	return func(e *Engine) { e.config = cfg }
}

// WithLogger attaches a logger; the default is slog.Default().
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// NewEngine constructs an Engine. vector and embedder may both be nil,
// in which case every query degrades to BM25-only (spec §8 scenario
// 6); bm25 and documents are required.
func NewEngine(bm25 store.BM25Index, vector store.VectorIndex, documents store.Store, embedder EmbeddingPort, opts ...EngineOption) (*Engine, error) {
	if bm25 == nil {
		return nil, kerrors.New(kerrors.KindInvalidInput, "search: bm25 index is required")
	}
	if documents == nil {
		return nil, kerrors.New(kerrors.KindInvalidInput, "search: document store is required")
	}

	e := &Engine{
		bm25:      bm25,
		vector:    vector,
		documents: documents,
		embedder:  embedder,
		expander:  NewQueryExpander(),
		fusion:    NewRRFFusion(),
		config:    DefaultEngineConfig(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.log == nil {
		e.log = slog.Default()
	}
	e.log = e.log.With(slog.String("component", "search"))

	return e, nil
}

// Search executes BM25, VectorSearch, or Hybrid retrieval depending on
// which ports are configured and available, following the 5-step
// Hybrid algorithm of spec §4.11.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, SearchMeta, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, SearchMeta{Mode: ModeBM25Only}, nil
	}

	opts = e.applyDefaults(opts)
	meta := SearchMeta{Mode: ModeBM25Only}

	// Step 1: optional query expansion. Fast thoroughness never calls
	// out to an expansion port (spec §8 Boundary); the rule-based
	// QueryExpander needs no LLM call, so it runs for Balanced and
	// Thorough by default.
	bm25Query := query
	if opts.Thoroughness != ThoroughnessFast && e.expander != nil {
		expanded, err := e.expander.Expand(ctx, query)
		if err != nil {
			e.log.Warn("query expansion failed, using original query", slog.String("error", err.Error()))
		} else if expanded != "" && expanded != query {
			bm25Query = expanded
			meta.Expanded = true
		}
	}

	// Step 2: BM25 and VectorSearch retrieval, in parallel when a
	// usable embedder is configured.
	retrieveLimit := opts.Limit * 2
	bm25Results, vecResults, vectorsUsed, err := e.parallelSearch(ctx, bm25Query, query, retrieveLimit)
	if err != nil {
		return nil, meta, kerrors.Wrap(kerrors.KindRuntime, err, "search %q", query)
	}

	weights := DefaultWeights()
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	if vectorsUsed {
		meta.Mode = ModeHybrid
		meta.VectorsUsed = true
	} else {
		weights = Weights{BM25: 1.0, Semantic: 0.0}
	}

	// Step 3: RRF fusion.
	fused := e.fusion.Fuse(bm25Results, vecResults, weights)

	// Join fused chunk IDs back to their chunk text and owning
	// document.
	results, err := e.enrich(ctx, fused)
	if err != nil {
		return nil, meta, kerrors.Wrap(kerrors.KindRuntime, err, "enrich search results")
	}

	// Step 4: optional rerank. Fast thoroughness never invokes the
	// reranker (spec §8 Boundary).
	if opts.Thoroughness != ThoroughnessFast && e.reranker != nil && e.reranker.Available(ctx) {
		results = e.rerank(ctx, query, results)
		meta.Reranked = true
	}

	// Step 5: filter, drop below minScore, truncate to limit.
	tagsByDoc, err := e.tagsForResults(ctx, results, opts)
	if err != nil {
		return nil, meta, kerrors.Wrap(kerrors.KindRuntime, err, "load tags for search results")
	}
	results = ApplyFilters(results, opts, tagsByDoc)
	results = dropBelowMinScore(results, opts.MinScore)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	if opts.Explain {
		meta.Explain = &ExplainData{
			Query:             query,
			ExpandedQuery:     bm25Query,
			BM25ResultCount:   len(bm25Results),
			VectorResultCount: len(vecResults),
			Weights:           weights,
			RRFConstant:       e.fusion.K,
		}
	}

	return results, meta, nil
}

func (e *Engine) applyDefaults(opts SearchOptions) SearchOptions {
	opts.Limit = ClampLimit(opts.Limit, e.config.DefaultLimit, e.config.MaxLimit)
	if opts.Thoroughness == "" {
		opts.Thoroughness = ThoroughnessBalanced
	}
	return opts
}

// parallelSearch runs BM25 and, when available, VectorSearch
// concurrently. It never returns an error for a failed or unavailable
// vector search: that degrades to BM25-only (spec §8: "Vector search
// returns an empty set when searchAvailable is false, never throws").
func (e *Engine) parallelSearch(ctx context.Context, bm25Query, vectorQuery string, limit int) (
	bm25Results []*store.BM25Result,
	vecResults []*store.VectorResult,
	vectorsUsed bool,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var searchErr error
		bm25Results, searchErr = e.bm25.Search(gctx, bm25Query, limit)
		return searchErr
	})

	canVector := e.vector != nil && e.embedder != nil
	if canVector {
		g.Go(func() error {
			if !e.embedder.Available(gctx) {
				e.log.Debug("embedder unavailable, skipping vector search")
				return nil
			}
			embedding, embedErr := e.embedder.Embed(gctx, vectorQuery)
			if embedErr != nil {
				e.log.Warn("query embedding failed, skipping vector search", slog.String("error", embedErr.Error()))
				return nil
			}
			results, searchErr := e.vector.SearchNearest(gctx, embedding, limit)
			if searchErr != nil {
				e.log.Warn("vector search failed, skipping", slog.String("error", searchErr.Error()))
				return nil
			}
			vecResults = results
			vectorsUsed = true
			return nil
		})
	}

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, false, waitErr
	}

	return bm25Results, vecResults, vectorsUsed, nil
}

// enrich joins fused chunk IDs back to their chunk text and owning
// document, dropping any chunk whose document can no longer be
// resolved (deleted between indexing and query).
func (e *Engine) enrich(ctx context.Context, fused []*FusedResult) ([]*SearchResult, error) {
	if len(fused) == 0 {
		return nil, nil
	}

	mirrorHashes := make(map[string]bool)
	for _, f := range fused {
		hash, _, ok := store.SplitChunkID(f.ChunkID)
		if ok {
			mirrorHashes[hash] = true
		}
	}

	docsByMirror, err := e.documentsByMirrorHash(ctx, mirrorHashes)
	if err != nil {
		return nil, err
	}

	chunksByMirror := make(map[string][]store.Chunk, len(mirrorHashes))

	results := make([]*SearchResult, 0, len(fused))
	for _, f := range fused {
		hash, seq, ok := store.SplitChunkID(f.ChunkID)
		if !ok {
			continue
		}
		doc, ok := docsByMirror[hash]
		if !ok {
			continue
		}

		chunks, ok := chunksByMirror[hash]
		if !ok {
			chunks, err = e.documents.GetChunksByMirror(ctx, hash)
			if err != nil {
				return nil, err
			}
			chunksByMirror[hash] = chunks
		}

		chunk, ok := findChunk(chunks, seq)
		if !ok {
			continue
		}

		results = append(results, &SearchResult{
			Chunk:        chunk,
			Document:     doc,
			Score:        f.RRFScore,
			BM25Score:    f.BM25Score,
			VecScore:     f.VecScore,
			BM25Rank:     f.BM25Rank,
			VecRank:      f.VecRank,
			InBothLists:  f.InBothLists,
			MatchedTerms: f.MatchedTerms,
		})
	}

	return results, nil
}

// documentsByMirrorHash resolves the set of active documents whose
// current MirrorHash is in hashes, by paging through ListDocuments
// rather than calling Store.GetDocumentByMirrorHash once per hash.
func (e *Engine) documentsByMirrorHash(ctx context.Context, hashes map[string]bool) (map[string]store.Document, error) {
	found := make(map[string]store.Document, len(hashes))
	if len(hashes) == 0 {
		return found, nil
	}

	cursor := ""
	for {
		docs, next, err := e.documents.ListDocuments(ctx, store.DocumentFilter{
			ActiveOnly: true,
			Limit:      mirrorIndexPageSize,
			Cursor:     cursor,
		})
		if err != nil {
			return nil, err
		}

		for _, d := range docs {
			if d.MirrorHash != "" && hashes[d.MirrorHash] {
				found[d.MirrorHash] = d
			}
		}

		if next == "" || len(found) == len(hashes) {
			break
		}
		cursor = next
	}

	return found, nil
}


func findChunk(chunks []store.Chunk, seq int) (store.Chunk, bool) {
	for _, c := range chunks {
		if c.Seq == seq {
			return c, true
		}
	}
	return store.Chunk{}, false
}

// rerank rescales the head of results via the configured Reranker,
// then resorts the whole slice by the new score.
func (e *Engine) rerank(ctx context.Context, query string, results []*SearchResult) []*SearchResult {
	if len(results) < 2 {
		return results
	}

	head := results
	tail := []*SearchResult(nil)
	if len(head) > rerankCandidates {
		tail = results[rerankCandidates:]
		head = results[:rerankCandidates]
	}

	documents := make([]string, len(head))
	for i, r := range head {
		documents[i] = r.Chunk.Text
	}

	scored, err := e.reranker.Rerank(ctx, query, documents, len(head))
	if err != nil {
		e.log.Warn("rerank failed, keeping fusion order", slog.String("error", err.Error()))
		return results
	}

	for _, s := range scored {
		if s.Index < 0 || s.Index >= len(head) {
			continue
		}
		head[s.Index].Score = s.Score
	}

	sort.SliceStable(head, func(i, j int) bool {
		return head[i].Score > head[j].Score
	})

	return append(head, tail...)
}

// tagsForResults loads tags for every distinct document in results,
// but only when the query actually filters on tags.
func (e *Engine) tagsForResults(ctx context.Context, results []*SearchResult, opts SearchOptions) (map[string][]string, error) {
	if len(opts.TagsAll) == 0 && len(opts.TagsAny) == 0 {
		return nil, nil
	}

	tagsByDoc := make(map[string][]string)
	for _, r := range results {
		if _, ok := tagsByDoc[r.Document.DocID]; ok {
			continue
		}
		tags, err := e.documents.GetTagsForDoc(ctx, r.Document.DocID)
		if err != nil {
			return nil, err
		}
		tagsByDoc[r.Document.DocID] = tags
	}
	return tagsByDoc, nil
}

func dropBelowMinScore(results []*SearchResult, minScore float64) []*SearchResult {
	if minScore <= 0 {
		return results
	}
	filtered := make([]*SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score >= minScore {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// Index pushes already-chunked, already-embedded content into both the
// BM25 and vector indices. Embedding generation is owned by
// internal/embed's backlog drain (spec §4.8), not by Engine.
func (e *Engine) Index(ctx context.Context, chunks []store.Chunk, embeddings map[string][]float32) error {
	if len(chunks) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	docs := make([]*store.BM25Doc, len(chunks))
	for i, c := range chunks {
		docs[i] = &store.BM25Doc{
			ID:      store.ChunkID(c.MirrorHash, c.Seq),
			Content: c.Text,
		}
	}
	if err := e.bm25.Index(ctx, docs); err != nil {
		return kerrors.Wrap(kerrors.KindRuntime, err, "index chunks in BM25")
	}

	if e.vector == nil || len(embeddings) == 0 {
		return nil
	}

	ids := make([]string, 0, len(embeddings))
	vectors := make([][]float32, 0, len(embeddings))
	for _, c := range chunks {
		id := store.ChunkID(c.MirrorHash, c.Seq)
		vec, ok := embeddings[id]
		if !ok {
			continue
		}
		ids = append(ids, id)
		vectors = append(vectors, vec)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := e.vector.Insert(ctx, ids, vectors); err != nil {
		return kerrors.Wrap(kerrors.KindRuntime, err, "index chunk embeddings")
	}

	return nil
}

// Delete removes chunks from both indices. Best effort: the store's
// ReplaceChunksForMirror (internal/store) remains the source of truth,
// so a failure here leaves at most a harmless orphan filtered out by
// enrich's document join.
func (e *Engine) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if err := e.bm25.Delete(ctx, chunkIDs); err != nil {
		e.log.Warn("BM25 delete failed, orphans will remain until reindex", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if e.vector != nil {
		if err := e.vector.Delete(ctx, chunkIDs); err != nil {
			e.log.Warn("vector delete failed, orphans will remain until reindex", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return kerrors.Wrap(kerrors.KindRuntime, errs[0], "delete chunks from search indices")
	}
	return nil
}

// Stats returns engine statistics.
func (e *Engine) Stats() *EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := &EngineStats{BM25Stats: e.bm25.Stats()}
	if e.vector != nil {
		stats.VectorCount = e.vector.Count()
	}
	return stats
}

// Close releases all index resources. The document store is owned and
// closed by its caller, not by Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if err := e.bm25.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.vector != nil {
		if err := e.vector.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return kerrors.Wrap(kerrors.KindRuntime, errs[0], "close search indices")
	}
	return nil
}
