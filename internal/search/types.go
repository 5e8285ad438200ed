// Package search implements BM25 (spec §4.9), VectorSearch (§4.10), and
// Hybrid (§4.11): lexical and semantic retrieval over chunks, fused by
// reciprocal-rank fusion and optionally expanded/reranked through the
// GenerationPort/RerankPort LLM ports of spec §6.
package search

import (
	"context"
	"time"

	"github.com/kestrelkb/kestrel/internal/store"
)

// Thoroughness controls how much optional work Hybrid is willing to do
// for a query. Fast never invokes GenerationPort or RerankPort (spec
// §8 Boundary); Balanced and Thorough use them when the corresponding
// port is configured and available.
type Thoroughness string

const (
	ThoroughnessFast     Thoroughness = "fast"
	ThoroughnessBalanced Thoroughness = "balanced"
	ThoroughnessThorough Thoroughness = "thorough"
)

// Mode reports which retrieval path actually produced a Hybrid result.
type Mode string

const (
	ModeBM25Only Mode = "bm25_only"
	ModeHybrid   Mode = "hybrid"
)

// SearchOptions configures a BM25, VectorSearch, or Hybrid query (spec
// §4.9-4.11).
type SearchOptions struct {
	// Limit is the number of results to return, clamped to [1, 100].
	Limit int

	// MinScore drops results scoring below this threshold after fusion
	// and/or reranking.
	MinScore float64

	// Collection restricts results to one collection; empty means
	// every active collection.
	Collection string

	// Lang filters by LanguageHint on the owning document.
	Lang string

	// TagsAll requires every listed tag to be present on the owning
	// document.
	TagsAll []string

	// TagsAny requires at least one listed tag to be present.
	TagsAny []string

	// Thoroughness bounds how much optional work Hybrid may do.
	Thoroughness Thoroughness

	// Weights overrides the default BM25/semantic fusion weights.
	Weights *Weights

	// Explain requests a populated SearchMeta.Explain.
	Explain bool
}

// Weights configures the relative importance of BM25 vs semantic
// scoring in RRF fusion.
type Weights struct {
	BM25     float64
	Semantic float64
}

// DefaultWeights returns the engine's default BM25/semantic balance.
func DefaultWeights() Weights {
	return Weights{BM25: 0.35, Semantic: 0.65}
}

// SearchResult is one ranked hit, joined back to its owning document.
type SearchResult struct {
	Chunk    store.Chunk
	Document store.Document

	Score     float64
	BM25Score float64
	VecScore  float64
	BM25Rank  int
	VecRank   int

	InBothLists  bool
	MatchedTerms []string
}

// SearchMeta reports how a query was actually answered (spec §4.11).
type SearchMeta struct {
	Mode        Mode
	Expanded    bool
	Reranked    bool
	VectorsUsed bool
	Explain     *ExplainData
}

// ExplainData surfaces the search decision for diagnostics when
// SearchOptions.Explain is set.
type ExplainData struct {
	Query             string
	ExpandedQuery     string
	BM25ResultCount   int
	VectorResultCount int
	Weights           Weights
	RRFConstant       int
}

// EngineConfig configures an Engine's defaults.
type EngineConfig struct {
	DefaultLimit   int
	MaxLimit       int
	DefaultWeights Weights
	RRFConstant    int
	SearchTimeout  time.Duration
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:   10,
		MaxLimit:       100,
		DefaultWeights: DefaultWeights(),
		RRFConstant:    DefaultRRFConstant,
		SearchTimeout:  5 * time.Second,
	}
}

// EmbeddingPort is the subset of internal/embed.Embedder that
// VectorSearch and Hybrid need to turn a query string into a vector
// (spec §6 LLM ports).
type EmbeddingPort interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Available(ctx context.Context) bool
}

// ExpansionPort expands a query with related terms before BM25
// retrieval (spec §4.11 step 1). It wraps a GenerationPort in the full
// system, but the default implementation, QueryExpander, is a local
// rule-based expander that needs no LLM call at all.
type ExpansionPort interface {
	Expand(ctx context.Context, query string) (string, error)
}

// Reranker (reranker.go) serves as the spec §6 RerankPort: it rescales
// the top candidates of a fused result set by relevance (spec §4.11
// step 4). An Engine has no Reranker unless WithReranker attaches one;
// NoOpReranker keeps the fused order and is what internal/engine
// attaches when reranking is enabled in the configuration.

// EngineStats reports index sizes for diagnostics.
type EngineStats struct {
	BM25Stats   *store.BM25Stats
	VectorCount int
}
