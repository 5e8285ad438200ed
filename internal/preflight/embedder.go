package preflight

import (
	"context"

	"github.com/kestrelkb/kestrel/internal/embed"
)

// CheckEmbedder reports whether the configured embedder is reachable.
// Unlike the disk/memory/file-descriptor checks, this one is
// non-critical: the engine degrades to BM25-only search (spec
// §4.9-4.11) rather than failing when no embedder is available.
func (c *Checker) CheckEmbedder(ctx context.Context, embedder embed.Embedder) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: false,
	}

	if embedder == nil {
		result.Status = StatusWarn
		result.Message = "no embedder configured (search will run BM25-only)"
		return result
	}

	if !embedder.Available(ctx) {
		result.Status = StatusWarn
		result.Message = "embedder configured but not reachable (search will fall back to BM25-only)"
		result.Details = "model: " + embedder.ModelName()
		return result
	}

	result.Status = StatusPass
	result.Message = "embedder reachable (" + embedder.ModelName() + ")"
	result.Details = embedder.ModelName()
	return result
}
