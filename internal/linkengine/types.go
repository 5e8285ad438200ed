// Package linkengine parses wiki-style and Markdown inline links out
// of a document's converted Markdown (spec §4.6). Parsing happens
// once, at ingest time, over the pre-canonicalization Markdown a
// converter produced — not the post-canonicalization body — so that
// line/column positions match what a human editing the source file
// would see. Resolving a parsed link to a document happens later, at
// query time, against the live document set (spec §4.6: "Resolution:
// at query time (not at store time)").
package linkengine

import "github.com/kestrelkb/kestrel/internal/store"

// ParseResult is everything Parse recovers from one document.
type ParseResult struct {
	Links []store.DocLink
}
