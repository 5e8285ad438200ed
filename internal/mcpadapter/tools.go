package mcpadapter

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kestrelkb/kestrel/internal/capture"
	kerrors "github.com/kestrelkb/kestrel/internal/errors"
	"github.com/kestrelkb/kestrel/internal/ingest"
	"github.com/kestrelkb/kestrel/internal/search"
	"github.com/kestrelkb/kestrel/internal/store"
)

// registerTools registers the four tools spec §6 exposes over MCP.
// Each handler validates only what its Input struct cannot express
// (an empty required string) and otherwise hands the request straight
// to the matching engine.Context method — no search, capture, sync,
// or graph logic lives in this package.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Hybrid BM25 + semantic search over the indexed document collections. Falls back to BM25-only when no embedder is configured or the vector index is empty.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "capture",
		Description: "Create or overwrite a single Markdown document in a collection and ingest it immediately, making it searchable without a full sync.",
	}, s.captureHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sync",
		Description: "Start a background sync of a collection's root directory: converts, chunks, and indexes new or changed files. Returns a job ID to poll.",
	}, s.syncHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "graph",
		Description: "Return the bounded link graph around a collection: documents as nodes, resolved and unresolved links as edges.",
	}, s.graphHandler)

	s.log.Info("registered MCP tools", slog.Int("count", 4))
}

// SearchInput is the search tool's input schema (spec §4.9-4.11).
type SearchInput struct {
	Query      string   `json:"query" jsonschema:"the search query to execute"`
	Collection string   `json:"collection,omitempty" jsonschema:"restrict results to one collection; empty searches every active collection"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, clamped to [1,100]"`
	Lang       string   `json:"lang,omitempty" jsonschema:"filter by the owning document's language hint"`
	TagsAll    []string `json:"tags_all,omitempty" jsonschema:"require every listed tag to be present on the owning document"`
	TagsAny    []string `json:"tags_any,omitempty" jsonschema:"require at least one listed tag to be present"`
}

// SearchResultOutput is one ranked hit, flattened for the wire.
type SearchResultOutput struct {
	DocID        string   `json:"doc_id"`
	URI          string   `json:"uri"`
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	Score        float64  `json:"score"`
	BM25Score    float64  `json:"bm25_score"`
	VecScore     float64  `json:"vec_score"`
	InBothLists  bool     `json:"in_both_lists"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// SearchOutput is the search tool's output schema.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Mode    string               `json:"mode"`
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, MapError(kerrors.New(kerrors.KindInvalidInput, "query is required"))
	}
	opts := search.SearchOptions{
		Limit:      input.Limit,
		Collection: input.Collection,
		Lang:       input.Lang,
		TagsAll:    input.TagsAll,
		TagsAny:    input.TagsAny,
	}
	results, meta, err := s.eng.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(results)), Mode: string(meta.Mode)}
	for _, r := range results {
		out.Results = append(out.Results, SearchResultOutput{
			DocID:        r.Document.DocID,
			URI:          r.Document.URI,
			Title:        r.Document.Title,
			Content:      r.Chunk.Text,
			Score:        r.Score,
			BM25Score:    r.BM25Score,
			VecScore:     r.VecScore,
			InBothLists:  r.InBothLists,
			MatchedTerms: r.MatchedTerms,
		})
	}
	return nil, out, nil
}

// CaptureInput is the capture tool's input schema (spec §4.12).
type CaptureInput struct {
	Collection string `json:"collection" jsonschema:"the target collection name, matched case-insensitively"`
	Path       string `json:"path,omitempty" jsonschema:"explicit relative path within the collection; derived from title or the content's first heading when empty"`
	Title      string `json:"title,omitempty" jsonschema:"a human title, used to derive path when path is empty"`
	Content    string `json:"content" jsonschema:"the Markdown document body to write"`
	Overwrite  bool   `json:"overwrite,omitempty" jsonschema:"allow replacing an existing document at the resolved path"`
}

// CaptureOutput is the capture tool's output schema.
type CaptureOutput struct {
	DocID       string `json:"doc_id"`
	URI         string `json:"uri"`
	Path        string `json:"path"`
	Created     bool   `json:"created"`
	Overwritten bool   `json:"overwritten"`
}

func (s *Server) captureHandler(ctx context.Context, _ *mcp.CallToolRequest, input CaptureInput) (*mcp.CallToolResult, CaptureOutput, error) {
	if input.Collection == "" {
		return nil, CaptureOutput{}, MapError(kerrors.New(kerrors.KindInvalidInput, "collection is required"))
	}
	if input.Content == "" {
		return nil, CaptureOutput{}, MapError(kerrors.New(kerrors.KindInvalidInput, "content is required"))
	}
	res, err := s.eng.Capture(ctx, capture.Request{
		Collection: input.Collection,
		Path:       input.Path,
		Title:      input.Title,
		Content:    input.Content,
		Overwrite:  input.Overwrite,
	})
	if err != nil {
		return nil, CaptureOutput{}, MapError(err)
	}
	return nil, CaptureOutput{
		DocID:       res.DocID,
		URI:         res.URI,
		Path:        res.AbsPath,
		Created:     res.Created,
		Overwritten: res.Overwritten,
	}, nil
}

// SyncInput is the sync tool's input schema (spec §4.3/§4.4).
type SyncInput struct {
	Collection   string `json:"collection" jsonschema:"the collection name to sync"`
	GitPull      bool   `json:"git_pull,omitempty" jsonschema:"pull the collection's VCS remote before scanning, if configured"`
	RunUpdateCmd bool   `json:"run_update_cmd,omitempty" jsonschema:"run the collection's pre-sync update command before scanning, if configured"`
}

// SyncOutput is the sync tool's output schema: a job ID to poll via
// the engine's job bookkeeping, not a blocking result, since Sync
// always runs in the background (spec §4.3).
type SyncOutput struct {
	JobID string `json:"job_id"`
}

func (s *Server) syncHandler(ctx context.Context, _ *mcp.CallToolRequest, input SyncInput) (*mcp.CallToolResult, SyncOutput, error) {
	if input.Collection == "" {
		return nil, SyncOutput{}, MapError(kerrors.New(kerrors.KindInvalidInput, "collection is required"))
	}
	col, err := s.eng.Store().GetCollection(ctx, input.Collection)
	if err != nil {
		return nil, SyncOutput{}, MapError(err)
	}
	jobID, err := s.eng.Sync(ctx, *col, ingest.SyncOptions{GitPull: input.GitPull, RunUpdateCmd: input.RunUpdateCmd})
	if err != nil {
		return nil, SyncOutput{}, MapError(err)
	}
	return nil, SyncOutput{JobID: jobID}, nil
}

// GraphInput is the graph tool's input schema (spec §4.6).
type GraphInput struct {
	Collection string `json:"collection,omitempty" jsonschema:"restrict the graph to one collection; empty spans every active collection"`
	MaxNodes   int    `json:"max_nodes,omitempty" jsonschema:"maximum number of document nodes to return, default 100"`
	MaxDepth   int    `json:"max_depth,omitempty" jsonschema:"maximum link-traversal depth, default 2"`
	MaxEdges   int    `json:"max_edges,omitempty" jsonschema:"maximum number of edges to return, default 2000"`
}

// GraphNodeOutput and GraphEdgeOutput mirror store.GraphNode/GraphEdge
// for the wire.
type GraphNodeOutput struct {
	DocID string `json:"doc_id"`
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type GraphEdgeOutput struct {
	SourceDocID string  `json:"source_doc_id"`
	TargetDocID string  `json:"target_doc_id,omitempty"`
	TargetRef   string  `json:"target_ref"`
	LinkType    string  `json:"link_type"`
	Score       float64 `json:"score,omitempty"`
}

// GraphMetaOutput mirrors store.GraphMeta for the wire.
type GraphMetaOutput struct {
	NodesTruncated bool `json:"nodes_truncated"`
	EdgesTruncated bool `json:"edges_truncated"`
}

// GraphOutput is the graph tool's output schema.
type GraphOutput struct {
	Nodes []GraphNodeOutput `json:"nodes"`
	Edges []GraphEdgeOutput `json:"edges"`
	Meta  GraphMetaOutput   `json:"meta"`
}

const (
	defaultGraphMaxNodes = 100
	defaultGraphMaxDepth = 2
	defaultGraphMaxEdges = 2000
)

func (s *Server) graphHandler(ctx context.Context, _ *mcp.CallToolRequest, input GraphInput) (*mcp.CallToolResult, GraphOutput, error) {
	maxNodes := input.MaxNodes
	if maxNodes <= 0 {
		maxNodes = defaultGraphMaxNodes
	}
	maxDepth := input.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultGraphMaxDepth
	}
	maxEdges := input.MaxEdges
	if maxEdges <= 0 {
		maxEdges = defaultGraphMaxEdges
	}
	g, err := s.eng.Graph(ctx, store.GraphOptions{Collection: input.Collection, MaxNodes: maxNodes, MaxDepth: maxDepth, MaxEdges: maxEdges})
	if err != nil {
		return nil, GraphOutput{}, MapError(err)
	}
	out := GraphOutput{
		Nodes: make([]GraphNodeOutput, 0, len(g.Nodes)),
		Edges: make([]GraphEdgeOutput, 0, len(g.Edges)),
		Meta:  GraphMetaOutput{NodesTruncated: g.Meta.NodesTruncated, EdgesTruncated: g.Meta.EdgesTruncated},
	}
	for _, n := range g.Nodes {
		out.Nodes = append(out.Nodes, GraphNodeOutput{DocID: n.DocID, URI: n.URI, Title: n.Title})
	}
	for _, e := range g.Edges {
		out.Edges = append(out.Edges, GraphEdgeOutput{
			SourceDocID: e.SourceDocID,
			TargetDocID: e.TargetDocID,
			TargetRef:   e.TargetRef,
			LinkType:    string(e.LinkType),
			Score:       e.Score,
		})
	}
	return nil, out, nil
}
