package mcpadapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kestrelkb/kestrel/internal/engine"
)

// Server wraps an MCP protocol server whose four tools — search,
// capture, sync, and graph — each call straight through to the one
// engine.Context shared by every surface (CLI, adapter, background
// jobs). It holds no state of its own beyond that Context and a
// logger, matching the teacher's internal/mcp.Server shape minus the
// resource/indexing-progress machinery that package carries for a
// different domain.
type Server struct {
	mcp *mcp.Server
	eng *engine.Context
	log *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger attaches a logger; the default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New builds an MCP server backed by eng and registers its four
// tools. eng must be non-nil and already constructed via engine.New.
func New(eng *engine.Context, opts ...Option) *Server {
	s := &Server{eng: eng}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With(slog.String("component", "mcpadapter"))

	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "kestrel", Version: "0.1.0"}, nil)
	s.registerTools()
	return s
}

// MCPServer exposes the underlying SDK server, e.g. for a test client
// to dial in-process.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// Serve runs the server over the given transport until ctx is
// canceled. Only "stdio" is implemented; this is the one transport
// spec §6 requires and the only one the teacher's own Serve wires up.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.log.Info("starting MCP server", slog.String("transport", transport))
	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.log.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.log.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport %q (supported: stdio)", transport)
	}
}
