// Package mcp implements the Model Context Protocol server for agenttrace,
// exposing blame, ingestion, and query as MCP tools so MCP-compatible
// agents can pull attribution data without going through the HTTP API.
package mcp

import (
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/agenttrace/agenttrace/internal/service"
)

const serverInstructions = `You have access to agenttrace, a service that attributes lines of code
to the AI coding-assistant conversations that produced them.

TOOLS:
- agenttrace_blame: given a file path and git-blame data (commit SHAs, parents,
  content hashes, timestamps), returns per-line attribution with a confidence
  tier (1=provably certain down to 6=suggestive).
- agenttrace_ingest_trace: record a trace (a tool invocation, its file
  changes, and the conversation that produced them) so future blame calls
  can match against it.
- agenttrace_query_traces: list traces recorded for a project, most recent
  first, paged with limit/offset (no time-window filter).

Call agenttrace_ingest_trace as a normal part of recording your own edits,
and agenttrace_blame when asked who (or what) wrote a given line.`

// Server wraps the MCP server with agenttrace's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	svc       *service.Service
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools registered.
func New(svc *service.Service, logger *slog.Logger, version string) *Server {
	s := &Server{
		svc:    svc,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"agenttrace",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
