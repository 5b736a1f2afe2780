package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/agenttrace/agenttrace/internal/auth"
	"github.com/agenttrace/agenttrace/internal/service"
)

// Server is the agenttrace HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	Service   *service.Service
	TokenMgr  *auth.TokenManager
	MCPServer *mcpserver.MCPServer // optional; nil disables the /mcp route
	Logger    *slog.Logger

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64
	CORSAllowedOrigins  []string // ["*"] permits all.
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(cfg.Service, cfg.TokenMgr, cfg.Logger, cfg.MaxRequestBodyBytes)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HandleHealth)

	mux.HandleFunc("POST /api/v1/tokens/generate", h.HandleGenerateToken)
	mux.HandleFunc("POST /api/v1/tokens/verify", h.HandleVerifyToken)

	mux.HandleFunc("POST /api/v1/projects", h.HandleCreateProject)
	mux.HandleFunc("GET /api/v1/projects/{project_id}", h.HandleGetProject)

	mux.HandleFunc("POST /api/v1/traces", h.HandleIngestTrace)
	mux.HandleFunc("POST /api/v1/traces/batch", h.HandleIngestBatch)
	mux.HandleFunc("GET /api/v1/traces", h.HandleListTraces)
	mux.HandleFunc("GET /api/v1/traces/{trace_id}", h.HandleGetTrace)

	mux.HandleFunc("POST /api/v1/commit-links", h.HandleIngestCommitLink)
	mux.HandleFunc("GET /api/v1/commit-links/{sha}", h.HandleGetCommitLink)
	mux.HandleFunc("GET /api/v1/ledgers/{sha}", h.HandleGetLedger)

	mux.HandleFunc("POST /api/v1/conversations/sync", h.HandleSyncConversations)
	mux.HandleFunc("GET /api/v1/conversations/content", h.HandleGetConversationContent)

	mux.HandleFunc("POST /api/v1/blame", h.HandleBlame)

	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → CORS → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.TokenMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  2 * cfg.ReadTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handlers returns the underlying Handlers, for tests.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
