package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/seantiz/vncmcp/internal/remote"
)

const (
	serverName   = "VNC Client"
	instructions = "This VNC client can be used to view the contents of and control the user's computer. " +
		"Please, use it responsibly."
)

// Server serves a remote session as MCP tools.
type Server struct {
	session remote.Session
	logger  *slog.Logger
	mcp     *mcp.Server
}

// NewServer builds the tool server for session. version is reported to
// clients during initialization.
func NewServer(session remote.Session, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		session: session,
		logger:  logger,
		mcp: mcp.NewServer(
			&mcp.Implementation{Name: serverName, Version: version},
			&mcp.ServerOptions{Instructions: instructions},
		),
	}
	s.registerTools()
	return s
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Serve serves a single client over t until the client disconnects or ctx
// is done.
func (s *Server) Serve(ctx context.Context, t mcp.Transport) error {
	s.logger.Info("tool server started")
	defer s.logger.Info("tool server stopped")
	if err := s.mcp.Run(ctx, t); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve tools: %w", err)
	}
	return nil
}

// RunBlocking serves over stdin/stdout.
func (s *Server) RunBlocking(ctx context.Context) error {
	return s.Serve(ctx, &mcp.StdioTransport{})
}

// instrument wraps a tool handler with logging and metrics.
func instrument[In any](s *Server, name string, h func(context.Context, In) (*mcp.CallToolResult, error)) mcp.ToolHandlerFor[In, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		res, err := h(ctx, in)
		observeCall(name, start, err)
		if err != nil {
			s.logger.Warn("tool call failed", "tool", name, "error", err)
			return nil, nil, err
		}
		s.logger.Debug("tool call", "tool", name, "duration", time.Since(start))
		return res, nil, nil
	}
}

func text(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}
