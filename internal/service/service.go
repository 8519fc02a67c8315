package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/vncmcp/internal/dispatch"
	"github.com/seantiz/vncmcp/internal/managed"
	"github.com/seantiz/vncmcp/internal/remote"
)

// Diagnostics is a side server that runs until its context is done.
type Diagnostics interface {
	Run(ctx context.Context) error
}

// Option configures a Service.
type Option func(*Service)

// WithDialer replaces the VNC dialer.
func WithDialer(d remote.Dialer) Option {
	return func(s *Service) { s.dialer = d }
}

// WithDiagnostics runs d alongside the tool server.
func WithDiagnostics(d Diagnostics) Option {
	return func(s *Service) { s.diag = d }
}

// WithTransport replaces the stdio transport of the tool server.
func WithTransport(newTransport func() mcp.Transport) Option {
	return func(s *Service) { s.transport = newTransport }
}

// Service is the application body: connect, serve tools until the client
// leaves or the run is cancelled, disconnect.
type Service struct {
	version   string
	logger    *slog.Logger
	dialer    remote.Dialer
	diag      Diagnostics
	transport func() mcp.Transport

	connect *managed.Task[dialRequest, remote.Session]
	main    *managed.Task[remote.Config, struct{}]
}

// dialRequest carries the caller's context across the worker pool so a
// cancelled run abandons the dial.
type dialRequest struct {
	ctx context.Context
	cfg remote.Config
}

// New creates a Service.
func New(version string, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		version:   version,
		logger:    logger,
		transport: func() mcp.Transport { return &mcp.StdioTransport{} },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = remote.NewVNCDialer(logger)
	}

	s.connect = managed.Async(managed.NewCall("connect", func(req dialRequest) (remote.Session, error) {
		session, err := s.dialer.Connect(req.ctx, req.cfg)
		if err != nil {
			return nil, err
		}
		// Cancelled mid-dial: the result has no owner.
		if err := req.ctx.Err(); err != nil {
			if cerr := session.Close(); cerr != nil {
				s.logger.Warn("close abandoned session", "error", cerr)
			}
			return nil, err
		}
		return session, nil
	}))
	s.main = managed.NewTask("main", s.run)
	return s
}

// Main is the top-level operation. Pass it to managed.Sync to run it from
// synchronous code.
func (s *Service) Main() *managed.Task[remote.Config, struct{}] {
	return s.main
}

func (s *Service) run(ctx context.Context, target remote.Config) (struct{}, error) {
	logger := s.logger
	if ec := managed.FromContext(ctx); ec != nil {
		logger = ec.Logger()
	}

	logger.Info("connecting", "addr", target.Addr())
	session, err := s.connect.Run(ctx, dialRequest{ctx: ctx, cfg: target})
	if err != nil {
		return struct{}{}, fmt.Errorf("connect %s: %w", target.Addr(), err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("close session", "error", err)
		}
	}()

	tools := dispatch.NewServer(session, s.version, logger)

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		// The client leaving ends the run.
		defer stop()
		return tools.Serve(gctx, s.transport())
	})
	if s.diag != nil {
		g.Go(func() error {
			return s.diag.Run(gctx)
		})
	}
	return struct{}{}, g.Wait()
}
