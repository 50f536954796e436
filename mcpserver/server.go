// Package mcpserver exposes the document database to MCP clients over
// stdio: search tools backed by the vector store and live-fetch resources
// backed by the source APIs.
package mcpserver

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/publiclaw/reporter"
)

// Server wraps an MCP server around the shared Application.
type Server struct {
	app      *reporter.Application
	cfg      reporter.Config
	logger   *slog.Logger
	mcp      *mcp.Server
	inflight atomic.Int64
}

// New builds the server and registers every tool and resource template.
func New(app *reporter.Application, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		app:    app,
		cfg:    app.Config(),
		logger: logger,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "reporter",
		Title:   "US Government Document Search",
		Version: reporter.Version,
	}, nil)
	s.registerTools()
	s.registerResources()
	return s
}

// Run serves MCP over stdio until the context is canceled or the client
// disconnects. On cancellation in-flight requests keep running for up to
// ShutdownGrace before the transport is torn down.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcpserver: serving over stdio", "version", reporter.Version)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-runCtx.Done():
			return
		case <-ctx.Done():
		}
		s.logger.Info("mcpserver: shutting down", "grace", s.cfg.ShutdownGrace)
		if !s.awaitDrain(s.cfg.ShutdownGrace) {
			s.logger.Warn("mcpserver: grace period expired with requests in flight",
				"in_flight", s.inflight.Load())
		}
		cancel()
	}()

	err := s.mcp.Run(runCtx, &mcp.StdioTransport{})
	if ctx.Err() != nil {
		return nil // drained shutdown, not a failure
	}
	return err
}

// awaitDrain polls until no requests are in flight or the grace period
// expires, and reports whether the server drained fully.
func (s *Server) awaitDrain(grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for {
		if s.inflight.Load() == 0 {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// deadline bounds one request so a stuck upstream cannot wedge the server,
// and counts it toward the shutdown drain until the cancel func runs.
func (s *Server) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	s.inflight.Add(1)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	release := sync.OnceFunc(func() {
		cancel()
		s.inflight.Add(-1)
	})
	return ctx, release
}
