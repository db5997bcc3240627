// Package mcpsurface exposes the agent tool surface (internal/toolsurface)
// over the Model Context Protocol, so any MCP-speaking client (Claude
// Desktop, Cursor, or the in-process agent runtime itself) can drive
// coordination the same way a ROUTA/CRAFTER/GATE agent would through its
// provider's native tool-calling loop.
package mcpsurface

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kandev/wavecoord/internal/common/logger"
	"github.com/kandev/wavecoord/internal/toolsurface"
)

// Config holds the MCP server's transport configuration.
type Config struct {
	Port int `mapstructure:"port"`
}

// DefaultConfig returns the default MCP surface configuration.
func DefaultConfig() Config {
	return Config{Port: 9191}
}

// Server wraps the SSE and Streamable HTTP transports with lifecycle
// management, mirroring the teacher's dual-transport MCP server.
type Server struct {
	cfg                  Config
	tools                *toolsurface.Surface
	sseServer            *server.SSEServer
	streamableHTTPServer *server.StreamableHTTPServer
	httpServer           *http.Server
	mu                   sync.Mutex
	running              bool
	log                  *logger.Logger
}

// New constructs a Server bound to the given tool surface.
func New(cfg Config, tools *toolsurface.Surface, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{cfg: cfg, tools: tools, log: log.With(zap.String("component", "mcp-surface"))}
}

// Start starts the MCP server in a goroutine and returns once it is
// listening on both transports, or if ctx is cancelled first.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("mcp surface already running")
	}
	s.mu.Unlock()

	mcpServer := server.NewMCPServer(
		"wavecoord-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	registerTools(mcpServer, s.tools, s.log)

	s.sseServer = server.NewSSEServer(mcpServer)
	s.streamableHTTPServer = server.NewStreamableHTTPServer(mcpServer, server.WithEndpointPath("/mcp"))

	mux := http.NewServeMux()
	mux.Handle("/sse", s.sseServer.SSEHandler())
	mux.Handle("/message", s.sseServer.MessageHandler())
	mux.Handle("/mcp", s.streamableHTTPServer)

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.cfg.Port = tcpAddr.Port
	}

	s.httpServer = &http.Server{Handler: mux}

	ready := make(chan struct{})
	go func() {
		s.mu.Lock()
		s.running = true
		s.mu.Unlock()
		close(ready)

		s.log.Info("mcp surface listening",
			zap.Int("port", s.cfg.Port),
			zap.String("sse_endpoint", "/sse"),
			zap.String("streamable_http_endpoint", "/mcp"))

		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("mcp surface error", zap.Error(err))
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop gracefully shuts down both transports.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown mcp surface: %w", err)
		}
	}
	if s.sseServer != nil {
		if err := s.sseServer.Shutdown(ctx); err != nil {
			s.log.Warn("failed to shutdown sse transport", zap.Error(err))
		}
	}
	if s.streamableHTTPServer != nil {
		if err := s.streamableHTTPServer.Shutdown(ctx); err != nil {
			s.log.Warn("failed to shutdown streamable http transport", zap.Error(err))
		}
	}
	return nil
}

// Port reports the bound port, resolved after Start when cfg.Port was 0.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Port
}
