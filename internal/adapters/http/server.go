package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hsdfat8/fieldops/internal/observability"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server defaults applied by NewServer
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20 // 1MB
	DefaultShutdownTimeout = 10 * time.Second

	maxConcurrentStreams = 250
	maxReadFrameSize     = 1 << 20
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr      string        // e.g. "0.0.0.0:8080"; port 0 picks a free port
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	EnableTLS       bool // HTTP/2 over TLS, falls back to HTTP/1.1
	TLSCertFile     string
	TLSKeyFile      string
	EnableH2C       bool // HTTP/2 cleartext alongside HTTP/1.1
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

// protocol names the transport the server was started with
func (c ServerConfig) protocol() string {
	switch {
	case c.EnableTLS:
		return "h2+tls"
	case c.EnableH2C:
		return "h2c"
	default:
		return "http/1.1"
	}
}

// Server serves the field operations API
type Server struct {
	config     ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	errs       chan error
	stopOnce   sync.Once
	logger     observability.Logger
}

// NewServer creates a server for deps; nothing listens until Start
func NewServer(config ServerConfig, deps Dependencies) *Server {
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.MaxHeaderBytes == 0 {
		config.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	return &Server{
		config: config,
		router: SetupRouter(deps),
		errs:   make(chan error, 1),
		logger: observability.New("http-server", ""),
	}
}

// Start binds the listener and serves in the background. Errors after the
// listener is bound are delivered on Errors.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener
	s.config.ListenAddr = listener.Addr().String()

	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	h2 := &http2.Server{
		MaxConcurrentStreams: maxConcurrentStreams,
		MaxReadFrameSize:     maxReadFrameSize,
	}
	serve := s.httpServer.Serve
	switch {
	case s.config.EnableTLS:
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			NextProtos: []string{"h2", "http/1.1"},
		}
		if err := http2.ConfigureServer(s.httpServer, h2); err != nil {
			_ = listener.Close()
			return fmt.Errorf("failed to configure HTTP/2: %w", err)
		}
		serve = func(l net.Listener) error {
			return s.httpServer.ServeTLS(l, s.config.TLSCertFile, s.config.TLSKeyFile)
		}
	case s.config.EnableH2C:
		s.httpServer.Handler = h2c.NewHandler(s.router, h2)
	}

	s.logger.Infow("Starting HTTP server", "address", s.config.ListenAddr, "protocol", s.config.protocol())

	go func() {
		err := serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("HTTP server error", "protocol", s.config.protocol(), "error", err)
			s.errs <- err
		}
		close(s.errs)
	}()

	return nil
}

// Errors yields at most one serve error and is closed when serving ends
func (s *Server) Errors() <-chan error {
	return s.errs
}

// Stop shuts the server down, waiting up to ShutdownTimeout for in-flight
// requests. Calling it more than once is a no-op.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	var err error
	s.stopOnce.Do(func() {
		s.logger.Infow("Stopping HTTP server", "address", s.config.ListenAddr)

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("server shutdown failed: %w", shutdownErr)
			return
		}
		s.logger.Infow("HTTP server stopped", "address", s.config.ListenAddr)
	})
	return err
}

// GetAddr returns the server's listen address
func (s *Server) GetAddr() string {
	return s.config.ListenAddr
}

// IsRunning checks if the server is running
func (s *Server) IsRunning() bool {
	return s.httpServer != nil && s.listener != nil
}

// Handler returns the configured router without starting a listener
func (s *Server) Handler() http.Handler {
	return s.router
}
