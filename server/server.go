// Package server owns the listener of the index server: it is bound once,
// served until the context is done and released by a graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

const defaultShutdownTimeout = 5 * time.Second

var (
	// ErrBind is returned when the listen address can't be bound,
	// e.g. another process holds the port.
	ErrBind = errors.New("failed to bind listener")
	// ErrNotListening is returned by Serve before Listen succeeded.
	ErrNotListening = errors.New("server is not listening")
	// ErrAlreadyListening is returned by a second call of Listen.
	ErrAlreadyListening = errors.New("server is already listening")
)

// Options tune the http.Server. Zero timeouts disable the timeout,
// a zero ShutdownTimeout means 5 seconds.
type Options struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// CertFile and KeyFile switch the listener to TLS when both are set.
	CertFile string
	KeyFile  string
}

// Server is an http.Server with an explicitly owned listener.
type Server struct {
	addr       string
	opts       Options
	logger     *log.Logger
	httpServer *http.Server
	ln         net.Listener
}

// New creates a Server. Nothing is bound until Listen.
func New(addr string, handler http.Handler, opts Options, logger *log.Logger) *Server {
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Server{
		addr:   addr,
		opts:   opts,
		logger: logger,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
	}
}

// Listen binds the address. It fails right away if the port is taken.
func (s *Server) Listen() error {
	if s.ln != nil {
		return ErrAlreadyListening
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%w %s: %s", ErrBind, s.addr, err)
	}

	if s.opts.CertFile != "" && s.opts.KeyFile != "" {
		crt, err := tls.LoadX509KeyPair(s.opts.CertFile, s.opts.KeyFile)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{crt}})
	}

	s.ln = ln
	return nil
}

// Addr is the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx is done or the server fails,
// then shuts down gracefully. The listener is closed when Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return ErrNotListening
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("Server started", "addr", s.ln.Addr().String())
		if err := s.httpServer.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// Run is Listen followed by Serve.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Close releases a listener that was bound but never served.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// Shutdown waits for active requests at most ShutdownTimeout.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down", "addr", s.addr)

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		// drop the connections that outlived the timeout
		if cerr := s.httpServer.Close(); cerr != nil {
			s.logger.Error("Failed to close connections", "err", cerr)
		}
		return fmt.Errorf("failed to shut down: %w", err)
	}

	s.logger.Info("Server stopped", "addr", s.addr)
	return nil
}
