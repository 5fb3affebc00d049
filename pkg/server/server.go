// Package server is the transport front end of the edge: it admits
// connections, terminates TLS with ALPN and serves HTTP/1.1 and HTTP/2 to the
// request handler.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Sternrassler/edge-cache/pkg/admission"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	// DefaultTLSPort is the fixed port of TLS mode.
	DefaultTLSPort = 8443

	// DefaultPlainPort is the port of plaintext mode when PORT is unset.
	DefaultPlainPort = 10000

	// DefaultMaxConcurrentStreams limits streams per HTTP/2 connection.
	DefaultMaxConcurrentStreams = 1000
)

// Config holds the front end configuration.
type Config struct {
	// Addr is the listen address, e.g. "0.0.0.0:8443".
	Addr string

	// TLS enables TLS mode when non-nil.
	TLS *tls.Config

	HandshakeTimeout  time.Duration
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration

	// MaxConcurrentStreams limits concurrent streams per HTTP/2 connection.
	MaxConcurrentStreams uint32
}

// Server serves the handler behind admission control.
type Server struct {
	cfg    Config
	srv    *http.Server
	ctrl   *admission.Controller
	logger zerolog.Logger

	mu       sync.Mutex
	listener *Listener
}

// New builds a server. The handler is wrapped with request logging.
func New(cfg Config, handler http.Handler, ctrl *admission.Controller, logger zerolog.Logger) (*Server, error) {
	if ctrl == nil {
		return nil, errors.New("admission controller is required")
	}
	if cfg.MaxConcurrentStreams == 0 {
		cfg.MaxConcurrentStreams = DefaultMaxConcurrentStreams
	}

	logger = logger.With().Str("component", "server").Logger()

	h2 := &http2.Server{
		MaxConcurrentStreams: cfg.MaxConcurrentStreams,
		IdleTimeout:          cfg.IdleTimeout,
	}

	handler = withRequestLogging(handler, logger)
	if cfg.TLS == nil {
		handler = h2c.NewHandler(handler, h2)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          newErrorLog(logger),
	}

	if cfg.TLS != nil {
		cfg.TLS = cfg.TLS.Clone()
		srv.TLSConfig = cfg.TLS
	}

	if cfg.TLS != nil && !slices.Contains(cfg.TLS.NextProtos, http2.NextProtoTLS) {
		// HTTP/2 not advertised; keep net/http from adding it.
		srv.TLSNextProto = map[string]func(*http.Server, *tls.Conn, http.Handler){}
	} else if err := http2.ConfigureServer(srv, h2); err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}

	return &Server{
		cfg:    cfg,
		srv:    srv,
		ctrl:   ctrl,
		logger: logger,
	}, nil
}

// ListenAndServe binds Config.Addr and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves connections from ln until Shutdown. It returns nil after a
// graceful shutdown and the accept error otherwise.
func (s *Server) Serve(ln net.Listener) error {
	l := NewListener(ln, s.ctrl, s.cfg.TLS, s.cfg.HandshakeTimeout, s.logger)

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	mode := "plaintext"
	if s.cfg.TLS != nil {
		mode = "tls"
	}
	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("mode", mode).
		Int64("max_connections", s.ctrl.Capacity()).
		Uint32("max_concurrent_streams", s.cfg.MaxConcurrentStreams).
		Msg("Edge server listening")

	err := s.srv.Serve(l)
	l.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting, lets in-flight requests finish and closes idle
// connections. HTTP/2 clients receive GOAWAY.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)

	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l.Wait()
	}
	return err
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func withRequestLogging(next http.Handler, logger zerolog.Logger) http.Handler {
	h := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.EscapedPath()).
			Str("proto", r.Proto).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request served")
	})(next)
	h = hlog.RemoteAddrHandler("remote")(h)
	return hlog.NewHandler(logger)(h)
}
