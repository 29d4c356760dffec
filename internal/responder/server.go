// Package responder serves the static sensor reading over HTTP.
package responder

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/multierr"
	"golang.org/x/net/netutil"

	"github.com/0xReLogic/sensord/internal/config"
	"github.com/0xReLogic/sensord/internal/logging"
	"github.com/0xReLogic/sensord/internal/metrics"
	"github.com/0xReLogic/sensord/internal/ratelimiter"
	"github.com/0xReLogic/sensord/internal/sensor"
)

// ErrNotListening is returned by Serve when Listen has not bound a socket.
var ErrNotListening = errors.New("responder: server is not listening")

// Server is the long-lived sensor responder. It owns its listening socket
// from Listen until Shutdown.
type Server struct {
	cfg      *config.Config
	provider sensor.Provider
	metrics  *metrics.MetricsCollector
	limiter  *ratelimiter.TokenBucketRateLimiter
	streams  *streamHub
	handler  http.Handler
	http     *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics shares mc with the server instead of a private collector.
func WithMetrics(mc *metrics.MetricsCollector) Option {
	return func(s *Server) {
		s.metrics = mc
	}
}

// New builds a server for cfg reading values from provider. It does not bind
// a socket; call Listen or ListenAndServe.
func New(cfg *config.Config, provider sensor.Provider, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("responder: config is nil")
	}
	if provider == nil {
		return nil, errors.New("responder: provider is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		provider: provider,
		streams:  newStreamHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMetricsCollector()
	}
	if cfg.RateLimit.Enabled {
		s.limiter = ratelimiter.NewTokenBucketRateLimiter(
			cfg.RateLimit.MaxTokens,
			time.Duration(cfg.RateLimit.RefillIntervalMs)*time.Millisecond,
		)
	}

	s.handler = s.buildHandler()
	s.http = s.newHTTPServer()
	return s, nil
}

func (s *Server) buildHandler() http.Handler {
	router := mux.NewRouter().SkipClean(true)
	router.NotFoundHandler = http.HandlerFunc(s.notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)
	router.HandleFunc(SensorsPath, s.handleSensors).
		Methods(http.MethodGet).
		MatcherFunc(exactTarget(SensorsPath))
	if s.cfg.Stream.Enabled {
		router.HandleFunc(StreamPath, s.handleStream).
			Methods(http.MethodGet).
			MatcherFunc(exactTarget(StreamPath))
	}

	var handler http.Handler = router
	if s.limiter != nil {
		handler = ratelimiter.RateLimitMiddleware(s.limiter, http.HandlerFunc(s.tooManyRequests))(handler)
	}
	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(logging.RecoveryLogger{}),
		handlers.PrintRecoveryStack(false),
	)(handler)
	if s.cfg.Logging.AccessLog {
		handler = logging.AccessLogMiddleware(handler)
	}
	handler = s.metrics.Middleware(routeLabel)(handler)
	if s.cfg.Server.TrustProxyHeaders {
		handler = handlers.ProxyHeaders(handler)
	}
	handler = logging.RequestContextMiddleware(s.cfg.Logging)(handler)
	return closeConnections(handler)
}

func (s *Server) newHTTPServer() *http.Server {
	t := s.cfg.Server.Timeouts
	readTimeout := time.Duration(t.Read) * time.Second
	if readTimeout == 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := time.Duration(t.Write) * time.Second
	if writeTimeout == 0 {
		writeTimeout = 15 * time.Second
	}
	idleTimeout := time.Duration(t.Idle) * time.Second
	if idleTimeout == 0 {
		idleTimeout = 60 * time.Second
	}

	errorLogger := logging.L().With().Str("component", "http").Logger()
	return &http.Server{
		Handler:      s.handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
		ErrorLog:     stdlog.New(errorLogger, "", 0),
	}
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Listen binds the configured address. With max_connections set, at most
// that many connections are accepted at once and the rest wait in the
// kernel backlog in arrival order.
func (s *Server) Listen() error {
	addr := s.cfg.Server.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if n := s.cfg.Server.MaxConnections; n > 0 {
		ln = netutil.LimitListener(ln, n)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	logger := logging.L()
	logger.Info().
		Str("addr", ln.Addr().String()).
		Int("max_connections", s.cfg.Server.MaxConnections).
		Bool("stream", s.cfg.Stream.Enabled).
		Bool("rate_limit", s.limiter != nil).
		Msg("sensor responder listening")

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// ListenAndServe binds and serves.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown closes stream clients, stops accepting connections and waits for
// in-flight requests until ctx expires, after which connections are closed
// forcibly.
func (s *Server) Shutdown(ctx context.Context) error {
	s.streams.closeAll()

	err := s.http.Shutdown(ctx)
	if err != nil {
		err = multierr.Append(err, s.http.Close())
	}

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		if closeErr := ln.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = multierr.Append(err, closeErr)
		}
	}

	if s.limiter != nil {
		s.limiter.Stop()
	}
	return err
}
