// Package server exposes the dispatcher over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"rpcdispatch/internal/config"
	"rpcdispatch/internal/dispatch"
	"rpcdispatch/internal/metrics"
	"rpcdispatch/internal/rpccontext"
)

const (
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 120 * time.Second
)

// Dispatcher runs one parsed request to completion
type Dispatcher interface {
	Dispatch(ctx context.Context, rc *rpccontext.Context) dispatch.Outcome
}

// Server represents the RPC and WebSocket listeners
type Server struct {
	cfg        *config.Config
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	limiter    *rate.Limiter
	upgrader   websocket.Upgrader
	logger     zerolog.Logger

	mu      sync.Mutex
	clients map[string]*wsClient

	rpcServer *http.Server
	wsServer  *http.Server
}

// New creates a new Server
func New(cfg *config.Config, dispatcher Dispatcher, m *metrics.Metrics, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		metrics:    m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  logger.With().Str("component", "server").Logger(),
		clients: make(map[string]*wsClient),
	}

	if cfg.RateLimitEnabled() {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
		s.logger.Info().
			Float64("rps", cfg.RateLimit.RequestsPerSecond).
			Int("burst", cfg.RateLimit.Burst).
			Msg("rate limiting enabled")
	}

	return s
}

// RPCHandler returns the router of the RPC port
func (s *Server) RPCHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", s.metrics.Handler())
	r.With(s.rateLimitMiddleware).Post("/", s.handleRPC)
	return r
}

// WSHandler returns the router of the WebSocket port
func (s *Server) WSHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleWS)
	return r
}

// Start binds both listeners and serves them in the background
func (s *Server) Start() error {
	rpcAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.RPCPort)
	wsAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.WSPort)

	rpcListener, err := net.Listen("tcp", rpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", rpcAddr, err)
	}
	wsListener, err := net.Listen("tcp", wsAddr)
	if err != nil {
		rpcListener.Close()
		return fmt.Errorf("failed to listen on %s: %w", wsAddr, err)
	}

	s.rpcServer = s.newHTTPServer(s.RPCHandler())
	s.wsServer = s.newHTTPServer(s.WSHandler())

	go s.serve(s.rpcServer, rpcListener, "RPC")
	go s.serve(s.wsServer, wsListener, "WebSocket")

	s.logger.Info().
		Str("rpc", "http://"+rpcAddr).
		Str("ws", "ws://"+wsAddr).
		Msg("endpoint available")
	return nil
}

func (s *Server) newHTTPServer(h http.Handler) *http.Server {
	return &http.Server{
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}

func (s *Server) serve(srv *http.Server, l net.Listener, name string) {
	s.logger.Info().Str("addr", l.Addr().String()).Msgf("starting %s server", name)
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error().Err(err).Msgf("%s server error", name)
	}
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server...")

	// Hijacked connections are not tracked by http.Server
	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}

	var rpcErr, wsErr error
	if s.rpcServer != nil {
		rpcErr = s.rpcServer.Shutdown(ctx)
	}
	if s.wsServer != nil {
		wsErr = s.wsServer.Shutdown(ctx)
	}

	if rpcErr != nil {
		return fmt.Errorf("RPC server shutdown error: %w", rpcErr)
	}
	if wsErr != nil {
		return fmt.Errorf("WebSocket server shutdown error: %w", wsErr)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}

func (s *Server) addClient(c *wsClient) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	s.metrics.WSConnected()
}

func (s *Server) removeClient(c *wsClient) {
	s.mu.Lock()
	_, ok := s.clients[c.id]
	delete(s.clients, c.id)
	s.mu.Unlock()
	if ok {
		s.metrics.WSDisconnected()
	}
}

// allow reports whether the limiter admits one more request
func (s *Server) allow(transport string) bool {
	if s.limiter == nil || s.limiter.Allow() {
		return true
	}
	s.metrics.RateLimited(transport)
	return false
}
