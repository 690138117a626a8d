// Package apihttp exposes the gateway's HTTP surface: session lifecycle,
// range-capable streaming, indexer search, and the status WebSocket feed.
package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"peerstream/internal/domain"
	"peerstream/internal/session"
)

// SearchService is the query fan-out surface consumed by the search handler.
type SearchService interface {
	Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
}

type Server struct {
	registry       *session.Registry
	search         SearchService
	allowedOrigins []string
	rateLimitRPS   float64
	rateLimitBurst int
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithSearch(svc SearchService) ServerOption {
	return func(s *Server) {
		s.search = svc
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithRateLimit overrides the default request rate limit applied to the
// whole HTTP surface. Non-positive values keep the defaults.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rateLimitRPS = rps
		}
		if burst > 0 {
			s.rateLimitBurst = burst
		}
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(registry *session.Registry, opts ...ServerOption) *Server {
	s := &Server{registry: registry, rateLimitRPS: 100, rateLimitBurst: 200}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSessionByID)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "peerstream",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz" && !strings.HasSuffix(p, "/stream")
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(s.rateLimitRPS, s.rateLimitBurst, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// BroadcastStatuses pushes the current session statuses to all WebSocket
// clients.
func (s *Server) BroadcastStatuses(statuses []domain.Status) {
	if s.wsHub != nil {
		s.wsHub.BroadcastStatuses(statuses)
	}
}

// Close shuts down the WebSocket hub, disconnecting all clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}
