package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/reloquent/catalogmap/internal/engine"
	"github.com/reloquent/catalogmap/internal/tree"
	"github.com/reloquent/catalogmap/internal/ws"
)

// Server is the REST API server for remote tree clients.
type Server struct {
	engine  *engine.Engine
	hub     *ws.Hub
	logger  *slog.Logger
	port    int
	server  *http.Server
	devMode bool
}

// Option configures the API server.
type Option func(*Server)

// WithDevMode enables CORS for development.
func WithDevMode(dev bool) Option {
	return func(s *Server) {
		s.devMode = dev
	}
}

// WithHub sets the WebSocket hub. Session notices and node changes are
// broadcast through it.
func WithHub(hub *ws.Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// New creates a new API server.
func New(eng *engine.Engine, logger *slog.Logger, port int, opts ...Option) *Server {
	s := &Server{
		engine: eng,
		logger: logger,
		port:   port,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub != nil {
		eng.SetNoticeFunc(func(sessionID string, n tree.Notice) {
			s.hub.BroadcastNotice(sessionID, n)
		})
		s.hub.SetStateProvider(s.snapshot)
	}
	return s
}

// Handler returns the routed handler, wrapped in the server middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	if s.devMode {
		handler = s.corsMiddleware(handler)
	}
	return requestLogger(s.logger, handler)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	s.logger.Info("starting api server", "port", s.port, "dev_mode", s.devMode)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDropSession)
	mux.HandleFunc("POST /api/sessions/{id}/refresh", s.handleRefreshSession)
	mux.HandleFunc("GET /api/sessions/{id}/children", s.handleChildren)
	mux.HandleFunc("POST /api/sessions/{id}/check", s.handleCheck)
	mux.HandleFunc("GET /api/sessions/{id}/mapping", s.handleGetMapping)
	mux.HandleFunc("PUT /api/sessions/{id}/mapping", s.handleUpdateMapping)
	mux.HandleFunc("POST /api/sessions/{id}/validate", s.handleValidate)
	mux.HandleFunc("GET /api/sessions/{id}/selection", s.handleSelection)
	mux.HandleFunc("GET /api/sessions/{id}/notices", s.handleNotices)

	if s.hub != nil {
		mux.HandleFunc("/api/ws", s.hub.HandleWebSocket)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) snapshot() ([]byte, error) {
	return json.Marshal(SnapshotResponse{Sessions: s.engine.SessionIDs()})
}
