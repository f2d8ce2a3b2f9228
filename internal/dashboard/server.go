// Package dashboard exposes the read-only HTTP API the dashboard polls:
// agent info, memory, logs, and reconstructed interactions.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/voslund/vigil/internal/memory"
	"github.com/voslund/vigil/internal/models"
	"github.com/voslund/vigil/internal/store"
	"go.uber.org/zap"
)

// Server serves the dashboard API. It only ever reads: the scheduler remains
// the sole writer to memory and the log store.
type Server struct {
	store  *store.Store
	mem    *memory.Manager
	info   models.AgentInfo
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a dashboard API server.
func NewServer(s *store.Store, mem *memory.Manager, info models.AgentInfo, addr string, allowedOrigins []string, logger *zap.Logger) *Server {
	srv := &Server{
		store:  s,
		mem:    mem,
		info:   info,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors(allowedOrigins))

	r.Get("/health", srv.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/agent-info", srv.handleAgentInfo)
		r.Get("/memory", srv.handleMemory)
		r.Get("/logs", srv.handleLogs)
		r.Get("/logs/since", srv.handleLogsSince)
		r.Get("/interactions", srv.handleInteractions)
		r.Get("/latest-interaction", srv.handleLatestInteraction)
	})

	srv.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return srv
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("dashboard API listening", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// handleHealth reports liveness, including the database connection.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.serverError(w, "health check", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAgentInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.info)
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"content": s.mem.Markdown()})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	entries, err := s.store.Query(store.QueryOpts{Limit: limit})
	if err != nil {
		s.serverError(w, "query logs", err)
		return
	}
	if entries == nil {
		entries = []models.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLogsSince(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("timestamp")
	if raw == "" {
		writeJSON(w, http.StatusOK, []models.LogEntry{})
		return
	}
	since, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		http.Error(w, `{"error":"invalid timestamp format"}`, http.StatusBadRequest)
		return
	}

	entries, err := s.store.Query(store.QueryOpts{Since: since})
	if err != nil {
		s.serverError(w, "query logs since", err)
		return
	}
	if entries == nil {
		entries = []models.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	interactions, err := s.store.Interactions(limit)
	if err != nil {
		s.serverError(w, "query interactions", err)
		return
	}
	if interactions == nil {
		interactions = []models.Interaction{}
	}
	writeJSON(w, http.StatusOK, interactions)
}

func (s *Server) handleLatestInteraction(w http.ResponseWriter, r *http.Request) {
	interaction, err := s.store.LatestInteraction()
	if err != nil {
		s.serverError(w, "query latest interaction", err)
		return
	}
	if interaction == nil {
		// No response has followed a prompt yet.
		writeJSON(w, http.StatusOK, map[string]interface{}{"prompt": nil, "response": nil})
		return
	}
	writeJSON(w, http.StatusOK, interaction)
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", zap.Error(err))
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// cors handles cross-origin requests from browser dashboards.
func cors(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Non-browser clients send no Origin and need no CORS headers.
			if origin := r.Header.Get("Origin"); origin != "" {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
						w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
						break
					}
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
