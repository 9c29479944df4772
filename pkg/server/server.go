package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/config"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/ingest"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/models"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// GraphQuerier is the read side the API serves
type GraphQuerier interface {
	GetFullGraph(ctx context.Context) (models.Graph, error)
	GetNodeNeighborhood(ctx context.Context, id int64) (models.Neighborhood, error)
	Stats(ctx context.Context) (models.GraphStats, error)
}

// Ingester starts background crawls and reports on them
type Ingester interface {
	Start(rootExternalID int64) string
	Run(runID string) (ingest.Report, bool)
}

// Server represents the HTTP server
type Server struct {
	config   *config.Config
	storage  storage.GraphStore
	graph    GraphQuerier
	ingester Ingester
	logger   zerolog.Logger
	router   *chi.Mux
	http     *http.Server
}

// New creates a new server instance
func New(
	cfg *config.Config,
	store storage.GraphStore,
	graph GraphQuerier,
	ingester Ingester,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		config:   cfg,
		storage:  store,
		graph:    graph,
		ingester: ingester,
		logger:   logger,
		router:   chi.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors(s.config.CORSOrigin))

	// Health check
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/version", s.handleVersion)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/graph", s.handleGraph)
		r.Get("/graph/stats", s.handleGraphStats)
		r.Get("/node/{id}", s.handleNode)

		r.Post("/ingest", s.handleIngest)
		r.Get("/ingest/{runID}", s.handleIngestStatus)
	})

	// Built client
	if s.config.StaticDir != "" {
		s.router.NotFound(s.spaHandler(s.config.StaticDir))
	}
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a started server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Handler returns the HTTP handler wrapped with tracing (useful for testing)
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "netgraph")
}

// cors sets CORS headers and answers preflight requests
func cors(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// spaHandler serves files from dir and falls back to index.html for client routes
func (s *Server) spaHandler(dir string) http.HandlerFunc {
	fileServer := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			s.writeError(w, http.StatusNotFound, "Not found")
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") {
			s.writeError(w, http.StatusNotFound, "Not found")
			return
		}

		path := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, index)
	}
}

// Helper functions

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, models.ErrorResponse{
		Error: struct {
			Message string `json:"message"`
			Status  int    `json:"status"`
		}{
			Message: message,
			Status:  status,
		},
	})
}
