package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/config"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/models"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/storage"
)

// handleHealth reports whether the store is reachable
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := map[string]interface{}{
		"status":  "ok",
		"version": config.Version,
	}
	if info, ok := s.storage.(storage.InfoProvider); ok {
		body["storage"] = info.Info().Type
	}

	if err := s.storage.Ping(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Health check failed")
		body["status"] = "unavailable"
		s.writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	s.writeJSON(w, http.StatusOK, body)
}

// handleVersion returns server version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"version": config.Version,
	})
}

// handleGraph returns every node and link
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.graph.GetFullGraph(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load graph")
		s.writeError(w, http.StatusInternalServerError, "Failed to load graph")
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

// handleGraphStats returns node and edge counts
func (s *Server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.graph.Stats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to count graph")
		s.writeError(w, http.StatusInternalServerError, "Failed to count graph")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleNode returns a node and every edge touching it
func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid node ID")
		return
	}

	n, err := s.graph.GetNodeNeighborhood(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("Node with id %d not found", id))
			return
		}
		s.logger.Error().Err(err).Int64("node_id", id).Msg("Failed to load node")
		s.writeError(w, http.StatusInternalServerError, "Failed to load node")
		return
	}
	s.writeJSON(w, http.StatusOK, n)
}

type ingestRequest struct {
	RootID int64 `json:"root_id"`
}

// handleIngest starts a crawl in the background and answers immediately
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	root := s.config.RootEntityID

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.RootID != 0 {
		root = req.RootID
	}
	if q := r.URL.Query().Get("root"); q != "" {
		parsed, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid root ID")
			return
		}
		root = parsed
	}
	if root <= 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid root ID")
		return
	}

	runID := s.ingester.Start(root)
	s.logger.Info().Str("run_id", runID).Int64("root_id", root).Msg("Ingestion triggered")

	s.writeJSON(w, http.StatusAccepted, models.IngestAck{
		Status: "accepted",
		RunID:  runID,
		RootID: root,
	})
}

// handleIngestStatus returns the latest report of a run
func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	report, ok := s.ingester.Run(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("Ingestion run %s not found", runID))
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}
