package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sw33tLie/shopsight/internal/utils"
	"github.com/sw33tLie/shopsight/pkg/pipeline"
)

type ExtractRequest struct {
	URL                string `json:"url"`
	IncludeCompetitors bool   `json:"include_competitors"`
	MaxCompetitors     int    `json:"max_competitors"`
	Save               bool   `json:"save"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "url is required"})
		return
	}

	opts := s.Defaults
	opts.IncludeCompetitors = req.IncludeCompetitors
	if req.MaxCompetitors > 0 {
		opts.MaxCompetitors = req.MaxCompetitors
	}

	st, err := pipeline.Extract(r.Context(), req.URL, opts)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnreachableHome) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	if req.Save && s.DB != nil {
		if _, err := s.DB.SaveSnapshot(r.Context(), st); err != nil {
			utils.Log.Warn("Failed to save snapshot for ", st.URL, ": ", err)
		}
	}

	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "persistence is disabled"})
		return
	}
	storeURL := r.URL.Query().Get("url")
	if storeURL == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "url query parameter is required"})
		return
	}

	snapshots, err := s.DB.ListSnapshots(r.Context(), storeURL, 20)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
