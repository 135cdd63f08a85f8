// Package server exposes the extraction pipeline over a small JSON API.
package server

import (
	"net/http"

	"github.com/sw33tLie/shopsight/internal/utils"
	"github.com/sw33tLie/shopsight/pkg/pipeline"
	"github.com/sw33tLie/shopsight/pkg/storage"
)

type Server struct {
	DB       *storage.DB // optional; nil disables persistence
	Username string
	Password string
	Defaults pipeline.Options
}

func New(db *storage.DB, user, pass string, defaults pipeline.Options) *Server {
	return &Server{
		DB:       db,
		Username: user,
		Password: pass,
		Defaults: defaults,
	}
}

func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/extract", s.basicAuth(s.handleExtract))
	mux.HandleFunc("GET /api/snapshots", s.basicAuth(s.handleSnapshots))

	utils.Log.Info("Starting server on ", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
