// Package server exposes the materialised model over a read-only JSON
// HTTP API. The model is immutable, so handlers share it without locking.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/team-sync/internal/model"
)

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)
}

// Server serves the export projection of one loaded model.
type Server struct {
	cfg        Config
	log        *logrus.Logger
	model      *model.Model
	router     chi.Router
	httpServer *http.Server
}

// New creates a server over an already materialised model.
func New(cfg Config, log *logrus.Logger, m *model.Model) *Server {
	s := &Server{cfg: cfg, log: log, model: m}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept"},
		MaxAge:         300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/teams", s.handleTeams)
		r.Get("/teams/{name}", s.handleTeam)
		r.Get("/people", s.handlePeople)
		r.Get("/people/{handle}", s.handlePerson)
		r.Get("/repos", s.handleRepos)
		r.Get("/repos/{org}/{name}", s.handleRepo)
		r.Get("/lists", s.handleLists)
		r.Get("/lists/{address}", s.handleList)
		r.Get("/zulip-groups", s.handleZulipGroups)
		r.Get("/zulip-streams", s.handleZulipStreams)
	})

	return r
}

// Router returns the chi router, used directly by tests.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.log.Infof("team API listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("encoding response: %v", err)
	}
}

func (s *Server) notFound(w http.ResponseWriter, what string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{"error": what + " not found"})
}
