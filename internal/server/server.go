// Package server assembles the HTTP API: middleware, authentication,
// and the feature route groups.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/landmarktitle/tessa/internal/activity"
	"github.com/landmarktitle/tessa/internal/auth"
	"github.com/landmarktitle/tessa/internal/config"
	"github.com/landmarktitle/tessa/internal/db"
	"github.com/landmarktitle/tessa/internal/extraction"
	"github.com/landmarktitle/tessa/internal/kb"
	"github.com/landmarktitle/tessa/internal/llm"
	"github.com/landmarktitle/tessa/internal/search"
	"github.com/landmarktitle/tessa/internal/sop"
	"github.com/landmarktitle/tessa/internal/users"
	"github.com/landmarktitle/tessa/internal/workspace"
)

// Server is the tessa API server.
type Server struct {
	cfg        *config.Config
	db         *db.DB
	router     chi.Router
	hub        *activity.Hub
	httpServer *http.Server
}

// New wires up stores, authentication, and routes. provider and index
// may be nil; the extraction, generation, and search endpoints then
// report unavailable instead of failing at startup.
func New(cfg *config.Config, database *db.DB, provider llm.Provider, index *search.Index) *Server {
	s := &Server{cfg: cfg, db: database, hub: activity.NewHub()}
	s.router = s.buildRouter(provider, index)
	return s
}

func (s *Server) buildRouter(provider llm.Provider, index *search.Index) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAllOrigins {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	authStore := auth.NewStore(s.db)
	manager := auth.NewManager(s.cfg.JWTSecret, time.Duration(s.cfg.TokenTTLHours)*time.Hour)

	log := activity.NewStore(s.db)
	log.SetHub(s.hub)

	var generator *sop.Generator
	var pipeline *extraction.Pipeline
	if provider != nil {
		generator = sop.NewGenerator(provider, s.cfg.Model)
		pipeline = extraction.NewPipeline(provider, s.cfg.Model)
	}

	// Login and logout manage their own credentials and stay public.
	auth.RegisterRoutes(r, authStore, manager)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(manager, authStore))

		activity.RegisterRoutes(r, log, s.hub)
		workspace.RegisterRoutes(r, workspace.NewStore(s.db), log)
		users.RegisterRoutes(r, users.NewStore(s.db, s.cfg.BcryptCost), log)
		sop.RegisterRoutes(r, sop.NewStore(s.db), log, generator)

		var indexer kb.Indexer
		if index != nil {
			indexer = index
		}
		kb.RegisterRoutes(r, kb.NewStore(s.db), log, indexer)
		extraction.RegisterRoutes(r, pipeline, log)
		search.RegisterRoutes(r, index)
	})

	return r
}

// Router returns the assembled router; tests serve requests against it
// directly.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port and blocks until the
// listener stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logrus.WithField("addr", addr).Info("tessa server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
