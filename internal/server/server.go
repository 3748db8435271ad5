// Package server implements the tfgate HTTP API server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dwsmith1983/tfgate/internal/orchestrator"
	"github.com/dwsmith1983/tfgate/internal/store"
)

// Server is the tfgate HTTP API server.
type Server struct {
	orch    *orchestrator.Orchestrator
	store   store.Store
	router  chi.Router
	addr    string
	apiKey  string
	maxBody int64
	srv     *http.Server
}

// New creates a new HTTP server.
func New(addr string, orch *orchestrator.Orchestrator, st store.Store, apiKey string, maxBody int64) *Server {
	s := &Server{
		orch:    orch,
		store:   st,
		addr:    addr,
		apiKey:  apiKey,
		maxBody: maxBody,
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))
	r.Use(APIKeyMiddleware(apiKey))
	if maxBody > 0 {
		r.Use(MaxBodyMiddleware(maxBody))
	}

	s.router = r
	s.registerRoutes(r)
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // run requests wait on the engine
		IdleTimeout:  120 * time.Second,
	}
	fmt.Printf("tfgate server listening on %s\n", s.addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
