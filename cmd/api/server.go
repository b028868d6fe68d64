package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/WessleyAI/carfinder/engine/app"
	"github.com/WessleyAI/carfinder/engine/finder"
	"github.com/WessleyAI/carfinder/engine/semantic"
	"github.com/WessleyAI/carfinder/pkg/metrics"
)

// server holds what the handlers need.
type server struct {
	finder   *finder.Finder
	catalog  catalog
	editor   editor
	index    semantic.Index
	graph    modelLister
	sessions *sessionStore
	metrics  *metrics.Registry
	reloader *indexReloader
	logger   *slog.Logger
}

func newServer(a *app.App, logger *slog.Logger) *server {
	s := &server{
		finder:   a.Finder,
		catalog:  a.Store,
		editor:   a.Pipeline,
		index:    a.Index,
		sessions: newSessionStore(sessionTTL, maxSessions),
		metrics:  a.Metrics,
		reloader: &indexReloader{builder: a.Pipeline, index: a.Index, logger: logger},
		logger:   logger,
	}
	if a.Graph != nil {
		s.graph = a.Graph
	}
	s.registerGauges()
	return s
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/search", handleSearch(s.finder, s.logger))
	mux.HandleFunc("POST /api/chat", handleChat(s.finder, s.sessions))
	mux.HandleFunc("GET /api/sources", handleSources(s.finder, s.logger))
	mux.HandleFunc("POST /api/sources/refresh", handleRefresh(s.finder, s.logger))
	mux.HandleFunc("GET /api/stats", handleStats(s.catalog, s.index, s.graph, s.logger))
	mux.HandleFunc("GET /api/makes/{make}/models", handleModels(s.catalog, s.graph, s.logger))
	mux.HandleFunc("GET /api/vehicles/{id}", handleGetVehicle(s.catalog, s.logger))
	mux.HandleFunc("PATCH /api/vehicles/{id}", handlePatchVehicle(s.catalog, s.editor, s.logger))
	mux.HandleFunc("DELETE /api/vehicles/{id}", handleDeleteVehicle(s.editor, s.logger))
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

func (s *server) registerGauges() {
	s.metrics.GaugeFunc("carfinder_catalog_vehicles", "Vehicles in the catalog", func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		st, err := s.catalog.Stats(ctx)
		if err != nil {
			return 0
		}
		return float64(st.Total)
	})
	s.metrics.GaugeFunc("carfinder_index_vectors", "Vectors in the embedding index", func() float64 {
		return float64(s.index.Len())
	})
	s.metrics.GaugeFunc("carfinder_chat_sessions", "Open chat sessions", func() float64 {
		return float64(s.sessions.Len())
	})
}
