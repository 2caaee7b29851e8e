// Package http exposes the pipeline's trigger, status and download
// endpoints.
package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the API's route tree.
func NewRouter(handler *FeedHandler, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/feeds/{feedID}", handler.GetFeedStatus)
	r.Route("/feeds/{feedID}/generations", func(r chi.Router) {
		r.Post("/", handler.TriggerGeneration)
		r.Get("/", handler.ListGenerations)
	})
	r.Route("/generations/{generationID}", func(r chi.Router) {
		r.Get("/", handler.GetGeneration)
		r.Get("/download", handler.DownloadArtifact)
	})
	return r
}

// NewServer wraps the router in an http.Server with sane timeouts.
func NewServer(port int, router http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
