package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	srv *http.Server
}

type Options struct {
	Addr          string
	ExposeMetrics bool
	Gatherer      prometheus.Gatherer
	Reorder       ReorderSource
}

func NewRouter(opt Options, log *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if opt.ExposeMetrics {
		g := opt.Gatherer
		if g == nil {
			g = prometheus.DefaultGatherer
		}
		r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}

	if opt.Reorder != nil {
		r.Route("/api", func(r chi.Router) {
			r.Method(http.MethodGet, "/reorder/status", NewReorderHandler(log, opt.Reorder))
		})
	}
	return r
}

func New(opt Options, log *slog.Logger) *Server {
	return &Server{srv: &http.Server{
		Addr:              opt.Addr,
		Handler:           NewRouter(opt, log),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
