package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/aq-dashboard-service/internal/domain"
	"github.com/couchcryptid/aq-dashboard-service/internal/pipeline"
)

// Dashboard answers dataset listings and selections.
type Dashboard interface {
	Datasets() []pipeline.DatasetInfo
	Options(ctx context.Context, name string) (domain.Options, error)
	Series(ctx context.Context, name string, req domain.SeriesRequest) (domain.PlotSeries, error)
	Trends(ctx context.Context, name, entity string, years domain.YearRange) (domain.TrendSet, error)
	Total(ctx context.Context, name string, req domain.SeriesRequest) (domain.ScalarSummary, error)
	Breakdown(ctx context.Context, name string, req domain.SeriesRequest, by string) (map[string]float64, error)
	Refresh(name string) error
}

// Server exposes health, readiness, metrics, and the dashboard JSON API.
type Server struct {
	httpServer *http.Server
	dashboard  Dashboard
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and /api routes.
func NewServer(addr string, dashboard Dashboard, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// A cold dataset load fetches every source before the first response.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		dashboard: dashboard,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/datasets", s.handleDatasets)
	mux.HandleFunc("GET /api/datasets/{name}/options", s.handleOptions)
	mux.HandleFunc("GET /api/datasets/{name}/series", s.handleSeries)
	mux.HandleFunc("GET /api/datasets/{name}/trends", s.handleTrends)
	mux.HandleFunc("GET /api/datasets/{name}/total", s.handleTotal)
	mux.HandleFunc("GET /api/datasets/{name}/breakdown", s.handleBreakdown)
	mux.HandleFunc("POST /api/datasets/{name}/refresh", s.handleRefresh)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
