package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/couchcryptid/aq-dashboard-service/internal/catalog"
	"github.com/couchcryptid/aq-dashboard-service/internal/domain"
	"github.com/couchcryptid/aq-dashboard-service/internal/observability"
)

// ErrUnknownDataset is returned for a dataset name missing from the catalog.
var ErrUnknownDataset = errors.New("unknown dataset")

// DatasetInfo describes one catalog entry for listing.
type DatasetInfo struct {
	Name    string            `json:"name"`
	Title   string            `json:"title"`
	Layout  domain.Layout     `json:"layout"`
	Entity  string            `json:"entity"`
	Years   domain.YearRange  `json:"years"`
	Fill    domain.FillPolicy `json:"fill"`
	Sources int               `json:"sources"`
}

// Service answers dashboard selections against cached normalized tables.
type Service struct {
	catalog *catalog.Catalog
	tables  *TableCache
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// NewService creates a Service. With warmup set, the service reports not
// ready until Preload has run.
func NewService(cat *catalog.Catalog, tables *TableCache, warmup bool, logger *slog.Logger, metrics *observability.Metrics) *Service {
	s := &Service{
		catalog: cat,
		tables:  tables,
		logger:  logger,
		metrics: metrics,
	}
	s.ready.Store(!warmup)
	return s
}

// CheckReadiness returns nil once the catalog is loaded and any warmup has finished.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("datasets are still being preloaded")
	}
	return nil
}

// Preload loads every dataset once. Failures are logged and returned joined,
// but they do not keep the service unready: a later request retries the load.
func (s *Service) Preload(ctx context.Context) error {
	defer s.ready.Store(true)

	var errs []error
	for _, ds := range s.catalog.Datasets() {
		if _, err := s.tables.Get(ctx, ds); err != nil {
			s.logger.Warn("preload failed", "dataset", ds.Spec.Name, "error", err)
			errs = append(errs, fmt.Errorf("preload %s: %w", ds.Spec.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Datasets lists the catalog in declaration order.
func (s *Service) Datasets() []DatasetInfo {
	out := make([]DatasetInfo, 0)
	for _, ds := range s.catalog.Datasets() {
		out = append(out, DatasetInfo{
			Name:    ds.Spec.Name,
			Title:   ds.Spec.Title,
			Layout:  ds.Spec.Layout,
			Entity:  ds.Spec.Entity,
			Years:   ds.Spec.Years,
			Fill:    ds.Spec.Series.Fill,
			Sources: len(ds.Sources),
		})
	}
	return out
}

// Table returns the normalized table of the named dataset, loading it on first use.
func (s *Service) Table(ctx context.Context, name string) (*domain.NormalizedTable, error) {
	ds, ok := s.catalog.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataset, name)
	}
	return s.tables.Get(ctx, ds)
}

// Refresh drops the cached tables of a dataset so the next request refetches.
func (s *Service) Refresh(name string) error {
	if _, ok := s.catalog.Get(name); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDataset, name)
	}
	n := s.tables.InvalidateDataset(name)
	s.logger.Info("dataset cache invalidated", "dataset", name, "tables", n)
	return nil
}

// Options returns the picker values of a dataset.
func (s *Service) Options(ctx context.Context, name string) (domain.Options, error) {
	t, err := s.Table(ctx, name)
	if err != nil {
		s.observe("options", err)
		return domain.Options{}, err
	}
	s.observe("options", nil)
	return domain.SelectionOptions(t), nil
}

// Series returns one trend line.
func (s *Service) Series(ctx context.Context, name string, req domain.SeriesRequest) (domain.PlotSeries, error) {
	t, err := s.Table(ctx, name)
	if err != nil {
		s.observe("series", err)
		return domain.PlotSeries{}, err
	}
	series, err := domain.Series(t, req)
	s.observe("series", err)
	return series, err
}

// Trends returns every dimension's trend line for one entity.
func (s *Service) Trends(ctx context.Context, name, entity string, years domain.YearRange) (domain.TrendSet, error) {
	t, err := s.Table(ctx, name)
	if err != nil {
		s.observe("trends", err)
		return domain.TrendSet{}, err
	}
	set, err := domain.Trends(t, entity, years)
	s.observe("trends", err)
	return set, err
}

// Total sums the selected values.
func (s *Service) Total(ctx context.Context, name string, req domain.SeriesRequest) (domain.ScalarSummary, error) {
	t, err := s.Table(ctx, name)
	if err != nil {
		s.observe("total", err)
		return domain.ScalarSummary{}, err
	}
	s.observe("total", nil)
	return domain.Total(t, req), nil
}

// Breakdown sums the selected values per category.
func (s *Service) Breakdown(ctx context.Context, name string, req domain.SeriesRequest, by string) (map[string]float64, error) {
	t, err := s.Table(ctx, name)
	if err != nil {
		s.observe("breakdown", err)
		return nil, err
	}
	out, err := domain.Breakdown(t, req, by)
	s.observe("breakdown", err)
	return out, err
}

func (s *Service) observe(kind string, err error) {
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInsufficientData):
		result = "insufficient"
	default:
		result = "error"
	}
	s.metrics.Selections.WithLabelValues(kind, result).Inc()
}
