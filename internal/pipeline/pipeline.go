package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/aq-dashboard-service/internal/catalog"
	"github.com/couchcryptid/aq-dashboard-service/internal/domain"
	"github.com/couchcryptid/aq-dashboard-service/internal/observability"
)

// Fetcher retrieves one raw source table.
type Fetcher interface {
	Fetch(ctx context.Context, src domain.SourceDescriptor) (domain.RawTable, error)
}

// Loader builds a NormalizedTable from every source of a dataset:
// fetch, normalize each source on its own, then concatenate in source order.
type Loader struct {
	fetcher     Fetcher
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewLoader creates a Loader that fetches at most concurrency sources at once.
func NewLoader(f Fetcher, concurrency int, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Loader{
		fetcher:     f,
		concurrency: concurrency,
		logger:      logger,
		metrics:     metrics,
	}
}

// Load is all-or-nothing: the first failing source cancels the rest and its
// error is returned, so a table never silently lacks a year.
func (l *Loader) Load(ctx context.Context, ds catalog.Dataset) (*domain.NormalizedTable, error) {
	start := time.Now()
	name := ds.Spec.Name
	l.logger.Info("dataset load started", "dataset", name, "sources", len(ds.Sources))

	parts := make([]domain.Part, len(ds.Sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, src := range ds.Sources {
		g.Go(func() error {
			raw, err := l.fetcher.Fetch(gctx, src)
			if err != nil {
				return err
			}
			part, err := l.normalize(ds.Spec, src, raw)
			if err != nil {
				return err
			}
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		l.fail(name, err)
		return nil, err
	}

	table, err := domain.Concat(ds.Spec, parts)
	if err != nil {
		l.fail(name, err)
		return nil, err
	}
	table.LoadedAt = domain.Now()

	elapsed := time.Since(start)
	l.metrics.Loads.WithLabelValues(name, "success").Inc()
	l.metrics.LoadDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	l.metrics.Records.WithLabelValues(name).Set(float64(len(table.Records)))
	l.logger.Info("dataset loaded", "dataset", name, "records", len(table.Records), "duration", elapsed)
	return table, nil
}

func (l *Loader) fail(dataset string, err error) {
	l.metrics.Loads.WithLabelValues(dataset, outcome(err)).Inc()
	l.logger.Error("dataset load failed", "dataset", dataset, "error", err)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, domain.ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
