// Command inspect loads one dataset through the same pipeline the dashboard
// service uses and prints a selection as JSON. It is meant for checking a
// catalog entry or a local copy of the source files without running the server.
//
// Usage:
//
//	go run ./cmd/inspect -dataset county -mode options
//	go run ./cmd/inspect -dataset county -entity Bernalillo -dimension "CO 8-hr (ppm)" -from 2005
//	go run ./cmd/inspect -dataset epa-grants -mode breakdown -by entity \
//	  -source data/epa-grants.csv
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/aq-dashboard-service/internal/adapter/source"
	"github.com/couchcryptid/aq-dashboard-service/internal/catalog"
	"github.com/couchcryptid/aq-dashboard-service/internal/domain"
	"github.com/couchcryptid/aq-dashboard-service/internal/observability"
	"github.com/couchcryptid/aq-dashboard-service/internal/pipeline"
)

// sourceList collects repeated -source flags.
type sourceList []string

func (s *sourceList) String() string { return strings.Join(*s, ",") }

func (s *sourceList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type options struct {
	dataset   string
	catalog   string
	sources   sourceList
	mode      string
	entity    string
	dimension string
	from, to  int
	by        string
	at        string
	timeout   time.Duration
	verbose   bool
}

func main() {
	var o options
	flag.StringVar(&o.dataset, "dataset", "", "dataset name from the catalog")
	flag.StringVar(&o.catalog, "catalog", "", "catalog YAML path (default: built-in catalog)")
	flag.Var(&o.sources, "source", "override source location; repeat in year order")
	flag.StringVar(&o.mode, "mode", "series", "options, series, trends, total, or breakdown")
	flag.StringVar(&o.entity, "entity", "", "entity key")
	flag.StringVar(&o.dimension, "dimension", "", "dimension (pollutant, program, or metric)")
	flag.IntVar(&o.from, "from", 0, "first year, inclusive")
	flag.IntVar(&o.to, "to", 0, "last year, inclusive")
	flag.StringVar(&o.by, "by", "entity", "breakdown grouping: entity, dimension, year, or a column name")
	flag.StringVar(&o.at, "at", "", "fixed load time (RFC3339) for reproducible output")
	flag.DurationVar(&o.timeout, "timeout", 30*time.Second, "per-source fetch timeout")
	flag.BoolVar(&o.verbose, "v", false, "log pipeline progress to stderr")
	flag.Parse()

	if o.dataset == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(context.Background(), o, os.Stdout, os.Stderr))
}

func run(ctx context.Context, o options, stdout, stderr io.Writer) int {
	if o.at != "" {
		at, err := time.Parse(time.RFC3339, o.at)
		if err != nil {
			fmt.Fprintf(stderr, "invalid -at: %v\n", err)
			return 1
		}
		domain.SetClock(clockwork.NewFakeClockAt(at))
		defer domain.SetClock(nil)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if o.verbose {
		logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	cat, err := catalog.Load(o.catalog)
	if err != nil {
		fmt.Fprintf(stderr, "load catalog: %v\n", err)
		return 1
	}
	if len(o.sources) > 0 {
		if cat, err = cat.WithSources(o.dataset, o.sources); err != nil {
			fmt.Fprintf(stderr, "override sources: %v\n", err)
			return 1
		}
	}

	metrics := observability.NewMetricsForTesting()
	loader := pipeline.NewLoader(source.NewClient(o.timeout, 1, logger, metrics), 4, logger, metrics)
	svc := pipeline.NewService(cat, pipeline.NewTableCache(loader, 1, nil, logger, metrics), false, logger, metrics)

	req := domain.SeriesRequest{
		Entity:    domain.NormalizeKey(o.entity),
		Dimension: domain.NormalizeKey(o.dimension),
		Years:     domain.YearRange{Min: o.from, Max: o.to},
	}

	var out any
	switch o.mode {
	case "options":
		out, err = svc.Options(ctx, o.dataset)
	case "series":
		out, err = svc.Series(ctx, o.dataset, req)
	case "trends":
		out, err = svc.Trends(ctx, o.dataset, req.Entity, req.Years)
	case "total":
		out, err = svc.Total(ctx, o.dataset, req)
	case "breakdown":
		out, err = svc.Breakdown(ctx, o.dataset, req, o.by)
	default:
		fmt.Fprintf(stderr, "unknown -mode %q\n", o.mode)
		return 1
	}

	var insufficient *domain.InsufficientDataError
	if errors.As(err, &insufficient) {
		fmt.Fprintln(stderr, insufficient.Message())
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", o.mode, err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "encode: %v\n", err)
		return 1
	}
	return 0
}
