// Package catalog declares the datasets the service can load: their cleaning
// and selection rules and the CSV sources behind them.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/aq-dashboard-service/internal/domain"
)

//go:embed datasets.yaml
var defaultCatalog []byte

// yearPlaceholder is replaced by each year of a source_template.
const yearPlaceholder = "{year}"

// Dataset is one catalog entry: its rules and its ordered sources.
type Dataset struct {
	Spec    domain.DatasetSpec
	Sources []domain.SourceDescriptor
}

// Catalog is an immutable, name-indexed set of datasets.
type Catalog struct {
	order    []string
	datasets map[string]Dataset
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

type file struct {
	Datasets []datasetDoc `yaml:"datasets"`
}

type datasetDoc struct {
	Name            string   `yaml:"name"`
	Title           string   `yaml:"title"`
	Layout          string   `yaml:"layout"`
	Columns         []string `yaml:"columns"`
	Entity          string   `yaml:"entity"`
	EntityLabel     string   `yaml:"entity_label"`
	EntityDelimiter string   `yaml:"entity_delimiter"`
	Dimensions      []string `yaml:"dimensions"`
	Measures        []string `yaml:"measures"`
	Value           string   `yaml:"value"`
	Currency        *struct {
		Scale float64 `yaml:"scale"`
	} `yaml:"currency"`
	Year struct {
		From   string `yaml:"from"`
		Column string `yaml:"column"`
	} `yaml:"year"`
	Years         []int    `yaml:"years"`
	FillDown      []string `yaml:"fill_down"`
	Required      []string `yaml:"required"`
	MissingTokens []string `yaml:"missing_tokens"`
	Series        struct {
		Fill       string `yaml:"fill"`
		MinSamples int    `yaml:"min_samples"`
		Aggregate  string `yaml:"aggregate"`
	} `yaml:"series"`
	Baselines []domain.Baseline `yaml:"baselines"`

	Sources        []domain.SourceDescriptor `yaml:"sources"`
	SourceTemplate string                    `yaml:"source_template"`
	SourceID       string                    `yaml:"source_id"`
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Datasets) == 0 {
		return nil, errors.New("catalog declares no datasets")
	}

	c := &Catalog{datasets: make(map[string]Dataset, len(f.Datasets))}
	var errs []error
	for _, doc := range f.Datasets {
		ds, err := doc.dataset()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.datasets[ds.Spec.Name]; dup {
			errs = append(errs, fmt.Errorf("dataset %q declared twice", ds.Spec.Name))
			continue
		}
		c.datasets[ds.Spec.Name] = ds
		c.order = append(c.order, ds.Spec.Name)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

func (d datasetDoc) dataset() (Dataset, error) {
	spec := domain.DatasetSpec{
		Name:            d.Name,
		Title:           d.Title,
		Layout:          domain.Layout(d.Layout),
		Columns:         d.Columns,
		Entity:          d.Entity,
		EntityLabel:     d.EntityLabel,
		EntityDelimiter: d.EntityDelimiter,
		Dimensions:      d.Dimensions,
		Measures:        d.Measures,
		Value:           d.Value,
		Year:            domain.YearRule{From: domain.YearSource(d.Year.From), Column: d.Year.Column},
		FillDown:        d.FillDown,
		Required:        d.Required,
		MissingTokens:   d.MissingTokens,
		Series: domain.SeriesPolicy{
			Fill:       domain.FillPolicy(d.Series.Fill),
			MinSamples: d.Series.MinSamples,
			Aggregate:  domain.Aggregate(d.Series.Aggregate),
		},
		Baselines: d.Baselines,
	}
	if spec.Series.Fill == "" {
		spec.Series.Fill = domain.FillOmitMissing
	}
	if d.Currency != nil {
		spec.Currency = &domain.CurrencyRule{Scale: domain.Scale(d.Currency.Scale)}
	}
	if len(d.Years) != 2 {
		return Dataset{}, fmt.Errorf("dataset %q: years must be [min, max]", d.Name)
	}
	spec.Years = domain.YearRange{Min: d.Years[0], Max: d.Years[1]}

	if err := spec.Validate(); err != nil {
		return Dataset{}, err
	}

	sources, err := d.sources(spec.Years)
	if err != nil {
		return Dataset{}, fmt.Errorf("dataset %q: %w", d.Name, err)
	}
	return Dataset{Spec: spec, Sources: sources}, nil
}

// sources returns the explicit list, or one source per year of the template.
func (d datasetDoc) sources(years domain.YearRange) ([]domain.SourceDescriptor, error) {
	switch {
	case len(d.Sources) > 0 && d.SourceTemplate != "":
		return nil, errors.New("sources and source_template are mutually exclusive")
	case len(d.Sources) > 0:
		seen := make(map[string]bool, len(d.Sources))
		for _, s := range d.Sources {
			if s.ID == "" || s.Location == "" {
				return nil, errors.New("every source needs an id and a location")
			}
			if seen[s.ID] {
				return nil, fmt.Errorf("source %q declared twice", s.ID)
			}
			seen[s.ID] = true
		}
		return d.Sources, nil
	case d.SourceTemplate != "":
		if !strings.Contains(d.SourceTemplate, yearPlaceholder) {
			return nil, fmt.Errorf("source_template must contain %s", yearPlaceholder)
		}
		prefix := d.SourceID
		if prefix == "" {
			prefix = d.Name
		}
		out := make([]domain.SourceDescriptor, 0, years.Max-years.Min+1)
		for y := years.Min; y <= years.Max; y++ {
			year := strconv.Itoa(y)
			out = append(out, domain.SourceDescriptor{
				ID:       prefix + "-" + year,
				Location: strings.ReplaceAll(d.SourceTemplate, yearPlaceholder, year),
				Year:     y,
			})
		}
		return out, nil
	}
	return nil, errors.New("no sources declared")
}

// Get returns the named dataset.
func (c *Catalog) Get(name string) (Dataset, bool) {
	ds, ok := c.datasets[name]
	return ds, ok
}

// Names returns dataset names in declaration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Datasets returns every dataset in declaration order.
func (c *Catalog) Datasets() []Dataset {
	out := make([]Dataset, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.datasets[name])
	}
	return out
}

// WithSources returns a copy of the catalog where the named dataset reads from
// the given locations instead, e.g. local copies of the remote files. Source
// ids and years are kept when the count matches, so year derivation is unchanged.
func (c *Catalog) WithSources(name string, locations []string) (*Catalog, error) {
	ds, ok := c.datasets[name]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q", name)
	}
	sources := make([]domain.SourceDescriptor, len(locations))
	for i, loc := range locations {
		if len(locations) == len(ds.Sources) {
			sources[i] = ds.Sources[i]
			sources[i].Location = loc
			continue
		}
		sources[i] = domain.SourceDescriptor{ID: loc, Location: loc}
	}
	out := &Catalog{order: c.order, datasets: maps.Clone(c.datasets)}
	out.datasets[name] = Dataset{Spec: ds.Spec, Sources: sources}
	return out, nil
}
