package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Layout describes how observations are laid out in a source table.
type Layout string

const (
	// LayoutMeasureColumns has one row per entity and one column per dimension
	// (county: one column per pollutant).
	LayoutMeasureColumns Layout = "measure_columns"
	// LayoutYearColumns has one row per entity/dimension pair and one column
	// per year (city, workforce).
	LayoutYearColumns Layout = "year_columns"
	// LayoutRows has one observation per row (grants).
	LayoutRows Layout = "rows"
)

// YearSource names where a record's year comes from.
type YearSource string

const (
	YearFromColumn   YearSource = "column"    // an explicit column such as "Fiscal Year"
	YearFromSource   YearSource = "source"    // the per-source constant SourceDescriptor.Year
	YearFromSourceID YearSource = "source_id" // the last four-digit run in the source identifier
	YearFromHeader   YearSource = "header"    // year-named columns of a wide table
)

// YearRule is the single year derivation rule of a dataset.
type YearRule struct {
	From   YearSource `json:"from"`
	Column string     `json:"column,omitempty"`
}

// FillPolicy decides what a series does with years that have no observation.
type FillPolicy string

const (
	FillOmitMissing FillPolicy = "omit_missing"
	FillZero        FillPolicy = "zero_fill"
)

// Aggregate combines several observations that land on the same year of a series.
type Aggregate string

const (
	AggregateMean Aggregate = "mean"
	AggregateSum  Aggregate = "sum"
)

// DefaultMinSamples is the minimum number of yearly observations for a trend line.
const DefaultMinSamples = 3

// SeriesPolicy is the dataset's explicit series-building policy.
type SeriesPolicy struct {
	Fill       FillPolicy `json:"fill"`
	MinSamples int        `json:"min_samples"`
	Aggregate  Aggregate  `json:"aggregate"`
}

// CurrencyRule marks a dataset's value cells as currency strings stored in
// units of Scale dollars.
type CurrencyRule struct {
	Scale Scale `json:"scale"`
}

// DatasetSpec fixes every cleaning and selection rule of one dataset.
type DatasetSpec struct {
	Name  string `json:"name"`
	Title string `json:"title"`

	Layout Layout `json:"layout"`
	// Columns are the expected columns after header trimming. For year_columns
	// these are the id columns; every other column must be a year.
	Columns []string `json:"columns"`

	Entity          string   `json:"entity"`
	EntityLabel     string   `json:"entity_label,omitempty"`
	EntityDelimiter string   `json:"entity_delimiter,omitempty"`
	Dimensions      []string `json:"dimensions,omitempty"`
	// Measures restricts the measure columns of a measure_columns table. Empty
	// means every column not listed in Columns.
	Measures []string      `json:"measures,omitempty"`
	Value    string        `json:"value,omitempty"`
	Currency *CurrencyRule `json:"currency,omitempty"`

	Year  YearRule  `json:"year"`
	Years YearRange `json:"years"`

	FillDown      []string `json:"fill_down,omitempty"`
	Required      []string `json:"required,omitempty"`
	MissingTokens []string `json:"missing_tokens,omitempty"`

	Series SeriesPolicy `json:"series"`
	// Baselines are optional reference levels per dimension.
	Baselines []Baseline `json:"baselines,omitempty"`
}

// SourceDescriptor identifies one CSV source of a dataset.
type SourceDescriptor struct {
	ID       string `json:"id" yaml:"id"`
	Location string `json:"location" yaml:"location"`
	// Year is the per-source constant used by YearFromSource; 0 when unused.
	Year int `json:"year,omitempty" yaml:"year"`
}

var defaultMissingTokens = []string{".", ""}

// MissingTokenSet returns the placeholder tokens treated as missing.
func (s DatasetSpec) MissingTokenSet() []string {
	if len(s.MissingTokens) == 0 {
		return defaultMissingTokens
	}
	return s.MissingTokens
}

// MinSamples returns the effective minimum sample count.
func (s DatasetSpec) MinSamples() int {
	if s.Series.MinSamples <= 0 {
		return DefaultMinSamples
	}
	return s.Series.MinSamples
}

// Fingerprint is a stable hash of every dataset rule. A changed rule yields
// a different fingerprint, which invalidates cached tables.
func (s DatasetSpec) Fingerprint() string {
	b, err := json.Marshal(s)
	if err != nil {
		// DatasetSpec contains only marshalable fields.
		panic(fmt.Sprintf("marshal dataset spec: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// Validate checks that the dataset rules are internally consistent.
func (s DatasetSpec) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if s.Name == "" {
		fail("name is required")
	}
	if s.Entity == "" {
		fail("entity column is required")
	} else if !slices.Contains(s.Columns, s.Entity) {
		fail("entity %q is not a declared column", s.Entity)
	}
	if s.EntityLabel != "" && !slices.Contains(s.Columns, s.EntityLabel) {
		fail("entity_label %q is not a declared column", s.EntityLabel)
	}
	for _, c := range s.Dimensions {
		if !slices.Contains(s.Columns, c) {
			fail("dimension %q is not a declared column", c)
		}
	}
	for _, c := range s.FillDown {
		if !slices.Contains(s.Columns, c) {
			fail("fill_down %q is not a declared column", c)
		}
	}
	for _, c := range s.Required {
		if !slices.Contains(s.Columns, c) {
			fail("required %q is not a declared column", c)
		}
	}

	switch s.Layout {
	case LayoutMeasureColumns:
		if len(s.Dimensions) > 0 {
			fail("measure_columns layout takes its dimension from the measure column names")
		}
	case LayoutYearColumns:
		if s.Year.From != YearFromHeader {
			fail("year_columns layout requires year rule %q", YearFromHeader)
		}
		if len(s.Dimensions) == 0 {
			fail("year_columns layout requires dimension columns")
		}
	case LayoutRows:
		if s.Value == "" {
			fail("rows layout requires a value column")
		} else if !slices.Contains(s.Columns, s.Value) {
			fail("value %q is not a declared column", s.Value)
		}
		if len(s.Dimensions) == 0 {
			fail("rows layout requires dimension columns")
		}
	default:
		fail("unknown layout %q", s.Layout)
	}

	switch s.Year.From {
	case YearFromColumn:
		if !slices.Contains(s.Columns, s.Year.Column) {
			fail("year column %q is not a declared column", s.Year.Column)
		}
	case YearFromHeader:
		if s.Layout != LayoutYearColumns {
			fail("year rule %q requires year_columns layout", YearFromHeader)
		}
	case YearFromSource, YearFromSourceID:
	default:
		fail("unknown year rule %q", s.Year.From)
	}

	if s.Years.Min <= 0 || s.Years.Max < s.Years.Min {
		fail("years must be a closed range, got [%d, %d]", s.Years.Min, s.Years.Max)
	}
	if s.Currency != nil && s.Currency.Scale <= 0 {
		fail("currency scale must be positive")
	}
	switch s.Series.Fill {
	case FillOmitMissing, FillZero:
	default:
		fail("unknown series fill policy %q", s.Series.Fill)
	}
	switch s.Series.Aggregate {
	case "", AggregateMean, AggregateSum:
	default:
		fail("unknown series aggregate %q", s.Series.Aggregate)
	}

	for _, b := range s.Baselines {
		if err := b.validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("dataset %q: %w", s.Name, err)
	}
	return nil
}
