package domain

import (
	"strings"
	"time"
)

// RawTable is one source file as fetched: a header row and string cells.
// It is owned by the loader for a single normalization pass.
type RawTable struct {
	SourceID string
	Header   []string
	Rows     [][]string
}

// NormalizedRecord is one cleaned observation.
type NormalizedRecord struct {
	Entity    string `json:"entity"`
	Dimension string `json:"dimension"`
	// Year is always derived by the dataset's rule; a row whose year cannot be
	// derived fails the load instead of producing a record.
	Year     int               `json:"year"`
	Value    Value             `json:"value"`
	SourceID string            `json:"source_id"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// NormalizedTable is the union of all sources of a dataset. It is immutable
// once built; a changed source set produces a new table.
type NormalizedTable struct {
	Spec     DatasetSpec
	Columns  []string
	Sources  []string
	Records  []NormalizedRecord
	LoadedAt time.Time
}

// YearRange is an inclusive year interval. A zero bound is open.
type YearRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether y falls inside the range.
func (r YearRange) Contains(y int) bool {
	if r.Min != 0 && y < r.Min {
		return false
	}
	if r.Max != 0 && y > r.Max {
		return false
	}
	return true
}

// Within clamps open bounds of r to outer.
func (r YearRange) Within(outer YearRange) YearRange {
	out := r
	if out.Min == 0 || out.Min < outer.Min {
		out.Min = outer.Min
	}
	if out.Max == 0 || out.Max > outer.Max {
		out.Max = outer.Max
	}
	return out
}

// SeriesRequest is one user selection. It is built fresh per interaction.
type SeriesRequest struct {
	Entity    string    `json:"entity"`
	Dimension string    `json:"dimension"`
	Years     YearRange `json:"years"`
}

// Point is one (year, value) pair of a series.
type Point struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// PlotSeries is sorted ascending by year. Baseline and Level are set when the
// dataset declares reference levels for the dimension; Level classifies the
// most recent point.
type PlotSeries struct {
	Entity    string    `json:"entity"`
	Dimension string    `json:"dimension"`
	Points    []Point   `json:"points"`
	Baseline  *Baseline `json:"baseline,omitempty"`
	Level     Level     `json:"level,omitempty"`
}

// ScalarSummary is a total over already-cleaned values.
type ScalarSummary struct {
	Total     float64 `json:"total"`
	Count     int     `json:"count"`
	Formatted string  `json:"formatted"`
}

// NormalizeKey trims and collapses internal whitespace so that entity keys
// compare equal regardless of source formatting.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
