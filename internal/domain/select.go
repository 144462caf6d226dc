package domain

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrUnknownBreakdown is returned for a breakdown key the table cannot group by.
	ErrUnknownBreakdown = errors.New("unknown breakdown key")

	// ErrIncompleteRequest is returned when a series lacks an entity or dimension.
	ErrIncompleteRequest = errors.New("incomplete request")
)

// Breakdown keys accepted besides extra column names.
const (
	ByEntity    = "entity"
	ByDimension = "dimension"
	ByYear      = "year"
)

// MatchesEntity reports whether a record belongs to entity. Delimited entity
// fields match on whole tokens after splitting, never on substrings, so "IN"
// matches "IN, OH" but not "INDIA, OH".
func (t *NormalizedTable) MatchesEntity(rec NormalizedRecord, entity string) bool {
	key := NormalizeKey(entity)
	if t.Spec.EntityDelimiter == "" {
		return rec.Entity == key
	}
	return slices.Contains(t.entityTokens(rec.Entity), key)
}

func (t *NormalizedTable) entityTokens(field string) []string {
	if t.Spec.EntityDelimiter == "" {
		return []string{field}
	}
	parts := strings.Split(field, t.Spec.EntityDelimiter)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if k := NormalizeKey(p); k != "" {
			tokens = append(tokens, k)
		}
	}
	return tokens
}

func (t *NormalizedTable) matches(rec NormalizedRecord, req SeriesRequest) bool {
	if req.Entity != "" && !t.MatchesEntity(rec, req.Entity) {
		return false
	}
	if req.Dimension != "" && rec.Dimension != req.Dimension {
		return false
	}
	return req.Years.Contains(rec.Year)
}

// Series reduces the table to one trend line. Fewer than the dataset's
// minimum number of yearly observations yields an *InsufficientDataError.
// Years without an observation are omitted or zero-filled according to the
// dataset's fill policy.
func Series(t *NormalizedTable, req SeriesRequest) (PlotSeries, error) {
	switch {
	case NormalizeKey(req.Entity) == "":
		return PlotSeries{}, fmt.Errorf("%w: entity is required", ErrIncompleteRequest)
	case req.Dimension == "":
		return PlotSeries{}, fmt.Errorf("%w: dimension is required", ErrIncompleteRequest)
	}

	byYear := make(map[int][]float64)
	for _, rec := range t.Records {
		if !t.matches(rec, req) {
			continue
		}
		if v, ok := rec.Value.Get(); ok {
			byYear[rec.Year] = append(byYear[rec.Year], v)
		}
	}

	if need := t.Spec.MinSamples(); len(byYear) < need {
		return PlotSeries{}, &InsufficientDataError{
			Dataset:      t.Spec.Name,
			Entity:       req.Entity,
			Dimension:    req.Dimension,
			Observations: len(byYear),
			Required:     need,
		}
	}

	series := PlotSeries{Entity: NormalizeKey(req.Entity), Dimension: req.Dimension}
	switch t.Spec.Series.Fill {
	case FillZero:
		span := req.Years.Within(t.Spec.Years)
		series.Points = make([]Point, 0, span.Max-span.Min+1)
		for y := span.Min; y <= span.Max; y++ {
			series.Points = append(series.Points, Point{Year: y, Value: t.aggregate(byYear[y])})
		}
	default:
		years := make([]int, 0, len(byYear))
		for y := range byYear {
			years = append(years, y)
		}
		sort.Ints(years)
		series.Points = make([]Point, 0, len(years))
		for _, y := range years {
			series.Points = append(series.Points, Point{Year: y, Value: t.aggregate(byYear[y])})
		}
	}
	if b, ok := t.Spec.BaselineFor(req.Dimension); ok && len(series.Points) > 0 {
		series.Baseline = &b
		series.Level = b.Classify(series.Points[len(series.Points)-1].Value)
	}
	return series, nil
}

func (t *NormalizedTable) aggregate(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	if t.Spec.Series.Aggregate == AggregateSum {
		return sum
	}
	return sum / float64(len(vals))
}

// TrendSet is every dimension of one entity, as drawn by the city view.
type TrendSet struct {
	Entity string       `json:"entity"`
	Series []PlotSeries `json:"series"`
	// Insufficient lists dimensions that failed the minimum-sample policy.
	Insufficient []string `json:"insufficient,omitempty"`
}

// Trends builds a series per dimension of entity, sorted by dimension.
func Trends(t *NormalizedTable, entity string, years YearRange) (TrendSet, error) {
	set := TrendSet{Entity: NormalizeKey(entity)}
	if set.Entity == "" {
		return TrendSet{}, fmt.Errorf("%w: entity is required", ErrIncompleteRequest)
	}
	dims := make(map[string]bool)
	for _, rec := range t.Records {
		if t.MatchesEntity(rec, entity) {
			dims[rec.Dimension] = true
		}
	}
	names := make([]string, 0, len(dims))
	for d := range dims {
		names = append(names, d)
	}
	sort.Strings(names)

	for _, dim := range names {
		s, err := Series(t, SeriesRequest{Entity: entity, Dimension: dim, Years: years})
		if errors.Is(err, ErrInsufficientData) {
			set.Insufficient = append(set.Insufficient, dim)
			continue
		}
		if err != nil {
			return TrendSet{}, err
		}
		set.Series = append(set.Series, s)
	}
	return set, nil
}

// Total sums the already-cleaned values matching req. An empty Dimension or
// Entity matches every record.
func Total(t *NormalizedTable, req SeriesRequest) ScalarSummary {
	var sum ScalarSummary
	for _, rec := range t.Records {
		if !t.matches(rec, req) {
			continue
		}
		if v, ok := rec.Value.Get(); ok {
			sum.Total += v
			sum.Count++
		}
	}
	sum.Formatted = FormatCurrency(sum.Total)
	return sum
}

// Breakdown sums matching values per category for a bar chart. by is one of
// ByEntity, ByDimension, ByYear, or an extra column name. With a delimited
// entity field each token is credited with the record's full value.
func Breakdown(t *NormalizedTable, req SeriesRequest, by string) (map[string]float64, error) {
	if !t.canGroupBy(by) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBreakdown, by)
	}
	out := make(map[string]float64)
	for _, rec := range t.Records {
		if !t.matches(rec, req) {
			continue
		}
		v, ok := rec.Value.Get()
		if !ok {
			continue
		}
		switch by {
		case ByEntity:
			for _, tok := range t.entityTokens(rec.Entity) {
				out[tok] += v
			}
		case ByDimension:
			out[rec.Dimension] += v
		case ByYear:
			out[strconv.Itoa(rec.Year)] += v
		default:
			if k, ok := rec.Extra[by]; ok {
				out[k] += v
			}
		}
	}
	return out, nil
}

func (t *NormalizedTable) canGroupBy(by string) bool {
	switch by {
	case ByEntity, ByDimension, ByYear:
		return true
	}
	return by != "" && slices.Contains(t.Columns, by) && !t.isConsumed(by)
}

func (t *NormalizedTable) isConsumed(col string) bool {
	s := t.Spec
	if col == s.Entity || col == s.Value || (s.Year.From == YearFromColumn && col == s.Year.Column) {
		return true
	}
	return slices.Contains(s.Dimensions, col)
}

// EntityOption is one picker entry.
type EntityOption struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Options are the picker values derived from the table's contents.
type Options struct {
	Entities   []EntityOption `json:"entities"`
	Dimensions []string       `json:"dimensions"`
	Years      YearRange      `json:"years"`
}

// SelectionOptions derives picker values from the records. Entities keep
// first-seen order, as the dashboards listed them; delimited entity fields
// contribute each token.
func SelectionOptions(t *NormalizedTable) Options {
	var opts Options
	seenEntity := make(map[string]bool)
	seenDim := make(map[string]bool)
	for _, rec := range t.Records {
		for _, tok := range t.entityTokens(rec.Entity) {
			if seenEntity[tok] {
				continue
			}
			seenEntity[tok] = true
			opts.Entities = append(opts.Entities, EntityOption{Key: tok, Label: t.entityLabel(tok, rec)})
		}
		if !seenDim[rec.Dimension] {
			seenDim[rec.Dimension] = true
			opts.Dimensions = append(opts.Dimensions, rec.Dimension)
		}
		if opts.Years.Min == 0 || rec.Year < opts.Years.Min {
			opts.Years.Min = rec.Year
		}
		if rec.Year > opts.Years.Max {
			opts.Years.Max = rec.Year
		}
	}
	return opts
}

// entityLabel renders "10740 - Albuquerque, NM" when the dataset declares a
// label column.
func (t *NormalizedTable) entityLabel(key string, rec NormalizedRecord) string {
	if t.Spec.EntityLabel == "" || t.Spec.EntityDelimiter != "" {
		return key
	}
	if label := rec.Extra[t.Spec.EntityLabel]; label != "" {
		return key + " - " + label
	}
	return key
}
