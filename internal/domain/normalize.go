package domain

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// yearRe finds four-digit runs; the last one in a source identifier is its year.
var yearRe = regexp.MustCompile(`\d{4}`)

// Part is the normalized output of one source.
type Part struct {
	SourceID  string
	Columns   []string
	Records   []NormalizedRecord
	Malformed []*MalformedNumericError
}

// Normalize applies the dataset's cleaning rules to one raw table:
// header trimming, placeholder-to-missing, fill-down, dropping incomplete rows,
// numeric/currency conversion, year derivation and reshaping into records.
func Normalize(spec DatasetSpec, src SourceDescriptor, raw RawTable) (Part, error) {
	f, err := NewFrame(raw, src)
	if err != nil {
		return Part{}, err
	}
	TrimHeaders(f)

	valueCols, headerYears, err := checkSchema(spec, f)
	if err != nil {
		return Part{}, err
	}

	MarkMissing(f, spec.MissingTokenSet())
	if err := FillDown(f, spec.FillDown); err != nil {
		return Part{}, err
	}
	if err := DropIncomplete(f, spec.Required); err != nil {
		return Part{}, err
	}

	var malformed []*MalformedNumericError
	if spec.Currency != nil {
		malformed, err = ConvertCurrency(f, valueCols, spec.Currency.Scale)
	} else {
		malformed, err = ConvertNumeric(f, valueCols)
	}
	if err != nil {
		return Part{}, err
	}

	n := &normalizer{spec: spec, frame: f, valueCols: valueCols, headerYears: headerYears}
	records, err := n.records()
	if err != nil {
		return Part{}, err
	}

	return Part{
		SourceID:  src.ID,
		Columns:   f.Names(),
		Records:   records,
		Malformed: malformed,
	}, nil
}

// checkSchema verifies the declared columns are present and returns the value
// columns of the frame. For year_columns tables it also maps each value column
// to its year.
func checkSchema(spec DatasetSpec, f *Frame) ([]string, map[string]int, error) {
	names := f.Names()
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, nil, &SchemaMismatchError{Source: f.Source.ID, Column: name, Reason: "duplicate column"}
		}
		seen[name] = true
	}
	for _, col := range spec.Columns {
		if !seen[col] {
			return nil, nil, &SchemaMismatchError{Source: f.Source.ID, Column: col, Reason: "expected column is missing"}
		}
	}

	switch spec.Layout {
	case LayoutRows:
		return []string{spec.Value}, nil, nil

	case LayoutMeasureColumns:
		if len(spec.Measures) > 0 {
			for _, m := range spec.Measures {
				if !seen[m] {
					return nil, nil, &SchemaMismatchError{Source: f.Source.ID, Column: m, Reason: "measure column is missing"}
				}
			}
			return spec.Measures, nil, nil
		}
		var measures []string
		for _, name := range names {
			if !slices.Contains(spec.Columns, name) {
				measures = append(measures, name)
			}
		}
		if len(measures) == 0 {
			return nil, nil, &SchemaMismatchError{Source: f.Source.ID, Reason: "no measure columns"}
		}
		return measures, nil, nil

	case LayoutYearColumns:
		years := make(map[string]int)
		var cols []string
		for _, name := range names {
			if slices.Contains(spec.Columns, name) {
				continue
			}
			y, err := strconv.Atoi(name)
			if err != nil {
				return nil, nil, &SchemaMismatchError{Source: f.Source.ID, Column: name, Reason: "unexpected column, want a year"}
			}
			if !spec.Years.Contains(y) {
				return nil, nil, &SchemaMismatchError{
					Source: f.Source.ID, Column: name,
					Reason: fmt.Sprintf("year outside [%d, %d]", spec.Years.Min, spec.Years.Max),
				}
			}
			years[name] = y
			cols = append(cols, name)
		}
		if len(cols) == 0 {
			return nil, nil, &SchemaMismatchError{Source: f.Source.ID, Reason: "no year columns"}
		}
		return cols, years, nil
	}
	return nil, nil, fmt.Errorf("unknown layout %q", spec.Layout)
}

type normalizer struct {
	spec        DatasetSpec
	frame       *Frame
	valueCols   []string
	headerYears map[string]int
	sourceYear  int
}

func (n *normalizer) records() ([]NormalizedRecord, error) {
	if n.spec.Year.From == YearFromSource || n.spec.Year.From == YearFromSourceID {
		y, err := n.yearOfSource()
		if err != nil {
			return nil, err
		}
		n.sourceYear = y
	}

	consumed := n.consumedColumns()
	out := make([]NormalizedRecord, 0, n.frame.Len()*len(n.valueCols))
	for row := 0; row < n.frame.Len(); row++ {
		entity := n.text(n.spec.Entity, row)
		if entity == "" {
			// Rows without an entity cannot be selected; they are not observations.
			continue
		}
		extra := n.extra(row, consumed)

		year := n.sourceYear
		if n.spec.Year.From == YearFromColumn {
			y, err := n.yearOfRow(row)
			if err != nil {
				return nil, err
			}
			year = y
		}

		switch n.spec.Layout {
		case LayoutMeasureColumns:
			for _, col := range n.valueCols {
				out = append(out, NormalizedRecord{
					Entity:    entity,
					Dimension: NormalizeKey(col),
					Year:      year,
					Value:     n.value(col, row),
					SourceID:  n.frame.Source.ID,
					Extra:     extra,
				})
			}

		case LayoutYearColumns:
			dimension := n.dimension(row)
			for _, col := range n.valueCols {
				out = append(out, NormalizedRecord{
					Entity:    entity,
					Dimension: dimension,
					Year:      n.headerYears[col],
					Value:     n.value(col, row),
					SourceID:  n.frame.Source.ID,
					Extra:     extra,
				})
			}

		case LayoutRows:
			out = append(out, NormalizedRecord{
				Entity:    entity,
				Dimension: n.dimension(row),
				Year:      year,
				Value:     n.value(n.spec.Value, row),
				SourceID:  n.frame.Source.ID,
				Extra:     extra,
			})
		}
	}
	return out, nil
}

func (n *normalizer) yearOfSource() (int, error) {
	src := n.frame.Source
	var y int
	switch n.spec.Year.From {
	case YearFromSource:
		if src.Year == 0 {
			return 0, &SchemaMismatchError{Source: src.ID, Reason: "dataset derives years from the source but the source has no year"}
		}
		y = src.Year
	case YearFromSourceID:
		matches := yearRe.FindAllString(src.ID, -1)
		if len(matches) == 0 {
			return 0, &SchemaMismatchError{Source: src.ID, Reason: "source identifier carries no year"}
		}
		y, _ = strconv.Atoi(matches[len(matches)-1])
	}
	if !n.spec.Years.Contains(y) {
		return 0, &SchemaMismatchError{
			Source: src.ID,
			Reason: fmt.Sprintf("source year %d outside [%d, %d]", y, n.spec.Years.Min, n.spec.Years.Max),
		}
	}
	return y, nil
}

func (n *normalizer) yearOfRow(row int) (int, error) {
	raw := n.text(n.spec.Year.Column, row)
	matches := yearRe.FindAllString(raw, -1)
	if len(matches) == 0 {
		return 0, &SchemaMismatchError{
			Source: n.frame.Source.ID, Column: n.spec.Year.Column,
			Reason: fmt.Sprintf("row %d: no year in %q", row+1, raw),
		}
	}
	y, _ := strconv.Atoi(matches[len(matches)-1])
	if !n.spec.Years.Contains(y) {
		return 0, &SchemaMismatchError{
			Source: n.frame.Source.ID, Column: n.spec.Year.Column,
			Reason: fmt.Sprintf("row %d: year %d outside [%d, %d]", row+1, y, n.spec.Years.Min, n.spec.Years.Max),
		}
	}
	return y, nil
}

// consumedColumns are the columns that become record fields rather than extras.
func (n *normalizer) consumedColumns() map[string]bool {
	consumed := map[string]bool{n.spec.Entity: true}
	for _, c := range n.spec.Dimensions {
		consumed[c] = true
	}
	for _, c := range n.valueCols {
		consumed[c] = true
	}
	if n.spec.Year.From == YearFromColumn {
		consumed[n.spec.Year.Column] = true
	}
	return consumed
}

func (n *normalizer) extra(row int, consumed map[string]bool) map[string]string {
	var extra map[string]string
	for _, c := range n.frame.Columns {
		if consumed[c.Name] || c.IsNumeric() || !c.Text[row].Valid {
			continue
		}
		if extra == nil {
			extra = make(map[string]string)
		}
		extra[c.Name] = c.Text[row].Text
	}
	return extra
}

func (n *normalizer) text(name string, row int) string {
	c := n.frame.Column(name)
	if c == nil || c.IsNumeric() || !c.Text[row].Valid {
		return ""
	}
	return NormalizeKey(c.Text[row].Text)
}

func (n *normalizer) value(name string, row int) Value {
	c := n.frame.Column(name)
	if c == nil || !c.IsNumeric() {
		return Missing()
	}
	return c.Numbers[row]
}

// dimensionSeparator joins several dimension columns into one key.
const dimensionSeparator = " - "

func (n *normalizer) dimension(row int) string {
	parts := make([]string, 0, len(n.spec.Dimensions))
	for _, c := range n.spec.Dimensions {
		if v := n.text(c, row); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, dimensionSeparator)
}

// Concat unions the parts of a dataset in source order. Every part must have
// the same column set; a mismatch fails rather than dropping rows.
func Concat(spec DatasetSpec, parts []Part) (*NormalizedTable, error) {
	t := &NormalizedTable{Spec: spec}
	if len(parts) == 0 {
		return t, nil
	}

	want := columnSet(parts[0].Columns)
	total := 0
	for _, p := range parts {
		total += len(p.Records)
	}
	t.Columns = slices.Clone(parts[0].Columns)
	t.Sources = make([]string, 0, len(parts))
	t.Records = make([]NormalizedRecord, 0, total)

	for _, p := range parts {
		got := columnSet(p.Columns)
		if !maps.Equal(want, got) {
			return nil, &SchemaMismatchError{
				Source: p.SourceID,
				Reason: fmt.Sprintf("column set %v differs from %q %v", p.Columns, parts[0].SourceID, parts[0].Columns),
			}
		}
		t.Sources = append(t.Sources, p.SourceID)
		t.Records = append(t.Records, p.Records...)
	}
	return t, nil
}

func columnSet(cols []string) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return set
}
