package domain

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Cell is a raw text cell. Valid is false once the cell has been marked missing.
type Cell struct {
	Text  string
	Valid bool
}

// Column is one column of a Frame. A column starts as text; converting it to
// numbers replaces Text with Numbers, and a numeric column is never converted
// again. That is what makes the cleaning steps idempotent.
type Column struct {
	Name    string
	Text    []Cell
	Numbers []Value
}

// IsNumeric reports whether the column has been converted.
func (c *Column) IsNumeric() bool { return c.Numbers != nil }

// Frame is the column-oriented working copy of one RawTable while it is being
// normalized. It never spans more than one source.
type Frame struct {
	Source  SourceDescriptor
	Columns []*Column
	rows    int
}

// NewFrame copies a RawTable into a Frame. Short rows are padded with missing
// cells; a row longer than the header is a schema mismatch.
func NewFrame(raw RawTable, src SourceDescriptor) (*Frame, error) {
	f := &Frame{Source: src, rows: len(raw.Rows)}
	f.Columns = make([]*Column, len(raw.Header))
	for i, name := range raw.Header {
		f.Columns[i] = &Column{Name: name, Text: make([]Cell, len(raw.Rows))}
	}
	for r, row := range raw.Rows {
		if len(row) > len(raw.Header) {
			return nil, &SchemaMismatchError{
				Source: src.ID,
				Reason: fmt.Sprintf("row %d has %d cells, header has %d", r+1, len(row), len(raw.Header)),
			}
		}
		for i, text := range row {
			f.Columns[i].Text[r] = Cell{Text: text, Valid: true}
		}
	}
	return f, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.rows }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column or nil.
func (f *Frame) Column(name string) *Column {
	for _, c := range f.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (f *Frame) mustColumn(name string) (*Column, error) {
	c := f.Column(name)
	if c == nil {
		return nil, &SchemaMismatchError{Source: f.Source.ID, Column: name, Reason: "column not found"}
	}
	return c, nil
}

// TrimHeaders strips stray whitespace from every column name.
func TrimHeaders(f *Frame) {
	for _, c := range f.Columns {
		c.Name = strings.TrimSpace(strings.TrimPrefix(c.Name, "\ufeff"))
	}
}

// MarkMissing trims text cells and marks placeholder tokens as missing.
func MarkMissing(f *Frame, tokens []string) {
	for _, c := range f.Columns {
		if c.IsNumeric() {
			continue
		}
		for i := range c.Text {
			cell := &c.Text[i]
			if !cell.Valid {
				continue
			}
			cell.Text = strings.TrimSpace(cell.Text)
			if slices.Contains(tokens, cell.Text) {
				*cell = Cell{}
			}
		}
	}
}

// FillDown propagates the last present value of each named column into the
// missing cells below it. It only sees this frame's rows, so a fill never
// crosses a source boundary.
func FillDown(f *Frame, names []string) error {
	for _, name := range names {
		c, err := f.mustColumn(name)
		if err != nil {
			return err
		}
		if c.IsNumeric() {
			continue
		}
		var last Cell
		for i := range c.Text {
			if c.Text[i].Valid {
				last = c.Text[i]
				continue
			}
			c.Text[i] = last
		}
	}
	return nil
}

// DropIncomplete removes rows where any of the named text columns is missing.
func DropIncomplete(f *Frame, names []string) error {
	if len(names) == 0 {
		return nil
	}
	required := make([]*Column, 0, len(names))
	for _, name := range names {
		c, err := f.mustColumn(name)
		if err != nil {
			return err
		}
		if !c.IsNumeric() {
			required = append(required, c)
		}
	}

	keep := make([]int, 0, f.rows)
	for i := 0; i < f.rows; i++ {
		complete := true
		for _, c := range required {
			if !c.Text[i].Valid {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}
	if len(keep) == f.rows {
		return nil
	}

	for _, c := range f.Columns {
		if c.IsNumeric() {
			nums := make([]Value, len(keep))
			for j, i := range keep {
				nums[j] = c.Numbers[i]
			}
			c.Numbers = nums
			continue
		}
		text := make([]Cell, len(keep))
		for j, i := range keep {
			text[j] = c.Text[i]
		}
		c.Text = text
	}
	f.rows = len(keep)
	return nil
}

// ConvertCurrency parses the named text columns as currency scaled by scale.
// Columns that are already numeric are left alone, so the scale is applied once.
// Unparseable cells become missing and are returned as MalformedNumericErrors.
func ConvertCurrency(f *Frame, names []string, scale Scale) ([]*MalformedNumericError, error) {
	return convert(f, names, func(s string) (float64, error) {
		a, err := ParseAmount(RawAmount(s), scale)
		return a.Float64(), err
	})
}

// ConvertNumeric parses the named text columns as plain numbers. Non-numeric
// cells become missing, never zero.
func ConvertNumeric(f *Frame, names []string) ([]*MalformedNumericError, error) {
	return convert(f, names, func(s string) (float64, error) {
		return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	})
}

var errNotFinite = errors.New("not a finite number")

func convert(f *Frame, names []string, parse func(string) (float64, error)) ([]*MalformedNumericError, error) {
	var malformed []*MalformedNumericError
	for _, name := range names {
		c, err := f.mustColumn(name)
		if err != nil {
			return nil, err
		}
		if c.IsNumeric() {
			continue
		}
		nums := make([]Value, len(c.Text))
		for i, cell := range c.Text {
			if !cell.Valid {
				continue
			}
			v, err := parse(cell.Text)
			if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
				err = errNotFinite
			}
			if err != nil {
				malformed = append(malformed, &MalformedNumericError{
					Source: f.Source.ID,
					Column: c.Name,
					Row:    i + 1,
					Raw:    cell.Text,
					Err:    err,
				})
				continue
			}
			nums[i] = Some(v)
		}
		c.Numbers = nums
		c.Text = nil
	}
	return malformed, nil
}
