package domain

import (
	"errors"
	"strconv"
	"strings"
)

// RawAmount is a currency cell as written in the source, e.g. "$1,234.00".
type RawAmount string

// Scale is the declared unit of a currency column: 1000 for "values are
// stored in thousands".
type Scale float64

// Amount is a parsed and scaled currency value. The only constructor is
// ParseAmount, so a scale factor cannot be applied to an Amount twice.
type Amount struct {
	value float64
}

// Float64 returns the amount in dollars.
func (a Amount) Float64() float64 { return a.value }

var errEmptyAmount = errors.New("empty amount")

// ParseAmount strips currency symbols, thousands separators and whitespace,
// then multiplies by scale. Accounting negatives "(1,234)" are accepted.
// A non-positive scale is treated as 1.
func ParseAmount(raw RawAmount, scale Scale) (Amount, error) {
	s := strings.TrimSpace(string(raw))
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ', '\u00a0':
			return -1
		}
		return r
	}, s)
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	if s == "" {
		return Amount{}, errEmptyAmount
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Amount{}, err
	}
	if negative {
		v = -v
	}
	if scale <= 0 {
		scale = 1
	}
	return Amount{value: v * float64(scale)}, nil
}
