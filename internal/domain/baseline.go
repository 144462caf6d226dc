package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Level classifies an observation against a Baseline.
type Level string

const (
	LevelSafe      Level = "safe"
	LevelNormal    Level = "normal"
	LevelDangerous Level = "dangerous"
)

// Baseline holds the reference levels of one dimension. Values at or below
// Safe are safe, values above Dangerous are dangerous, and everything in
// between is normal.
type Baseline struct {
	Dimension string  `json:"dimension" yaml:"dimension"`
	Unit      string  `json:"unit,omitempty" yaml:"unit"`
	Safe      float64 `json:"safe" yaml:"safe"`
	Dangerous float64 `json:"dangerous" yaml:"dangerous"`
}

// Classify places v on the baseline scale.
func (b Baseline) Classify(v float64) Level {
	switch {
	case v <= b.Safe:
		return LevelSafe
	case v > b.Dangerous:
		return LevelDangerous
	default:
		return LevelNormal
	}
}

func (b Baseline) validate() error {
	if NormalizeKey(b.Dimension) == "" {
		return errors.New("baseline dimension is required")
	}
	if b.Safe < 0 || b.Dangerous <= b.Safe {
		return fmt.Errorf("baseline %q: need 0 <= safe < dangerous, got %g and %g", b.Dimension, b.Safe, b.Dangerous)
	}
	return nil
}

// BaselineFor returns the baseline declared for dimension. A baseline names
// either the whole dimension key or its leading part, so "CO" covers
// "CO - 2nd Max" in a table whose dimension joins several columns.
func (s DatasetSpec) BaselineFor(dimension string) (Baseline, bool) {
	dimension = NormalizeKey(dimension)
	for _, b := range s.Baselines {
		key := NormalizeKey(b.Dimension)
		if dimension == key || strings.HasPrefix(dimension, key+dimensionSeparator) {
			return b, true
		}
	}
	return Baseline{}, false
}
