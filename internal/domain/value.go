package domain

import (
	"encoding/json"
	"math"
)

// Value is a numeric observation that may be missing. The zero Value is missing.
type Value struct {
	v     float64
	valid bool
}

// Some returns a present Value. NaN and infinities are not valid observations
// and yield a missing Value.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{v: v, valid: true}
}

// Missing returns a missing Value.
func Missing() Value { return Value{} }

// Get returns the number and whether it is present.
func (x Value) Get() (float64, bool) { return x.v, x.valid }

// IsMissing reports whether the observation is absent.
func (x Value) IsMissing() bool { return !x.valid }

// MarshalJSON encodes a missing Value as null.
func (x Value) MarshalJSON() ([]byte, error) {
	if !x.valid {
		return []byte("null"), nil
	}
	return json.Marshal(x.v)
}

// UnmarshalJSON decodes null as a missing Value.
func (x *Value) UnmarshalJSON(b []byte) error {
	var f *float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	if f == nil {
		*x = Value{}
		return nil
	}
	*x = Some(*f)
	return nil
}
