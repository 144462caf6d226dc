package domain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. The typed errors below match them and carry the
// source and column context needed to diagnose the failure.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSchemaMismatch    = errors.New("schema mismatch")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrMalformedNumeric  = errors.New("malformed numeric")
)

// SourceUnavailableError reports a source that could not be fetched. It aborts
// the whole load; a dataset is never built with a year silently missing.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %q unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Is(target error) bool { return target == ErrSourceUnavailable }

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// SchemaMismatchError reports missing, unexpected, or inconsistent columns, or
// a year that cannot be derived under the dataset's rule.
type SchemaMismatchError struct {
	Source string
	Column string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("schema mismatch in %q: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("schema mismatch in %q column %q: %s", e.Source, e.Column, e.Reason)
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

// InsufficientDataError is returned instead of a sparse trend line. It is not
// fatal; callers show Message to the user.
type InsufficientDataError struct {
	Dataset      string
	Entity       string
	Dimension    string
	Observations int
	Required     int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s/%s/%s: %d observations, need %d",
		e.Dataset, e.Entity, e.Dimension, e.Observations, e.Required)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// Message is the user-facing explanation.
func (e *InsufficientDataError) Message() string {
	return fmt.Sprintf("No data available for %s in %s.", e.Dimension, e.Entity)
}

// MalformedNumericError describes a value cell that did not parse. The cell is
// treated as missing; the error is collected for logging, never returned from a load.
type MalformedNumericError struct {
	Source string
	Column string
	Row    int
	Raw    string
	Err    error
}

func (e *MalformedNumericError) Error() string {
	return fmt.Sprintf("malformed numeric in %q column %q row %d: %q", e.Source, e.Column, e.Row, e.Raw)
}

func (e *MalformedNumericError) Is(target error) bool { return target == ErrMalformedNumeric }

func (e *MalformedNumericError) Unwrap() error { return e.Err }
