package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/couchcryptid/aq-dashboard-service/internal/domain"
)

// ReadCSV parses a CSV stream into a RawTable. The first record is the header.
// Rows may be shorter than the header; the normalizer decides what that means.
func ReadCSV(sourceID string, r io.Reader) (domain.RawTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.RawTable{}, &domain.SchemaMismatchError{Source: sourceID, Reason: "empty file"}
	}
	if err != nil {
		return domain.RawTable{}, parseError(sourceID, err)
	}

	raw := domain.RawTable{SourceID: sourceID, Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.RawTable{}, parseError(sourceID, err)
		}
		if isBlank(rec) {
			continue
		}
		raw.Rows = append(raw.Rows, rec)
	}
	return raw, nil
}

func parseError(sourceID string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &domain.SchemaMismatchError{Source: sourceID, Reason: fmt.Sprintf("csv line %d: %v", pe.Line, pe.Err)}
	}
	return err
}

// isBlank reports a record of only empty fields, as left by trailing commas.
func isBlank(rec []string) bool {
	for _, f := range rec {
		if f != "" {
			return false
		}
	}
	return true
}
