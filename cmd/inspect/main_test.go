package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T) (catalogPath string, dir string) {
	t.Helper()
	dir = t.TempDir()
	files := map[string]string{
		"conreport2001.csv": "County Code,County,Pollutant_A,Pollutant_B\n35001,Metro,.,3.0\n",
		"conreport2002.csv": "County Code,County,Pollutant_A,Pollutant_B\n35001,Metro,.,2.0\n",
		"conreport2003.csv": "County Code,County,Pollutant_A,Pollutant_B\n35001,Metro,2.0,1.0\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}

	catalogPath = filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(fmt.Sprintf(`
datasets:
  - name: county
    layout: measure_columns
    columns: [County Code, County]
    entity: County
    year: {from: source}
    years: [2001, 2003]
    source_id: conreport
    source_template: "%s/conreport{year}.csv"
`, dir)), 0o600))
	return catalogPath, dir
}

func TestRun_Series(t *testing.T) {
	catalogPath, _ := writeFixture(t)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), options{
		dataset: "county", catalog: catalogPath, mode: "series",
		entity: "Metro", dimension: "Pollutant_B",
	}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.JSONEq(t, `{"entity":"Metro","dimension":"Pollutant_B","points":[
		{"year":2001,"value":3},{"year":2002,"value":2},{"year":2003,"value":1}]}`, stdout.String())
}

func TestRun_Insufficient(t *testing.T) {
	catalogPath, _ := writeFixture(t)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), options{
		dataset: "county", catalog: catalogPath, mode: "series",
		entity: "Metro", dimension: "Pollutant_A",
	}, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Empty(t, stdout.String())
	assert.Equal(t, "No data available for Pollutant_A in Metro.\n", stderr.String())
}

func TestRun_SeriesNeedsDimension(t *testing.T) {
	catalogPath, _ := writeFixture(t)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), options{
		dataset: "county", catalog: catalogPath, mode: "series", entity: "Metro",
	}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "dimension is required")
}

func TestRun_SourceOverride(t *testing.T) {
	catalogPath, dir := writeFixture(t)
	var stdout, stderr bytes.Buffer

	// Replace 2003 with a copy of 2001; ids and years stay in place.
	code := run(context.Background(), options{
		dataset: "county", catalog: catalogPath, mode: "total",
		entity: "Metro", dimension: "Pollutant_B",
		sources: sourceList{
			filepath.Join(dir, "conreport2001.csv"),
			filepath.Join(dir, "conreport2002.csv"),
			filepath.Join(dir, "conreport2001.csv"),
		},
	}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.JSONEq(t, `{"total":8,"count":3,"formatted":"$8.00"}`, stdout.String())
}

func TestRun_Errors(t *testing.T) {
	catalogPath, _ := writeFixture(t)
	tests := []struct {
		name string
		opts options
		want string
	}{
		{"unknown mode", options{dataset: "county", catalog: catalogPath, mode: "pie"}, "unknown -mode"},
		{"unknown dataset", options{dataset: "nope", catalog: catalogPath, mode: "options"}, "unknown dataset"},
		{"bad clock", options{dataset: "county", catalog: catalogPath, mode: "options", at: "yesterday"}, "invalid -at"},
		{"missing catalog", options{dataset: "county", catalog: "/does/not/exist.yaml", mode: "options"}, "load catalog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, 1, run(context.Background(), tt.opts, &stdout, &stderr))
			assert.Contains(t, stderr.String(), tt.want)
		})
	}
}
