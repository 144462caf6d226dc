package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/aq-dashboard-service/internal/adapter/http"
	"github.com/couchcryptid/aq-dashboard-service/internal/domain"
	"github.com/couchcryptid/aq-dashboard-service/internal/pipeline"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockDashboard struct {
	err       error
	lastName  string
	lastReq   domain.SeriesRequest
	lastBy    string
	refreshed []string
}

func (m *mockDashboard) Datasets() []pipeline.DatasetInfo {
	return []pipeline.DatasetInfo{{Name: "county", Title: "County concentrations", Sources: 24}}
}

func (m *mockDashboard) Options(_ context.Context, name string) (domain.Options, error) {
	m.lastName = name
	if m.err != nil {
		return domain.Options{}, m.err
	}
	return domain.Options{
		Entities:   []domain.EntityOption{{Key: "Metro", Label: "Metro"}},
		Dimensions: []string{"Pollutant_A"},
		Years:      domain.YearRange{Min: 2001, Max: 2002},
	}, nil
}

func (m *mockDashboard) Series(_ context.Context, name string, req domain.SeriesRequest) (domain.PlotSeries, error) {
	m.lastName, m.lastReq = name, req
	if m.err != nil {
		return domain.PlotSeries{}, m.err
	}
	return domain.PlotSeries{
		Entity:    req.Entity,
		Dimension: req.Dimension,
		Points:    []domain.Point{{Year: 2001, Value: 3}, {Year: 2002, Value: 2}},
	}, nil
}

func (m *mockDashboard) Trends(_ context.Context, name, entity string, years domain.YearRange) (domain.TrendSet, error) {
	m.lastName, m.lastReq = name, domain.SeriesRequest{Entity: entity, Years: years}
	if m.err != nil {
		return domain.TrendSet{}, m.err
	}
	return domain.TrendSet{Entity: entity, Insufficient: []string{"Pollutant_A"}}, nil
}

func (m *mockDashboard) Total(_ context.Context, name string, req domain.SeriesRequest) (domain.ScalarSummary, error) {
	m.lastName, m.lastReq = name, req
	if m.err != nil {
		return domain.ScalarSummary{}, m.err
	}
	return domain.ScalarSummary{Total: 1500, Count: 2, Formatted: "$1,500.00"}, nil
}

func (m *mockDashboard) Breakdown(_ context.Context, name string, req domain.SeriesRequest, by string) (map[string]float64, error) {
	m.lastName, m.lastReq, m.lastBy = name, req, by
	if m.err != nil {
		return nil, m.err
	}
	return map[string]float64{"WY": 2, "CO": 5}, nil
}

func (m *mockDashboard) Refresh(name string) error {
	if m.err != nil {
		return m.err
	}
	m.refreshed = append(m.refreshed, name)
	return nil
}

func newTestServer(readyErr error, dash *mockDashboard) *httpadapter.Server {
	return httpadapter.NewServer(":0", dash, &mockReadiness{err: readyErr}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, srv http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	var body map[string]any
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthzReturns200(t *testing.T) {
	rec, body := do(t, newTestServer(nil, &mockDashboard{}), http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec, body := do(t, newTestServer(nil, &mockDashboard{}), http.MethodGet, "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec, body := do(t, newTestServer(fmt.Errorf("datasets are still being preloaded"), &mockDashboard{}), http.MethodGet, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "datasets are still being preloaded", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec, _ := do(t, newTestServer(nil, &mockDashboard{}), http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestDatasetsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(nil, &mockDashboard{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/datasets", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{"name":"county","title":"County concentrations","layout":"","entity":"",
		"years":{"min":0,"max":0},"fill":"","sources":24}]`, rec.Body.String())
}

func TestSeriesEndpoint(t *testing.T) {
	dash := &mockDashboard{}
	rec, body := do(t, newTestServer(nil, dash), http.MethodGet,
		"/api/datasets/county/series?entity=Metro&dimension=Pollutant_B&from=2001&to=2003")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "county", dash.lastName)
	assert.Equal(t, domain.SeriesRequest{
		Entity:    "Metro",
		Dimension: "Pollutant_B",
		Years:     domain.YearRange{Min: 2001, Max: 2003},
	}, dash.lastReq)
	assert.Len(t, body["points"], 2)
}

func TestSeriesEndpoint_NormalizesEntity(t *testing.T) {
	dash := &mockDashboard{}
	rec, _ := do(t, newTestServer(nil, dash), http.MethodGet,
		"/api/datasets/county/series?entity=+Santa++Fe+&dimension=Pollutant_B")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Santa Fe", dash.lastReq.Entity)
}

func TestSeriesEndpoint_BadParams(t *testing.T) {
	tests := []struct {
		name, query string
	}{
		{"missing entity", "dimension=A"},
		{"missing dimension", "entity=Metro"},
		{"bad from", "entity=Metro&dimension=A&from=abc"},
		{"bad to", "entity=Metro&dimension=A&to=20x1"},
		{"inverted range", "entity=Metro&dimension=A&from=2010&to=2001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, newTestServer(nil, &mockDashboard{}), http.MethodGet, "/api/datasets/county/series?"+tt.query)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"unknown dataset", fmt.Errorf("%w: %q", pipeline.ErrUnknownDataset, "nope"), http.StatusNotFound, ""},
		{"insufficient data", &domain.InsufficientDataError{Dataset: "county", Entity: "Metro", Dimension: "Pollutant_A", Observations: 2, Required: 3},
			http.StatusUnprocessableEntity, "No data available for Pollutant_A in Metro."},
		{"source unavailable", &domain.SourceUnavailableError{Source: "conreport-2001", Err: errors.New("timeout")}, http.StatusBadGateway, ""},
		{"schema mismatch", &domain.SchemaMismatchError{Source: "conreport-2001", Column: "County", Reason: "missing"}, http.StatusInternalServerError, ""},
		{"unknown breakdown", fmt.Errorf("%w: %q", domain.ErrUnknownBreakdown, "color"), http.StatusBadRequest, ""},
		{"incomplete request", fmt.Errorf("%w: dimension is required", domain.ErrIncompleteRequest), http.StatusBadRequest, ""},
		{"other", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, newTestServer(nil, &mockDashboard{err: tt.err}), http.MethodGet,
				"/api/datasets/county/series?entity=Metro&dimension=Pollutant_A")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.err.Error(), body["error"])
			if tt.message != "" {
				assert.Equal(t, tt.message, body["message"])
			} else {
				assert.NotContains(t, body, "message")
			}
		})
	}
}

func TestTrendsEndpoint(t *testing.T) {
	dash := &mockDashboard{}
	rec, body := do(t, newTestServer(nil, dash), http.MethodGet, "/api/datasets/county/trends?entity=Metro&from=2005")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.YearRange{Min: 2005}, dash.lastReq.Years)
	assert.Equal(t, []any{"Pollutant_A"}, body["insufficient"])

	rec, _ = do(t, newTestServer(nil, dash), http.MethodGet, "/api/datasets/county/trends")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTotalEndpoint(t *testing.T) {
	rec, body := do(t, newTestServer(nil, &mockDashboard{}), http.MethodGet, "/api/datasets/epa-grants/total?entity=CO")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "$1,500.00", body["formatted"])
	assert.InDelta(t, 1500, body["total"], 1e-9)
}

func TestBreakdownEndpoint(t *testing.T) {
	dash := &mockDashboard{}
	rec := httptest.NewRecorder()
	newTestServer(nil, dash).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/datasets/epa-grants/breakdown?by=entity", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "entity", dash.lastBy)
	assert.JSONEq(t, `{"by":"entity","bars":[{"key":"CO","value":5},{"key":"WY","value":2}]}`, rec.Body.String())

	rec2, _ := do(t, newTestServer(nil, dash), http.MethodGet, "/api/datasets/epa-grants/breakdown")
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestOptionsEndpoint(t *testing.T) {
	dash := &mockDashboard{}
	rec, body := do(t, newTestServer(nil, dash), http.MethodGet, "/api/datasets/city/options")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "city", dash.lastName)
	assert.Equal(t, []any{"Pollutant_A"}, body["dimensions"])
}

func TestRefreshEndpoint(t *testing.T) {
	dash := &mockDashboard{}
	srv := newTestServer(nil, dash)

	rec, body := do(t, srv, http.MethodPost, "/api/datasets/county/refresh")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "invalidated", body["status"])
	assert.Equal(t, []string{"county"}, dash.refreshed)

	rec, _ = do(t, srv, http.MethodGet, "/api/datasets/county/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
