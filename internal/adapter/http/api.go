package http

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/aq-dashboard-service/internal/domain"
	"github.com/couchcryptid/aq-dashboard-service/internal/pipeline"
)

// errBadRequest marks query parameter problems.
var errBadRequest = errors.New("bad request")

// Bar is one category of a breakdown.
type Bar struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

type breakdownResponse struct {
	By   string `json:"by"`
	Bars []Bar  `json:"bars"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleDatasets(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.dashboard.Datasets())
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.dashboard.Options(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, opts)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err == nil && (req.Entity == "" || req.Dimension == "") {
		err = fmt.Errorf("%w: entity and dimension are required", errBadRequest)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	series, err := s.dashboard.Series(r.Context(), r.PathValue("name"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, series)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err == nil && req.Entity == "" {
		err = fmt.Errorf("%w: entity is required", errBadRequest)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	set, err := s.dashboard.Trends(r.Context(), r.PathValue("name"), req.Entity, req.Years)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, set)
}

func (s *Server) handleTotal(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sum, err := s.dashboard.Total(r.Context(), r.PathValue("name"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, sum)
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	by := r.URL.Query().Get("by")
	if err == nil && by == "" {
		err = fmt.Errorf("%w: by is required", errBadRequest)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	values, err := s.dashboard.Breakdown(r.Context(), r.PathValue("name"), req, by)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := breakdownResponse{By: by, Bars: make([]Bar, 0, len(values))}
	for k, v := range values {
		resp.Bars = append(resp.Bars, Bar{Key: k, Value: v})
	}
	sort.Slice(resp.Bars, func(i, j int) bool { return resp.Bars[i].Key < resp.Bars[j].Key })
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.dashboard.Refresh(r.PathValue("name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "invalidated"})
}

// parseRequest reads entity, dimension, from and to.
func parseRequest(r *http.Request) (domain.SeriesRequest, error) {
	q := r.URL.Query()
	req := domain.SeriesRequest{
		Entity:    domain.NormalizeKey(q.Get("entity")),
		Dimension: domain.NormalizeKey(q.Get("dimension")),
	}
	var err error
	if req.Years.Min, err = parseYear(q.Get("from")); err != nil {
		return req, fmt.Errorf("%w: from: %v", errBadRequest, err)
	}
	if req.Years.Max, err = parseYear(q.Get("to")); err != nil {
		return req, fmt.Errorf("%w: to: %v", errBadRequest, err)
	}
	if req.Years.Min != 0 && req.Years.Max != 0 && req.Years.Min > req.Years.Max {
		return req, fmt.Errorf("%w: from %d is after to %d", errBadRequest, req.Years.Min, req.Years.Max)
	}
	return req, nil
}

func parseYear(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 1 || y > 9999 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return y, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error()}

	var insufficient *domain.InsufficientDataError
	switch {
	case errors.As(err, &insufficient):
		status = http.StatusUnprocessableEntity
		resp.Message = insufficient.Message()
	case errors.Is(err, errBadRequest), errors.Is(err, domain.ErrUnknownBreakdown),
		errors.Is(err, domain.ErrIncompleteRequest):
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrUnknownDataset):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrSourceUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrSchemaMismatch):
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	sharedobs.WriteJSON(w, status, resp)
}
