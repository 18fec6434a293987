package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/journey"
	"github.com/truecheckia/splitkit/internal/storage"
)

type HealthResponse struct {
	Status             string `json:"status"`
	ExperimentsCount   int    `json:"experiments_count"`
	RunningExperiments int    `json:"running_experiments"`
	DBSizeBytes        int64  `json:"db_size_bytes"`
	UptimeSeconds      int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := HealthResponse{
		Status:             "ok",
		ExperimentsCount:   len(s.engine.Registry().List()),
		RunningExperiments: len(s.engine.Registry().Running()),
		UptimeSeconds:      int64(time.Since(s.startTime).Seconds()),
	}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			s.logger.Error("database ping failed", zap.Error(err))
			resp.Status = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		if size, err := s.db.Size(ctx); err == nil {
			resp.DBSizeBytes = size
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// visitor describes the browser behind r. The page URL and its referrer
// come from the url and referrer query parameters, falling back to the
// request's Referer header for the page.
func (s *Server) visitor(w http.ResponseWriter, r *http.Request) experiment.Visitor {
	q := r.URL.Query()
	v := experiment.Visitor{
		Jar:       experiment.NewHTTPJar(w, r),
		URL:       q.Get("url"),
		UserAgent: r.UserAgent(),
		Referrer:  q.Get("referrer"),
	}
	if v.URL == "" {
		v.URL = r.Referer()
	}
	if s.visitors != nil {
		v.Storage = storage.ForSession(s.visitors, s.engine.SessionID(v))
	}
	return v
}

type experimentResponse struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Kind         experiment.Kind   `json:"kind"`
	TargetMetric string            `json:"target_metric"`
	Variants     []variantResponse `json:"variants"`
}

type variantResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsControl bool   `json:"is_control"`
}

func (s *Server) handleRunningExperiments(w http.ResponseWriter, r *http.Request) {
	running := s.engine.Registry().Running()
	resp := make([]experimentResponse, 0, len(running))
	for _, exp := range running {
		er := experimentResponse{ID: exp.ID, Name: exp.Name, Kind: exp.Kind, TargetMetric: exp.TargetMetric}
		for _, v := range exp.Variants {
			er.Variants = append(er.Variants, variantResponse{ID: v.ID, Name: v.Name, IsControl: v.IsControl})
		}
		resp = append(resp, er)
	}
	writeJSON(w, http.StatusOK, resp)
}

type AssignmentResponse struct {
	ExperimentID string                   `json:"experiment_id"`
	VariantID    string                   `json:"variant_id"`
	VariantName  string                   `json:"variant_name"`
	IsControl    bool                     `json:"is_control"`
	SessionID    string                   `json:"session_id"`
	Config       experiment.VariantConfig `json:"config,omitempty"`
}

// handleAssignment returns the visitor's variant, or 204 when the visitor is
// not part of the experiment.
func (s *Server) handleAssignment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exp, ok := s.engine.Registry().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}

	v := s.visitor(w, r)
	a := s.engine.GetAssignment(r.Context(), v, id, r.URL.Query().Get("user_id"))
	if a == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := AssignmentResponse{ExperimentID: id, VariantID: a.VariantID, SessionID: a.SessionID}
	if variant, ok := exp.Variant(a.VariantID); ok {
		resp.VariantName = variant.Name
		resp.IsControl = variant.IsControl
		resp.Config = variant.Config
	}
	writeJSON(w, http.StatusOK, resp)
}

type exposureRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleExposure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.engine.Registry().Get(id); !ok {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}

	var req exposureRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	s.engine.TrackExposure(r.Context(), s.visitor(w, r), id, req.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// EventRequest is a conversion event sent by the site.
type EventRequest struct {
	Name       string         `json:"name"`
	UserID     string         `json:"user_id"`
	Properties map[string]any `json:"properties"`
	Revenue    *float64       `json:"revenue"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing event name")
		return
	}

	s.tracker.TrackConversion(r.Context(), s.visitor(w, r), journey.Event{
		Name:       req.Name,
		UserID:     req.UserID,
		Properties: req.Properties,
		Revenue:    req.Revenue,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.tracker.RecentEvents(r.Context(), s.visitor(w, r))
	if err != nil {
		s.logger.Error("failed to read recent events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	if events == nil {
		events = []journey.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleClearVisitor(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.ClearData(r.Context(), s.visitor(w, r)); err != nil {
		s.logger.Error("failed to clear visitor data", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear data")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type attributionRequest struct {
	URL      string `json:"url"`
	Referrer string `json:"referrer"`
}

func (s *Server) handleAttribution(w http.ResponseWriter, r *http.Request) {
	var req attributionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	// Same query form as the assignment endpoint.
	q := r.URL.Query()
	if req.URL == "" {
		req.URL = q.Get("url")
	}
	if req.Referrer == "" {
		req.Referrer = q.Get("referrer")
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing url")
		return
	}

	if _, err := s.tracker.CaptureAttribution(r.Context(), s.visitor(w, r), req.URL, req.Referrer); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
