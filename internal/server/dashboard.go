package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/truecheckia/splitkit/internal/attribution"
	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/funnel"
	"github.com/truecheckia/splitkit/internal/journey"
	"github.com/truecheckia/splitkit/internal/stats"
)

type ExperimentSummary struct {
	Experiment experiment.Experiment `json:"experiment"`
	Results    *stats.Result         `json:"results"`
}

func (s *Server) summarize(r *http.Request, exp experiment.Experiment) (ExperimentSummary, error) {
	vs, err := s.engine.Stats(r.Context(), exp.ID)
	if err != nil {
		return ExperimentSummary{}, err
	}
	return ExperimentSummary{Experiment: exp, Results: stats.Analyze(&exp, vs)}, nil
}

func (s *Server) handleDashboardExperiments(w http.ResponseWriter, r *http.Request) {
	exps := s.engine.Registry().List()
	resp := make([]ExperimentSummary, 0, len(exps))
	for _, exp := range exps {
		sum, err := s.summarize(r, exp)
		if err != nil {
			s.logger.Error("failed to load experiment stats", zap.String("experiment", exp.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load stats")
			return
		}
		resp = append(resp, sum)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExperimentResults(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.engine.Registry().Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}
	sum, err := s.summarize(r, *exp)
	if err != nil {
		s.logger.Error("failed to load experiment stats", zap.String("experiment", exp.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleFunnels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.funnels.Funnels())
}

// handleFunnelAnalysis analyses a funnel over the stored journeys. With a
// cohort parameter it returns one analysis per cohort instead.
func (s *Server) handleFunnelAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.funnels.Funnel(id); !ok {
		writeError(w, http.StatusNotFound, "funnel not found")
		return
	}

	dr, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	journeys, ok := s.listJourneys(w, r, dr)
	if !ok {
		return
	}

	q := r.URL.Query()
	if by := q.Get("cohort"); by != "" {
		g := funnel.Granularity(q.Get("granularity"))
		if g == "" {
			g = funnel.Week
		}
		cohorts, err := s.funnels.AnalyzeFunnelByCohort(id, journeys, funnel.CohortBy(by), g)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, cohorts)
		return
	}

	analysis, err := s.funnels.AnalyzeFunnel(id, journeys, dr)
	if errors.Is(err, funnel.ErrFunnelNotFound) {
		writeError(w, http.StatusNotFound, "funnel not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

type AttributionReport struct {
	Model     attribution.Model           `json:"model"`
	Channels  []attribution.ChannelStats  `json:"channels"`
	Campaigns []attribution.CampaignStats `json:"campaigns"`
}

// handleAttributionReport credits conversions to channels and campaigns.
// model=all compares every model side by side.
func (s *Server) handleAttributionReport(w http.ResponseWriter, r *http.Request) {
	dr, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := r.URL.Query().Get("model")
	if name == "" {
		name = string(attribution.Linear)
	}
	var m attribution.Model
	if name != "all" {
		if m, err = attribution.ParseModel(name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	journeys, ok := s.listJourneys(w, r, dr)
	if !ok {
		return
	}

	if name == "all" {
		reports, err := s.attribution.CompareModels(journeys)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, reports)
		return
	}

	channels, err := s.attribution.AnalyzeChannels(journeys, m)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	campaigns, err := s.attribution.AnalyzeCampaigns(journeys, m)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, AttributionReport{Model: m, Channels: channels, Campaigns: campaigns})
}

func (s *Server) handleConversionPaths(w http.ResponseWriter, r *http.Request) {
	dr, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	journeys, ok := s.listJourneys(w, r, dr)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.attribution.TopConversionPaths(journeys))
}

func (s *Server) listJourneys(w http.ResponseWriter, r *http.Request, dr funnel.DateRange) ([]*journey.Journey, bool) {
	if s.journeys == nil {
		writeError(w, http.StatusServiceUnavailable, "journey store not configured")
		return nil, false
	}
	journeys, err := s.journeys.ListJourneys(r.Context(), dr.From, dr.To)
	if err != nil {
		s.logger.Error("failed to list journeys", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list journeys")
		return nil, false
	}
	return journeys, true
}

func parseDateRange(r *http.Request) (funnel.DateRange, error) {
	q := r.URL.Query()
	return funnel.ParseDateRange(q.Get("from"), q.Get("to"))
}
