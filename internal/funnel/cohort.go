package funnel

import (
	"fmt"
	"sort"
	"time"

	"github.com/truecheckia/splitkit/internal/journey"
)

// CohortBy selects how journeys are grouped.
type CohortBy string

const (
	CohortSignupDate CohortBy = "signup_date"
	CohortSource     CohortBy = "source"
	CohortCampaign   CohortBy = "campaign"
	CohortDevice     CohortBy = "device_type"
)

// Granularity buckets signup dates.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

type Cohort struct {
	Key      string    `json:"key"`
	Analysis *Analysis `json:"analysis"`
}

// AnalyzeFunnelByCohort splits journeys into cohorts and analyses each one.
// Cohorts are ordered by key.
func (a *Analyzer) AnalyzeFunnelByCohort(id string, journeys []*journey.Journey, by CohortBy, g Granularity) ([]Cohort, error) {
	def, ok := a.Funnel(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunnelNotFound, id)
	}

	groups := make(map[string][]*journey.Journey)
	for _, j := range journeys {
		if j == nil {
			continue
		}
		key, err := cohortKey(j, by, g)
		if err != nil {
			return nil, err
		}
		groups[key] = append(groups[key], j)
	}

	out := make([]Cohort, 0, len(groups))
	for key, js := range groups {
		out = append(out, Cohort{Key: key, Analysis: analyze(def, js, DateRange{})})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func cohortKey(j *journey.Journey, by CohortBy, g Granularity) (string, error) {
	switch by {
	case CohortSignupDate:
		at := j.FirstTouch
		if e, ok := j.FirstEvent(journey.EventSignup); ok {
			at = e.Timestamp
		}
		return dateBucket(at, g)
	case CohortSource:
		if j.Attribution != nil && j.Attribution.Source != "" {
			return j.Attribution.Source, nil
		}
		return "direct", nil
	case CohortCampaign:
		if j.Attribution != nil && j.Attribution.Campaign != "" {
			return j.Attribution.Campaign, nil
		}
		return "none", nil
	case CohortDevice:
		for _, e := range j.Events {
			if d, ok := e.Properties["device_type"].(string); ok && d != "" {
				return d, nil
			}
		}
		return "unknown", nil
	}
	return "", fmt.Errorf("unknown cohort %q", by)
}

func dateBucket(t time.Time, g Granularity) (string, error) {
	t = t.UTC()
	switch g {
	case Day, "":
		return t.Format("2006-01-02"), nil
	case Week:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week), nil
	case Month:
		return t.Format("2006-01"), nil
	}
	return "", fmt.Errorf("unknown granularity %q", g)
}

// SignificantChange is the completion-rate delta above which a step change
// is reported as significant.
const SignificantChange = 0.05

type StepComparison struct {
	StepName       string  `json:"step_name"`
	BaselineRate   float64 `json:"baseline_rate"`
	ComparisonRate float64 `json:"comparison_rate"`
	Delta          float64 `json:"delta"`
	Significant    bool    `json:"significant"`
}

type Comparison struct {
	Steps        []StepComparison `json:"steps"`
	OverallDelta float64          `json:"overall_delta"`
}

// CompareFunnels diffs two analyses step by step. Steps present in only one
// of them are ignored.
func CompareFunnels(baseline, comparison *Analysis) Comparison {
	n := len(baseline.Steps)
	if len(comparison.Steps) < n {
		n = len(comparison.Steps)
	}

	out := Comparison{
		Steps:        make([]StepComparison, n),
		OverallDelta: comparison.OverallConversionRate - baseline.OverallConversionRate,
	}
	for i := 0; i < n; i++ {
		b, c := baseline.Steps[i], comparison.Steps[i]
		delta := c.CompletionRate - b.CompletionRate
		out.Steps[i] = StepComparison{
			StepName:       b.Step.Name,
			BaselineRate:   b.CompletionRate,
			ComparisonRate: c.CompletionRate,
			Delta:          delta,
			Significant:    delta > SignificantChange || delta < -SignificantChange,
		}
	}
	return out
}
