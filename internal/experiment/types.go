// Package experiment owns experiment definitions and assigns visitors to
// variants with deterministic hash bucketing.
package experiment

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownExperiment = errors.New("unknown experiment")

type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// Experiment is a registered A/B test.
type Experiment struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Description       string      `json:"description,omitempty"`
	Kind              Kind        `json:"kind"`
	Status            Status      `json:"status"`
	Variants          []Variant   `json:"variants"`
	TrafficAllocation int         `json:"traffic_allocation"` // 0-100
	TargetMetric      string      `json:"target_metric"`
	Conditions        []Condition `json:"conditions,omitempty"`
	StartDate         *time.Time  `json:"start_date,omitempty"`
	EndDate           *time.Time  `json:"end_date,omitempty"`
	WinnerVariant     string      `json:"winner_variant,omitempty"`
}

// Variant returns the variant with the given id.
func (e *Experiment) Variant(id string) (*Variant, bool) {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i], true
		}
	}
	return nil, false
}

// Control returns the control variant, or the first variant when none is
// flagged.
func (e *Experiment) Control() (*Variant, bool) {
	if len(e.Variants) == 0 {
		return nil, false
	}
	for i := range e.Variants {
		if e.Variants[i].IsControl {
			return &e.Variants[i], true
		}
	}
	return &e.Variants[0], true
}

// Validate checks that the experiment can be served: a known status,
// variants with unique ids whose weights sum to 100, and an allocation
// between 0 and 100.
func (e *Experiment) Validate() error {
	if e.ID == "" {
		return errors.New("experiment id is required")
	}
	if !e.Status.Valid() {
		return fmt.Errorf("experiment %s: invalid status %q", e.ID, e.Status)
	}
	if len(e.Variants) == 0 {
		return fmt.Errorf("experiment %s: at least one variant is required", e.ID)
	}
	if e.TrafficAllocation < 0 || e.TrafficAllocation > 100 {
		return fmt.Errorf("experiment %s: traffic_allocation must be 0-100", e.ID)
	}

	total := 0
	seen := make(map[string]bool, len(e.Variants))
	for _, v := range e.Variants {
		if v.ID == "" {
			return fmt.Errorf("experiment %s: variant id is required", e.ID)
		}
		if seen[v.ID] {
			return fmt.Errorf("experiment %s: duplicate variant %s", e.ID, v.ID)
		}
		seen[v.ID] = true
		total += v.Weight
	}
	if total != 100 {
		return fmt.Errorf("experiment %s: variant weights sum to %d, want 100", e.ID, total)
	}
	return nil
}

type Variant struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Weight    int           `json:"weight"` // share of 100
	IsControl bool          `json:"is_control"`
	Config    VariantConfig `json:"-"`
}

// Assignment binds one session to one variant of an experiment.
type Assignment struct {
	ExperimentID string    `json:"experiment_id"`
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id,omitempty"`
	VariantID    string    `json:"variant_id"`
	AssignedAt   time.Time `json:"assigned_at"`
	Exposed      bool      `json:"exposed"`
}

// MetricExposure is the metric name under which exposures are recorded.
const MetricExposure = "exposure"

// Result is one recorded metric observation for a variant.
type Result struct {
	ExperimentID string    `json:"experiment_id"`
	VariantID    string    `json:"variant_id"`
	SessionID    string    `json:"session_id"`
	Metric       string    `json:"metric"`
	Value        float64   `json:"value"`
	RecordedAt   time.Time `json:"recorded_at"`
}
