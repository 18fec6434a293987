// Package funnel replays recorded journeys against ordered step
// definitions and reports completion, drop-off and timing per step.
package funnel

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/truecheckia/splitkit/internal/journey"
)

var ErrFunnelNotFound = errors.New("funnel not found")

// BottleneckThreshold is the drop-off rate a step must exceed to be
// flagged as a bottleneck.
const BottleneckThreshold = 0.3

// StepCondition restricts which events satisfy a step.
type StepCondition struct {
	Property string `json:"property" yaml:"property"`
	// Operator is one of equals (default), not_equals, contains, exists,
	// greater_than, less_than.
	Operator string `json:"operator,omitempty" yaml:"operator"`
	Value    any    `json:"value,omitempty" yaml:"value"`
}

type Step struct {
	ID         string          `json:"id" yaml:"id"`
	Name       string          `json:"name" yaml:"name"`
	Order      int             `json:"order" yaml:"order"`
	EventName  string          `json:"event_name" yaml:"event_name"`
	Conditions []StepCondition `json:"conditions,omitempty" yaml:"conditions"`
}

type Definition struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Steps       []Step `json:"steps" yaml:"steps"`
}

// Matches reports whether e satisfies the step.
func (s Step) Matches(e journey.Event) bool {
	if e.Name != s.EventName {
		return false
	}
	for _, c := range s.Conditions {
		if !c.matches(e) {
			return false
		}
	}
	return true
}

func (c StepCondition) matches(e journey.Event) bool {
	got, ok := e.Properties[c.Property]
	switch c.Operator {
	case "exists":
		return ok
	case "not_equals":
		return !ok || fmt.Sprint(got) != fmt.Sprint(c.Value)
	case "contains":
		return ok && strings.Contains(fmt.Sprint(got), fmt.Sprint(c.Value))
	case "greater_than", "less_than":
		a, okA := number(got)
		b, okB := number(c.Value)
		if !ok || !okA || !okB {
			return false
		}
		if c.Operator == "greater_than" {
			return a > b
		}
		return a < b
	default:
		return ok && fmt.Sprint(got) == fmt.Sprint(c.Value)
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// Analyzer holds registered funnel definitions.
type Analyzer struct {
	mu      sync.RWMutex
	funnels map[string]*Definition
	order   []string
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{funnels: make(map[string]*Definition)}
}

// RegisterFunnel stores a funnel, replacing any funnel with the same id.
// Steps are sorted by Order.
func (a *Analyzer) RegisterFunnel(id, name, description string, steps []Step) *Definition {
	sorted := make([]Step, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	def := &Definition{ID: id, Name: name, Description: description, Steps: sorted}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.funnels[id]; !exists {
		a.order = append(a.order, id)
	}
	a.funnels[id] = def
	return def
}

// Register stores a definition, e.g. one declared in the config file.
func (a *Analyzer) Register(def Definition) *Definition {
	return a.RegisterFunnel(def.ID, def.Name, def.Description, def.Steps)
}

func (a *Analyzer) Funnel(id string) (*Definition, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	def, ok := a.funnels[id]
	return def, ok
}

// Funnels lists definitions in registration order.
func (a *Analyzer) Funnels() []*Definition {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]*Definition, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.funnels[id])
	}
	return out
}

// Canonical funnel ids.
const (
	Registration = "registration"
	Subscription = "subscription"
)

// RegisterDefaults registers the registration and subscription funnels.
func (a *Analyzer) RegisterDefaults() {
	a.RegisterFunnel(Registration, "User Registration", "Landing page visit to first analysis", []Step{
		{ID: "landing", Name: "Landing Visit", Order: 1, EventName: journey.EventPageView},
		{ID: "signup_click", Name: "Signup Click", Order: 2, EventName: journey.EventSignupClick},
		{ID: "account_created", Name: "Account Created", Order: 3, EventName: journey.EventSignup},
		{ID: "first_analysis", Name: "First Analysis", Order: 4, EventName: journey.EventAnalysisCompleted},
	})
	a.RegisterFunnel(Subscription, "Subscription", "Pricing page view to paid subscription", []Step{
		{ID: "pricing_view", Name: "Pricing View", Order: 1, EventName: journey.EventPricingView},
		{ID: "checkout", Name: "Checkout Started", Order: 2, EventName: journey.EventCheckoutStarted},
		{ID: "subscribed", Name: "Subscription Created", Order: 3, EventName: journey.EventSubscription},
	})
}

// DateRange bounds analysed journeys by first touch. Zero bounds are open.
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// ParseDateRange parses optional from and to bounds. Both accept RFC 3339
// timestamps or plain dates; a plain to date includes that whole day.
func ParseDateRange(from, to string) (DateRange, error) {
	var dr DateRange
	if from != "" {
		t, _, err := parseTime(from)
		if err != nil {
			return dr, fmt.Errorf("invalid from: %w", err)
		}
		dr.From = t
	}
	if to != "" {
		t, dateOnly, err := parseTime(to)
		if err != nil {
			return dr, fmt.Errorf("invalid to: %w", err)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		dr.To = t
	}
	if !dr.From.IsZero() && !dr.To.IsZero() && !dr.From.Before(dr.To) {
		return dr, errors.New("from must be before to")
	}
	return dr, nil
}

func parseTime(v string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(time.DateOnly, v); err == nil {
		return t, true, nil
	}
	t, err = time.Parse(time.RFC3339, v)
	return t, false, err
}
