package funnel

import (
	"fmt"
	"sort"
	"time"

	"github.com/truecheckia/splitkit/internal/journey"
)

type StepResult struct {
	Step Step `json:"step"`
	// Users is the number of users that reached this step.
	Users int `json:"users"`
	// CompletionRate is Users over the users of the previous step, or over
	// all analysed journeys for the first step.
	CompletionRate       float64       `json:"completion_rate"`
	DropoffUsers         int           `json:"dropoff_users"`
	DropoffRate          float64       `json:"dropoff_rate"`
	AvgTimeToComplete    time.Duration `json:"avg_time_to_complete"`
	MedianTimeToComplete time.Duration `json:"median_time_to_complete"`
	IsBottleneck         bool          `json:"is_bottleneck"`
}

type Analysis struct {
	FunnelID              string       `json:"funnel_id"`
	FunnelName            string       `json:"funnel_name"`
	DateRange             DateRange    `json:"date_range"`
	TotalUsers            int          `json:"total_users"`
	Steps                 []StepResult `json:"steps"`
	OverallConversionRate float64      `json:"overall_conversion_rate"`
	// BiggestDropoff is the first step with the highest drop-off rate, nil
	// when nothing dropped off.
	BiggestDropoff  *StepResult `json:"biggest_dropoff,omitempty"`
	Recommendations []string    `json:"recommendations"`
}

// Steps slower than this on average get a reminder recommendation.
const slowStep = 24 * time.Hour

// AnalyzeFunnel replays journeys against funnel id. Users are identified by
// user id when known, else by session id; a user reaches a step when they
// reached the previous one and fired a matching event.
func (a *Analyzer) AnalyzeFunnel(id string, journeys []*journey.Journey, dr DateRange) (*Analysis, error) {
	def, ok := a.Funnel(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunnelNotFound, id)
	}
	return analyze(def, journeys, dr), nil
}

func analyze(def *Definition, journeys []*journey.Journey, dr DateRange) *Analysis {
	users := merge(journeys, dr)

	out := &Analysis{
		FunnelID:        def.ID,
		FunnelName:      def.Name,
		DateRange:       dr,
		TotalUsers:      len(users),
		Steps:           make([]StepResult, 0, len(def.Steps)),
		Recommendations: []string{},
	}

	// reached maps identity to the time the previous step was reached.
	reached := make(map[string]time.Time, len(users))
	for id, u := range users {
		reached[id] = u.start
	}

	for _, step := range def.Steps {
		prev := len(reached)
		next := make(map[string]time.Time)
		var durations []time.Duration

		for id, since := range reached {
			at, ok := users[id].first(step)
			if !ok {
				continue
			}
			next[id] = at
			if d := at.Sub(since); d >= 0 {
				durations = append(durations, d)
			}
		}

		r := StepResult{Step: step, Users: len(next), DropoffUsers: prev - len(next)}
		if prev > 0 {
			r.CompletionRate = float64(len(next)) / float64(prev)
			r.DropoffRate = float64(r.DropoffUsers) / float64(prev)
		}
		r.AvgTimeToComplete, r.MedianTimeToComplete = timing(durations)
		out.Steps = append(out.Steps, r)
		reached = next
	}

	if out.TotalUsers > 0 && len(out.Steps) > 0 {
		out.OverallConversionRate = float64(out.Steps[len(out.Steps)-1].Users) / float64(out.TotalUsers)
	}
	markBottlenecks(out)
	out.Recommendations = recommend(out)
	return out
}

// Every step whose drop-off rate equals the maximum and exceeds the
// threshold is a bottleneck, so ties flag several steps.
func markBottlenecks(a *Analysis) {
	maxRate := 0.0
	for _, s := range a.Steps {
		if s.DropoffRate > maxRate {
			maxRate = s.DropoffRate
		}
	}
	if maxRate == 0 {
		return
	}
	for i := range a.Steps {
		if a.Steps[i].DropoffRate != maxRate {
			continue
		}
		if a.BiggestDropoff == nil {
			a.BiggestDropoff = &a.Steps[i]
		}
		if maxRate > BottleneckThreshold {
			a.Steps[i].IsBottleneck = true
		}
	}
}

func recommend(a *Analysis) []string {
	recs := []string{}
	for _, s := range a.Steps {
		if s.DropoffRate > 0.5 {
			recs = append(recs, fmt.Sprintf("%s loses %.0f%% of users: simplify this step or remove required fields", s.Step.Name, s.DropoffRate*100))
		}
		if s.AvgTimeToComplete > slowStep {
			recs = append(recs, fmt.Sprintf("Users take %s on average to reach %s: add reminder emails or in-app nudges", s.AvgTimeToComplete.Round(time.Hour), s.Step.Name))
		}
	}
	if a.TotalUsers > 0 && a.OverallConversionRate < 0.1 {
		recs = append(recs, fmt.Sprintf("Overall conversion is %.1f%%: review the funnel end to end", a.OverallConversionRate*100))
	}
	for _, s := range a.Steps {
		if s.IsBottleneck {
			recs = append(recs, fmt.Sprintf("Focus optimization on %s, the biggest drop-off in the funnel", s.Step.Name))
		}
	}
	return recs
}

func timing(ds []time.Duration) (avg, median time.Duration) {
	if len(ds) == 0 {
		return 0, 0
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })

	var total time.Duration
	for _, d := range ds {
		total += d
	}
	avg = total / time.Duration(len(ds))

	mid := len(ds) / 2
	if len(ds)%2 == 0 {
		median = (ds[mid-1] + ds[mid]) / 2
	} else {
		median = ds[mid]
	}
	return avg, median
}

// user is every in-range event of one identity, sorted by time.
type user struct {
	start  time.Time
	events []journey.Event
}

func (u *user) first(step Step) (time.Time, bool) {
	for _, e := range u.events {
		if step.Matches(e) {
			return e.Timestamp, true
		}
	}
	return time.Time{}, false
}

// merge groups journeys by identity, so a user seen across several
// sessions counts once.
func merge(journeys []*journey.Journey, dr DateRange) map[string]*user {
	users := make(map[string]*user)
	for _, j := range journeys {
		if j == nil || !journey.InRange(j.FirstTouch, dr.From, dr.To) {
			continue
		}
		id := j.Identity()
		u, ok := users[id]
		if !ok {
			u = &user{start: j.FirstTouch}
			users[id] = u
		}
		if j.FirstTouch.Before(u.start) {
			u.start = j.FirstTouch
		}
		u.events = append(u.events, j.Events...)
	}
	for _, u := range users {
		sort.SliceStable(u.events, func(a, b int) bool { return u.events[a].Timestamp.Before(u.events[b].Timestamp) })
	}
	return users
}
