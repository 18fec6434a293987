// Package journey models the conversion events a visitor produces and the
// journeys they aggregate into. Journeys are the input of the funnel and
// attribution analyzers.
package journey

import (
	"sort"
	"time"
)

// Event is a named conversion event.
type Event struct {
	Name       string         `json:"name"`
	UserID     string         `json:"user_id,omitempty"`
	SessionID  string         `json:"session_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Properties map[string]any `json:"properties,omitempty"`
	Revenue    *float64       `json:"revenue,omitempty"`
}

// Attribution is the traffic source snapshot captured at session start.
type Attribution struct {
	Source      string    `json:"source"`
	Medium      string    `json:"medium"`
	Campaign    string    `json:"campaign,omitempty"`
	Term        string    `json:"term,omitempty"`
	Content     string    `json:"content,omitempty"`
	GCLID       string    `json:"gclid,omitempty"`
	Referrer    string    `json:"referrer,omitempty"`
	LandingPage string    `json:"landing_page,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Touchpoint is one marketing interaction on the way to a conversion.
type Touchpoint struct {
	Channel   string    `json:"channel"`
	Source    string    `json:"source"`
	Medium    string    `json:"medium"`
	Campaign  string    `json:"campaign,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Journey aggregates everything recorded for one session.
type Journey struct {
	SessionID    string       `json:"session_id"`
	UserID       string       `json:"user_id,omitempty"`
	Events       []Event      `json:"events"`
	Attribution  *Attribution `json:"attribution,omitempty"`
	Touchpoints  []Touchpoint `json:"touchpoints,omitempty"`
	TotalRevenue float64      `json:"total_revenue"`
	FirstTouch   time.Time    `json:"first_touch"`
	LastTouch    time.Time    `json:"last_touch"`
}

// clone copies j deep enough that appends and attribution updates on the
// copy never reach j.
func (j *Journey) clone() *Journey {
	cp := *j
	cp.Events = append([]Event(nil), j.Events...)
	cp.Touchpoints = append([]Touchpoint(nil), j.Touchpoints...)
	if j.Attribution != nil {
		a := *j.Attribution
		cp.Attribution = &a
	}
	return &cp
}

// Identity is the user id when known, otherwise the session id.
func (j *Journey) Identity() string {
	if j.UserID != "" {
		return j.UserID
	}
	return j.SessionID
}

// Append adds an event and updates the running totals.
func (j *Journey) Append(e Event) {
	j.Events = append(j.Events, e)
	if e.UserID != "" && j.UserID == "" {
		j.UserID = e.UserID
	}
	if e.Revenue != nil {
		j.TotalRevenue += *e.Revenue
	}
	if j.FirstTouch.IsZero() || e.Timestamp.Before(j.FirstTouch) {
		j.FirstTouch = e.Timestamp
	}
	if e.Timestamp.After(j.LastTouch) {
		j.LastTouch = e.Timestamp
	}
}

// AddTouchpoint appends tp unless it repeats the channel, source and
// campaign of the latest touchpoint.
func (j *Journey) AddTouchpoint(tp Touchpoint) bool {
	if n := len(j.Touchpoints); n > 0 {
		last := j.Touchpoints[n-1]
		if last.Channel == tp.Channel && last.Source == tp.Source && last.Campaign == tp.Campaign {
			return false
		}
	}
	j.Touchpoints = append(j.Touchpoints, tp)
	if j.FirstTouch.IsZero() || tp.Timestamp.Before(j.FirstTouch) {
		j.FirstTouch = tp.Timestamp
	}
	return true
}

// SortedEvents returns the events ordered by timestamp.
func (j *Journey) SortedEvents() []Event {
	out := make([]Event, len(j.Events))
	copy(out, j.Events)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Timestamp.Before(out[b].Timestamp) })
	return out
}

// FirstEvent returns the earliest event named name.
func (j *Journey) FirstEvent(name string) (Event, bool) {
	var found Event
	ok := false
	for _, e := range j.Events {
		if e.Name != name {
			continue
		}
		if !ok || e.Timestamp.Before(found.Timestamp) {
			found = e
			ok = true
		}
	}
	return found, ok
}

// HasEvent reports whether any event in names was recorded.
func (j *Journey) HasEvent(names ...string) bool {
	for _, e := range j.Events {
		for _, n := range names {
			if e.Name == n {
				return true
			}
		}
	}
	return false
}

// ConversionTime is the timestamp of the first event in names, falling
// back to LastTouch.
func (j *Journey) ConversionTime(names ...string) time.Time {
	var t time.Time
	for _, n := range names {
		if e, ok := j.FirstEvent(n); ok && (t.IsZero() || e.Timestamp.Before(t)) {
			t = e.Timestamp
		}
	}
	if t.IsZero() {
		return j.LastTouch
	}
	return t
}
