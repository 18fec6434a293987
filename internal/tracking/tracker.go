// Package tracking records conversion events, forwards them to the
// analytics sink and credits them to running experiments.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/truecheckia/splitkit/internal/catalog"
	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/journey"
	"github.com/truecheckia/splitkit/internal/logger"
	"github.com/truecheckia/splitkit/internal/sink"
	"github.com/truecheckia/splitkit/internal/storage"
)

const (
	// EventsKey holds the visitor's recent conversion events.
	EventsKey = "truecheckia_conversion_events"
	// MaxRecentEvents bounds the recent events buffer.
	MaxRecentEvents = 100
)

// DefaultMetrics maps experiment target metrics to the events that count
// as a conversion for them.
func DefaultMetrics() map[string][]string {
	return map[string][]string{
		catalog.MetricSignup:       {journey.EventSignup},
		catalog.MetricSubscription: {journey.EventSubscription, journey.EventTrialStarted},
		catalog.MetricAnalysis:     {journey.EventAnalysisCompleted},
		catalog.MetricPricing:      {journey.EventCheckoutStarted, journey.EventSubscription},
	}
}

// Tracker records conversions for visitors.
type Tracker struct {
	engine   *experiment.Engine
	journeys journey.Store
	sink     sink.Sink
	metrics  map[string][]string
	logger   *zap.Logger
	now      func() time.Time

	// sessions serializes read-modify-write of a session's events buffer.
	sessions sessionLocks
}

type Option func(*Tracker)

func WithJourneys(s journey.Store) Option { return func(t *Tracker) { t.journeys = s } }
func WithSink(s sink.Sink) Option         { return func(t *Tracker) { t.sink = s } }
func WithLogger(l *zap.Logger) Option     { return func(t *Tracker) { t.logger = logger.OrNop(l) } }
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithMetrics replaces the metric to event mapping. Metrics missing from m
// never receive results.
func WithMetrics(m map[string][]string) Option {
	return func(t *Tracker) { t.metrics = m }
}

func NewTracker(engine *experiment.Engine, opts ...Option) *Tracker {
	t := &Tracker{
		engine:  engine,
		sink:    sink.Nop{},
		metrics: DefaultMetrics(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TrackConversion records e for the visitor. The session id and timestamp
// are filled in when missing. Storage failures are logged and never
// returned.
func (t *Tracker) TrackConversion(ctx context.Context, v experiment.Visitor, e journey.Event) journey.Event {
	if e.SessionID == "" {
		e.SessionID = t.engine.SessionID(v)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = t.now()
	}

	t.remember(ctx, v, e)

	if t.journeys != nil {
		if err := t.journeys.AppendEvent(ctx, e); err != nil {
			t.logger.Warn("failed to append journey event",
				zap.String("event", e.Name), zap.String("session", e.SessionID), zap.Error(err))
		}
	}

	t.sink.Track(ctx, sink.Event{
		Name:      e.Name,
		ClientID:  e.SessionID,
		UserID:    e.UserID,
		Params:    eventParams(e),
		Timestamp: e.Timestamp,
	})

	t.relay(ctx, v, e)
	return e
}

func eventParams(e journey.Event) map[string]any {
	params := make(map[string]any, len(e.Properties)+2)
	for k, val := range e.Properties {
		params[k] = val
	}
	if e.Revenue != nil {
		params["value"] = *e.Revenue
		if _, ok := params["currency"]; !ok {
			params["currency"] = "USD"
		}
	}
	return params
}

// relay credits e to every running experiment whose target metric counts
// this event.
func (t *Tracker) relay(ctx context.Context, v experiment.Visitor, e journey.Event) {
	value := 1.0
	if e.Revenue != nil {
		value = *e.Revenue
	}

	for _, exp := range t.engine.Registry().Running() {
		if !contains(t.metrics[exp.TargetMetric], e.Name) {
			continue
		}
		t.engine.TrackResult(ctx, v, exp.ID, e.UserID, exp.TargetMetric, value)
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (t *Tracker) remember(ctx context.Context, v experiment.Visitor, e journey.Event) {
	if v.Storage == nil {
		return
	}

	unlock := t.sessions.lock(e.SessionID)
	defer unlock()

	events, err := t.load(ctx, v.Storage)
	if err != nil {
		t.logger.Warn("failed to read recent events", zap.Error(err))
	}
	events = append(events, e)
	if len(events) > MaxRecentEvents {
		events = events[len(events)-MaxRecentEvents:]
	}
	if err := storage.SetJSON(ctx, v.Storage, EventsKey, events); err != nil {
		t.logger.Warn("failed to store recent events", zap.Error(err))
	}
}

// sessionLocks hands out one mutex per session id and drops it once no
// caller holds it.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func (s *sessionLocks) lock(id string) func() {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*sessionLock)
	}
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func (t *Tracker) load(ctx context.Context, st storage.Storage) ([]journey.Event, error) {
	var events []journey.Event
	err := storage.GetJSON(ctx, st, EventsKey, &events)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return events, err
}

// RecentEvents returns the visitor's buffered events, oldest first.
func (t *Tracker) RecentEvents(ctx context.Context, v experiment.Visitor) ([]journey.Event, error) {
	if v.Storage == nil {
		return nil, nil
	}
	return t.load(ctx, v.Storage)
}

// ClearData forgets everything recorded for the visitor: the events
// buffer, the attribution snapshot and the stored journey.
func (t *Tracker) ClearData(ctx context.Context, v experiment.Visitor) error {
	if v.Storage != nil {
		for _, key := range []string{EventsKey, AttributionKey} {
			if err := v.Storage.Remove(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("failed to remove %s: %w", key, err)
			}
		}
	}
	if t.journeys != nil {
		sessionID := t.engine.SessionID(v)
		if err := t.journeys.DeleteJourney(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete journey: %w", err)
		}
	}
	return nil
}
