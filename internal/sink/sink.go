// Package sink forwards analytics events to external collectors. Delivery
// is fire-and-forget: Track never blocks on the network and never reports
// delivery failures to the caller.
package sink

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one analytics hit.
type Event struct {
	Name      string
	ClientID  string
	UserID    string
	Params    map[string]any
	Timestamp time.Time
}

// Sink accepts analytics events.
type Sink interface {
	Track(ctx context.Context, e Event)
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Track(context.Context, Event) {}
func (Nop) Close() error                 { return nil }

// Multi fans events out to several sinks.
type Multi []Sink

func (m Multi) Track(ctx context.Context, e Event) {
	for _, s := range m {
		s.Track(ctx, e)
	}
}

func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Log writes events to a zap logger at debug level.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Track(_ context.Context, e Event) {
	if l.Logger == nil {
		return
	}
	l.Logger.Debug("analytics event",
		zap.String("event", e.Name),
		zap.String("client_id", e.ClientID),
		zap.String("user_id", e.UserID),
		zap.Any("params", e.Params),
	)
}

func (Log) Close() error { return nil }

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Track(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the recorded events called name.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
