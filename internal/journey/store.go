package journey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a session has no journey.
var ErrNotFound = errors.New("journey not found")

// Store persists journeys.
type Store interface {
	AppendEvent(ctx context.Context, e Event) error
	// SetAttribution records attribution for a session. It reports false
	// when the session already had one, leaving it unchanged.
	SetAttribution(ctx context.Context, sessionID string, a Attribution) (bool, error)
	AddTouchpoint(ctx context.Context, sessionID string, tp Touchpoint) error
	GetJourney(ctx context.Context, sessionID string) (*Journey, error)
	// ListJourneys returns journeys whose first touch falls in [from, to).
	// Zero bounds are open.
	ListJourneys(ctx context.Context, from, to time.Time) ([]*Journey, error)
	DeleteJourney(ctx context.Context, sessionID string) error
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	journeys map[string]*Journey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{journeys: make(map[string]*Journey)}
}

func (m *MemoryStore) journey(sessionID string) *Journey {
	j, ok := m.journeys[sessionID]
	if !ok {
		j = &Journey{SessionID: sessionID}
		m.journeys[sessionID] = j
	}
	return j
}

func (m *MemoryStore) AppendEvent(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.journey(e.SessionID).Append(e)
	return nil
}

func (m *MemoryStore) SetAttribution(_ context.Context, sessionID string, a Attribution) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.journey(sessionID)
	if j.Attribution != nil {
		return false, nil
	}
	j.Attribution = &a
	return true, nil
}

func (m *MemoryStore) AddTouchpoint(_ context.Context, sessionID string, tp Touchpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.journey(sessionID).AddTouchpoint(tp)
	return nil
}

func (m *MemoryStore) GetJourney(_ context.Context, sessionID string) (*Journey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.journeys[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return j.clone(), nil
}

func (m *MemoryStore) ListJourneys(_ context.Context, from, to time.Time) ([]*Journey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Journey, 0, len(m.journeys))
	for _, j := range m.journeys {
		if !InRange(j.FirstTouch, from, to) {
			continue
		}
		out = append(out, j.clone())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].FirstTouch.Before(out[b].FirstTouch) })
	return out, nil
}

func (m *MemoryStore) DeleteJourney(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.journeys, sessionID)
	return nil
}

// InRange reports whether t lies in [from, to); zero bounds are open.
func InRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// Decode reads a JSON array of journeys, filling in totals and touch
// timestamps that the file leaves out.
func Decode(r io.Reader) ([]*Journey, error) {
	var raw []*Journey
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode journeys: %w", err)
	}

	out := make([]*Journey, 0, len(raw))
	for i, j := range raw {
		if j.SessionID == "" {
			return nil, fmt.Errorf("journey %d: session_id is required", i)
		}
		norm := &Journey{
			SessionID:  j.SessionID,
			UserID:     j.UserID,
			FirstTouch: j.FirstTouch,
		}
		for _, e := range j.Events {
			if e.SessionID == "" {
				e.SessionID = j.SessionID
			}
			norm.Append(e)
		}
		if norm.TotalRevenue == 0 {
			norm.TotalRevenue = j.TotalRevenue
		}

		if j.Attribution != nil {
			a := *j.Attribution
			if a.CapturedAt.IsZero() {
				a.CapturedAt = norm.FirstTouch
			}
			norm.Attribution = &a
		}
		for _, tp := range j.Touchpoints {
			if tp.Timestamp.IsZero() {
				tp.Timestamp = norm.FirstTouch
			}
			norm.Touchpoints = append(norm.Touchpoints, tp)
		}
		out = append(out, norm)
	}
	return out, nil
}

// Import writes decoded journeys into st.
func Import(ctx context.Context, st Store, journeys []*Journey) error {
	for _, j := range journeys {
		if j.Attribution != nil {
			if _, err := st.SetAttribution(ctx, j.SessionID, *j.Attribution); err != nil {
				return fmt.Errorf("failed to import attribution of %s: %w", j.SessionID, err)
			}
		}
		for _, tp := range j.Touchpoints {
			if err := st.AddTouchpoint(ctx, j.SessionID, tp); err != nil {
				return fmt.Errorf("failed to import touchpoint of %s: %w", j.SessionID, err)
			}
		}
		for _, e := range j.Events {
			e.SessionID = j.SessionID
			if e.UserID == "" {
				e.UserID = j.UserID
			}
			if err := st.AppendEvent(ctx, e); err != nil {
				return fmt.Errorf("failed to import event of %s: %w", j.SessionID, err)
			}
		}
	}
	return nil
}
