package journey

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestJourney_AppendTracksTotals(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rev := 29.0

	var j Journey
	j.SessionID = "s1"
	j.Append(Event{Name: "page_view", SessionID: "s1", Timestamp: base.Add(time.Minute)})
	j.Append(Event{Name: "subscription_created", SessionID: "s1", UserID: "u1", Timestamp: base.Add(time.Hour), Revenue: &rev})
	j.Append(Event{Name: "landing", SessionID: "s1", Timestamp: base})

	if j.TotalRevenue != 29 {
		t.Errorf("TotalRevenue = %v, want 29", j.TotalRevenue)
	}
	if !j.FirstTouch.Equal(base) {
		t.Errorf("FirstTouch = %v, want %v", j.FirstTouch, base)
	}
	if !j.LastTouch.Equal(base.Add(time.Hour)) {
		t.Errorf("LastTouch = %v", j.LastTouch)
	}
	if j.Identity() != "u1" {
		t.Errorf("Identity = %s, want u1", j.Identity())
	}
	if got := j.SortedEvents()[0].Name; got != "landing" {
		t.Errorf("first sorted event = %s, want landing", got)
	}
}

func TestJourney_AddTouchpointSkipsRepeats(t *testing.T) {
	var j Journey
	tp := Touchpoint{Channel: ChannelPaidSearch, Source: "google", Medium: "cpc"}
	if !j.AddTouchpoint(tp) {
		t.Fatal("first touchpoint should be added")
	}
	if j.AddTouchpoint(tp) {
		t.Error("repeated touchpoint should be skipped")
	}
	if !j.AddTouchpoint(Touchpoint{Channel: ChannelEmail, Source: "newsletter", Medium: "email"}) {
		t.Error("new channel should be added")
	}
	if len(j.Touchpoints) != 2 {
		t.Errorf("got %d touchpoints, want 2", len(j.Touchpoints))
	}
}

func TestClassifyChannel(t *testing.T) {
	cases := []struct {
		source, medium, want string
	}{
		{"", "", ChannelDirect},
		{"direct", "none", ChannelDirect},
		{"google", "cpc", ChannelPaidSearch},
		{"google", "organic", ChannelOrganicSearch},
		{"newsletter", "email", ChannelEmail},
		{"facebook.com", "referral", ChannelSocial},
		{"producthunt.com", "referral", ChannelReferral},
		{"partner", "affiliate", ChannelAffiliate},
		{"something", "weird", ChannelOther},
	}
	for _, c := range cases {
		if got := ClassifyChannel(c.source, c.medium); got != c.want {
			t.Errorf("ClassifyChannel(%q, %q) = %q, want %q", c.source, c.medium, got, c.want)
		}
	}
}

func TestMemoryStore_AttributionSetOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.SetAttribution(ctx, "s1", Attribution{Source: "google"})
	if err != nil || !created {
		t.Fatalf("first SetAttribution = %v, %v", created, err)
	}
	created, _ = s.SetAttribution(ctx, "s1", Attribution{Source: "bing"})
	if created {
		t.Error("second SetAttribution should not overwrite")
	}
	j, _ := s.GetJourney(ctx, "s1")
	if j.Attribution.Source != "google" {
		t.Errorf("Source = %s, want google", j.Attribution.Source)
	}
}

func TestMemoryStore_ListJourneysRange(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	day := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	s.AppendEvent(ctx, Event{Name: "page_view", SessionID: "old", Timestamp: day.AddDate(0, 0, -5)})
	s.AppendEvent(ctx, Event{Name: "page_view", SessionID: "new", Timestamp: day.Add(time.Hour)})

	got, err := s.ListJourneys(ctx, day, time.Time{})
	if err != nil {
		t.Fatalf("ListJourneys: %v", err)
	}
	if len(got) != 1 || got[0].SessionID != "new" {
		t.Errorf("unexpected journeys: %+v", got)
	}
}

func TestDecode(t *testing.T) {
	input := `[{"session_id":"s1","events":[
		{"name":"page_view","timestamp":"2026-01-01T10:00:00Z"},
		{"name":"subscription_created","timestamp":"2026-01-02T10:00:00Z","revenue":19.5}
	]}]`

	js, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(js) != 1 {
		t.Fatalf("got %d journeys", len(js))
	}
	j := js[0]
	if j.TotalRevenue != 19.5 {
		t.Errorf("TotalRevenue = %v", j.TotalRevenue)
	}
	if j.Events[0].SessionID != "s1" {
		t.Errorf("event session id not filled: %q", j.Events[0].SessionID)
	}

	if _, err := Decode(strings.NewReader(`[{"events":[]}]`)); err == nil {
		t.Error("expected error for missing session_id")
	}
}

func TestDecode_DefaultsMissingTouchTimes(t *testing.T) {
	input := `[{"session_id":"s1",
		"attribution":{"source":"google","medium":"cpc"},
		"touchpoints":[{"channel":"Paid Search","source":"google","medium":"cpc"}],
		"events":[{"name":"user_signup","timestamp":"2026-05-01T09:00:00Z","revenue":10}]
	}]`

	js, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	j := js[0]
	if !j.Attribution.CapturedAt.Equal(want) {
		t.Errorf("CapturedAt = %v, want %v", j.Attribution.CapturedAt, want)
	}
	if !j.Touchpoints[0].Timestamp.Equal(want) {
		t.Errorf("touchpoint Timestamp = %v, want %v", j.Touchpoints[0].Timestamp, want)
	}
}

func TestMemoryStore_ReturnsIndependentCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	s.AppendEvent(ctx, Event{Name: "page_view", SessionID: "s1", Timestamp: at})
	s.AddTouchpoint(ctx, "s1", Touchpoint{Channel: ChannelEmail, Source: "newsletter", Timestamp: at})
	s.SetAttribution(ctx, "s1", Attribution{Source: "newsletter"})

	got, _ := s.GetJourney(ctx, "s1")
	got.Events[0].Name = "mutated"
	got.Touchpoints[0].Channel = "mutated"
	got.Attribution.Source = "mutated"

	listed, _ := s.ListJourneys(ctx, time.Time{}, time.Time{})
	listed[0].Events[0].Name = "mutated too"

	again, _ := s.GetJourney(ctx, "s1")
	if again.Events[0].Name != "page_view" {
		t.Errorf("event name = %q, store was modified through a copy", again.Events[0].Name)
	}
	if again.Touchpoints[0].Channel != ChannelEmail {
		t.Errorf("channel = %q, store was modified through a copy", again.Touchpoints[0].Channel)
	}
	if again.Attribution.Source != "newsletter" {
		t.Errorf("source = %q, store was modified through a copy", again.Attribution.Source)
	}
}
