package tracking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truecheckia/splitkit/internal/catalog"
	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/journey"
	"github.com/truecheckia/splitkit/internal/sink"
	"github.com/truecheckia/splitkit/internal/storage"
)

var fixed = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	tracker  *Tracker
	engine   *experiment.Engine
	results  *experiment.StorageResults
	sink     *sink.Recorder
	journeys *journey.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	reg := experiment.NewRegistry(storage.NewMemory(), nil)
	catalog.Register(ctx, reg)

	rec := &sink.Recorder{}
	results := experiment.NewStorageResults(storage.NewMemory())
	clock := func() time.Time { return fixed }
	eng := experiment.NewEngine(reg,
		experiment.WithResults(results),
		experiment.WithSink(rec),
		experiment.WithClock(clock),
	)
	journeys := journey.NewMemoryStore()

	return &fixture{
		tracker:  NewTracker(eng, WithSink(rec), WithJourneys(journeys), WithClock(clock)),
		engine:   eng,
		results:  results,
		sink:     rec,
		journeys: journeys,
	}
}

func visitor(sessionID string) experiment.Visitor {
	jar := experiment.NewMemoryJar()
	jar.Set(experiment.SessionCookie, sessionID, experiment.CookieMaxAge)
	return experiment.Visitor{
		Jar:     jar,
		URL:     "https://truecheckia.com/",
		Storage: storage.ForSession(storage.NewMemory(), sessionID),
	}
}

func TestTrackConversion_StampsAndForwards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := visitor("s-1")

	e := f.tracker.TrackConversion(ctx, v, journey.Event{Name: "custom", Properties: map[string]any{"k": "v"}})

	assert.Equal(t, "s-1", e.SessionID)
	assert.Equal(t, fixed, e.Timestamp)

	hits := f.sink.Named("custom")
	require.Len(t, hits, 1)
	assert.Equal(t, "s-1", hits[0].ClientID)
	assert.Equal(t, "v", hits[0].Params["k"])

	j, err := f.journeys.GetJourney(ctx, "s-1")
	require.NoError(t, err)
	assert.Len(t, j.Events, 1)
}

func TestTrackConversion_RingBufferBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := visitor("s-ring")

	for i := 0; i < MaxRecentEvents+25; i++ {
		f.tracker.TrackConversion(ctx, v, journey.Event{Name: fmt.Sprintf("e%d", i)})
	}

	events, err := f.tracker.RecentEvents(ctx, v)
	require.NoError(t, err)
	require.Len(t, events, MaxRecentEvents)
	assert.Equal(t, "e25", events[0].Name)
	assert.Equal(t, fmt.Sprintf("e%d", MaxRecentEvents+24), events[len(events)-1].Name)
}

func TestTrackConversion_RelaysToMatchingExperiments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := visitor("s-relay")

	f.tracker.TrackSignup(ctx, v, "user-1", "email")

	// signup counts for hero, cta and signup form (when allocated)
	for _, id := range []string{catalog.HeroHeadline, catalog.CTAButton} {
		results, err := f.results.Results(ctx, id)
		require.NoError(t, err)
		require.Len(t, results, 1, id)
		assert.Equal(t, catalog.MetricSignup, results[0].Metric)
		assert.Equal(t, 1.0, results[0].Value)
	}

	// pricing experiment targets subscriptions, not signups
	results, err := f.results.Results(ctx, catalog.PricingDisplay)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTrackConversion_RevenueIsResultValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := visitor("s-rev")

	f.tracker.TrackSubscription(ctx, v, "user-2", "pro", 19.99)

	results, err := f.results.Results(ctx, catalog.PricingDisplay)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 19.99, results[0].Value, 1e-9)

	hit := f.sink.Named(journey.EventSubscription)
	require.Len(t, hit, 1)
	assert.Equal(t, 19.99, hit[0].Params["value"])
	assert.Equal(t, "USD", hit[0].Params["currency"])
}

func TestTrackConversion_CustomMetrics(t *testing.T) {
	f := newFixture(t)
	f.tracker = NewTracker(f.engine, WithMetrics(map[string][]string{
		catalog.MetricSignup: {journey.EventLogin},
	}))
	ctx := context.Background()
	v := visitor("s-metrics")

	f.tracker.TrackSignup(ctx, v, "u", "email")
	results, _ := f.results.Results(ctx, catalog.HeroHeadline)
	assert.Empty(t, results)

	f.tracker.TrackLogin(ctx, v, "u", "email")
	results, _ = f.results.Results(ctx, catalog.HeroHeadline)
	assert.Len(t, results, 1)
}

func TestTrackConversion_NoStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := visitor("s-nostore")
	v.Storage = nil

	f.tracker.TrackCTAClick(ctx, v, "hero", "above_fold")

	events, err := f.tracker.RecentEvents(ctx, v)
	assert.NoError(t, err)
	assert.Empty(t, events)
	assert.Len(t, f.sink.Named(journey.EventCTAClick), 1)
}

func TestWrappers_ShapeEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := visitor("s-wrap")

	cases := []struct {
		event journey.Event
		name  string
		prop  string
		want  any
	}{
		{f.tracker.TrackAnalysisCompleted(ctx, v, "u", 420, 0.87), journey.EventAnalysisCompleted, "word_count", 420},
		{f.tracker.TrackPricingView(ctx, v, "u", "navbar"), journey.EventPricingView, "source", "navbar"},
		{f.tracker.TrackCheckoutStarted(ctx, v, "u", "pro", 29), journey.EventCheckoutStarted, "plan", "pro"},
		{f.tracker.TrackTrialStarted(ctx, v, "u", "pro"), journey.EventTrialStarted, "plan", "pro"},
		{f.tracker.TrackPageView(ctx, v, "", "/pricing"), journey.EventPageView, "page_path", "/pricing"},
		{f.tracker.TrackSignupClick(ctx, v, "hero"), journey.EventSignupClick, "location", "hero"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.name, tc.event.Name)
		assert.Equal(t, tc.want, tc.event.Properties[tc.prop], tc.name)
	}
}

func TestParseAttribution(t *testing.T) {
	cases := []struct {
		name     string
		url      string
		referrer string
		source   string
		medium   string
	}{
		{"utm", "https://truecheckia.com/?utm_source=newsletter&utm_medium=email&utm_campaign=may", "", "newsletter", "email"},
		{"gclid", "https://truecheckia.com/?gclid=abc", "https://www.google.com/", "google", "cpc"},
		{"organic", "https://truecheckia.com/blog", "https://www.google.co.uk/search?q=ai", "google", "organic"},
		{"referral", "https://truecheckia.com/", "https://news.ycombinator.com/item?id=1", "news.ycombinator.com", "referral"},
		{"direct", "https://truecheckia.com/", "", "direct", "none"},
		{"self referral", "https://truecheckia.com/pricing", "https://truecheckia.com/", "direct", "none"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := ParseAttribution(tc.url, tc.referrer)
			require.NoError(t, err)
			assert.Equal(t, tc.source, a.Source)
			assert.Equal(t, tc.medium, a.Medium)
		})
	}

	_, err := ParseAttribution("://bad", "")
	assert.Error(t, err)
}

func TestCaptureAttribution_JourneyKeepsFirstSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := visitor("s-attr")

	_, err := f.tracker.CaptureAttribution(ctx, v, "https://truecheckia.com/?utm_source=twitter&utm_medium=social&utm_campaign=launch", "")
	require.NoError(t, err)
	_, err = f.tracker.CaptureAttribution(ctx, v, "https://truecheckia.com/?utm_source=twitter&utm_medium=social&utm_campaign=launch", "")
	require.NoError(t, err)
	_, err = f.tracker.CaptureAttribution(ctx, v, "https://truecheckia.com/?gclid=x", "")
	require.NoError(t, err)

	j, err := f.journeys.GetJourney(ctx, "s-attr")
	require.NoError(t, err)
	require.NotNil(t, j.Attribution)
	assert.Equal(t, "twitter", j.Attribution.Source)
	require.Len(t, j.Touchpoints, 2)
	assert.Equal(t, journey.ChannelSocial, j.Touchpoints[0].Channel)
	assert.Equal(t, journey.ChannelPaidSearch, j.Touchpoints[1].Channel)

	last, ok := f.tracker.LastAttribution(ctx, v)
	require.True(t, ok)
	assert.Equal(t, "google", last.Source)
}

func TestClearData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := visitor("s-clear")

	f.tracker.CaptureAttribution(ctx, v, "https://truecheckia.com/", "")
	f.tracker.TrackSignup(ctx, v, "u", "email")

	require.NoError(t, f.tracker.ClearData(ctx, v))

	events, err := f.tracker.RecentEvents(ctx, v)
	require.NoError(t, err)
	assert.Empty(t, events)
	_, ok := f.tracker.LastAttribution(ctx, v)
	assert.False(t, ok)
	_, err = f.journeys.GetJourney(ctx, "s-clear")
	assert.ErrorIs(t, err, journey.ErrNotFound)
}

// slowStorage widens the gap between reading and writing the events buffer.
type slowStorage struct {
	storage.Storage
}

func (s slowStorage) Get(ctx context.Context, key string) (string, error) {
	time.Sleep(time.Millisecond)
	return s.Storage.Get(ctx, key)
}

func TestTrackConversion_ConcurrentEventsAllBuffered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := visitor("s-burst")
	v.Storage = slowStorage{v.Storage}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.tracker.TrackConversion(ctx, v, journey.Event{Name: fmt.Sprintf("beacon%d", i), SessionID: "s-burst"})
		}(i)
	}
	wg.Wait()

	events, err := f.tracker.RecentEvents(ctx, v)
	require.NoError(t, err)
	assert.Len(t, events, n)
	assert.Empty(t, f.tracker.sessions.locks)
}
