package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []Event
	block chan struct{}
	err   error
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(_ context.Context, e Event) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e)
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestAsync_CloseDrainsQueue(t *testing.T) {
	s := &fakeSender{}
	a := NewAsync(s, WithRateLimit(0, 0))

	for i := 0; i < 50; i++ {
		a.Track(context.Background(), Event{Name: "page_view"})
	}
	require.NoError(t, a.Close())

	assert.Equal(t, 50, s.count())
}

func TestAsync_DropsWhenFull(t *testing.T) {
	s := &fakeSender{block: make(chan struct{})}
	a := NewAsync(s, WithQueueSize(2), WithRateLimit(0, 0))

	for i := 0; i < 10; i++ {
		a.Track(context.Background(), Event{Name: "cta_click"})
	}
	close(s.block)
	require.NoError(t, a.Close())

	// one in flight plus the queue capacity at most
	assert.LessOrEqual(t, s.count(), 3)
	assert.GreaterOrEqual(t, s.count(), 2)
}

func TestAsync_TrackAfterCloseIsIgnored(t *testing.T) {
	s := &fakeSender{}
	a := NewAsync(s)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	a.Track(context.Background(), Event{Name: "late"})
	assert.Equal(t, 0, s.count())
}

func TestAsync_SendErrorsAreSwallowed(t *testing.T) {
	s := &fakeSender{err: errors.New("boom")}
	a := NewAsync(s, WithRateLimit(0, 0))

	a.Track(context.Background(), Event{Name: "x"})
	require.NoError(t, a.Close())
	assert.Equal(t, 1, s.count())
}

func TestAsync_ZeroBurstStillDelivers(t *testing.T) {
	s := &fakeSender{}
	core, logs := observer.New(zap.WarnLevel)
	a := NewAsync(s, WithRateLimit(1000, 0), WithAsyncLogger(zap.New(core)))

	for i := 0; i < 3; i++ {
		a.Track(context.Background(), Event{Name: "page_view"})
	}
	require.NoError(t, a.Close())

	assert.Equal(t, 3, s.count())
	assert.Zero(t, logs.Len())
}

func TestGA4_Send(t *testing.T) {
	var (
		query url.Values
		body  map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	g := NewGA4(GA4Config{MeasurementID: "G-TEST", APISecret: "secret", Endpoint: srv.URL + "/mp/collect"})
	err := g.Send(context.Background(), Event{
		Name:      "user_signup",
		ClientID:  "session-1",
		UserID:    "user-1",
		Params:    map[string]any{"method": "email"},
		Timestamp: time.Unix(1700000000, 0),
	})
	require.NoError(t, err)

	assert.Equal(t, "G-TEST", query.Get("measurement_id"))
	assert.Equal(t, "secret", query.Get("api_secret"))
	assert.Equal(t, "session-1", body["client_id"])
	assert.Equal(t, "user-1", body["user_id"])
	events := body["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "user_signup", events[0].(map[string]any)["name"])
}

func TestGA4_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad secret", http.StatusForbidden)
	}))
	defer srv.Close()

	g := NewGA4(GA4Config{Endpoint: srv.URL})
	err := g.Send(context.Background(), Event{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestPostHog_Send(t *testing.T) {
	var (
		path string
		body posthogPayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPostHog(PostHogConfig{APIKey: "phc_test", Host: srv.URL + "/"})
	err := p.Send(context.Background(), Event{Name: "cta_click", ClientID: "session-9", Params: map[string]any{"cta_id": "hero"}})
	require.NoError(t, err)

	assert.Equal(t, "/capture/", path)
	assert.Equal(t, "phc_test", body.APIKey)
	assert.Equal(t, "session-9", body.DistinctID)
	assert.Equal(t, "hero", body.Properties["cta_id"])
}

func TestAsync_WithHTTPSender(t *testing.T) {
	var (
		mu   sync.Mutex
		hits int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
	}))
	defer srv.Close()

	a := NewAsync(NewPostHog(PostHogConfig{APIKey: "k", Host: srv.URL}), WithRateLimit(1000, 10))
	for i := 0; i < 5; i++ {
		a.Track(context.Background(), Event{Name: "page_view", ClientID: "s"})
	}
	require.NoError(t, a.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, hits)
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, b, Nop{}, Log{}}

	m.Track(context.Background(), Event{Name: "one"})
	m.Track(context.Background(), Event{Name: "two"})
	require.NoError(t, m.Close())

	assert.Len(t, a.Events(), 2)
	assert.Len(t, b.Named("two"), 1)
}
