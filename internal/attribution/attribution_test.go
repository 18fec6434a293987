package attribution

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truecheckia/splitkit/internal/journey"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func tp(channel string, at time.Time) journey.Touchpoint {
	return journey.Touchpoint{Channel: channel, Source: channel, Timestamp: at}
}

func TestModels_SingleTouchpointGetsEverything(t *testing.T) {
	a := NewAnalyzer()
	tps := []journey.Touchpoint{tp(journey.ChannelEmail, t0)}

	for _, m := range Models {
		credit, err := a.Attribute(m, tps, 100, t0.Add(72*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []float64{100}, credit, string(m))
	}
}

func TestPositionBased(t *testing.T) {
	three := []journey.Touchpoint{tp("a", t0), tp("b", t0), tp("c", t0)}
	assert.Equal(t, []float64{40, 20, 40}, PositionBasedCredit(three, 100))

	two := three[:2]
	assert.Equal(t, []float64{50, 50}, PositionBasedCredit(two, 100))

	five := append(three, tp("d", t0), tp("e", t0))
	credit := PositionBasedCredit(five, 100)
	assert.InDelta(t, 40, credit[0], 1e-9)
	assert.InDelta(t, 20.0/3, credit[2], 1e-9)
	assert.InDelta(t, 40, credit[4], 1e-9)

	assert.Empty(t, PositionBasedCredit(nil, 100))
}

func TestFirstLastLinear(t *testing.T) {
	tps := []journey.Touchpoint{tp("a", t0), tp("b", t0), tp("c", t0), tp("d", t0)}

	assert.Equal(t, []float64{80, 0, 0, 0}, FirstTouchCredit(tps, 80))
	assert.Equal(t, []float64{0, 0, 0, 80}, LastTouchCredit(tps, 80))
	assert.Equal(t, []float64{20, 20, 20, 20}, LinearCredit(tps, 80))
}

func TestTimeDecay_HalfLife(t *testing.T) {
	converted := t0.Add(DefaultHalfLife)
	tps := []journey.Touchpoint{tp("old", t0), tp("new", converted)}

	credit := TimeDecayCredit(tps, 90, converted, DefaultHalfLife)
	assert.InDelta(t, 30, credit[0], 1e-9)
	assert.InDelta(t, 60, credit[1], 1e-9)
}

func TestTimeDecay_MissingTimestamps(t *testing.T) {
	converted := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	single := TimeDecayCredit([]journey.Touchpoint{{Channel: journey.ChannelPaidSearch}}, 100, converted, DefaultHalfLife)
	assert.Equal(t, []float64{100}, single)

	// Both weights underflow to zero, so the value is split evenly.
	pair := TimeDecayCredit([]journey.Touchpoint{{Channel: "a"}, {Channel: "b"}}, 100, converted, DefaultHalfLife)
	assert.Equal(t, []float64{50, 50}, pair)
}

func TestAnalyzeChannels_TimeDecayWithoutCaptureTime(t *testing.T) {
	rev := 10.0
	j := &journey.Journey{
		SessionID:   "s1",
		Attribution: &journey.Attribution{Source: "google", Medium: "cpc"},
	}
	j.Append(journey.Event{Name: journey.EventSignup, SessionID: "s1", Timestamp: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC), Revenue: &rev})

	stats, err := NewAnalyzer().AnalyzeChannels([]*journey.Journey{j}, TimeDecay)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, journey.ChannelPaidSearch, stats[0].Channel)
	assert.Equal(t, 1.0, stats[0].Conversions)
	assert.Equal(t, 10.0, stats[0].Revenue)

	_, err = json.Marshal(stats)
	assert.NoError(t, err)
}

func TestAttribute_UnknownModel(t *testing.T) {
	_, err := NewAnalyzer().Attribute("magic", nil, 1, t0)
	assert.Error(t, err)

	_, err = ParseModel("magic")
	assert.Error(t, err)
	m, err := ParseModel("linear")
	require.NoError(t, err)
	assert.Equal(t, Linear, m)
}

func converted(id string, revenue float64, tps ...journey.Touchpoint) *journey.Journey {
	j := &journey.Journey{SessionID: id, Touchpoints: tps}
	j.Append(journey.Event{Name: journey.EventSignup, SessionID: id, Timestamp: t0.Add(24 * time.Hour)})
	if revenue > 0 {
		r := revenue
		j.Append(journey.Event{Name: journey.EventSubscription, SessionID: id, Timestamp: t0.Add(48 * time.Hour), Revenue: &r})
	}
	return j
}

func TestAnalyzeChannels(t *testing.T) {
	js := []*journey.Journey{
		converted("a", 100, tp(journey.ChannelSocial, t0), tp(journey.ChannelPaidSearch, t0.Add(time.Hour))),
		converted("b", 0, tp(journey.ChannelPaidSearch, t0)),
		// not converted
		{SessionID: "c", Touchpoints: []journey.Touchpoint{tp(journey.ChannelEmail, t0)}},
	}

	stats, err := NewAnalyzer().AnalyzeChannels(js, LastTouch)
	require.NoError(t, err)

	require.Len(t, stats, 2)
	assert.Equal(t, journey.ChannelPaidSearch, stats[0].Channel)
	assert.Equal(t, 2.0, stats[0].Conversions)
	assert.Equal(t, 100.0, stats[0].Revenue)
	assert.Equal(t, journey.ChannelSocial, stats[1].Channel)
	assert.Equal(t, 0.0, stats[1].Conversions)

	linear, err := NewAnalyzer().AnalyzeChannels(js, Linear)
	require.NoError(t, err)
	total := 0.0
	for _, s := range linear {
		total += s.Conversions
	}
	assert.InDelta(t, 2.0, total, 1e-9)
}

func TestAnalyzeChannels_FallsBackToAttribution(t *testing.T) {
	j := converted("a", 0)
	j.Attribution = &journey.Attribution{Source: "newsletter", Medium: "email", CapturedAt: t0}

	stats, err := NewAnalyzer().AnalyzeChannels([]*journey.Journey{j, converted("b", 0)}, FirstTouch)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	got := map[string]float64{}
	for _, s := range stats {
		got[s.Channel] = s.Conversions
	}
	assert.Equal(t, map[string]float64{journey.ChannelEmail: 1, journey.ChannelDirect: 1}, got)
}

func TestAnalyzeCampaigns(t *testing.T) {
	launch := journey.Touchpoint{Channel: journey.ChannelSocial, Source: "twitter", Medium: "social", Campaign: "launch", Timestamp: t0}
	js := []*journey.Journey{
		converted("a", 50, launch),
		converted("b", 0, tp(journey.ChannelDirect, t0)),
	}

	stats, err := NewAnalyzer().AnalyzeCampaigns(js, Linear)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "launch", stats[0].Campaign)
	assert.Equal(t, 1.0, stats[0].Conversions)
	assert.Equal(t, 50.0, stats[0].Revenue)
}

func TestCompareModels(t *testing.T) {
	js := []*journey.Journey{
		converted("a", 0, tp(journey.ChannelSocial, t0), tp(journey.ChannelEmail, t0.Add(time.Hour))),
	}

	reports, err := NewAnalyzer().CompareModels(js)
	require.NoError(t, err)
	require.Len(t, reports, len(Models))

	for _, r := range reports {
		if r.Model != FirstTouch {
			continue
		}
		for _, c := range r.Channels {
			if c.Channel == journey.ChannelSocial {
				assert.Equal(t, 1.0, c.Conversions)
			} else {
				assert.Equal(t, 0.0, c.Conversions)
			}
		}
	}
}

func TestTopConversionPaths(t *testing.T) {
	var js []*journey.Journey
	for i := 0; i < 3; i++ {
		js = append(js, converted(fmt.Sprintf("sp%d", i), 10, tp(journey.ChannelSocial, t0), tp(journey.ChannelPaidSearch, t0.Add(time.Hour))))
	}
	js = append(js, converted("e", 0, tp(journey.ChannelEmail, t0)))
	for i := 0; i < 25; i++ {
		// distinct single-touch paths to overflow the cap
		js = append(js, converted(fmt.Sprintf("x%d", i), 0, tp(fmt.Sprintf("Channel %02d", i), t0)))
	}

	paths := NewAnalyzer().TopConversionPaths(js)
	require.Len(t, paths, MaxPaths)
	assert.Equal(t, "Social > Paid Search", paths[0].Path)
	assert.Equal(t, 3, paths[0].Conversions)
	assert.Equal(t, 30.0, paths[0].Revenue)
	assert.Equal(t, 2.0, paths[0].AvgTouchpoints)
}

func TestTouchpoints_SortedByTime(t *testing.T) {
	j := &journey.Journey{Touchpoints: []journey.Touchpoint{tp("late", t0.Add(time.Hour)), tp("early", t0)}}
	got := Touchpoints(j)
	assert.Equal(t, "early", got[0].Channel)
	assert.Equal(t, "late", j.Touchpoints[0].Channel)
}
