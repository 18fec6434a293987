package tracking

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/journey"
	"github.com/truecheckia/splitkit/internal/storage"
)

// AttributionKey holds the last attribution snapshot of a visitor.
const AttributionKey = "truecheckia_attribution"

// ParseAttribution derives traffic source data from a landing URL and its
// referrer. UTM parameters win; a gclid without utm_source is paid Google
// traffic; otherwise the referrer decides between organic search, referral
// and direct.
func ParseAttribution(rawURL, referrer string) (journey.Attribution, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return journey.Attribution{}, fmt.Errorf("failed to parse landing url: %w", err)
	}
	q := u.Query()

	a := journey.Attribution{
		Source:      q.Get("utm_source"),
		Medium:      q.Get("utm_medium"),
		Campaign:    q.Get("utm_campaign"),
		Term:        q.Get("utm_term"),
		Content:     q.Get("utm_content"),
		GCLID:       q.Get("gclid"),
		Referrer:    referrer,
		LandingPage: u.Path,
	}
	if a.LandingPage == "" {
		a.LandingPage = "/"
	}

	switch {
	case a.Source != "":
	case a.GCLID != "":
		a.Source, a.Medium = "google", "cpc"
	default:
		host := journey.RefererHost(referrer)
		self := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		switch {
		case host == "" || host == self:
			a.Source, a.Medium = "direct", "none"
		case journey.IsSearchEngine(host):
			a.Source, a.Medium = journey.SearchEngineName(host), "organic"
		default:
			a.Source, a.Medium = host, "referral"
		}
	}
	return a, nil
}

// CaptureAttribution records where the visitor came from. The snapshot in
// visitor storage is overwritten on every capture; the journey keeps the
// first one and gains a touchpoint whenever the channel changes.
func (t *Tracker) CaptureAttribution(ctx context.Context, v experiment.Visitor, rawURL, referrer string) (journey.Attribution, error) {
	a, err := ParseAttribution(rawURL, referrer)
	if err != nil {
		return journey.Attribution{}, err
	}
	a.CapturedAt = t.now()

	if v.Storage != nil {
		if err := storage.SetJSON(ctx, v.Storage, AttributionKey, a); err != nil {
			t.logger.Warn("failed to store attribution", zap.Error(err))
		}
	}
	if t.journeys == nil {
		return a, nil
	}

	sessionID := t.engine.SessionID(v)
	if _, err := t.journeys.SetAttribution(ctx, sessionID, a); err != nil {
		t.logger.Warn("failed to set journey attribution", zap.String("session", sessionID), zap.Error(err))
	}
	tp := journey.Touchpoint{
		Channel:   journey.ClassifyChannel(a.Source, a.Medium),
		Source:    a.Source,
		Medium:    a.Medium,
		Campaign:  a.Campaign,
		Timestamp: a.CapturedAt,
	}
	if err := t.journeys.AddTouchpoint(ctx, sessionID, tp); err != nil {
		t.logger.Warn("failed to add touchpoint", zap.String("session", sessionID), zap.Error(err))
	}
	return a, nil
}

// LastAttribution returns the visitor's latest snapshot.
func (t *Tracker) LastAttribution(ctx context.Context, v experiment.Visitor) (journey.Attribution, bool) {
	if v.Storage == nil {
		return journey.Attribution{}, false
	}
	var a journey.Attribution
	if err := storage.GetJSON(ctx, v.Storage, AttributionKey, &a); err != nil {
		return journey.Attribution{}, false
	}
	return a, true
}
