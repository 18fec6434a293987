package tracking

import (
	"context"

	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/journey"
)

func (t *Tracker) track(ctx context.Context, v experiment.Visitor, name, userID string, props map[string]any, revenue *float64) journey.Event {
	return t.TrackConversion(ctx, v, journey.Event{
		Name:       name,
		UserID:     userID,
		Properties: props,
		Revenue:    revenue,
	})
}

func (t *Tracker) TrackPageView(ctx context.Context, v experiment.Visitor, userID, path string) journey.Event {
	return t.track(ctx, v, journey.EventPageView, userID, map[string]any{"page_path": path}, nil)
}

func (t *Tracker) TrackSignupClick(ctx context.Context, v experiment.Visitor, location string) journey.Event {
	return t.track(ctx, v, journey.EventSignupClick, "", map[string]any{"location": location}, nil)
}

// TrackSignup records an account creation. method is "email", "google"...
func (t *Tracker) TrackSignup(ctx context.Context, v experiment.Visitor, userID, method string) journey.Event {
	return t.track(ctx, v, journey.EventSignup, userID, map[string]any{"method": method}, nil)
}

func (t *Tracker) TrackLogin(ctx context.Context, v experiment.Visitor, userID, method string) journey.Event {
	return t.track(ctx, v, journey.EventLogin, userID, map[string]any{"method": method}, nil)
}

// TrackSubscription records a paid plan purchase. amount becomes the event
// revenue.
func (t *Tracker) TrackSubscription(ctx context.Context, v experiment.Visitor, userID, plan string, amount float64) journey.Event {
	return t.track(ctx, v, journey.EventSubscription, userID, map[string]any{"plan": plan}, &amount)
}

func (t *Tracker) TrackAnalysisCompleted(ctx context.Context, v experiment.Visitor, userID string, wordCount int, aiProbability float64) journey.Event {
	return t.track(ctx, v, journey.EventAnalysisCompleted, userID, map[string]any{
		"word_count":     wordCount,
		"ai_probability": aiProbability,
	}, nil)
}

func (t *Tracker) TrackPricingView(ctx context.Context, v experiment.Visitor, userID, source string) journey.Event {
	return t.track(ctx, v, journey.EventPricingView, userID, map[string]any{"source": source}, nil)
}

func (t *Tracker) TrackCheckoutStarted(ctx context.Context, v experiment.Visitor, userID, plan string, amount float64) journey.Event {
	return t.track(ctx, v, journey.EventCheckoutStarted, userID, map[string]any{"plan": plan, "amount": amount}, nil)
}

func (t *Tracker) TrackTrialStarted(ctx context.Context, v experiment.Visitor, userID, plan string) journey.Event {
	return t.track(ctx, v, journey.EventTrialStarted, userID, map[string]any{"plan": plan}, nil)
}

func (t *Tracker) TrackCTAClick(ctx context.Context, v experiment.Visitor, ctaID, location string) journey.Event {
	return t.track(ctx, v, journey.EventCTAClick, "", map[string]any{"cta_id": ctaID, "location": location}, nil)
}
