// Package catalog declares the experiments the marketing site ships with.
package catalog

import (
	"context"

	"github.com/truecheckia/splitkit/internal/experiment"
)

// Experiment ids.
const (
	HeroHeadline   = "hero_headline"
	CTAButton      = "cta_button"
	PricingDisplay = "pricing_display"
	SignupForm     = "signup_form"
	SocialProof    = "social_proof"
)

// Target metrics used by the catalog. The tracker maps each of them to the
// conversion events that count towards it.
const (
	MetricSignup       = "signup_conversion"
	MetricSubscription = "subscription_conversion"
	MetricAnalysis     = "analysis_engagement"
	MetricPricing      = "pricing_conversion"
)

// Experiments returns fresh copies of the built-in experiments, in display
// order. All of them start running.
func Experiments() []experiment.Experiment {
	return []experiment.Experiment{
		{
			ID:                HeroHeadline,
			Name:              "Hero Headline",
			Description:       "Landing page hero copy",
			Kind:              experiment.KindHeadline,
			Status:            experiment.StatusRunning,
			TrafficAllocation: 100,
			TargetMetric:      MetricSignup,
			Variants: []experiment.Variant{
				{ID: "control", Name: "Control", Weight: 34, IsControl: true, Config: experiment.HeadlineConfig{
					Headline:    "Detect AI-generated text in seconds",
					Subheadline: "Check essays, articles and reports with 95% accuracy",
				}},
				{ID: "benefit", Name: "Benefit", Weight: 33, Config: experiment.HeadlineConfig{
					Headline:    "Know what's human. Know what's AI.",
					Subheadline: "Trusted by teachers, editors and recruiters",
					BadgeText:   "New",
				}},
				{ID: "urgency", Name: "Urgency", Weight: 33, Config: experiment.HeadlineConfig{
					Headline:    "Stop AI plagiarism before it costs you",
					Subheadline: "Free analysis, no credit card required",
				}},
			},
		},
		{
			ID:                CTAButton,
			Name:              "CTA Button",
			Description:       "Primary call to action on the landing page",
			Kind:              experiment.KindCTA,
			Status:            experiment.StatusRunning,
			TrafficAllocation: 100,
			TargetMetric:      MetricSignup,
			Variants: []experiment.Variant{
				{ID: "control", Name: "Control", Weight: 50, IsControl: true, Config: experiment.CTAConfig{
					ButtonText:  "Start for free",
					ButtonColor: "blue",
					ButtonSize:  "md",
				}},
				{ID: "action", Name: "Action", Weight: 50, Config: experiment.CTAConfig{
					ButtonText:  "Analyze my text now",
					ButtonColor: "green",
					ButtonSize:  "lg",
					ShowArrow:   true,
				}},
			},
		},
		{
			ID:                PricingDisplay,
			Name:              "Pricing Display",
			Description:       "Default billing period and highlighted plan",
			Kind:              experiment.KindPricing,
			Status:            experiment.StatusRunning,
			TrafficAllocation: 100,
			TargetMetric:      MetricSubscription,
			Variants: []experiment.Variant{
				{ID: "control", Name: "Monthly", Weight: 50, IsControl: true, Config: experiment.PricingConfig{
					DefaultBilling: "monthly",
					HighlightPlan:  "pro",
				}},
				{ID: "annual", Name: "Annual first", Weight: 50, Config: experiment.PricingConfig{
					DefaultBilling:        "annual",
					HighlightPlan:         "pro",
					ShowDiscountBadge:     true,
					AnnualDiscountPercent: 20,
				}},
			},
		},
		{
			ID:                SignupForm,
			Name:              "Signup Form",
			Description:       "Number of fields on the registration form",
			Kind:              experiment.KindSignupForm,
			Status:            experiment.StatusRunning,
			TrafficAllocation: 50,
			TargetMetric:      MetricSignup,
			Variants: []experiment.Variant{
				{ID: "control", Name: "Full", Weight: 50, IsControl: true, Config: experiment.SignupFormConfig{
					Fields:     []string{"name", "email", "password"},
					ButtonText: "Create account",
				}},
				{ID: "minimal", Name: "Minimal", Weight: 50, Config: experiment.SignupFormConfig{
					Fields:      []string{"email", "password"},
					SocialLogin: true,
					ButtonText:  "Get started",
				}},
			},
		},
		{
			ID:                SocialProof,
			Name:              "Social Proof",
			Description:       "Testimonials and user counts near the CTA",
			Kind:              experiment.KindSocialProof,
			Status:            experiment.StatusRunning,
			TrafficAllocation: 100,
			TargetMetric:      MetricAnalysis,
			Variants: []experiment.Variant{
				{ID: "control", Name: "None", Weight: 34, IsControl: true, Config: experiment.SocialProofConfig{
					Placement: "none",
				}},
				{ID: "testimonials", Name: "Testimonials", Weight: 33, Config: experiment.SocialProofConfig{
					Placement:        "below_hero",
					ShowTestimonials: true,
				}},
				{ID: "user_count", Name: "User count", Weight: 33, Config: experiment.SocialProofConfig{
					Placement:     "above_cta",
					ShowUserCount: true,
					UserCountText: "Join 10,000+ educators",
				}},
			},
		},
	}
}

// GetVariantConfig returns the config of one variant. A missing variant
// yields the empty config of the experiment's kind; an unknown experiment
// yields nil.
func GetVariantConfig(experimentID, variantID string) experiment.VariantConfig {
	for _, exp := range Experiments() {
		if exp.ID != experimentID {
			continue
		}
		if v, ok := exp.Variant(variantID); ok && v.Config != nil {
			return v.Config
		}
		cfg, _ := experiment.EmptyConfig(exp.Kind)
		return cfg
	}
	return nil
}

// GetExperimentByName looks an experiment up by its display name.
func GetExperimentByName(name string) (experiment.Experiment, bool) {
	for _, exp := range Experiments() {
		if exp.Name == name {
			return exp, true
		}
	}
	return experiment.Experiment{}, false
}

// Register adds every catalog experiment to r.
func Register(ctx context.Context, r *experiment.Registry) {
	for _, exp := range Experiments() {
		r.Register(ctx, exp)
	}
}
