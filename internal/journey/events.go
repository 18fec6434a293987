package journey

// Conversion event names emitted by the site.
const (
	EventPageView          = "page_view"
	EventSignupClick       = "signup_click"
	EventSignup            = "user_signup"
	EventLogin             = "user_login"
	EventAnalysisCompleted = "analysis_completed"
	EventPricingView       = "pricing_view"
	EventCheckoutStarted   = "checkout_started"
	EventTrialStarted      = "trial_started"
	EventSubscription      = "subscription_created"
	EventCTAClick          = "cta_click"
)
