package experiment

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind discriminates the variant configuration shape of an experiment.
type Kind string

const (
	KindHeadline    Kind = "headline"
	KindCTA         Kind = "cta"
	KindPricing     Kind = "pricing"
	KindSignupForm  Kind = "signup_form"
	KindSocialProof Kind = "social_proof"
)

// VariantConfig is implemented by the per-kind configuration structs.
type VariantConfig interface {
	Kind() Kind
}

type HeadlineConfig struct {
	Headline    string `json:"headline"`
	Subheadline string `json:"subheadline,omitempty"`
	BadgeText   string `json:"badge_text,omitempty"`
}

func (HeadlineConfig) Kind() Kind { return KindHeadline }

type CTAConfig struct {
	ButtonText  string `json:"button_text"`
	ButtonColor string `json:"button_color,omitempty"`
	ButtonSize  string `json:"button_size,omitempty"`
	ShowArrow   bool   `json:"show_arrow,omitempty"`
}

func (CTAConfig) Kind() Kind { return KindCTA }

type PricingConfig struct {
	DefaultBilling        string `json:"default_billing"` // "monthly" or "annual"
	HighlightPlan         string `json:"highlight_plan,omitempty"`
	ShowDiscountBadge     bool   `json:"show_discount_badge,omitempty"`
	AnnualDiscountPercent int    `json:"annual_discount_percent,omitempty"`
}

func (PricingConfig) Kind() Kind { return KindPricing }

type SignupFormConfig struct {
	Fields      []string `json:"fields"`
	SocialLogin bool     `json:"social_login,omitempty"`
	ButtonText  string   `json:"button_text,omitempty"`
}

func (SignupFormConfig) Kind() Kind { return KindSignupForm }

type SocialProofConfig struct {
	Placement        string `json:"placement"`
	ShowTestimonials bool   `json:"show_testimonials,omitempty"`
	ShowUserCount    bool   `json:"show_user_count,omitempty"`
	UserCountText    string `json:"user_count_text,omitempty"`
}

func (SocialProofConfig) Kind() Kind { return KindSocialProof }

// EmptyConfig returns the zero configuration for kind.
func EmptyConfig(kind Kind) (VariantConfig, error) {
	switch kind {
	case KindHeadline:
		return HeadlineConfig{}, nil
	case KindCTA:
		return CTAConfig{}, nil
	case KindPricing:
		return PricingConfig{}, nil
	case KindSignupForm:
		return SignupFormConfig{}, nil
	case KindSocialProof:
		return SocialProofConfig{}, nil
	}
	return nil, fmt.Errorf("unknown experiment kind %q", kind)
}

// DecodeConfig decodes a JSON configuration of the given kind.
func DecodeConfig(kind Kind, data []byte) (VariantConfig, error) {
	if len(data) == 0 || string(data) == "null" {
		return EmptyConfig(kind)
	}

	var (
		cfg VariantConfig
		err error
	)
	switch kind {
	case KindHeadline:
		var c HeadlineConfig
		err = json.Unmarshal(data, &c)
		cfg = c
	case KindCTA:
		var c CTAConfig
		err = json.Unmarshal(data, &c)
		cfg = c
	case KindPricing:
		var c PricingConfig
		err = json.Unmarshal(data, &c)
		cfg = c
	case KindSignupForm:
		var c SignupFormConfig
		err = json.Unmarshal(data, &c)
		cfg = c
	case KindSocialProof:
		var c SocialProofConfig
		err = json.Unmarshal(data, &c)
		cfg = c
	default:
		return nil, fmt.Errorf("unknown experiment kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s config: %w", kind, err)
	}
	return cfg, nil
}

type variantJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Weight    int             `json:"weight"`
	IsControl bool            `json:"is_control"`
	Config    json.RawMessage `json:"config,omitempty"`
}

type experimentAlias Experiment

type experimentJSON struct {
	experimentAlias
	Variants []variantJSON `json:"variants"`
}

func (e Experiment) MarshalJSON() ([]byte, error) {
	out := experimentJSON{experimentAlias: experimentAlias(e)}
	out.Variants = make([]variantJSON, len(e.Variants))
	for i, v := range e.Variants {
		vj := variantJSON{ID: v.ID, Name: v.Name, Weight: v.Weight, IsControl: v.IsControl}
		if v.Config != nil {
			raw, err := json.Marshal(v.Config)
			if err != nil {
				return nil, fmt.Errorf("failed to encode variant %s config: %w", v.ID, err)
			}
			vj.Config = raw
		}
		out.Variants[i] = vj
	}
	return json.Marshal(out)
}

func (e *Experiment) UnmarshalJSON(data []byte) error {
	var in experimentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = Experiment(in.experimentAlias)
	return e.setVariants(in.Variants)
}

type variantYAML struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Weight    int            `yaml:"weight"`
	IsControl bool           `yaml:"is_control"`
	Config    map[string]any `yaml:"config"`
}

type experimentYAML struct {
	ID                string        `yaml:"id"`
	Name              string        `yaml:"name"`
	Description       string        `yaml:"description"`
	Kind              Kind          `yaml:"kind"`
	Status            Status        `yaml:"status"`
	Variants          []variantYAML `yaml:"variants"`
	TrafficAllocation int           `yaml:"traffic_allocation"`
	TargetMetric      string        `yaml:"target_metric"`
	Conditions        []Condition   `yaml:"conditions"`
	StartDate         *time.Time    `yaml:"start_date"`
	EndDate           *time.Time    `yaml:"end_date"`
}

// UnmarshalYAML lets experiments be declared in the splitkit config file.
func (e *Experiment) UnmarshalYAML(node *yaml.Node) error {
	var in experimentYAML
	if err := node.Decode(&in); err != nil {
		return err
	}
	*e = Experiment{
		ID:                in.ID,
		Name:              in.Name,
		Description:       in.Description,
		Kind:              in.Kind,
		Status:            in.Status,
		TrafficAllocation: in.TrafficAllocation,
		TargetMetric:      in.TargetMetric,
		Conditions:        in.Conditions,
		StartDate:         in.StartDate,
		EndDate:           in.EndDate,
	}
	if e.Status == "" {
		e.Status = StatusDraft
	}

	vs := make([]variantJSON, len(in.Variants))
	for i, v := range in.Variants {
		vs[i] = variantJSON{ID: v.ID, Name: v.Name, Weight: v.Weight, IsControl: v.IsControl}
		if v.Config != nil {
			raw, err := json.Marshal(v.Config)
			if err != nil {
				return fmt.Errorf("variant %s: %w", v.ID, err)
			}
			vs[i].Config = raw
		}
	}
	return e.setVariants(vs)
}

func (e *Experiment) setVariants(vs []variantJSON) error {
	e.Variants = make([]Variant, len(vs))
	for i, v := range vs {
		if e.Kind == "" && len(v.Config) == 0 {
			e.Variants[i] = Variant{ID: v.ID, Name: v.Name, Weight: v.Weight, IsControl: v.IsControl}
			continue
		}
		cfg, err := DecodeConfig(e.Kind, v.Config)
		if err != nil {
			return fmt.Errorf("experiment %s variant %s: %w", e.ID, v.ID, err)
		}
		e.Variants[i] = Variant{ID: v.ID, Name: v.Name, Weight: v.Weight, IsControl: v.IsControl, Config: cfg}
	}
	return nil
}
