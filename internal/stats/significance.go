package stats

import (
	"math"

	"github.com/truecheckia/splitkit/internal/experiment"
)

// SignificanceThreshold is the p-value below which a difference counts as
// significant.
const SignificanceThreshold = 0.05

// Result represents statistical analysis of an experiment
type Result struct {
	Variants        []VariantResult `json:"variants"`
	Confident       bool            `json:"confident"`        // p-value below SignificanceThreshold
	ConfidenceLevel float64         `json:"confidence_level"` // 0-1
	LeadingVariant  int             `json:"leading_variant"`
	Challenger      int             `json:"challenger"`   // variant compared against control
	Significance    Significance    `json:"significance"` // leading variant vs control
	// ChanceToBeatControl is the one-sided confidence that the compared
	// challenger converts better than control.
	ChanceToBeatControl float64 `json:"chance_to_beat_control"`
}

// VariantResult contains statistics for a single variant
type VariantResult struct {
	Index       int     `json:"index"`
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	IsControl   bool    `json:"is_control"`
	Exposures   int     `json:"exposures"`
	Conversions int     `json:"conversions"`
	Rate        float64 `json:"rate"`
	CILower     float64 `json:"ci_lower"`
	CIUpper     float64 `json:"ci_upper"`
}

// Significance is the outcome of a two-proportion z-test.
type Significance struct {
	ControlRate float64 `json:"control_rate"`
	VariantRate float64 `json:"variant_rate"`
	Uplift      float64 `json:"uplift"` // relative change of the variant over control
	ZScore      float64 `json:"z_score"`
	PValue      float64 `json:"p_value"` // two-tailed
	Significant bool    `json:"significant"`
}

// CalculateSignificance runs a two-tailed two-proportion z-test of the
// variant against the control.
func CalculateSignificance(controlConv, controlN, variantConv, variantN int) Significance {
	if controlN <= 0 || variantN <= 0 {
		return Significance{PValue: 1}
	}

	pC := float64(controlConv) / float64(controlN)
	pV := float64(variantConv) / float64(variantN)

	s := Significance{ControlRate: pC, VariantRate: pV, PValue: 1}
	if pC > 0 {
		s.Uplift = (pV - pC) / pC
	}

	pooled := float64(controlConv+variantConv) / float64(controlN+variantN)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(controlN) + 1/float64(variantN)))
	if se == 0 {
		return s
	}

	s.ZScore = (pV - pC) / se
	s.PValue = 2 * (1 - normalCDF(math.Abs(s.ZScore)))
	if s.PValue < 0 {
		s.PValue = 0
	}
	s.Significant = s.PValue < SignificanceThreshold
	return s
}

// ChanceToBeat is the one-sided confidence, from 0 to 1, that the variant
// converts better than the baseline. Without data on both sides it is 0.5.
func ChanceToBeat(variantConv, variantN, baseConv, baseN int) float64 {
	if variantN <= 0 || baseN <= 0 {
		return 0.5
	}

	pV := float64(variantConv) / float64(variantN)
	pB := float64(baseConv) / float64(baseN)
	pooled := float64(variantConv+baseConv) / float64(variantN+baseN)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(variantN) + 1/float64(baseN)))

	if se == 0 {
		switch {
		case pV > pB:
			return 1
		case pV < pB:
			return 0
		}
		return 0.5
	}
	return normalCDF((pV - pB) / se)
}

// normalCDF approximates the cumulative distribution function
// of the standard normal distribution
func normalCDF(x float64) float64 {
	// Abramowitz and Stegun, Handbook of Mathematical Functions, 7.1.26
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt(2)

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}

// Analyze calculates full statistics for an experiment
func Analyze(exp *experiment.Experiment, variantStats []experiment.VariantStats) *Result {
	statsMap := make(map[string]experiment.VariantStats)
	for _, s := range variantStats {
		statsMap[s.VariantID] = s
	}

	variants := make([]VariantResult, len(exp.Variants))
	control := 0
	maxRate := 0.0
	leadingVariant := 0

	for i, v := range exp.Variants {
		stat := statsMap[v.ID] // zero-valued if not present

		rate := 0.0
		if stat.Exposures > 0 {
			rate = float64(stat.Conversions) / float64(stat.Exposures)
		}

		ciLower, ciUpper := WilsonInterval(stat.Conversions, stat.Exposures, 0.95)

		name := v.Name
		if name == "" {
			name = v.ID
		}
		variants[i] = VariantResult{
			Index:       i,
			ID:          v.ID,
			Name:        name,
			IsControl:   v.IsControl,
			Exposures:   stat.Exposures,
			Conversions: stat.Conversions,
			Rate:        rate,
			CILower:     ciLower,
			CIUpper:     ciUpper,
		}
		if v.IsControl {
			control = i
		}

		if rate > maxRate {
			maxRate = rate
			leadingVariant = i
		}
	}

	result := &Result{Variants: variants, LeadingVariant: leadingVariant}
	if len(variants) < 2 {
		return result
	}

	// Compare the leader against control; when control leads, against the
	// best challenger.
	challenger := leadingVariant
	if leadingVariant == control {
		challenger = -1
		bestRate := -1.0
		for i := range variants {
			if i != control && variants[i].Rate > bestRate {
				bestRate = variants[i].Rate
				challenger = i
			}
		}
	}

	result.Challenger = challenger
	c, v := variants[control], variants[challenger]
	result.Significance = CalculateSignificance(c.Conversions, c.Exposures, v.Conversions, v.Exposures)
	result.ConfidenceLevel = 1 - result.Significance.PValue
	result.Confident = result.Significance.Significant
	result.ChanceToBeatControl = ChanceToBeat(v.Conversions, v.Exposures, c.Conversions, c.Exposures)

	return result
}
