// Package attribution distributes conversion credit across the marketing
// touchpoints of a journey.
package attribution

import (
	"fmt"
	"math"
	"time"

	"github.com/truecheckia/splitkit/internal/journey"
)

type Model string

const (
	FirstTouch    Model = "first_touch"
	LastTouch     Model = "last_touch"
	Linear        Model = "linear"
	TimeDecay     Model = "time_decay"
	PositionBased Model = "position_based"
)

// Models lists every supported model.
var Models = []Model{FirstTouch, LastTouch, Linear, TimeDecay, PositionBased}

// DefaultHalfLife is the time-decay half life.
const DefaultHalfLife = 7 * 24 * time.Hour

// ParseModel validates a model name.
func ParseModel(s string) (Model, error) {
	for _, m := range Models {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown attribution model %q", s)
}

// FirstTouchCredit gives all value to the first touchpoint.
func FirstTouchCredit(tps []journey.Touchpoint, value float64) []float64 {
	out := make([]float64, len(tps))
	if len(out) > 0 {
		out[0] = value
	}
	return out
}

// LastTouchCredit gives all value to the last touchpoint.
func LastTouchCredit(tps []journey.Touchpoint, value float64) []float64 {
	out := make([]float64, len(tps))
	if len(out) > 0 {
		out[len(out)-1] = value
	}
	return out
}

// LinearCredit splits value evenly.
func LinearCredit(tps []journey.Touchpoint, value float64) []float64 {
	out := make([]float64, len(tps))
	for i := range out {
		out[i] = value / float64(len(out))
	}
	return out
}

// TimeDecayCredit weighs each touchpoint by 2^(-age/halfLife), where age
// is measured back from convertedAt.
func TimeDecayCredit(tps []journey.Touchpoint, value float64, convertedAt time.Time, halfLife time.Duration) []float64 {
	out := make([]float64, len(tps))
	switch len(out) {
	case 0:
		return out
	case 1:
		out[0] = value
		return out
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}

	total := 0.0
	for i, tp := range tps {
		age := convertedAt.Sub(tp.Timestamp)
		if age < 0 {
			age = 0
		}
		out[i] = math.Pow(2, -float64(age)/float64(halfLife))
		total += out[i]
	}
	// Every weight underflowed, e.g. touchpoints without timestamps.
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return LinearCredit(tps, value)
	}
	for i := range out {
		out[i] = value * (out[i] / total)
	}
	return out
}

// PositionBasedCredit gives 40% to the first and last touchpoints and
// splits the remaining 20% across the middle. Two touchpoints split 50/50.
func PositionBasedCredit(tps []journey.Touchpoint, value float64) []float64 {
	out := make([]float64, len(tps))
	switch n := len(out); n {
	case 0:
	case 1:
		out[0] = value
	case 2:
		out[0], out[1] = value/2, value/2
	default:
		out[0] = value * 0.4
		out[n-1] = value * 0.4
		middle := value * 0.2 / float64(n-2)
		for i := 1; i < n-1; i++ {
			out[i] = middle
		}
	}
	return out
}
