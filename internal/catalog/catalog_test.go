package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/storage"
)

func TestExperiments_WellFormed(t *testing.T) {
	for _, exp := range Experiments() {
		t.Run(exp.ID, func(t *testing.T) {
			total := 0
			controls := 0
			for _, v := range exp.Variants {
				total += v.Weight
				if v.IsControl {
					controls++
				}
				require.NotNil(t, v.Config, "variant %s has no config", v.ID)
				assert.Equal(t, exp.Kind, v.Config.Kind())
			}
			assert.Equal(t, 100, total, "weights must sum to 100")
			assert.Equal(t, 1, controls)
			assert.NotEmpty(t, exp.TargetMetric)
		})
	}
}

func TestExperiments_ReturnsCopies(t *testing.T) {
	first := Experiments()
	first[0].Variants[0].Weight = 0

	assert.Equal(t, 34, Experiments()[0].Variants[0].Weight)
}

func TestGetVariantConfig(t *testing.T) {
	cfg := GetVariantConfig(CTAButton, "action")
	cta, ok := cfg.(experiment.CTAConfig)
	require.True(t, ok)
	assert.Equal(t, "Analyze my text now", cta.ButtonText)

	assert.Equal(t, experiment.PricingConfig{}, GetVariantConfig(PricingDisplay, "missing"))
	assert.Nil(t, GetVariantConfig("nope", "control"))
}

func TestGetExperimentByName(t *testing.T) {
	exp, ok := GetExperimentByName("Signup Form")
	require.True(t, ok)
	assert.Equal(t, SignupForm, exp.ID)

	_, ok = GetExperimentByName("Unknown")
	assert.False(t, ok)
}

func TestRegister(t *testing.T) {
	r := experiment.NewRegistry(storage.NewMemory(), nil)
	Register(context.Background(), r)

	assert.Len(t, r.Running(), 5)
	_, ok := r.Get(SocialProof)
	assert.True(t, ok)
}
