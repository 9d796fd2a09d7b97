package functions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateStandardRejectsNegativeResponseDelay(t *testing.T) {
	f := &Function{Type: TypeStandard, ResponseDelaySeconds: -1}
	assert.Error(t, f.Validate())
}

func TestValidateStandardRejectsNegativeDeviance(t *testing.T) {
	f := &Function{Type: TypeStandard, DevianceC: -1}
	assert.Error(t, f.Validate())
}

func TestValidateEMARejectsZeroSampleWindow(t *testing.T) {
	f := &Function{Type: TypeEMA, SampleWindow: 0}
	assert.Error(t, f.Validate())
}

func TestValidateEMAAcceptsPositiveSampleWindow(t *testing.T) {
	f := &Function{Type: TypeEMA, SampleWindow: 5, TauSeconds: 2}
	assert.NoError(t, f.Validate())
}

func TestEffectiveSampleWindowClampsToCap(t *testing.T) {
	f := &Function{SampleWindow: 1000}
	assert.Equal(t, emaWarmupCap, f.effectiveSampleWindow())
}

func TestEffectiveSampleWindowDefaultsWhenUnset(t *testing.T) {
	f := &Function{SampleWindow: 0}
	assert.Equal(t, emaWarmupCap, f.effectiveSampleWindow())
}
