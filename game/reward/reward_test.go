package reward

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute_NoFailures(t *testing.T) {
	assert.Equal(t, 100.0, Compute(100, 0, 0.5))
	assert.Equal(t, 100.0, Compute(100, 0, 1.0))
}

func TestCompute_Decay(t *testing.T) {
	assert.InDelta(t, 50.0, Compute(100, 1, 0.5), 1e-9)
	assert.InDelta(t, 25.0, Compute(100, 2, 0.5), 1e-9)
	assert.InDelta(t, 12.5, Compute(100, 3, 0.5), 1e-9)
}

func TestCompute_UnsetDebuffDefaultsToOne(t *testing.T) {
	assert.Equal(t, 100.0, Compute(100, 5, 0))
	assert.Equal(t, 100.0, Compute(100, 5, -1))
}

func TestCompute_MonotonicallyNonIncreasing(t *testing.T) {
	for _, debuff := range []float64{0.1, 0.5, 0.9, 1.0} {
		prev := Compute(100, 0, debuff)
		for failed := 1; failed <= 10; failed++ {
			cur := Compute(100, failed, debuff)
			assert.LessOrEqual(t, cur, prev, "debuff=%v failed=%d", debuff, failed)
			prev = cur
		}
	}
}

func TestCompute_NegativeFailedCountClamped(t *testing.T) {
	assert.Equal(t, 100.0, Compute(100, -3, 0.5))
}
