package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWilsonIntervalKnownValue(t *testing.T) {
	lower, upper := wilsonInterval(50, 100, 0.95)
	assert.InDelta(t, 0.404, lower, 0.005)
	assert.InDelta(t, 0.596, upper, 0.005)
}

func TestWilsonIntervalExtremes(t *testing.T) {
	lower, upper := wilsonInterval(0, 0, 0.95)
	assert.Zero(t, lower)
	assert.Zero(t, upper)

	lower, upper = wilsonInterval(10, 10, 0.95)
	assert.Greater(t, lower, 0.6)
	assert.LessOrEqual(t, upper, 1.0)

	lower, _ = wilsonInterval(0, 10, 0.95)
	assert.GreaterOrEqual(t, lower, 0.0)
}

func TestChiSquarePIdenticalRates(t *testing.T) {
	p := chiSquareP(50, 100, 50, 100)
	assert.InDelta(t, 1.0, p, 1e-9)
}

func TestChiSquarePStrongDifference(t *testing.T) {
	p := chiSquareP(90, 100, 10, 100)
	assert.Less(t, p, 0.001)
}

func TestChiSquarePDegenerate(t *testing.T) {
	assert.Equal(t, 1.0, chiSquareP(0, 0, 0, 0))
	// One column empty (nobody ever succeeded): no signal.
	assert.Equal(t, 1.0, chiSquareP(0, 10, 0, 10))
}

func TestNormQuantile(t *testing.T) {
	assert.InDelta(t, 1.95996, normQuantile(0.975), 1e-4)
	assert.InDelta(t, 0.0, normQuantile(0.5), 1e-12)
}
