package weight_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexusdb/plexus/pkg/weight"
)

// TestNormalizeBounds checks spec's scale-normalization-bounds property:
// every normalized value for an adapter with a nonzero range lies in
// [alpha/(1+alpha), 1].
func TestNormalizeBounds(t *testing.T) {
	const alpha = 0.01
	contributions := map[string]float64{"e1": 0.1, "e2": 0.5, "e3": 2.0}
	norm := weight.Normalize(contributions, alpha)

	lowerBound := alpha / (1 + alpha)
	for k, v := range norm {
		assert.GreaterOrEqualf(t, v, lowerBound, "key %s below floor", k)
		assert.LessOrEqualf(t, v, 1.0, "key %s above max", k)
	}
	// The maximum contribution always normalizes to exactly 1.0.
	assert.InDelta(t, 1.0, norm["e3"], 1e-9)
	// The minimum contribution normalizes to the floor, not 0.
	assert.InDelta(t, lowerBound, norm["e1"], 1e-9)
}

func TestNormalizeDegenerateRange(t *testing.T) {
	contributions := map[string]float64{"a": 5, "b": 5, "c": 5}
	norm := weight.Normalize(contributions, weight.DefaultFloor)
	for k, v := range norm {
		assert.Equalf(t, 1.0, v, "degenerate range must normalize every value to 1.0, key %s", k)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	norm := weight.Normalize(map[string]float64{}, weight.DefaultFloor)
	assert.Empty(t, norm)
}

// TestRawWeightNoDominance is spec.md §8 scenario 4: an adapter with a
// large native scale must not dominate one with a small scale once both
// are normalized to their own maxima.
func TestRawWeightNoDominance(t *testing.T) {
	adapterA := map[string]float64{"e1": 1.0, "e2": 2.0} // range [1,2]
	adapterB := map[string]float64{"e1": 5.0, "e2": 400.0}

	normA := weight.Normalize(adapterA, weight.DefaultFloor)
	normB := weight.Normalize(adapterB, weight.DefaultFloor)

	perAdapter := map[string]map[string]float64{"a": normA, "b": normB}
	raw := weight.RawWeight(perAdapter, "e2")

	require.InDelta(t, 2.0, raw, 1e-9, "both adapters' maxima should sum to ~2.0 regardless of native scale")
}

func TestRawWeightSumsAcrossAdapters(t *testing.T) {
	perAdapter := map[string]map[string]float64{
		"a": {"e1": 0.3},
		"b": {"e1": 0.7},
	}
	assert.InDelta(t, 1.0, weight.RawWeight(perAdapter, "e1"), 1e-9)
}
