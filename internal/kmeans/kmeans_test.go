package kmeans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit_SeparatesObviousClusters(t *testing.T) {
	x := [][]float64{
		{0, 0}, {0.1, 0.1}, {-0.1, 0},
		{10, 10}, {10.1, 9.9}, {9.9, 10},
	}
	result := Fit(x, Config{K: 2, Seed: 42, NInit: 10})

	require.Len(t, result.Centroids, 2)
	// The three low points must share a label, distinct from the three high points.
	lowLabel := result.Labels[0]
	for i := 0; i < 3; i++ {
		assert.Equal(t, lowLabel, result.Labels[i])
	}
	highLabel := result.Labels[3]
	assert.NotEqual(t, lowLabel, highLabel)
	for i := 3; i < 6; i++ {
		assert.Equal(t, highLabel, result.Labels[i])
	}
}

func TestFit_DeterministicAcrossRuns(t *testing.T) {
	x := [][]float64{
		{0, 0}, {1, 1}, {0.5, 0.5}, {10, 10}, {11, 9}, {9, 11}, {5, -5}, {5.5, -4.5},
	}
	a := Fit(x, Config{K: 3, Seed: 42, NInit: 10})
	b := Fit(x, Config{K: 3, Seed: 42, NInit: 10})
	assert.Equal(t, a.Labels, b.Labels)
	assert.Equal(t, a.Centroids, b.Centroids)
	assert.Equal(t, a.Inertia, b.Inertia)
}

func TestEuclidean(t *testing.T) {
	assert.InDelta(t, 5.0, Euclidean([]float64{0, 0}, []float64{3, 4}), 1e-9)
}
