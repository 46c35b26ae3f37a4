package classifier

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sithhades/regime-classifier/internal/model"
)

func TestMLClassify_S4NearestCentroidPanic(t *testing.T) {
	params := model.ModelParameters{
		FeatureCols: []string{"volatility", "sma_slope", "rsi"},
		ScalerMean:  []float64{0, 0, 0},
		ScalerScale: []float64{1, 1, 1},
		Centroids:   [][]float64{{0, 0, 50}, {1, 1, 80}},
		Labels:      map[int]string{0: "CALM", 1: "PANIC"},
	}
	row := model.FeatureRow{Volatility: 0.9, SMASlope: 0.9, RSI: 75}

	result, err := MLClassify(row, params)
	require.NoError(t, err)

	require.NotNil(t, result.RegimeID)
	assert.Equal(t, 1, *result.RegimeID)
	assert.Equal(t, "PANIC", result.RegimeLabel)

	d := math.Sqrt(0.1*0.1 + 0.1*0.1 + 5*5)
	assert.InDelta(t, 1/(1+d), result.Confidence, 1e-9)
}

func TestMLClassify_UnknownCentroidFallsBackToGenericLabel(t *testing.T) {
	params := model.ModelParameters{
		FeatureCols: []string{"volatility"},
		ScalerMean:  []float64{0},
		ScalerScale: []float64{1},
		Centroids:   [][]float64{{0}, {10}},
		Labels:      map[int]string{},
	}
	row := model.FeatureRow{Volatility: 0.1}

	result, err := MLClassify(row, params)
	require.NoError(t, err)
	assert.Equal(t, "CLUSTER_0", result.RegimeLabel)
}

func TestMLClassify_ZeroScaleMeansNoScaling(t *testing.T) {
	params := model.ModelParameters{
		FeatureCols: []string{"rsi"},
		ScalerMean:  []float64{0},
		ScalerScale: []float64{0},
		Centroids:   [][]float64{{50}, {90}},
		Labels:      map[int]string{0: "A", 1: "B"},
	}
	row := model.FeatureRow{RSI: 52}

	result, err := MLClassify(row, params)
	require.NoError(t, err)
	assert.Equal(t, "A", result.RegimeLabel)
}

func TestMLClassify_MissingFeatureColumnErrors(t *testing.T) {
	params := model.ModelParameters{FeatureCols: []string{"not_a_column"}, Centroids: [][]float64{{0}}}
	_, err := MLClassify(model.FeatureRow{}, params)
	assert.Error(t, err)
}
