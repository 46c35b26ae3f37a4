package classifier

import (
	"fmt"

	"github.com/sithhades/regime-classifier/internal/feature"
	"github.com/sithhades/regime-classifier/internal/kmeans"
	"github.com/sithhades/regime-classifier/internal/model"
)

// ErrMissingFeature is returned when the active model's feature_cols names a
// column the feature row doesn't carry.
type ErrMissingFeature struct{ Column string }

func (e ErrMissingFeature) Error() string {
	return fmt.Sprintf("classifier: feature row has no column %q", e.Column)
}

// MLClassify builds the feature vector in the order params.FeatureCols
// dictates, standardizes it against the model's scaler, and assigns the
// nearest centroid. It never falls back to the rule path itself; callers
// decide that on error (e.g. no active model).
func MLClassify(row model.FeatureRow, params model.ModelParameters) (model.RegimeResult, error) {
	vec := make([]float64, len(params.FeatureCols))
	for i, col := range params.FeatureCols {
		v, ok := feature.Value(row, col)
		if !ok {
			return model.RegimeResult{}, ErrMissingFeature{Column: col}
		}
		vec[i] = v
	}

	z := standardize(vec, params.ScalerMean, params.ScalerScale)

	if len(params.Centroids) == 0 {
		return model.RegimeResult{}, fmt.Errorf("classifier: active model has no centroids")
	}

	best := 0
	bestDist := kmeans.Euclidean(z, params.Centroids[0])
	for i := 1; i < len(params.Centroids); i++ {
		d := kmeans.Euclidean(z, params.Centroids[i])
		if d < bestDist {
			bestDist = d
			best = i
		}
	}

	label, ok := params.Labels[best]
	if !ok {
		label = fmt.Sprintf("CLUSTER_%d", best)
	}

	regimeID := best
	return model.RegimeResult{
		RegimeLabel: label,
		RegimeID:    &regimeID,
		Confidence:  1 / (1 + bestDist),
		Metrics: model.RegimeMetrics{
			TrendScore: row.SMASlope,
			Volatility: row.Volatility,
			Additional: map[string]float64{"rsi": row.RSI},
		},
	}, nil
}

// standardize applies z_i = (x_i - mean_i) / scale_i, treating scale_i == 0
// as 1 (no scaling), per the registry's scaler contract.
func standardize(x, mean, scale []float64) []float64 {
	z := make([]float64, len(x))
	for i, v := range x {
		m, s := 0.0, 1.0
		if i < len(mean) {
			m = mean[i]
		}
		if i < len(scale) && scale[i] != 0 {
			s = scale[i]
		}
		z[i] = (v - m) / s
	}
	return z
}
