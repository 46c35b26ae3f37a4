package classifier

import (
	"fmt"

	"github.com/sithhades/regime-classifier/internal/model"
)

// RuleClassify assigns a regime from the latest feature row using the
// configured trend/volatility thresholds. Confidence is always 1.0 and
// regime_id is always nil, as rule-based output carries no cluster identity.
func RuleClassify(row model.FeatureRow, trendThreshold, volThreshold float64) model.RegimeResult {
	direction := "SIDEWAYS"
	switch {
	case row.SMASlope > trendThreshold:
		direction = "BULL"
	case row.SMASlope < -trendThreshold:
		direction = "BEAR"
	}

	vol := "LOW_VOL"
	if row.Volatility > volThreshold {
		vol = "HIGH_VOL"
	}

	return model.RegimeResult{
		RegimeLabel: fmt.Sprintf("%s_%s", direction, vol),
		RegimeID:    nil,
		Confidence:  1.0,
		Metrics: model.RegimeMetrics{
			TrendScore: row.SMASlope,
			Volatility: row.Volatility,
			Additional: map[string]float64{"rsi": row.RSI},
		},
	}
}
