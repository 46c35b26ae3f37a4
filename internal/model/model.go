// Package model holds the shared data types that flow between the
// ingestor, classifier, and trainer processes.
package model

import "time"

// Candle is one OHLCV bar, closed at Timestamp+Timeframe.
// Identity is (Exchange, Symbol, Timeframe, Timestamp).
type Candle struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Valid checks the invariants stated for the data model: low <= open,close <= high,
// volume >= 0. Timestamp-alignment to the timeframe is the caller's responsibility
// since it requires knowing the timeframe's duration.
func (c Candle) Valid() bool {
	if c.Volume < 0 {
		return false
	}
	if c.Low > c.Open || c.Open > c.High {
		return false
	}
	if c.Low > c.Close || c.Close > c.High {
		return false
	}
	return true
}

// FeatureRow is the derived feature set for a single candle, aligned by timestamp.
type FeatureRow struct {
	Timestamp time.Time `json:"timestamp"`
	Close     float64   `json:"close"`
	LogReturn float64   `json:"log_return"`
	Volatility float64  `json:"volatility"`
	SMA       float64   `json:"sma"`
	SMASlope  float64   `json:"sma_slope"`
	RSI       float64   `json:"rsi"`
}

// ModelParameters is the JSON payload stored in model_registry.parameters.
type ModelParameters struct {
	FeatureCols []string    `json:"feature_cols"`
	ScalerMean  []float64   `json:"scaler_mean"`
	ScalerScale []float64   `json:"scaler_scale"`
	Centroids   [][]float64 `json:"centroids"`
	Labels      map[int]string `json:"labels"`
}

// ModelRecord is a row of model_registry.
type ModelRecord struct {
	ID         int64           `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	Algorithm  string          `json:"algorithm"`
	Parameters ModelParameters `json:"parameters"`
	IsActive   bool            `json:"is_active"`
}

// RegimeMetrics carries the scalar features a regime decision was based on.
type RegimeMetrics struct {
	TrendScore float64            `json:"trend_score"`
	Volatility float64            `json:"volatility"`
	Additional map[string]float64 `json:"additional"`
}

// RegimeResult is the value written to regime:{symbol}:{timeframe}.
type RegimeResult struct {
	Symbol      string        `json:"symbol"`
	RegimeLabel string        `json:"regime_label"`
	RegimeID    *int          `json:"regime_id"`
	Confidence  float64       `json:"confidence"`
	Metrics     RegimeMetrics `json:"metrics"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
