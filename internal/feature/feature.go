// Package feature computes the technical feature frame used by both the
// classifier worker and the trainer, so the two never drift on formulas.
package feature

import (
	"math"
	"sort"

	"github.com/sithhades/regime-classifier/internal/model"
)

const (
	// VolatilityWindow is W1 in spec.md section 3: stddev(log_return) window.
	VolatilityWindow = 24
	// SMAWindow is W2 in spec.md section 3.
	SMAWindow = 50
	// RSIWindow is the fixed RSI period.
	RSIWindow = 14
)

// Compute builds the feature frame for an ordered candle sequence on a single
// (symbol, timeframe). Candles need not arrive sorted; Compute sorts a copy
// before computing. The output is aligned 1:1 with the input by timestamp;
// rows inside the warm-up prefix carry NaN in the windowed columns.
func Compute(candles []model.Candle) []model.FeatureRow {
	if len(candles) == 0 {
		return nil
	}

	sorted := make([]model.Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	n := len(sorted)
	rows := make([]model.FeatureRow, n)

	logReturns := make([]float64, n)
	logReturns[0] = math.NaN()
	for i := 1; i < n; i++ {
		logReturns[i] = math.Log(sorted[i].Close / sorted[i-1].Close)
	}

	smas := make([]float64, n)
	for i := range sorted {
		smas[i] = rollingMean(sorted, i, SMAWindow)
	}

	for i := range sorted {
		row := model.FeatureRow{
			Timestamp: sorted[i].Timestamp,
			Close:     sorted[i].Close,
			LogReturn: logReturns[i],
			Volatility: rollingStdDev(logReturns, i, VolatilityWindow),
			SMA:        smas[i],
			SMASlope:   smaSlope(smas, i),
			RSI:        rsi(sorted, i, RSIWindow),
		}
		rows[i] = row
	}

	return rows
}

// ComputeLatest returns the feature row for the final candle in the window,
// or false if the window is empty.
func ComputeLatest(candles []model.Candle) (model.FeatureRow, bool) {
	rows := Compute(candles)
	if len(rows) == 0 {
		return model.FeatureRow{}, false
	}
	return rows[len(rows)-1], true
}

// rollingMean returns the mean of close prices over the `window` candles
// ending at index i (inclusive), or NaN if fewer than `window` candles end at i.
func rollingMean(candles []model.Candle, i, window int) float64 {
	if i+1 < window {
		return math.NaN()
	}
	sum := 0.0
	for j := i - window + 1; j <= i; j++ {
		sum += candles[j].Close
	}
	return sum / float64(window)
}

// rollingStdDev returns the population stddev of values[i-window+1 .. i],
// or NaN if the window (or any value in it) is unavailable.
func rollingStdDev(values []float64, i, window int) float64 {
	if i+1 < window {
		return math.NaN()
	}
	sum := 0.0
	count := 0
	for j := i - window + 1; j <= i; j++ {
		if math.IsNaN(values[j]) {
			return math.NaN()
		}
		sum += values[j]
		count++
	}
	mean := sum / float64(count)

	variance := 0.0
	for j := i - window + 1; j <= i; j++ {
		d := values[j] - mean
		variance += d * d
	}
	variance /= float64(count)
	return math.Sqrt(variance)
}

// smaSlope is sma_t - sma_{t-1}; NaN if either side is unavailable.
func smaSlope(smas []float64, i int) float64 {
	if i == 0 || math.IsNaN(smas[i]) || math.IsNaN(smas[i-1]) {
		return math.NaN()
	}
	return smas[i] - smas[i-1]
}

// rsi computes RSI over `window` periods using a simple rolling mean of
// gains/losses (the simple-moving-average RSI, not Wilder's smoothed
// variant).
func rsi(candles []model.Candle, i, window int) float64 {
	if i+1 < window+1 {
		return math.NaN()
	}

	var gainSum, lossSum float64
	for j := i - window + 1; j <= i; j++ {
		delta := candles[j].Close - candles[j-1].Close
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / float64(window)
	avgLoss := lossSum / float64(window)

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// HasNaN reports whether any of the feature columns used for classification
// or training (log_return, volatility, sma, sma_slope, rsi) is NaN.
func HasNaN(row model.FeatureRow) bool {
	return math.IsNaN(row.LogReturn) ||
		math.IsNaN(row.Volatility) ||
		math.IsNaN(row.SMA) ||
		math.IsNaN(row.SMASlope) ||
		math.IsNaN(row.RSI)
}

// DropNaN filters out rows with any NaN among the selected columns, as
// spec.md section 3 requires for feature rows feeding the trainer.
func DropNaN(rows []model.FeatureRow) []model.FeatureRow {
	out := make([]model.FeatureRow, 0, len(rows))
	for _, r := range rows {
		if !HasNaN(r) {
			out = append(out, r)
		}
	}
	return out
}

// Value looks up a named feature column on a row. Supported names are the
// ones persisted in ModelParameters.FeatureCols: log_return, volatility,
// sma, sma_slope, rsi.
func Value(row model.FeatureRow, col string) (float64, bool) {
	switch col {
	case "log_return":
		return row.LogReturn, true
	case "volatility":
		return row.Volatility, true
	case "sma":
		return row.SMA, true
	case "sma_slope":
		return row.SMASlope, true
	case "rsi":
		return row.RSI, true
	default:
		return 0, false
	}
}
