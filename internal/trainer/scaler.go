package trainer

import "math"

// Scaler is a per-column mean/std standardizer, fit once over the pooled
// training matrix and persisted alongside the model so the classifier can
// apply the identical transform at inference time.
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler computes the population mean/stddev of each column in x (rows x
// cols). A zero-variance column gets Scale 0, which callers must treat as
// "no scaling" rather than dividing by zero.
func FitScaler(x [][]float64) Scaler {
	if len(x) == 0 {
		return Scaler{}
	}
	cols := len(x[0])
	mean := make([]float64, cols)
	for _, row := range x {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(x))
	}

	variance := make([]float64, cols)
	for _, row := range x {
		for j, v := range row {
			d := v - mean[j]
			variance[j] += d * d
		}
	}
	scale := make([]float64, cols)
	for j := range scale {
		scale[j] = math.Sqrt(variance[j] / float64(len(x)))
	}

	return Scaler{Mean: mean, Scale: scale}
}

// Transform standardizes a single row, treating a zero scale as 1.
func (s Scaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for i, v := range row {
		scale := 1.0
		if i < len(s.Scale) && s.Scale[i] != 0 {
			scale = s.Scale[i]
		}
		mean := 0.0
		if i < len(s.Mean) {
			mean = s.Mean[i]
		}
		out[i] = (v - mean) / scale
	}
	return out
}

// TransformAll standardizes every row of x.
func (s Scaler) TransformAll(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = s.Transform(row)
	}
	return out
}

// InverseTransform maps a single standardized value at column j back to its
// original scale.
func (s Scaler) InverseTransform(j int, z float64) float64 {
	scale := 1.0
	if j < len(s.Scale) && s.Scale[j] != 0 {
		scale = s.Scale[j]
	}
	mean := 0.0
	if j < len(s.Mean) {
		mean = s.Mean[j]
	}
	return z*scale + mean
}
