package trainer

import (
	"fmt"
	"math"
	"sort"
)

// AutoLabel assigns economic names to fitted centroids, deterministically:
// the centroid maximizing (z_vol - z_ret) becomes PANIC, the remaining
// centroid with the highest inverse-transformed return becomes BULL, and
// everything else is named REGIME_{i}. centroids are in standardized space;
// column 0 is log_return, column 1 is volatility, matching FeatureCols.
func AutoLabel(centroids [][]float64, scaler Scaler) map[int]string {
	labels := make(map[int]string, len(centroids))
	remaining := make(map[int]bool, len(centroids))
	for i := range centroids {
		remaining[i] = true
	}

	panicIdx := -1
	maxScore := math.Inf(-1)
	for i, c := range centroids {
		zRet, zVol := c[0], c[1]
		score := zVol - zRet
		if score > maxScore {
			maxScore = score
			panicIdx = i
		}
	}
	if panicIdx >= 0 {
		labels[panicIdx] = "PANIC"
		delete(remaining, panicIdx)
	}

	bullIdx := -1
	maxRet := math.Inf(-1)
	for _, i := range sortedIndices(remaining) {
		ret := scaler.InverseTransform(0, centroids[i][0])
		if ret > maxRet {
			maxRet = ret
			bullIdx = i
		}
	}
	if bullIdx >= 0 {
		labels[bullIdx] = "BULL"
		delete(remaining, bullIdx)
	}

	for _, i := range sortedIndices(remaining) {
		labels[i] = fmt.Sprintf("REGIME_%d", i)
	}

	return labels
}

// sortedIndices returns the keys of a centroid-index set in ascending order,
// so callers iterating it get a reproducible order instead of Go's
// randomized map iteration.
func sortedIndices(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
