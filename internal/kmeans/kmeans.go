// Package kmeans implements a small, deterministic k-means fit used by the
// trainer. No clustering library appears anywhere in the example corpus
// (no gonum, no ML framework — see DESIGN.md), so this is a direct,
// from-scratch port of the
// scikit-learn-style Lloyd's-algorithm fit the original Python trainer used.
package kmeans

import "math"

// Result is a fitted k-means model.
type Result struct {
	Centroids [][]float64 // k x d
	Labels    []int       // len(X), cluster assignment per row
	Inertia   float64     // sum of squared distances to assigned centroid
}

// Config controls the fit. Seed drives a deterministic PRNG used only to pick
// initial centroids (no other randomness anywhere in the pipeline).
type Config struct {
	K      int
	Seed   int64
	NInit  int // number of independent random-init runs; lowest-inertia run wins
	MaxIter int
}

// Fit runs k-means with Config.NInit independent initializations (seeded
// deterministically from Config.Seed so two runs on the same input produce
// identical output) and returns the lowest-inertia result, matching
// scikit-learn's n_init semantics.
func Fit(x [][]float64, cfg Config) Result {
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = 300
	}
	if cfg.NInit <= 0 {
		cfg.NInit = 1
	}

	rng := newSplitMix64(uint64(cfg.Seed))

	var best Result
	bestSet := false
	for init := 0; init < cfg.NInit; init++ {
		centroids := initCentroids(x, cfg.K, &rng)
		result := lloyd(x, centroids, cfg.MaxIter)
		if !bestSet || result.Inertia < best.Inertia {
			best = result
			bestSet = true
		}
	}
	return best
}

func lloyd(x [][]float64, centroids [][]float64, maxIter int) Result {
	n := len(x)
	k := len(centroids)
	labels := make([]int, n)

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, row := range x {
			nearest, _ := nearestCentroid(row, centroids)
			if labels[i] != nearest {
				labels[i] = nearest
				changed = true
			}
		}

		newCentroids := recomputeCentroids(x, labels, k, centroids)
		centroids = newCentroids

		if iter > 0 && !changed {
			break
		}
	}

	inertia := 0.0
	for i, row := range x {
		_, d := nearestCentroid(row, centroids)
		inertia += d * d
	}

	return Result{Centroids: centroids, Labels: labels, Inertia: inertia}
}

func recomputeCentroids(x [][]float64, labels []int, k int, prev [][]float64) [][]float64 {
	d := len(x[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for i := range sums {
		sums[i] = make([]float64, d)
	}

	for i, row := range x {
		c := labels[i]
		counts[c]++
		for j, v := range row {
			sums[c][j] += v
		}
	}

	out := make([][]float64, k)
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			// Keep the previous centroid for empty clusters rather than
			// reseeding, so a degenerate fit still converges deterministically.
			out[c] = prev[c]
			continue
		}
		row := make([]float64, d)
		for j := range row {
			row[j] = sums[c][j] / float64(counts[c])
		}
		out[c] = row
	}
	return out
}

func nearestCentroid(row []float64, centroids [][]float64) (int, float64) {
	best := -1
	bestDist := math.Inf(1)
	for i, c := range centroids {
		dist := euclidean(row, c)
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return best, bestDist
}

// Euclidean is exported for the classifier's nearest-centroid distance calc,
// so both training and inference share one distance function.
func Euclidean(a, b []float64) float64 {
	return euclidean(a, b)
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// initCentroids picks k distinct rows from x uniformly at random using rng.
func initCentroids(x [][]float64, k int, rng *splitMix64) [][]float64 {
	n := len(x)
	picked := make(map[int]bool, k)
	centroids := make([][]float64, 0, k)
	for len(centroids) < k && len(picked) < n {
		idx := int(rng.next() % uint64(n))
		if picked[idx] {
			continue
		}
		picked[idx] = true
		row := make([]float64, len(x[idx]))
		copy(row, x[idx])
		centroids = append(centroids, row)
	}
	return centroids
}

// splitMix64 is a tiny deterministic PRNG (no external dependency, no global
// state) used solely to pick initial centroids reproducibly.
type splitMix64 struct{ state uint64 }

func newSplitMix64(seed uint64) splitMix64 {
	return splitMix64{state: seed}
}

func (s *splitMix64) next() uint64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}
