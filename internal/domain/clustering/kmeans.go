package clustering

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// KMeansResult is the best of several seeded k-means runs.
type KMeansResult struct {
	Labels  []int
	Centers [][]float64
	Inertia float64
}

// KMeans partitions x into k groups: k-means++ seeding followed by Lloyd
// iterations, repeated for every restart; the lowest inertia wins. Results
// are deterministic for a given seed.
func KMeans(x [][]float64, k int, opts ...Option) *KMeansResult {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	var best *KMeansResult
	for r := 0; r < cfg.restarts; r++ {
		rng := rand.New(rand.NewPCG(cfg.seed, uint64(r)))
		res := lloyd(x, seedPlusPlus(x, k, rng), cfg.maxIterations)
		if best == nil || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best
}

// seedPlusPlus picks k initial centers, each drawn with probability
// proportional to its squared distance from the nearest chosen center.
func seedPlusPlus(x [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(x[rng.IntN(len(x))]))

	d2 := make([]float64, len(x))
	for i := range x {
		d2[i] = sqDist(x[i], centers[0])
	}
	for len(centers) < k {
		total := floats.Sum(d2)
		next := rng.IntN(len(x))
		if total > 0 {
			target := rng.Float64() * total
			for i, w := range d2 {
				target -= w
				if target < 0 {
					next = i
					break
				}
			}
		}
		c := clone(x[next])
		centers = append(centers, c)
		for i := range x {
			d2[i] = min(d2[i], sqDist(x[i], c))
		}
	}
	return centers
}

func lloyd(x [][]float64, centers [][]float64, maxIter int) *KMeansResult {
	k, dims := len(centers), len(x[0])
	labels := make([]int, len(x))
	for i := range labels {
		labels[i] = -1
	}
	counts := make([]int, k)
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, v := range x {
			if l := nearest(v, centers); l != labels[i] {
				labels[i] = l
				changed = true
			}
		}
		if !changed {
			break
		}
		// An empty cluster keeps its previous center.
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
			counts[c] = 0
		}
		for i, v := range x {
			floats.Add(sums[labels[i]], v)
			counts[labels[i]]++
		}
		for c := range centers {
			if counts[c] > 0 {
				floats.ScaleTo(centers[c], 1/float64(counts[c]), sums[c])
			}
		}
	}

	inertia := 0.0
	for i, v := range x {
		inertia += sqDist(v, centers[labels[i]])
	}
	return &KMeansResult{Labels: labels, Centers: centers, Inertia: inertia}
}

func nearest(v []float64, centers [][]float64) int {
	best, bestD := 0, math.Inf(1)
	for c, center := range centers {
		if d := sqDist(v, center); d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
