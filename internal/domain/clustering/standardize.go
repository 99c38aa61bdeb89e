package clustering

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Standardize rescales every dimension to zero mean and unit population
// variance. Constant dimensions become 0. The input is not modified.
func Standardize(vectors [][]float64) [][]float64 {
	if len(vectors) == 0 {
		return nil
	}
	dims := len(vectors[0])
	out := make([][]float64, len(vectors))
	for i := range out {
		out[i] = make([]float64, dims)
	}
	col := make([]float64, len(vectors))
	for d := 0; d < dims; d++ {
		for i, v := range vectors {
			col[i] = v[d]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		std := math.Sqrt(variance)
		for i := range vectors {
			if std == 0 || math.IsNaN(std) {
				out[i][d] = 0
				continue
			}
			out[i][d] = (col[i] - mean) / std
		}
	}
	return out
}
