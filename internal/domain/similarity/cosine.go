package similarity

import (
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/okian/lutcurate/internal/domain/raster"
)

const grayLevels = 256

// HistogramCosine compares normalized 256-bin gray histograms of the
// images resized to size x size. Distance is 1 - cosine similarity.
func HistogramCosine(images []image.Image, size int) (*mat.SymDense, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	if size <= 0 {
		return nil, ErrCanonicalSize
	}
	hist := mat.NewDense(len(images), grayLevels, nil)
	for i, img := range images {
		g := raster.GraySquare(img, size)
		row := hist.RawRowView(i)
		for _, p := range g.Pix {
			row[p]++
		}
		floats.Scale(1/float64(len(g.Pix)), row)
	}

	gram := mat.NewSymDense(len(images), nil)
	gram.SymOuterK(1, hist)
	return fill(len(images), func(i, j int) float64 {
		den := gram.At(i, i) * gram.At(j, j)
		if den == 0 {
			return 1
		}
		return 1 - gram.At(i, j)/math.Sqrt(den)
	}), nil
}
