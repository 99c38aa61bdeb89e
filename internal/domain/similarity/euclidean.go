package similarity

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/okian/lutcurate/internal/domain/raster"
)

// Euclidean returns pixel-space Euclidean distances between RGB images
// normalized to [0,1]. All images must share the same size.
func Euclidean(images []image.Image) (*mat.SymDense, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	size := images[0].Bounds().Size()
	dims := size.X * size.Y * 3
	x := mat.NewDense(len(images), dims, nil)
	for i, img := range images {
		if img.Bounds().Size() != size {
			return nil, fmt.Errorf("%w: %v vs %v", ErrSizeMismatch, img.Bounds().Size(), size)
		}
		pixels(raster.ToNRGBA(img), x.RawRowView(i))
	}
	return GramDistances(x), nil
}

// EuclideanVectors returns Euclidean distances between equal-length
// vectors.
func EuclideanVectors(vectors [][]float64) (*mat.SymDense, error) {
	if len(vectors) == 0 {
		return nil, ErrNoImages
	}
	dims := len(vectors[0])
	x := mat.NewDense(len(vectors), max(1, dims), nil)
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: vector %d has %d dims, want %d", ErrSizeMismatch, i, len(v), dims)
		}
		copy(x.RawRowView(i), v)
	}
	return GramDistances(x), nil
}

// gramEpsilon is the relative size under which a squared distance is
// rounding noise.
const gramEpsilon = 1e-12

// GramDistances computes all row-to-row distances of x with one Gram
// product: d² = |a|² + |b|² - 2a·b. Cancellation can leave tiny negative
// squares; they are clamped to zero before the square root.
func GramDistances(x *mat.Dense) *mat.SymDense {
	n, _ := x.Dims()
	g := mat.NewSymDense(n, nil)
	g.SymOuterK(1, x)
	return fill(n, func(i, j int) float64 {
		norms := g.At(i, i) + g.At(j, j)
		sq := norms - 2*g.At(i, j)
		if sq <= gramEpsilon*norms {
			return 0
		}
		return math.Sqrt(sq)
	})
}

func pixels(img *image.NRGBA, dst []float64) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	k := 0
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			dst[k] = float64(row[x]) / 255
			dst[k+1] = float64(row[x+1]) / 255
			dst[k+2] = float64(row[x+2]) / 255
			k += 3
		}
	}
}
