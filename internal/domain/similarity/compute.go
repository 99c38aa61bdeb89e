package similarity

import (
	"context"
	"fmt"
	"image"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/okian/lutcurate/internal/domain/model"
	"github.com/okian/lutcurate/pkg/metrics"
)

// DefaultCanonicalSize is the side of the square gray images compared by
// the histogram and SSIM metrics.
const DefaultCanonicalSize = 256

// Compute builds the distance matrix of an image-space metric. Rows follow
// ids, which must be as long as images.
func Compute(ctx context.Context, m model.Metric, ids []string, images []image.Image, canonical int) (*Matrix, error) {
	if len(ids) != len(images) {
		return nil, fmt.Errorf("%w: %d ids for %d images", ErrIDMismatch, len(ids), len(images))
	}
	if canonical <= 0 {
		canonical = DefaultCanonicalSize
	}
	start := time.Now()

	var (
		d   *mat.SymDense
		err error
	)
	switch m {
	case model.ImageSimilarity:
		d, err = HistogramCosine(images, canonical)
	case model.SSIM:
		d, err = SSIM(ctx, images, canonical)
	case model.Euclidean:
		d, err = Euclidean(images)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotImageMetric, m)
	}
	if err != nil {
		return nil, fmt.Errorf("%s distance matrix: %w", m, err)
	}
	metrics.RecordDistanceMatrixLatency(m.String(), float64(time.Since(start).Milliseconds()))
	return NewMatrix(ids, d)
}
