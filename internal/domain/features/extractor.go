// Package features turns LUTs into numeric feature vectors.
package features

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/okian/lutcurate/internal/domain/lut"
	"github.com/okian/lutcurate/internal/domain/model"
	"github.com/okian/lutcurate/internal/domain/raster"
	"github.com/okian/lutcurate/pkg/logger"
	"github.com/okian/lutcurate/pkg/metrics"
)

// Vector dimensions.
const (
	LightweightDims   = 7
	ImageFeaturesDims = 95
)

// Extractor derives feature vectors from LUT bytes. It is safe for
// concurrent use once built.
type Extractor struct {
	applier   lut.Applier
	reference *image.NRGBA
	thumbRef  *image.NRGBA
	thumbSize int
	log       logger.Logger

	fingerprint string

	source image.Image
}

// NewExtractor builds an Extractor. Without WithReference only the
// lightweight metric is available.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		applier:   lut.Trilinear{},
		thumbSize: 96,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.source != nil {
		e.reference = raster.ToNRGBA(e.source)
		e.thumbRef = raster.Fit(e.reference, e.thumbSize)
		e.source = nil
		e.fingerprint = fingerprint(e.applier, e.reference)
	}
	return e
}

// ReferenceFingerprint identifies the reference image and the applier that
// renders onto it. It is empty without a reference.
func (e *Extractor) ReferenceFingerprint() string { return e.fingerprint }

func fingerprint(applier lut.Applier, img *image.NRGBA) string {
	h := sha256.New()
	b := img.Bounds()
	fmt.Fprintf(h, "%T %dx%d\n", applier, b.Dx(), b.Dy())
	rowLen := b.Dx() * 4
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		_, _ = h.Write(img.Pix[off : off+rowLen])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// HasReference reports whether image metrics can be computed.
func (e *Extractor) HasReference() bool { return e.reference != nil }

// Extract dispatches on a vector-space metric.
func (e *Extractor) Extract(ctx context.Context, m model.Metric, data []byte) (*model.FeatureVector, error) {
	switch m {
	case model.Lightweight7D:
		return e.Lightweight(ctx, data)
	case model.ImageFeatures:
		return e.ImageFeatures(ctx, data)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedMetric, m)
}

// Lightweight parses data and returns its 7-dimensional vector. Unparseable
// input yields (nil, nil) so batch callers can skip and continue; only
// interruption is an error.
func (e *Extractor) Lightweight(ctx context.Context, data []byte) (*model.FeatureVector, error) {
	t, err := e.parse(ctx, data)
	if t == nil || err != nil {
		return nil, err
	}
	return e.LightweightTable(ctx, t)
}

// ImageFeatures parses data, renders the reference image through it and
// returns the 95-dimensional vector of the result. Parse and render
// failures yield (nil, nil). A missing reference image is a precondition
// failure and returns ErrReferenceImage.
func (e *Extractor) ImageFeatures(ctx context.Context, data []byte) (*model.FeatureVector, error) {
	if !e.HasReference() {
		return nil, ErrReferenceImage
	}
	t, err := e.parse(ctx, data)
	if t == nil || err != nil {
		return nil, err
	}
	return e.ImageFeaturesTable(ctx, t)
}

// LightweightTable computes the 7-dimensional vector of a parsed table.
func (e *Extractor) LightweightTable(ctx context.Context, t *lut.Table) (*model.FeatureVector, error) {
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	v := lightweight(t)
	metrics.RecordExtractionLatency(model.Lightweight7D.String(), msSince(start))
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	return &model.FeatureVector{Metric: model.Lightweight7D, Values: v}, nil
}

// ImageFeaturesTable computes the 95-dimensional vector of a parsed table.
func (e *Extractor) ImageFeaturesTable(ctx context.Context, t *lut.Table) (*model.FeatureVector, error) {
	start := time.Now()
	img, err := e.Render(ctx, t)
	switch {
	case err == nil:
	case isStop(err):
		return nil, err
	default:
		e.log.Warn(ctx, "lut application failed, skipping image features", logger.Error(err))
		return nil, nil
	}
	v := imageFeatures(img)
	metrics.RecordExtractionLatency(model.ImageFeatures.String(), msSince(start))
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	return &model.FeatureVector{Metric: model.ImageFeatures, Values: v}, nil
}

// Render applies t to the reference image.
func (e *Extractor) Render(ctx context.Context, t *lut.Table) (*image.NRGBA, error) {
	if !e.HasReference() {
		return nil, ErrReferenceImage
	}
	return e.render(ctx, t, e.reference)
}

// Thumbnail applies t to a downscaled reference image and returns PNG
// bytes.
func (e *Extractor) Thumbnail(ctx context.Context, t *lut.Table) ([]byte, error) {
	if !e.HasReference() {
		return nil, ErrReferenceImage
	}
	img, err := e.render(ctx, t, e.thumbRef)
	if err != nil {
		return nil, err
	}
	return raster.EncodePNG(img)
}

func (e *Extractor) render(ctx context.Context, t *lut.Table, ref *image.NRGBA) (*image.NRGBA, error) {
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	img, err := e.applier.Apply(t, ref)
	if err != nil {
		return nil, fmt.Errorf("apply lut: %w", err)
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	return img, nil
}

func (e *Extractor) parse(ctx context.Context, data []byte) (*lut.Table, error) {
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	t, err := lut.Parse(data)
	if err != nil {
		e.log.Warn(ctx, "unparseable lut, skipping", logger.Error(err))
		return nil, nil
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func checkpoint(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
}

func isStop(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, ErrReferenceImage)
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
