package features

import (
	"image"

	"github.com/okian/lutcurate/internal/domain/lut"
	"github.com/okian/lutcurate/pkg/logger"
)

// Option configures an Extractor.
type Option func(*Extractor)

// WithApplier replaces the LUT application collaborator.
func WithApplier(a lut.Applier) Option {
	return func(e *Extractor) {
		if a != nil {
			e.applier = a
		}
	}
}

// WithReference sets the reference image LUTs are rendered against.
func WithReference(img image.Image) Option {
	return func(e *Extractor) {
		if img != nil && !img.Bounds().Empty() {
			e.source = img
		}
	}
}

// WithThumbnailSize sets the longest side of rendered thumbnails.
func WithThumbnailSize(size int) Option {
	return func(e *Extractor) {
		if size > 0 {
			e.thumbSize = size
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.log = l
		}
	}
}
