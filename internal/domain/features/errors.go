package features

import "errors"

// Sentinel kinds for feature extraction errors.
var (
	// ErrInterrupted is returned when the caller's context was cancelled at
	// a suspension point. It wraps the context cause.
	ErrInterrupted = errors.New("extraction interrupted")
	// ErrReferenceImage marks an operation that needs the reference image
	// when none is configured.
	ErrReferenceImage = errors.New("reference image unavailable")
	// ErrUnsupportedMetric marks a metric with no feature vector.
	ErrUnsupportedMetric = errors.New("metric has no feature vector")
)
