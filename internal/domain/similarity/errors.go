package similarity

import "errors"

// Sentinel kinds for similarity errors.
var (
	ErrNoImages       = errors.New("similarity: no images")
	ErrSizeMismatch   = errors.New("similarity: images differ in size")
	ErrCanonicalSize  = errors.New("similarity: canonical size too small")
	ErrNotImageMetric = errors.New("similarity: metric is not image based")
	ErrIDMismatch     = errors.New("similarity: id list does not match matrix order")
)
