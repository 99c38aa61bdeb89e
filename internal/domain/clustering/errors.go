package clustering

import "errors"

// Sentinel kinds for clustering errors.
var (
	ErrInvalidClusterCount = errors.New("cluster count must be at least 2")
	ErrTooFewItems         = errors.New("cluster count exceeds analyzable items")
	ErrInputMismatch       = errors.New("clustering input does not match the id list")
	ErrInvalidPlan         = errors.New("clustering plan is not set")
)
