package model

import "errors"

// Sentinel kinds for model validation errors.
var (
	ErrUnknownMetric    = errors.New("unknown metric")
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	ErrIncompatiblePlan = errors.New("metric and algorithm are incompatible")
)
