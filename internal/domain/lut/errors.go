package lut

import "errors"

// Sentinel kinds for LUT errors.
var (
	// ErrNoTriplets marks input from which no color triplet was recovered.
	// Callers treat it as "unanalyzable", not as a crash.
	ErrNoTriplets = errors.New("lut: no valid triplets")
	// ErrNotAGrid marks a table that cannot be sampled as a 3D cube.
	ErrNotAGrid = errors.New("lut: triplets do not form a 3D grid")
)
