package curation

import "errors"

// Sentinel kinds for curation errors.
var (
	ErrNotFound      = errors.New("cluster assignment not found")
	ErrInvalidName   = errors.New("snapshot name is required")
	ErrUnknownFormat = errors.New("unknown export format")
)
