package analysis

import "errors"

// Sentinel kinds for analysis errors.
var (
	ErrTaskRunning  = errors.New("an analysis task is already running")
	ErrTaskFinished = errors.New("analysis task already finished")
	ErrInterrupted  = errors.New("analysis task interrupted")
	ErrSuperseded   = errors.New("superseded by a forced restart")
	ErrBlobMissing  = errors.New("lut blob missing")
	ErrNoFeatures   = errors.New("no features extracted")
)
