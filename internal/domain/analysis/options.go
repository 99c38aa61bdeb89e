package analysis

import (
	"time"

	"github.com/okian/lutcurate/internal/domain/model"
	"github.com/okian/lutcurate/pkg/logger"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator replaces the task id source.
func WithIDGenerator(gen func() string) Option {
	return func(r *Runner) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithProgress registers a callback invoked after every checkpoint.
func WithProgress(fn func(model.AnalysisTask)) Option {
	return func(r *Runner) {
		r.progress = fn
	}
}
