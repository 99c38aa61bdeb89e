package service

import (
	"image"

	"github.com/okian/lutcurate/internal/adapters/blob"
	"github.com/okian/lutcurate/internal/adapters/repository"
	"github.com/okian/lutcurate/internal/config"
	"github.com/okian/lutcurate/internal/domain/model"
	"github.com/okian/lutcurate/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the process configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore injects a catalog store. The service does not close it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithBlobStore injects a blob store.
func WithBlobStore(b blob.Store) Option {
	return func(s *Service) {
		if b != nil {
			s.blobs = b
		}
	}
}

// WithReferenceImage injects the reference image instead of loading
// cfg.ReferenceImage.
func WithReferenceImage(img image.Image) Option {
	return func(s *Service) {
		if img != nil {
			s.reference = img
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAnalysisProgress registers a callback for analysis checkpoints.
func WithAnalysisProgress(fn func(model.AnalysisTask)) Option {
	return func(s *Service) {
		s.progress = fn
	}
}
