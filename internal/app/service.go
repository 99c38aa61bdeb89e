// Package service wires the catalog, the curation engine and the
// background analysis runner behind one API used by the HTTP server and
// the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/lutcurate/internal/adapters/blob"
	"github.com/okian/lutcurate/internal/adapters/mq/queue"
	workerpool "github.com/okian/lutcurate/internal/adapters/mq/worker"
	"github.com/okian/lutcurate/internal/adapters/repository"
	"github.com/okian/lutcurate/internal/config"
	"github.com/okian/lutcurate/internal/domain/analysis"
	"github.com/okian/lutcurate/internal/domain/curation"
	"github.com/okian/lutcurate/internal/domain/features"
	"github.com/okian/lutcurate/internal/domain/model"
	"github.com/okian/lutcurate/internal/domain/raster"
	"github.com/okian/lutcurate/internal/domain/similarity"
	"github.com/okian/lutcurate/pkg/logger"
)

// Service implements the API dependencies of the curation engine.
type Service struct {
	mu sync.RWMutex

	cfg       *config.Config
	reference image.Image

	// Core components
	store     repository.Store
	ownStore  bool
	blobs     blob.Store
	extractor *features.Extractor
	renderer  *similarity.Renderer
	curation  *curation.Manager
	runner    *analysis.Runner
	jobs      *queue.JobQueue
	pool      *workerpool.Pool

	// Serializes clustering runs.
	clusterMu sync.Mutex

	started  bool
	now      func() time.Time
	progress func(model.AnalysisTask)

	logger logger.Logger
}

// New constructs a Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: config.New(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the stores, loads the reference image and starts the
// background worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	if err := s.openStores(ctx); err != nil {
		return err
	}
	s.loadReference(ctx)

	extractorOpts := []features.Option{
		features.WithThumbnailSize(s.cfg.ThumbnailSize),
		features.WithLogger(s.logger.Named("features")),
	}
	if s.reference != nil {
		extractorOpts = append(extractorOpts, features.WithReference(s.reference))
	}
	s.extractor = features.NewExtractor(extractorOpts...)
	s.renderer = similarity.NewRenderer(s.extractor, s.fetch, s.logger.Named("render"))
	s.curation = curation.NewManager(s.store, curation.WithLogger(s.logger.Named("curation")))

	s.jobs = queue.NewJobQueue(queue.WithCapacity(s.cfg.JobQueueSize))
	s.pool = workerpool.NewPool(s.jobs.Capacity(), s.jobs)
	runnerOpts := []analysis.Option{analysis.WithLogger(s.logger.Named("runner"))}
	if s.progress != nil {
		runnerOpts = append(runnerOpts, analysis.WithProgress(s.progress))
	}
	s.runner = analysis.NewRunner(s.store, s.blobs, s.extractor, s.jobs, runnerOpts...)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "curation service started",
		logger.Bool("in_memory", s.ownStore && s.cfg.InMemory()),
		logger.Bool("reference", s.extractor.HasReference()),
		logger.Int("job_slots", s.jobs.Capacity()),
	)
	return nil
}

// Stop interrupts background work and closes owned stores.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping curation service...")

	var errs []error
	if s.pool != nil {
		errs = append(errs, s.pool.Shutdown(ctx))
	}
	if s.ownStore && s.store != nil {
		errs = append(errs, s.store.Close())
		s.store = nil
	}

	s.started = false
	s.logger.Info(ctx, "curation service stopped")
	return errors.Join(errs...)
}

// HasReference reports whether a reference image is loaded.
func (s *Service) HasReference() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extractor != nil && s.extractor.HasReference()
}

func (s *Service) openStores(ctx context.Context) error {
	if s.store == nil {
		if s.cfg.InMemory() {
			s.store = repository.NewMemoryStore()
		} else {
			if dir := filepath.Dir(s.cfg.DatabasePath); dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create database dir: %w", err)
				}
			}
			store, err := repository.OpenSQLite(ctx, s.cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			s.store = store
		}
		s.ownStore = true
	}
	if s.blobs == nil {
		if s.cfg.BlobDir == "" {
			s.blobs = blob.NewMemory()
		} else {
			fs, err := blob.NewFS(s.cfg.BlobDir)
			if err != nil {
				return fmt.Errorf("open blob store: %w", err)
			}
			s.blobs = fs
		}
	}
	return nil
}

// loadReference reads cfg.ReferenceImage. A missing or unreadable image
// only disables the metrics that need it.
func (s *Service) loadReference(ctx context.Context) {
	if s.reference == nil && s.cfg.ReferenceImage != "" {
		img, err := raster.Load(s.cfg.ReferenceImage)
		if err != nil {
			s.logger.Warn(ctx, "reference image unavailable",
				logger.String("path", s.cfg.ReferenceImage), logger.Error(err))
			return
		}
		s.reference = img
	}
	if s.reference != nil && s.cfg.RenderMaxSide > 0 {
		s.reference = raster.Fit(s.reference, s.cfg.RenderMaxSide)
	}
}

// fetch loads LUT bytes by asset id.
func (s *Service) fetch(ctx context.Context, id string) ([]byte, error) {
	asset, err := s.store.GetLut(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.blobs.Get(ctx, asset.BlobPath)
}

// components returns the started components or ErrNotStarted.
func (s *Service) components() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// Luts lists the catalog.
func (s *Service) Luts(ctx context.Context) ([]model.LutAsset, error) {
	store, err := s.components()
	if err != nil {
		return nil, err
	}
	return store.ListLuts(ctx)
}
