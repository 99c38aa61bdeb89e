package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/lutcurate/internal/adapters/repository"
	"github.com/okian/lutcurate/internal/domain/clustering"
	"github.com/okian/lutcurate/internal/domain/features"
	"github.com/okian/lutcurate/internal/domain/model"
	"github.com/okian/lutcurate/internal/domain/similarity"
	"github.com/okian/lutcurate/pkg/logger"
	"github.com/okian/lutcurate/pkg/metrics"
)

// ClusterRequest asks for a new clustering of the whole catalog.
type ClusterRequest struct {
	NClusters   int    `json:"n_clusters"`
	Metric      string `json:"metric"`
	Algorithm   string `json:"algorithm"`
	ReuseImages bool   `json:"reuse_images"`
}

// FailedFile is a catalog item left out of a run.
type FailedFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// ClusterResult summarizes a committed clustering run.
type ClusterResult struct {
	NClusters    int          `json:"n_clusters"`
	Metric       string       `json:"metric"`
	Algorithm    string       `json:"algorithm"`
	TotalFiles   int          `json:"total_files"`
	FailedFiles  []FailedFile `json:"failed_files"`
	ClusterStats map[int]int  `json:"cluster_stats"`
}

// ClusterOverview describes the current assignment set.
type ClusterOverview struct {
	Run          *model.ClusterRun `json:"run,omitempty"`
	ClusterStats map[int]int       `json:"cluster_stats"`
}

// collected is the clustering input gathered from the catalog.
type collected struct {
	input  clustering.Input
	failed []FailedFile
}

// Cluster runs validate, collect, fit and commit. Preconditions fail the
// request before any work starts; items that cannot be analyzed are
// reported in FailedFiles. The assignment set is replaced in one step or
// not at all.
func (s *Service) Cluster(ctx context.Context, req ClusterRequest) (*ClusterResult, error) {
	store, err := s.components()
	if err != nil {
		return nil, err
	}
	start := time.Now()

	plan, err := s.plan(req)
	if err != nil {
		metrics.RecordClusteringRun(req.Metric, req.Algorithm, "rejected", msSince(start))
		return nil, err
	}
	metric, algorithm := plan.Metric().String(), plan.Algorithm().String()
	outcome := "error"
	defer func() {
		metrics.RecordClusteringRun(metric, algorithm, outcome, msSince(start))
	}()

	if plan.Metric().NeedsReference() && !s.extractor.HasReference() {
		outcome = "rejected"
		return nil, fmt.Errorf("%s: %w", metric, features.ErrReferenceImage)
	}

	s.clusterMu.Lock()
	defer s.clusterMu.Unlock()

	luts, err := store.ListLuts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list luts: %w", err)
	}
	if req.NClusters > len(luts) {
		outcome = "rejected"
		return nil, fmt.Errorf("%w: %d clusters for %d catalog items", clustering.ErrTooFewItems, req.NClusters, len(luts))
	}

	var c *collected
	if plan.Metric().Space() == model.VectorSpace {
		c, err = s.collectVectors(ctx, store, plan.Metric(), luts)
	} else {
		c, err = s.collectDistances(ctx, plan.Metric(), luts, req.ReuseImages)
	}
	if err != nil {
		return nil, err
	}

	res, err := clustering.Run(plan, c.input, req.NClusters,
		clustering.WithRestarts(s.cfg.KMeansRestarts),
		clustering.WithMaxIterations(s.cfg.KMeansMaxIterations),
		clustering.WithSeed(uint64(s.cfg.KMeansSeed)),
	)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", features.ErrInterrupted, context.Cause(ctx))
	}

	run := model.ClusterRun{
		Metric:     plan.Metric(),
		Algorithm:  plan.Algorithm(),
		NClusters:  res.Clusters(),
		TotalFiles: len(res.IDs),
		CreatedAt:  s.now().UTC(),
	}
	assignments := make([]model.ClusterAssignment, len(res.IDs))
	for i, id := range res.IDs {
		assignments[i] = model.ClusterAssignment{
			ClusterID:        res.Labels[i],
			LutID:            id,
			DistanceToCenter: res.Distances[i],
		}
	}
	if err := store.ReplaceAssignments(context.WithoutCancel(ctx), run, assignments); err != nil {
		return nil, fmt.Errorf("commit assignments: %w", err)
	}

	outcome = "ok"
	metrics.UpdateClusteredItems(len(assignments))
	s.logger.Info(ctx, "clustering committed",
		logger.String("metric", metric),
		logger.String("algorithm", algorithm),
		logger.Int("clusters", run.NClusters),
		logger.Int("files", run.TotalFiles),
		logger.Int("failed", len(c.failed)),
		logger.Duration("took", time.Since(start)))

	return &ClusterResult{
		NClusters:    run.NClusters,
		Metric:       metric,
		Algorithm:    algorithm,
		TotalFiles:   run.TotalFiles,
		FailedFiles:  c.failed,
		ClusterStats: res.Sizes(),
	}, nil
}

// Clusters reports the current run and its live cluster sizes.
func (s *Service) Clusters(ctx context.Context) (*ClusterOverview, error) {
	store, err := s.components()
	if err != nil {
		return nil, err
	}
	stats, err := s.curation.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := &ClusterOverview{ClusterStats: stats}
	run, err := store.CurrentRun(ctx)
	switch {
	case err == nil:
		out.Run = &run
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}
	return out, nil
}

func (s *Service) plan(req ClusterRequest) (model.Plan, error) {
	if req.NClusters < 2 {
		return model.Plan{}, fmt.Errorf("%w: got %d", clustering.ErrInvalidClusterCount, req.NClusters)
	}
	metric, err := model.ParseMetric(req.Metric)
	if err != nil {
		return model.Plan{}, err
	}
	algorithm, err := model.ParseAlgorithm(req.Algorithm)
	if err != nil {
		return model.Plan{}, err
	}
	return model.NewPlan(metric, algorithm)
}

// collectVectors prefers stored analysis vectors and extracts the rest on
// the fly.
func (s *Service) collectVectors(ctx context.Context, store repository.Store, m model.Metric, luts []model.LutAsset) (*collected, error) {
	analyses, err := store.ListAnalyses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	c := &collected{failed: []FailedFile{}}
	for _, asset := range luts {
		if a, ok := analyses[asset.ID]; ok {
			if v := a.Vector(m); len(v) > 0 {
				c.input.IDs = append(c.input.IDs, asset.ID)
				c.input.Vectors = append(c.input.Vectors, v)
				continue
			}
		}
		data, err := s.blobs.Get(ctx, asset.BlobPath)
		if err != nil {
			c.fail(asset, err)
			continue
		}
		fv, err := s.extractor.Extract(ctx, m, data)
		if err != nil {
			return nil, err
		}
		if fv == nil {
			c.fail(asset, errUnanalyzable)
			continue
		}
		c.input.IDs = append(c.input.IDs, asset.ID)
		c.input.Vectors = append(c.input.Vectors, fv.Values)
	}
	return c, nil
}

// collectDistances renders every LUT and builds the metric's distance
// matrix over the ones that rendered.
func (s *Service) collectDistances(ctx context.Context, m model.Metric, luts []model.LutAsset, reuse bool) (*collected, error) {
	cache, err := similarity.OpenCache(s.cfg.RenderCacheDir, s.extractor.ReferenceFingerprint(), reuse)
	if err != nil {
		return nil, fmt.Errorf("open render cache: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			s.logger.Warn(ctx, "render cache cleanup failed", logger.String("dir", cache.Dir()), logger.Error(err))
		}
	}()

	ids := make([]string, len(luts))
	byID := make(map[string]model.LutAsset, len(luts))
	for i, l := range luts {
		ids[i] = l.ID
		byID[l.ID] = l
	}
	rendered, err := s.renderer.RenderAll(ctx, ids, cache)
	if err != nil {
		return nil, err
	}

	c := &collected{failed: []FailedFile{}}
	for _, f := range rendered.Failed {
		c.fail(byID[f.ID], f.Err)
	}
	c.input.IDs = rendered.IDs
	if len(rendered.IDs) == 0 {
		return c, nil
	}
	matrix, err := similarity.Compute(ctx, m, rendered.IDs, rendered.Images, s.cfg.CanonicalSize)
	if err != nil {
		return nil, err
	}
	c.input.Distances = matrix
	return c, nil
}

var errUnanalyzable = errors.New("unanalyzable lut")

func (c *collected) fail(asset model.LutAsset, err error) {
	c.failed = append(c.failed, FailedFile{ID: asset.ID, Filename: asset.Filename, Error: err.Error()})
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
