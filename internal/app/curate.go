package service

import (
	"context"

	"github.com/okian/lutcurate/internal/domain/analysis"
	"github.com/okian/lutcurate/internal/domain/curation"
	"github.com/okian/lutcurate/internal/domain/model"
)

// Members lists the live members of a cluster.
func (s *Service) Members(ctx context.Context, clusterID int) ([]model.MemberSummary, error) {
	if _, err := s.components(); err != nil {
		return nil, err
	}
	return s.curation.Members(ctx, clusterID)
}

// Distill hides a redundant member from its cluster.
func (s *Service) Distill(ctx context.Context, clusterID int, lutID string) error {
	if _, err := s.components(); err != nil {
		return err
	}
	return s.curation.Distill(ctx, clusterID, lutID)
}

// CreateSnapshot freezes the live grouping.
func (s *Service) CreateSnapshot(ctx context.Context, req curation.SnapshotRequest) (model.ClusterSnapshot, error) {
	if _, err := s.components(); err != nil {
		return model.ClusterSnapshot{}, err
	}
	return s.curation.Snapshot(ctx, req)
}

// Snapshots lists snapshots newest first.
func (s *Service) Snapshots(ctx context.Context) ([]model.ClusterSnapshot, error) {
	if _, err := s.components(); err != nil {
		return nil, err
	}
	return s.curation.ListSnapshots(ctx)
}

// Snapshot returns one snapshot.
func (s *Service) Snapshot(ctx context.Context, id string) (model.ClusterSnapshot, error) {
	if _, err := s.components(); err != nil {
		return model.ClusterSnapshot{}, err
	}
	return s.curation.GetSnapshot(ctx, id)
}

// StartAnalysis submits a batch analysis task.
func (s *Service) StartAnalysis(ctx context.Context, opts analysis.Options) (model.AnalysisTask, error) {
	if _, err := s.components(); err != nil {
		return model.AnalysisTask{}, err
	}
	return s.runner.Start(ctx, opts)
}

// AnalysisTask returns a task's progress record.
func (s *Service) AnalysisTask(ctx context.Context, id string) (model.AnalysisTask, error) {
	if _, err := s.components(); err != nil {
		return model.AnalysisTask{}, err
	}
	return s.runner.Task(ctx, id)
}

// InterruptAnalysis asks a task to stop.
func (s *Service) InterruptAnalysis(ctx context.Context, id string) (model.AnalysisTask, error) {
	if _, err := s.components(); err != nil {
		return model.AnalysisTask{}, err
	}
	return s.runner.Interrupt(ctx, id)
}

// WaitAnalysis blocks until a task started by this process returns.
func (s *Service) WaitAnalysis(ctx context.Context, id string) (model.AnalysisTask, error) {
	if _, err := s.components(); err != nil {
		return model.AnalysisTask{}, err
	}
	return s.runner.Wait(ctx, id)
}
