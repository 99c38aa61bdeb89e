package service

import (
	"context"

	"github.com/okian/lutcurate/pkg/logger"
)

// GetStats summarizes catalog, curation and queue state. Counts that
// cannot be read are omitted.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	stats := map[string]any{"started": false}
	store, err := s.components()
	if err != nil {
		return stats
	}
	stats["started"] = true
	stats["has_reference"] = s.HasReference()
	stats["queue_size"] = s.jobs.Len(ctx)
	stats["queue_capacity"] = s.jobs.Capacity()

	log := s.logger.Named("stats")
	if luts, err := store.ListLuts(ctx); err == nil {
		stats["luts"] = len(luts)
	} else {
		log.Warn(ctx, "list luts", logger.Error(err))
	}
	if analyses, err := store.ListAnalyses(ctx); err == nil {
		stats["analyzed"] = len(analyses)
	} else {
		log.Warn(ctx, "list analyses", logger.Error(err))
	}
	if clusters, err := s.curation.Stats(ctx); err == nil {
		live := 0
		for _, n := range clusters {
			live += n
		}
		stats["clusters"] = len(clusters)
		stats["live_members"] = live
	}
	if snaps, err := store.ListSnapshots(ctx); err == nil {
		stats["snapshots"] = len(snaps)
	}
	if task, err := store.RunningTask(ctx); err == nil {
		stats["running_task"] = task.ID
	}
	return stats
}
