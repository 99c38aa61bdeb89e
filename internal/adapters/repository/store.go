// Package repository persists the LUT catalog, analysis results, cluster
// assignments, snapshots and analysis tasks.
package repository

import (
	"context"

	"github.com/okian/lutcurate/internal/domain/model"
)

// LutStore holds immutable catalog entries.
type LutStore interface {
	// PutLut inserts a new asset. Returns ErrConflict if the id exists.
	PutLut(ctx context.Context, lut model.LutAsset) error
	// GetLut returns ErrNotFound for unknown ids.
	GetLut(ctx context.Context, id string) (model.LutAsset, error)
	// LutByFilename returns ErrNotFound when no asset carries filename.
	LutByFilename(ctx context.Context, filename string) (model.LutAsset, error)
	// ListLuts returns every asset ordered by creation time, then id.
	ListLuts(ctx context.Context) ([]model.LutAsset, error)
}

// AnalysisStore holds per-asset extraction results.
type AnalysisStore interface {
	// PutAnalysis inserts or replaces the result for a.LutID.
	PutAnalysis(ctx context.Context, a model.LutAnalysis) error
	// GetAnalysis returns ErrNotFound when the asset was never analyzed.
	GetAnalysis(ctx context.Context, lutID string) (model.LutAnalysis, error)
	// ListAnalyses returns every result keyed by asset id.
	ListAnalyses(ctx context.Context) (map[string]model.LutAnalysis, error)
}

// AssignmentStore holds the catalog-wide cluster assignment set.
type AssignmentStore interface {
	// ReplaceAssignments swaps the whole set and the run metadata at once.
	// Either everything is replaced or nothing is.
	ReplaceAssignments(ctx context.Context, run model.ClusterRun, assignments []model.ClusterAssignment) error
	// ListAssignments returns the set ordered by cluster id, then lut id.
	ListAssignments(ctx context.Context) ([]model.ClusterAssignment, error)
	// CurrentRun returns ErrNotFound before the first clustering run.
	CurrentRun(ctx context.Context) (model.ClusterRun, error)
	// SetDistilled flags one assignment. Flagging twice is not an error.
	// Returns ErrNotFound when the pair is not assigned.
	SetDistilled(ctx context.Context, clusterID int, lutID string) error
}

// SnapshotStore holds immutable snapshots.
type SnapshotStore interface {
	// PutSnapshot returns ErrConflict if the id exists.
	PutSnapshot(ctx context.Context, s model.ClusterSnapshot) error
	GetSnapshot(ctx context.Context, id string) (model.ClusterSnapshot, error)
	// ListSnapshots returns snapshots newest first.
	ListSnapshots(ctx context.Context) ([]model.ClusterSnapshot, error)
}

// TaskStore holds analysis tasks.
type TaskStore interface {
	// PutTask inserts or replaces a task.
	PutTask(ctx context.Context, t model.AnalysisTask) error
	GetTask(ctx context.Context, id string) (model.AnalysisTask, error)
	// RunningTask returns the most recent running task or ErrNotFound.
	RunningTask(ctx context.Context) (model.AnalysisTask, error)
	// ListTasks returns tasks newest first.
	ListTasks(ctx context.Context) ([]model.AnalysisTask, error)
}

// Store is the whole catalog.
type Store interface {
	LutStore
	AnalysisStore
	AssignmentStore
	SnapshotStore
	TaskStore
	Close() error
}
