// Package model contains the records shared by the curation engine and its
// stores.
package model

import (
	"time"
)

// LutAsset is a catalog entry pointing at LUT bytes in the blob store.
// It is immutable once stored.
type LutAsset struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	BlobPath  string    `json:"blob_path"`
	CreatedAt time.Time `json:"created_at"`
}

// LutAnalysis is the extraction result the batch runner writes per asset.
type LutAnalysis struct {
	LutID         string    `json:"lut_id"`
	GridSize      int       `json:"grid_size"`
	Lightweight   []float64 `json:"lightweight,omitempty"`
	ImageFeatures []float64 `json:"image_features,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	Error         string    `json:"error,omitempty"`
	AnalyzedAt    time.Time `json:"analyzed_at"`
}

// Analyzed reports whether the record carries an extraction result.
func (a *LutAnalysis) Analyzed() bool {
	return a != nil && len(a.Lightweight) > 0
}

// Vector returns the stored vector for a vector-space metric.
func (a *LutAnalysis) Vector(m Metric) []float64 {
	if a == nil {
		return nil
	}
	switch m {
	case Lightweight7D:
		return a.Lightweight
	case ImageFeatures:
		return a.ImageFeatures
	}
	return nil
}

// FeatureVector is an ordered numeric tuple tagged with the metric that
// produced it.
type FeatureVector struct {
	Metric Metric    `json:"metric"`
	Values []float64 `json:"values"`
}

// Len returns the vector dimension.
func (v FeatureVector) Len() int { return len(v.Values) }

// ClusterAssignment places one LUT in one cluster of the latest run.
// DistanceToCenter is nil when no center could be derived.
type ClusterAssignment struct {
	ClusterID        int      `json:"cluster_id"`
	LutID            string   `json:"lut_id"`
	DistanceToCenter *float64 `json:"distance_to_center"`
	Distilled        bool     `json:"distilled"`
}

// MemberSummary is the LutAsset view stored in cluster listings and
// snapshots.
type MemberSummary struct {
	LutID            string   `json:"lut_id" yaml:"lut_id"`
	Filename         string   `json:"filename" yaml:"filename"`
	DistanceToCenter *float64 `json:"distance_to_center" yaml:"distance_to_center"`
}

// SnapshotCluster is one group inside a snapshot.
type SnapshotCluster struct {
	FileCount int             `json:"file_count" yaml:"file_count"`
	Members   []MemberSummary `json:"members" yaml:"members"`
}

// ClusterSnapshot is an immutable point-in-time export of the live
// (non-distilled) grouping.
type ClusterSnapshot struct {
	ID            string                  `json:"id" yaml:"id"`
	Name          string                  `json:"name" yaml:"name"`
	Description   string                  `json:"description" yaml:"description"`
	Metric        string                  `json:"metric" yaml:"metric"`
	MetricName    string                  `json:"metric_name" yaml:"metric_name"`
	Algorithm     string                  `json:"algorithm" yaml:"algorithm"`
	AlgorithmName string                  `json:"algorithm_name" yaml:"algorithm_name"`
	NClusters     int                     `json:"n_clusters" yaml:"n_clusters"`
	ClusterData   map[int]SnapshotCluster `json:"cluster_data" yaml:"cluster_data"`
	CreatedAt     time.Time               `json:"created_at" yaml:"created_at"`
}

// TaskStatus is the lifecycle state of an AnalysisTask.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether s is a final state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// AnalysisTask tracks a catalog-wide batch analysis run.
type AnalysisTask struct {
	ID           string     `json:"id"`
	Status       TaskStatus `json:"status"`
	Total        int        `json:"total"`
	Processed    int        `json:"processed"`
	Success      int        `json:"success"`
	FailedCount  int        `json:"failed"`
	Interrupted  bool       `json:"interrupted"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Force        bool       `json:"force"`
	SkipAnalyzed bool       `json:"skip_analyzed"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// ClusterRun describes the clustering run that produced the current
// assignment set.
type ClusterRun struct {
	Metric     Metric    `json:"metric"`
	Algorithm  Algorithm `json:"algorithm"`
	NClusters  int       `json:"n_clusters"`
	TotalFiles int       `json:"total_files"`
	CreatedAt  time.Time `json:"created_at"`
}
