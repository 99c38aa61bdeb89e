// Package curation distills redundant cluster members and snapshots the
// live grouping.
package curation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/lutcurate/internal/domain/model"
	"github.com/okian/lutcurate/pkg/logger"
	"github.com/okian/lutcurate/pkg/metrics"
)

// Catalog is the slice of the catalog store curation needs.
type Catalog interface {
	ListLuts(ctx context.Context) ([]model.LutAsset, error)
	ListAssignments(ctx context.Context) ([]model.ClusterAssignment, error)
	CurrentRun(ctx context.Context) (model.ClusterRun, error)
	SetDistilled(ctx context.Context, clusterID int, lutID string) error
	PutSnapshot(ctx context.Context, s model.ClusterSnapshot) error
	GetSnapshot(ctx context.Context, id string) (model.ClusterSnapshot, error)
	ListSnapshots(ctx context.Context) ([]model.ClusterSnapshot, error)
}

// SnapshotRequest names a snapshot and the grouping it came from. Empty
// metric and algorithm fields are filled from the current clustering run.
type SnapshotRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Metric        string `json:"metric"`
	MetricName    string `json:"metric_name"`
	Algorithm     string `json:"algorithm"`
	AlgorithmName string `json:"algorithm_name"`
}

// Manager applies curation to the current assignment set.
type Manager struct {
	catalog Catalog
	log     logger.Logger
	now     func() time.Time
	newID   func() string
}

// NewManager builds a Manager over catalog.
func NewManager(catalog Catalog, opts ...Option) *Manager {
	m := &Manager{
		catalog: catalog,
		log:     logger.Nop(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Distill marks one member as redundant. Distilling twice is a no-op.
func (m *Manager) Distill(ctx context.Context, clusterID int, lutID string) error {
	assignments, err := m.catalog.ListAssignments(ctx)
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}
	for _, a := range assignments {
		if a.ClusterID != clusterID || a.LutID != lutID {
			continue
		}
		if a.Distilled {
			return nil
		}
		if err := m.catalog.SetDistilled(ctx, clusterID, lutID); err != nil {
			return fmt.Errorf("distill %d/%s: %w", clusterID, lutID, err)
		}
		metrics.RecordDistilled()
		m.log.Info(ctx, "lut distilled", logger.Int("cluster_id", clusterID), logger.String("lut_id", lutID))
		return nil
	}
	return fmt.Errorf("%w: cluster %d, lut %s", ErrNotFound, clusterID, lutID)
}

// Members lists the live members of a cluster, closest to the center
// first; members without a distance come last.
func (m *Manager) Members(ctx context.Context, clusterID int) ([]model.MemberSummary, error) {
	groups, known, err := m.live(ctx)
	if err != nil {
		return nil, err
	}
	if !known[clusterID] {
		return nil, fmt.Errorf("%w: cluster %d", ErrNotFound, clusterID)
	}
	return groups[clusterID], nil
}

// Stats counts live members per cluster. Clusters whose members are all
// distilled are omitted.
func (m *Manager) Stats(ctx context.Context) (map[int]int, error) {
	groups, _, err := m.live(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int]int, len(groups))
	for id, members := range groups {
		out[id] = len(members)
	}
	return out, nil
}

// Snapshot freezes the live grouping under a name.
func (m *Manager) Snapshot(ctx context.Context, req SnapshotRequest) (model.ClusterSnapshot, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return model.ClusterSnapshot{}, ErrInvalidName
	}
	groups, _, err := m.live(ctx)
	if err != nil {
		return model.ClusterSnapshot{}, err
	}
	m.fillPlan(ctx, &req)

	data := make(map[int]model.SnapshotCluster, len(groups))
	for id, members := range groups {
		data[id] = model.SnapshotCluster{FileCount: len(members), Members: members}
	}
	snap := model.ClusterSnapshot{
		ID:            m.newID(),
		Name:          name,
		Description:   req.Description,
		Metric:        req.Metric,
		MetricName:    req.MetricName,
		Algorithm:     req.Algorithm,
		AlgorithmName: req.AlgorithmName,
		NClusters:     len(data),
		ClusterData:   data,
		CreatedAt:     m.now().UTC(),
	}
	if err := m.catalog.PutSnapshot(ctx, snap); err != nil {
		return model.ClusterSnapshot{}, fmt.Errorf("store snapshot: %w", err)
	}
	metrics.RecordSnapshot()
	m.log.Info(ctx, "snapshot created",
		logger.String("id", snap.ID),
		logger.String("name", snap.Name),
		logger.Int("clusters", snap.NClusters))
	return snap, nil
}

// GetSnapshot returns a stored snapshot.
func (m *Manager) GetSnapshot(ctx context.Context, id string) (model.ClusterSnapshot, error) {
	return m.catalog.GetSnapshot(ctx, id)
}

// ListSnapshots returns stored snapshots newest first.
func (m *Manager) ListSnapshots(ctx context.Context) ([]model.ClusterSnapshot, error) {
	return m.catalog.ListSnapshots(ctx)
}

// fillPlan completes missing metric and algorithm metadata.
func (m *Manager) fillPlan(ctx context.Context, req *SnapshotRequest) {
	if req.Metric == "" || req.Algorithm == "" {
		if run, err := m.catalog.CurrentRun(ctx); err == nil {
			if req.Metric == "" {
				req.Metric = run.Metric.String()
			}
			if req.Algorithm == "" {
				req.Algorithm = run.Algorithm.String()
			}
		}
	}
	if req.MetricName == "" {
		if metric, err := model.ParseMetric(req.Metric); err == nil {
			req.MetricName = metric.Name()
		}
	}
	if req.AlgorithmName == "" {
		if algorithm, err := model.ParseAlgorithm(req.Algorithm); err == nil {
			req.AlgorithmName = algorithm.Name()
		}
	}
}

// live groups non-distilled assignments by cluster, joined with asset
// filenames and sorted by distance. known lists every cluster id of the
// current run, distilled or not.
func (m *Manager) live(ctx context.Context) (map[int][]model.MemberSummary, map[int]bool, error) {
	assignments, err := m.catalog.ListAssignments(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list assignments: %w", err)
	}
	luts, err := m.catalog.ListLuts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list luts: %w", err)
	}
	names := make(map[string]string, len(luts))
	for _, l := range luts {
		names[l.ID] = l.Filename
	}

	groups := make(map[int][]model.MemberSummary)
	known := make(map[int]bool)
	for _, a := range assignments {
		known[a.ClusterID] = true
		if a.Distilled {
			continue
		}
		groups[a.ClusterID] = append(groups[a.ClusterID], model.MemberSummary{
			LutID:            a.LutID,
			Filename:         names[a.LutID],
			DistanceToCenter: a.DistanceToCenter,
		})
	}
	for _, members := range groups {
		sortMembers(members)
	}
	return groups, known, nil
}

func sortMembers(members []model.MemberSummary) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i].DistanceToCenter, members[j].DistanceToCenter
		switch {
		case a == nil && b == nil:
			return members[i].LutID < members[j].LutID
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		}
		return members[i].LutID < members[j].LutID
	})
}
