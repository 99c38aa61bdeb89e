package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/okian/lutcurate/internal/domain/model"
)

// MemoryStore is an in-process Store. Every method takes one lock, so
// ReplaceAssignments is a single atomic swap.
type MemoryStore struct {
	mu          sync.RWMutex
	luts        map[string]model.LutAsset
	analyses    map[string]model.LutAnalysis
	assignments []model.ClusterAssignment
	run         *model.ClusterRun
	snapshots   map[string]model.ClusterSnapshot
	tasks       map[string]model.AnalysisTask
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		luts:      make(map[string]model.LutAsset),
		analyses:  make(map[string]model.LutAnalysis),
		snapshots: make(map[string]model.ClusterSnapshot),
		tasks:     make(map[string]model.AnalysisTask),
	}
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// PutLut implements LutStore.
func (s *MemoryStore) PutLut(_ context.Context, lut model.LutAsset) error {
	if lut.ID == "" {
		return fmt.Errorf("%w: lut id is empty", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.luts[lut.ID]; ok {
		return fmt.Errorf("lut %s: %w", lut.ID, ErrConflict)
	}
	s.luts[lut.ID] = lut
	return nil
}

// GetLut implements LutStore.
func (s *MemoryStore) GetLut(_ context.Context, id string) (model.LutAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lut, ok := s.luts[id]
	if !ok {
		return model.LutAsset{}, fmt.Errorf("lut %s: %w", id, ErrNotFound)
	}
	return lut, nil
}

// LutByFilename implements LutStore.
func (s *MemoryStore) LutByFilename(_ context.Context, filename string) (model.LutAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, lut := range s.luts {
		if lut.Filename == filename {
			return lut, nil
		}
	}
	return model.LutAsset{}, fmt.Errorf("lut %q: %w", filename, ErrNotFound)
}

// ListLuts implements LutStore.
func (s *MemoryStore) ListLuts(_ context.Context) ([]model.LutAsset, error) {
	s.mu.RLock()
	out := make([]model.LutAsset, 0, len(s.luts))
	for _, lut := range s.luts {
		out = append(out, lut)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// PutAnalysis implements AnalysisStore.
func (s *MemoryStore) PutAnalysis(_ context.Context, a model.LutAnalysis) error {
	if a.LutID == "" {
		return fmt.Errorf("%w: analysis lut id is empty", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[a.LutID] = cloneAnalysis(a)
	return nil
}

// GetAnalysis implements AnalysisStore.
func (s *MemoryStore) GetAnalysis(_ context.Context, lutID string) (model.LutAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.analyses[lutID]
	if !ok {
		return model.LutAnalysis{}, fmt.Errorf("analysis %s: %w", lutID, ErrNotFound)
	}
	return cloneAnalysis(a), nil
}

// ListAnalyses implements AnalysisStore.
func (s *MemoryStore) ListAnalyses(_ context.Context) (map[string]model.LutAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.LutAnalysis, len(s.analyses))
	for id, a := range s.analyses {
		out[id] = cloneAnalysis(a)
	}
	return out, nil
}

// ReplaceAssignments implements AssignmentStore.
func (s *MemoryStore) ReplaceAssignments(_ context.Context, run model.ClusterRun, assignments []model.ClusterAssignment) error {
	next := make([]model.ClusterAssignment, len(assignments))
	for i, a := range assignments {
		next[i] = cloneAssignment(a)
	}
	sortAssignments(next)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = next
	s.run = &run
	return nil
}

// ListAssignments implements AssignmentStore.
func (s *MemoryStore) ListAssignments(_ context.Context) ([]model.ClusterAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ClusterAssignment, len(s.assignments))
	for i, a := range s.assignments {
		out[i] = cloneAssignment(a)
	}
	return out, nil
}

// CurrentRun implements AssignmentStore.
func (s *MemoryStore) CurrentRun(_ context.Context) (model.ClusterRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run == nil {
		return model.ClusterRun{}, fmt.Errorf("cluster run: %w", ErrNotFound)
	}
	return *s.run, nil
}

// SetDistilled implements AssignmentStore.
func (s *MemoryStore) SetDistilled(_ context.Context, clusterID int, lutID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.assignments {
		if s.assignments[i].ClusterID == clusterID && s.assignments[i].LutID == lutID {
			s.assignments[i].Distilled = true
			return nil
		}
	}
	return fmt.Errorf("assignment %d/%s: %w", clusterID, lutID, ErrNotFound)
}

// PutSnapshot implements SnapshotStore.
func (s *MemoryStore) PutSnapshot(_ context.Context, snap model.ClusterSnapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("%w: snapshot id is empty", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[snap.ID]; ok {
		return fmt.Errorf("snapshot %s: %w", snap.ID, ErrConflict)
	}
	s.snapshots[snap.ID] = cloneSnapshot(snap)
	return nil
}

// GetSnapshot implements SnapshotStore.
func (s *MemoryStore) GetSnapshot(_ context.Context, id string) (model.ClusterSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return model.ClusterSnapshot{}, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	return cloneSnapshot(snap), nil
}

// ListSnapshots implements SnapshotStore.
func (s *MemoryStore) ListSnapshots(_ context.Context) ([]model.ClusterSnapshot, error) {
	s.mu.RLock()
	out := make([]model.ClusterSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, cloneSnapshot(snap))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// PutTask implements TaskStore.
func (s *MemoryStore) PutTask(_ context.Context, t model.AnalysisTask) error {
	if t.ID == "" {
		return fmt.Errorf("%w: task id is empty", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

// GetTask implements TaskStore.
func (s *MemoryStore) GetTask(_ context.Context, id string) (model.AnalysisTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.AnalysisTask{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// RunningTask implements TaskStore.
func (s *MemoryStore) RunningTask(ctx context.Context) (model.AnalysisTask, error) {
	tasks, err := s.ListTasks(ctx)
	if err != nil {
		return model.AnalysisTask{}, err
	}
	for _, t := range tasks {
		if t.Status == model.TaskRunning {
			return t, nil
		}
	}
	return model.AnalysisTask{}, fmt.Errorf("running task: %w", ErrNotFound)
}

// ListTasks implements TaskStore.
func (s *MemoryStore) ListTasks(_ context.Context) ([]model.AnalysisTask, error) {
	s.mu.RLock()
	out := make([]model.AnalysisTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func sortAssignments(a []model.ClusterAssignment) {
	sort.Slice(a, func(i, j int) bool {
		if a[i].ClusterID != a[j].ClusterID {
			return a[i].ClusterID < a[j].ClusterID
		}
		return a[i].LutID < a[j].LutID
	})
}

func cloneAnalysis(a model.LutAnalysis) model.LutAnalysis {
	a.Lightweight = slices.Clone(a.Lightweight)
	a.ImageFeatures = slices.Clone(a.ImageFeatures)
	a.Tags = slices.Clone(a.Tags)
	return a
}

func cloneAssignment(a model.ClusterAssignment) model.ClusterAssignment {
	if a.DistanceToCenter != nil {
		d := *a.DistanceToCenter
		a.DistanceToCenter = &d
	}
	return a
}

func cloneSnapshot(s model.ClusterSnapshot) model.ClusterSnapshot {
	data := make(map[int]model.SnapshotCluster, len(s.ClusterData))
	for id, c := range s.ClusterData {
		members := make([]model.MemberSummary, len(c.Members))
		for i, m := range c.Members {
			if m.DistanceToCenter != nil {
				d := *m.DistanceToCenter
				m.DistanceToCenter = &d
			}
			members[i] = m
		}
		data[id] = model.SnapshotCluster{FileCount: c.FileCount, Members: members}
	}
	s.ClusterData = data
	return s
}
