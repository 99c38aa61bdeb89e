// Package clustering partitions LUTs into groups and ranks members by
// their distance to the group center.
package clustering

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/okian/lutcurate/internal/domain/model"
	"github.com/okian/lutcurate/internal/domain/similarity"
)

// Input carries the items of one run. Vectors feed vector-space metrics,
// Distances feed image-space metrics; both are indexed like IDs.
type Input struct {
	IDs       []string
	Vectors   [][]float64
	Distances *similarity.Matrix
}

// Result holds one label per item in [0,k) and its distance to the
// assigned center. A nil distance means no center could be derived.
type Result struct {
	IDs       []string
	Labels    []int
	Distances []*float64
}

// Clusters returns the number of distinct labels.
func (r *Result) Clusters() int {
	seen := make(map[int]struct{})
	for _, l := range r.Labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}

// Sizes counts items per label.
func (r *Result) Sizes() map[int]int {
	out := make(map[int]int)
	for _, l := range r.Labels {
		out[l]++
	}
	return out
}

// Run validates, fits, assigns and ranks. It does not persist anything.
func Run(plan model.Plan, in Input, k int, opts ...Option) (*Result, error) {
	if err := validate(plan, in, k); err != nil {
		return nil, err
	}

	var res *Result
	switch plan.Algorithm() {
	case model.CentroidBased:
		res = centroid(in, k, opts)
	case model.HierarchicalPrecomputed:
		var err error
		if res, err = hierarchical(plan.Metric(), in, k); err != nil {
			return nil, err
		}
	}
	res.IDs = in.IDs
	return res, nil
}

func validate(plan model.Plan, in Input, k int) error {
	if plan.IsZero() {
		return ErrInvalidPlan
	}
	if k < 2 {
		return fmt.Errorf("%w: got %d", ErrInvalidClusterCount, k)
	}
	n := len(in.IDs)
	if k > n {
		return fmt.Errorf("%w: %d clusters for %d items", ErrTooFewItems, k, n)
	}
	switch plan.Metric().Space() {
	case model.VectorSpace:
		if len(in.Vectors) != n {
			return fmt.Errorf("%w: %d vectors for %d ids", ErrInputMismatch, len(in.Vectors), n)
		}
		for i, v := range in.Vectors {
			if len(v) == 0 || len(v) != len(in.Vectors[0]) {
				return fmt.Errorf("%w: vector %d has %d dims", ErrInputMismatch, i, len(v))
			}
		}
	case model.ImageSpace:
		if in.Distances == nil || in.Distances.N() != n {
			return fmt.Errorf("%w: distance matrix does not cover %d ids", ErrInputMismatch, n)
		}
	}
	return nil
}

func centroid(in Input, k int, opts []Option) *Result {
	x := Standardize(in.Vectors)
	km := KMeans(x, k, opts...)
	dist := make([]*float64, len(x))
	for i, v := range x {
		dist[i] = finite(floats.Distance(v, km.Centers[km.Labels[i]], 2))
	}
	// Compacting keeps labels dense when a center ended up empty.
	return &Result{Labels: compact(km.Labels), Distances: dist}
}

func hierarchical(m model.Metric, in Input, k int) (*Result, error) {
	if m.Space() == model.ImageSpace {
		labels := Agglomerative(in.Distances.D, k)
		return &Result{Labels: labels, Distances: meanIntraDistance(in.Distances.D, labels)}, nil
	}
	x := Standardize(in.Vectors)
	d, err := similarity.EuclideanVectors(x)
	if err != nil {
		return nil, err
	}
	labels := Agglomerative(d, k)
	return &Result{Labels: labels, Distances: distanceToMean(x, labels)}, nil
}

// distanceToMean measures each item against the synthesized mean of its
// cluster members.
func distanceToMean(x [][]float64, labels []int) []*float64 {
	centers := make(map[int][]float64)
	counts := make(map[int]int)
	for i, l := range labels {
		if centers[l] == nil {
			centers[l] = make([]float64, len(x[i]))
		}
		floats.Add(centers[l], x[i])
		counts[l]++
	}
	for l, c := range centers {
		floats.Scale(1/float64(counts[l]), c)
	}
	out := make([]*float64, len(x))
	for i, l := range labels {
		out[i] = finite(floats.Distance(x[i], centers[l], 2))
	}
	return out
}

// meanIntraDistance is the center-free centrality used when items have no
// embedding: the mean distance to the other members of the same cluster.
// A singleton is its own center.
func meanIntraDistance(d mat.Symmetric, labels []int) []*float64 {
	members := make(map[int][]int)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}
	out := make([]*float64, len(labels))
	for i, l := range labels {
		group := members[l]
		if len(group) == 1 {
			out[i] = finite(0)
			continue
		}
		sum := 0.0
		for _, j := range group {
			if j != i {
				sum += d.At(i, j)
			}
		}
		out[i] = finite(sum / float64(len(group)-1))
	}
	return out
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
