package model

import (
	"fmt"
	"strings"
)

// Space tells where a metric compares LUTs.
type Space int

const (
	// VectorSpace metrics compare numeric feature vectors.
	VectorSpace Space = iota + 1
	// ImageSpace metrics compare rendered reference images pairwise and
	// have no embedding, so no natural centroid.
	ImageSpace
)

// Metric selects how LUTs are compared.
type Metric int

const (
	Lightweight7D Metric = iota + 1
	ImageFeatures
	ImageSimilarity
	SSIM
	Euclidean
)

// Metrics lists every metric in declaration order.
func Metrics() []Metric {
	return []Metric{Lightweight7D, ImageFeatures, ImageSimilarity, SSIM, Euclidean}
}

// String returns the wire tag.
func (m Metric) String() string {
	switch m {
	case Lightweight7D:
		return "lightweight_7d"
	case ImageFeatures:
		return "image_features"
	case ImageSimilarity:
		return "image_similarity"
	case SSIM:
		return "ssim"
	case Euclidean:
		return "euclidean"
	}
	return fmt.Sprintf("metric(%d)", int(m))
}

// Name returns a human readable label.
func (m Metric) Name() string {
	switch m {
	case Lightweight7D:
		return "Lightweight (7D)"
	case ImageFeatures:
		return "Image features (95D)"
	case ImageSimilarity:
		return "Image similarity (histogram cosine)"
	case SSIM:
		return "Structural similarity (SSIM)"
	case Euclidean:
		return "Pixel Euclidean distance"
	}
	return m.String()
}

// Space reports whether m compares vectors or rendered images.
func (m Metric) Space() Space {
	switch m {
	case Lightweight7D, ImageFeatures:
		return VectorSpace
	case ImageSimilarity, SSIM, Euclidean:
		return ImageSpace
	}
	panic(fmt.Sprintf("model: unknown metric %d", int(m)))
}

// NeedsReference reports whether m renders the reference image.
func (m Metric) NeedsReference() bool {
	return m != Lightweight7D
}

// Valid reports whether m is one of the declared metrics.
func (m Metric) Valid() bool {
	return m >= Lightweight7D && m <= Euclidean
}

// ParseMetric maps a wire tag to a Metric.
func ParseMetric(s string) (Metric, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	for _, m := range Metrics() {
		if m.String() == tag {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMetric, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(b []byte) error {
	v, err := ParseMetric(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Algorithm selects how items are partitioned.
type Algorithm int

const (
	CentroidBased Algorithm = iota + 1
	HierarchicalPrecomputed
)

// Algorithms lists every algorithm in declaration order.
func Algorithms() []Algorithm {
	return []Algorithm{CentroidBased, HierarchicalPrecomputed}
}

func (a Algorithm) String() string {
	switch a {
	case CentroidBased:
		return "centroid_based"
	case HierarchicalPrecomputed:
		return "hierarchical_precomputed"
	}
	return fmt.Sprintf("algorithm(%d)", int(a))
}

// Name returns a human readable label.
func (a Algorithm) Name() string {
	switch a {
	case CentroidBased:
		return "K-means (centroid based)"
	case HierarchicalPrecomputed:
		return "Agglomerative, average linkage (precomputed distances)"
	}
	return a.String()
}

// Valid reports whether a is one of the declared algorithms.
func (a Algorithm) Valid() bool {
	return a == CentroidBased || a == HierarchicalPrecomputed
}

// ParseAlgorithm maps a wire tag to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	for _, a := range Algorithms() {
		if a.String() == tag {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAlgorithm, int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(b []byte) error {
	v, err := ParseAlgorithm(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Plan is a validated metric/algorithm pairing. The zero value is invalid;
// build one with NewPlan.
type Plan struct {
	metric    Metric
	algorithm Algorithm
}

// NewPlan pairs metric and algorithm. Image-space metrics have no centroid
// and are only legal with HierarchicalPrecomputed.
func NewPlan(metric Metric, algorithm Algorithm) (Plan, error) {
	if !metric.Valid() {
		return Plan{}, fmt.Errorf("%w: %d", ErrUnknownMetric, int(metric))
	}
	if !algorithm.Valid() {
		return Plan{}, fmt.Errorf("%w: %d", ErrUnknownAlgorithm, int(algorithm))
	}
	if metric.Space() == ImageSpace && algorithm == CentroidBased {
		return Plan{}, fmt.Errorf("%w: %s requires %s", ErrIncompatiblePlan, metric, HierarchicalPrecomputed)
	}
	return Plan{metric: metric, algorithm: algorithm}, nil
}

// Metric returns the plan metric.
func (p Plan) Metric() Metric { return p.metric }

// Algorithm returns the plan algorithm.
func (p Plan) Algorithm() Algorithm { return p.algorithm }

// IsZero reports whether p was not built by NewPlan.
func (p Plan) IsZero() bool { return p.metric == 0 }

func (p Plan) String() string { return p.metric.String() + "/" + p.algorithm.String() }
