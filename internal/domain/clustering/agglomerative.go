package clustering

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Merge joins the clusters represented by items A and B at Height.
type Merge struct {
	A, B   int
	Height float64
}

// Agglomerative runs average-linkage clustering on a precomputed distance
// matrix and cuts the dendrogram at k clusters. Labels are compacted in
// order of first appearance.
func Agglomerative(d mat.Symmetric, k int) []int {
	n := d.SymmetricDim()
	merges := AverageLinkage(d)
	sort.SliceStable(merges, func(i, j int) bool { return merges[i].Height < merges[j].Height })

	uf := newUnionFind(n)
	for _, m := range merges[:max(0, n-k)] {
		uf.union(m.A, m.B)
	}
	roots := make([]int, n)
	for i := range roots {
		roots[i] = uf.find(i)
	}
	return compact(roots)
}

// AverageLinkage returns the n-1 merges of the average-linkage dendrogram
// in the order the nearest-neighbour chain finds them. Average linkage is
// reducible, so sorting by height yields the standard dendrogram.
func AverageLinkage(d mat.Symmetric) []Merge {
	n := d.SymmetricDim()
	dist := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dist[i*n+j] = d.At(i, j)
		}
	}
	size := make([]int, n)
	active := make([]bool, n)
	for i := range size {
		size[i], active[i] = 1, true
	}

	merges := make([]Merge, 0, max(0, n-1))
	chain := make([]int, 0, n)
	for remaining := n; remaining > 1; {
		if len(chain) == 0 {
			for i, ok := range active {
				if ok {
					chain = append(chain, i)
					break
				}
			}
		}
		top := chain[len(chain)-1]
		prev := -1
		if len(chain) > 1 {
			prev = chain[len(chain)-2]
		}

		// Prefer the previous chain element on ties so the chain terminates.
		next, best := -1, math.Inf(1)
		if prev >= 0 {
			next, best = prev, dist[top*n+prev]
		}
		for j, ok := range active {
			if !ok || j == top {
				continue
			}
			if v := dist[top*n+j]; v < best {
				next, best = j, v
			}
		}

		if next < 0 {
			// Only infinite distances left; join any other active item.
			for j, ok := range active {
				if ok && j != top {
					next, best = j, dist[top*n+j]
					break
				}
			}
		}
		if next != prev {
			chain = append(chain, next)
			continue
		}

		chain = chain[:len(chain)-2]
		a, b := min(top, prev), max(top, prev)
		merges = append(merges, Merge{A: a, B: b, Height: best})

		// Lance-Williams update for average linkage; a represents the union.
		sa, sb := float64(size[a]), float64(size[b])
		for j, ok := range active {
			if !ok || j == a || j == b {
				continue
			}
			v := (sa*dist[a*n+j] + sb*dist[b*n+j]) / (sa + sb)
			dist[a*n+j], dist[j*n+a] = v, v
		}
		size[a] += size[b]
		active[b] = false
		remaining--
	}
	return merges
}

// compact relabels arbitrary ids to 0..k-1 in order of first appearance.
func compact(ids []int) []int {
	seen := make(map[int]int)
	out := make([]int, len(ids))
	for i, id := range ids {
		l, ok := seen[id]
		if !ok {
			l = len(seen)
			seen[id] = l
		}
		out[i] = l
	}
	return out
}

type unionFind struct{ parent []int }

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[max(ra, rb)] = min(ra, rb)
	}
}
