// Package similarity builds pairwise distance matrices between LUTs
// rendered onto the reference image.
package similarity

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a symmetric, zero-diagonal, non-negative distance matrix whose
// rows follow IDs.
type Matrix struct {
	IDs []string
	D   *mat.SymDense
}

// NewMatrix ties d to the id order it was built from.
func NewMatrix(ids []string, d *mat.SymDense) (*Matrix, error) {
	if d == nil || d.SymmetricDim() != len(ids) {
		n := 0
		if d != nil {
			n = d.SymmetricDim()
		}
		return nil, fmt.Errorf("%w: %d ids, %dx%d matrix", ErrIDMismatch, len(ids), n, n)
	}
	return &Matrix{IDs: ids, D: d}, nil
}

// N returns the matrix order.
func (m *Matrix) N() int { return len(m.IDs) }

// At returns the distance between items i and j.
func (m *Matrix) At(i, j int) float64 { return m.D.At(i, j) }

// fill builds an n x n matrix from the upper triangle of f. The diagonal
// is zero and negative values are clamped.
func fill(n int, f func(i, j int) float64) *mat.SymDense {
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d.SetSym(i, j, max(0, f(i, j)))
		}
	}
	return d
}
