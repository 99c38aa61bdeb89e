package lut

import (
	"fmt"
	"image"
	"math"

	"github.com/okian/lutcurate/internal/domain/raster"
)

// Applier renders img through a LUT. Implementations must be pure: the
// same table and image always give the same result.
type Applier interface {
	Apply(t *Table, img image.Image) (*image.NRGBA, error)
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(t *Table, img image.Image) (*image.NRGBA, error)

// Apply calls f.
func (f ApplierFunc) Apply(t *Table, img image.Image) (*image.NRGBA, error) { return f(t, img) }

// Trilinear samples the 3D grid with trilinear interpolation. Rows are in
// cube order: red varies fastest, then green, then blue.
type Trilinear struct{}

// Apply implements Applier.
func (Trilinear) Apply(t *Table, img image.Image) (*image.NRGBA, error) {
	n, err := t.Edge()
	if err != nil {
		return nil, err
	}
	src := raster.ToNRGBA(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))

	s := sampler{t: t, n: n}
	for i := range s.scale {
		span := t.DomainMax[i] - t.DomainMin[i]
		if span <= 0 {
			span = 1
		}
		s.scale[i] = float64(n-1) / span
	}

	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			r, g, b := s.sample(
				float64(row[x])/255,
				float64(row[x+1])/255,
				float64(row[x+2])/255,
			)
			dst[x] = to8(r)
			dst[x+1] = to8(g)
			dst[x+2] = to8(b)
			dst[x+3] = row[x+3]
		}
	}
	return out, nil
}

// Edge returns the cube edge length. A declared size wins when it matches
// the row count; otherwise the edge is inferred from a perfect cube count.
func (t *Table) Edge() (int, error) {
	count := t.Len()
	if t.GridSize >= 2 && t.GridSize*t.GridSize*t.GridSize == count {
		return t.GridSize, nil
	}
	n := int(math.Round(math.Cbrt(float64(count))))
	if n >= 2 && n*n*n == count {
		return n, nil
	}
	return 0, fmt.Errorf("%w: %d rows, declared size %d", ErrNotAGrid, count, t.GridSize)
}

type sampler struct {
	t     *Table
	n     int
	scale [3]float64
}

func (s *sampler) coord(v float64, ch int) (int, int, float64) {
	x := (v - s.t.DomainMin[ch]) * s.scale[ch]
	last := float64(s.n - 1)
	if x <= 0 {
		return 0, 0, 0
	}
	if x >= last {
		return s.n - 1, s.n - 1, 0
	}
	i0 := int(x)
	return i0, i0 + 1, x - float64(i0)
}

func (s *sampler) sample(r, g, b float64) (float64, float64, float64) {
	r0, r1, fr := s.coord(r, 0)
	g0, g1, fg := s.coord(g, 1)
	b0, b1, fb := s.coord(b, 2)

	n := s.n
	idx := func(ri, gi, bi int) int { return ri + gi*n + bi*n*n }
	c000, c100 := idx(r0, g0, b0), idx(r1, g0, b0)
	c010, c110 := idx(r0, g1, b0), idx(r1, g1, b0)
	c001, c101 := idx(r0, g0, b1), idx(r1, g0, b1)
	c011, c111 := idx(r0, g1, b1), idx(r1, g1, b1)

	lerp3 := func(col []float64) float64 {
		x00 := col[c000] + (col[c100]-col[c000])*fr
		x10 := col[c010] + (col[c110]-col[c010])*fr
		x01 := col[c001] + (col[c101]-col[c001])*fr
		x11 := col[c011] + (col[c111]-col[c011])*fr
		y0 := x00 + (x10-x00)*fg
		y1 := x01 + (x11-x01)*fg
		return y0 + (y1-y0)*fb
	}
	return lerp3(s.t.R), lerp3(s.t.G), lerp3(s.t.B)
}

func to8(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
