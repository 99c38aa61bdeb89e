// Package colorspace converts color columns between RGB and HSV.
package colorspace

// RGBToHSV converts equal-length RGB columns (0..1) to HSV columns with H
// in degrees [0,360) and S, V in [0,1]. Gray inputs (no chroma) get H=0
// and S=0, black gets S=0. Out-of-range inputs are converted as given;
// the result never contains NaN or Inf for finite input.
func RGBToHSV(r, g, b []float64) (h, s, v []float64) {
	n := min(len(r), len(g), len(b))
	h = make([]float64, n)
	s = make([]float64, n)
	v = make([]float64, n)
	for i := 0; i < n; i++ {
		h[i], s[i], v[i] = HSV(r[i], g[i], b[i])
	}
	return h, s, v
}

// HSV converts a single color.
func HSV(r, g, b float64) (h, s, v float64) {
	hi := max(r, g, b)
	lo := min(r, g, b)
	delta := hi - lo
	v = hi

	if hi > 0 {
		s = delta / hi
	}
	if delta == 0 {
		return 0, 0, v
	}

	switch hi {
	case r:
		h = 60 * (g - b) / delta
	case g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h -= 360
	}
	// Negative components can push S outside [0,1].
	if s < 0 {
		s = 0
	}
	return h, s, v
}

// Luma returns BT.601 gray (0.299 R + 0.587 G + 0.114 B).
func Luma(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}
