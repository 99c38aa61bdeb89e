// Package luttest builds synthetic LUTs and images for tests.
package luttest

import (
	"fmt"
	"image"
	"image/color"
	"strings"
)

// Transform maps an input color (0..1) to an output color.
type Transform func(r, g, b float64) (float64, float64, float64)

// Identity leaves colors untouched.
func Identity(r, g, b float64) (float64, float64, float64) { return r, g, b }

// Warm pushes colors towards orange.
func Warm(r, g, b float64) (float64, float64, float64) {
	return min(1, r*1.1+0.05), g, b * 0.8
}

// Cool pushes colors towards blue.
func Cool(r, g, b float64) (float64, float64, float64) {
	return r * 0.8, g, min(1, b*1.1+0.05)
}

// Mono desaturates to luma.
func Mono(r, g, b float64) (float64, float64, float64) {
	y := 0.299*r + 0.587*g + 0.114*b
	return y, y, y
}

// Cube renders transform as a .cube file with the given edge.
func Cube(title string, n int, transform Transform) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# generated for tests\nTITLE \"%s\"\nLUT_3D_SIZE %d\n", title, n)
	step := 1 / float64(n-1)
	for bi := 0; bi < n; bi++ {
		for gi := 0; gi < n; gi++ {
			for ri := 0; ri < n; ri++ {
				r, g, b := transform(float64(ri)*step, float64(gi)*step, float64(bi)*step)
				fmt.Fprintf(&sb, "%.6f %.6f %.6f\n", r, g, b)
			}
		}
	}
	return []byte(sb.String())
}

// Gradient returns a w x h image sweeping hue horizontally and brightness
// vertically, so every LUT leaves a visible fingerprint on it.
func Gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(255 * x / max(1, w-1)),
				G: uint8(255 * y / max(1, h-1)),
				B: uint8(255 * (w - 1 - x) / max(1, w-1)),
				A: 255,
			})
		}
	}
	return img
}
