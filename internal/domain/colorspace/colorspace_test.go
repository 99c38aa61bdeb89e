package colorspace

import (
	"math"
	"math/rand/v2"
	"testing"

	colorful "github.com/lucasb-eyer/go-colorful"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRGBToHSV(t *testing.T) {
	Convey("Given RGB columns", t, func() {
		Convey("Primary and gray colors map to textbook values", func() {
			h, s, v := RGBToHSV(
				[]float64{1, 0, 0, 0.5, 0, 1},
				[]float64{0, 1, 0, 0.5, 0, 1},
				[]float64{0, 0, 1, 0.5, 0, 0},
			)
			So(h, ShouldResemble, []float64{0, 120, 240, 0, 0, 60})
			So(s, ShouldResemble, []float64{1, 1, 1, 0, 0, 1})
			So(v, ShouldResemble, []float64{1, 1, 1, 0.5, 0, 1})
		})

		Convey("Random colors agree with go-colorful", func() {
			rng := rand.New(rand.NewPCG(1, 2))
			const n = 500
			r, g, b := make([]float64, n), make([]float64, n), make([]float64, n)
			for i := range r {
				r[i], g[i], b[i] = rng.Float64(), rng.Float64(), rng.Float64()
			}
			h, s, v := RGBToHSV(r, g, b)
			for i := range r {
				eh, es, ev := colorful.Color{R: r[i], G: g[i], B: b[i]}.Hsv()
				So(math.Abs(h[i]-eh), ShouldBeLessThan, 1e-9)
				So(math.Abs(s[i]-es), ShouldBeLessThan, 1e-9)
				So(math.Abs(v[i]-ev), ShouldBeLessThan, 1e-9)
			}
		})

		Convey("Out-of-range values never produce NaN or Inf", func() {
			h, s, v := RGBToHSV(
				[]float64{-0.5, 1.5, 0, -1},
				[]float64{0.2, 1.5, 0, -1},
				[]float64{2, -0.1, 0, -1},
			)
			for i := range h {
				for _, x := range []float64{h[i], s[i], v[i]} {
					So(math.IsNaN(x) || math.IsInf(x, 0), ShouldBeFalse)
				}
				So(h[i], ShouldBeGreaterThanOrEqualTo, 0)
				So(h[i], ShouldBeLessThan, 360)
				So(s[i], ShouldBeGreaterThanOrEqualTo, 0)
			}
		})

		Convey("Ragged columns are truncated to the shortest", func() {
			h, _, _ := RGBToHSV([]float64{1, 1}, []float64{0}, []float64{0, 0, 0})
			So(len(h), ShouldEqual, 1)
		})
	})
}

func TestLuma(t *testing.T) {
	Convey("Luma weights sum to one", t, func() {
		So(Luma(1, 1, 1), ShouldAlmostEqual, 1, 1e-12)
		So(Luma(0, 1, 0), ShouldAlmostEqual, 0.587, 1e-12)
	})
}
