package features

import (
	"image"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/lutcurate/internal/domain/colorspace"
	"github.com/okian/lutcurate/internal/domain/lut"
)

// Histogram layout of the image feature vector.
const (
	rgbBins = 16
	hueBins = 18
	satBins = 8
	valBins = 8
)

// lightweight returns HSV means, RGB variances and the global contrast of
// the table's output colors.
func lightweight(t *lut.Table) []float64 {
	h, s, v := colorspace.RGBToHSV(t.R, t.G, t.B)
	out := make([]float64, 0, LightweightDims)
	out = append(out,
		stat.Mean(h, nil),
		stat.Mean(s, nil),
		stat.Mean(v, nil),
		stat.PopVariance(t.R, nil),
		stat.PopVariance(t.G, nil),
		stat.PopVariance(t.B, nil),
		contrast(t.R, t.G, t.B),
	)
	return out
}

// imageFeatures returns, in order: 16-bin R, G, B histograms, 18/8/8-bin
// H, S, V histograms, HSV means and variances, RGB means and variances,
// and the global contrast. Histograms are normalized by pixel count.
func imageFeatures(img *image.NRGBA) []float64 {
	r, g, b := channels(img)
	h, s, v := colorspace.RGBToHSV(r, g, b)

	out := make([]float64, 0, ImageFeaturesDims)
	for _, c := range [][]float64{r, g, b} {
		out = append(out, histogram(c, rgbBins, 1)...)
	}
	out = append(out, histogram(h, hueBins, 360)...)
	out = append(out, histogram(s, satBins, 1)...)
	out = append(out, histogram(v, valBins, 1)...)
	out = append(out, moments(h, s, v)...)
	out = append(out, moments(r, g, b)...)
	out = append(out, contrast(r, g, b))
	return out
}

// channels splits img into float columns in [0,1]. Alpha is ignored.
func channels(img *image.NRGBA) (r, g, b []float64) {
	w, hgt := img.Rect.Dx(), img.Rect.Dy()
	n := w * hgt
	r, g, b = make([]float64, 0, n), make([]float64, 0, n), make([]float64, 0, n)
	for y := 0; y < hgt; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			r = append(r, float64(row[x])/255)
			g = append(g, float64(row[x+1])/255)
			b = append(b, float64(row[x+2])/255)
		}
	}
	return r, g, b
}

// histogram buckets values of [0,upper] into bins equal-width bins; the
// upper edge falls into the last bin. Counts are divided by len(values).
func histogram(values []float64, bins int, upper float64) []float64 {
	out := make([]float64, bins)
	if len(values) == 0 {
		return out
	}
	for _, x := range values {
		i := int(x / upper * float64(bins))
		i = max(0, min(bins-1, i))
		out[i]++
	}
	floats.Scale(1/float64(len(values)), out)
	return out
}

// moments returns the three means followed by the three population
// variances.
func moments(a, b, c []float64) []float64 {
	ma, va := stat.PopMeanVariance(a, nil)
	mb, vb := stat.PopMeanVariance(b, nil)
	mc, vc := stat.PopMeanVariance(c, nil)
	return []float64{ma, mb, mc, va, vb, vc}
}

// contrast is max(RGB) - min(RGB) over every channel value.
func contrast(r, g, b []float64) float64 {
	if len(r) == 0 {
		return 0
	}
	hi := max(floats.Max(r), floats.Max(g), floats.Max(b))
	lo := min(floats.Min(r), floats.Min(g), floats.Min(b))
	return hi - lo
}
