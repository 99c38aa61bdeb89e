package similarity

import (
	"context"
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/okian/lutcurate/internal/domain/raster"
)

// SSIM window and stabilizers for 8-bit data.
const (
	ssimWindow = 11
	ssimSigma  = 1.5
	ssimC1     = (0.01 * 255) * (0.01 * 255)
	ssimC2     = (0.03 * 255) * (0.03 * 255)
)

// ssimImage caches the per-image local statistics reused by every pair.
type ssimImage struct {
	x      []float64 // size x size gray levels
	mu     []float64 // valid-region local means
	sigma2 []float64
}

// SSIM returns 1 - mean structural similarity for every pair of images,
// computed on size x size gray versions with an 11-tap Gaussian window
// (sigma 1.5) over the valid region.
func SSIM(ctx context.Context, images []image.Image, size int) (*mat.SymDense, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	if size < ssimWindow {
		return nil, fmt.Errorf("%w: %d < %d", ErrCanonicalSize, size, ssimWindow)
	}
	k := gaussianKernel(ssimWindow, ssimSigma)
	stats := make([]ssimImage, len(images))
	for i, img := range images {
		g := raster.GraySquare(img, size)
		x := make([]float64, len(g.Pix))
		for p, v := range g.Pix {
			x[p] = float64(v)
		}
		mu := blur(x, size, k)
		sq := make([]float64, len(x))
		floats.MulTo(sq, x, x)
		v := blur(sq, size, k)
		for p := range v {
			v[p] -= mu[p] * mu[p]
		}
		stats[i] = ssimImage{x: x, mu: mu, sigma2: v}
	}

	n := len(images)
	d := mat.NewSymDense(n, nil)
	rows := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < runtime.GOMAXPROCS(0); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prod := make([]float64, size*size)
			for i := range rows {
				for j := i + 1; j < n; j++ {
					// Each (i, j) cell is written by exactly one worker.
					d.SetSym(i, j, max(0, 1-meanSSIM(&stats[i], &stats[j], prod, size, k)))
				}
			}
		}()
	}
	var err error
	for i := 0; i < n && err == nil; i++ {
		if err = context.Cause(ctx); err != nil {
			break
		}
		select {
		case rows <- i:
		case <-ctx.Done():
			err = context.Cause(ctx)
		}
	}
	close(rows)
	wg.Wait()
	if err != nil {
		return nil, err
	}
	return d, nil
}

func meanSSIM(a, b *ssimImage, prod []float64, size int, k []float64) float64 {
	floats.MulTo(prod, a.x, b.x)
	cov := blur(prod, size, k)
	sum := 0.0
	for p := range cov {
		mx, my := a.mu[p], b.mu[p]
		sxy := cov[p] - mx*my
		num := (2*mx*my + ssimC1) * (2*sxy + ssimC2)
		den := (mx*mx + my*my + ssimC1) * (a.sigma2[p] + b.sigma2[p] + ssimC2)
		sum += num / den
	}
	return sum / float64(len(cov))
}

func gaussianKernel(n int, sigma float64) []float64 {
	k := make([]float64, n)
	c := float64(n-1) / 2
	for i := range k {
		x := float64(i) - c
		k[i] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// blur applies the separable kernel to a size x size plane and returns the
// valid region, (size-len(k)+1)² values.
func blur(src []float64, size int, k []float64) []float64 {
	out := size - len(k) + 1
	tmp := make([]float64, size*out)
	for y := 0; y < size; y++ {
		row := src[y*size : (y+1)*size]
		for x := 0; x < out; x++ {
			tmp[y*out+x] = floats.Dot(row[x:x+len(k)], k)
		}
	}
	dst := make([]float64, out*out)
	for y := 0; y < out; y++ {
		for x := 0; x < out; x++ {
			s := 0.0
			for t, w := range k {
				s += tmp[(y+t)*out+x] * w
			}
			dst[y*out+x] = s
		}
	}
	return dst
}
