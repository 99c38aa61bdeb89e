package raster

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestFit(t *testing.T) {
	Convey("Given a landscape image", t, func() {
		img := solid(400, 100, color.NRGBA{R: 200, A: 255})

		Convey("Fit bounds the longest side and keeps the ratio", func() {
			out := Fit(img, 100)
			So(out.Bounds().Dx(), ShouldEqual, 100)
			So(out.Bounds().Dy(), ShouldEqual, 25)
		})

		Convey("Small images are returned as is", func() {
			So(Fit(img, 1000), ShouldPointTo, img)
			So(Fit(img, 0), ShouldPointTo, img)
		})
	})
}

func TestGraySquareAndPNG(t *testing.T) {
	Convey("Given a solid color image", t, func() {
		img := solid(30, 10, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

		Convey("GraySquare resamples to a square luma image", func() {
			g := GraySquare(img, 16)
			So(g.Bounds(), ShouldResemble, image.Rect(0, 0, 16, 16))
			So(g.GrayAt(8, 8).Y, ShouldBeGreaterThanOrEqualTo, 254)
		})

		Convey("PNG encoding round trips pixels", func() {
			data, err := EncodePNG(img)
			So(err, ShouldBeNil)
			back, err := DecodePNG(data)
			So(err, ShouldBeNil)
			So(back.Pix, ShouldResemble, img.Pix)
		})

		Convey("Load decodes files from disk", func() {
			data, err := EncodePNG(img)
			So(err, ShouldBeNil)
			path := filepath.Join(t.TempDir(), "ref.png")
			So(os.WriteFile(path, data, 0o600), ShouldBeNil)

			loaded, err := Load(path)
			So(err, ShouldBeNil)
			So(loaded.Bounds().Dx(), ShouldEqual, 30)

			_, err = Load(filepath.Join(t.TempDir(), "missing.png"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestToNRGBA(t *testing.T) {
	Convey("Given a sub image with a shifted origin", t, func() {
		img := solid(10, 10, color.NRGBA{G: 9, A: 255})
		sub := img.SubImage(image.Rect(2, 3, 6, 8))
		out := ToNRGBA(sub)
		So(out.Bounds(), ShouldResemble, image.Rect(0, 0, 4, 5))
		So(out.NRGBAAt(0, 0).G, ShouldEqual, 9)
	})
}
