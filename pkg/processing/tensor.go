package processing

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// ImageNet channel statistics used by the segmenter
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Identity statistics leave [0,1] values untouched
var (
	ZeroMean = [3]float32{0, 0, 0}
	UnitStd  = [3]float32{1, 1, 1}
)

// letterboxFill is the padding gray used by YOLO letterboxing
var letterboxFill = color.NRGBA{114, 114, 114, 255}

// ToCHW converts img to a planar RGB float slice in [3][H][W] order.
// Each channel is scaled to [0,1] and then normalized as (v - mean) / std.
func ToCHW(img image.Image, mean, std [3]float32) []float32 {
	src := asNRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	plane := w * h
	out := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4:]
			i := y*w + x
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255
				out[c*plane+i] = (v - mean[c]) / std[c]
			}
		}
	}
	return out
}

// ResizeExact resizes img to exactly w x h with bilinear interpolation
func ResizeExact(img image.Image, w, h int) image.Image {
	return resize.Resize(uint(w), uint(h), img, resize.Bilinear)
}

// Letterbox scales img to fit a size x size canvas keeping the aspect ratio and
// pads the rest with gray. It returns the canvas, the scale gain and the left/top padding.
func Letterbox(img image.Image, size int) (*image.NRGBA, float64, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	gain := math.Min(float64(size)/float64(h), float64(size)/float64(w))
	nw := minInt(size, maxInt(1, int(math.Round(float64(w)*gain))))
	nh := minInt(size, maxInt(1, int(math.Round(float64(h)*gain))))

	dw := float64(size-nw) / 2
	dh := float64(size-nh) / 2
	left := int(math.Round(dw - 0.1))
	top := int(math.Round(dh - 0.1))

	canvas := imaging.New(size, size, letterboxFill)
	resized := img
	if nw != w || nh != h {
		resized = imaging.Resize(img, nw, nh, imaging.Linear)
	}
	canvas = imaging.Paste(canvas, resized, image.Pt(left, top))

	return canvas, gain, left, top
}

func asNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}
