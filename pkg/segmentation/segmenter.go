// Package segmentation produces per-pixel class masks with a DeepLab style
// semantic segmentation model and renders the pet regions.
package segmentation

import (
	"context"
	"image"
	"image/color"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"gorgonia.org/tensor"

	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/inference"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/labels"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/processing"
)

// Visualization colors
var (
	Background = color.NRGBA{128, 0, 128, 255} // purple
	Highlight  = color.NRGBA{255, 255, 0, 255} // yellow
)

// PetClasses are the VOC class indices painted by Visualize
var PetClasses = []uint8{labels.VOCCat, labels.VOCDog}

// Segmenter wraps a model returning [1, classes, H, W] logits
type Segmenter struct {
	model inference.Model
}

// New creates a segmenter over model
func New(model inference.Model) *Segmenter {
	return &Segmenter{model: model}
}

// Name returns the model identifier
func (s *Segmenter) Name() string { return s.model.Name() }

// Close releases the underlying model
func (s *Segmenter) Close() error { return s.model.Close() }

// Segment runs the model on img and returns the class index of every pixel,
// scaled with nearest-neighbor sampling to width x height.
func (s *Segmenter) Segment(ctx context.Context, img image.Image, width, height int) (*image.Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid mask size %dx%d", width, height)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	input := inference.NewTensor(processing.ToCHW(img, processing.ImageNetMean, processing.ImageNetStd), 1, 3, h, w)

	out, err := s.model.Infer(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "segmenter inference failed")
	}

	mask, err := classMask(out)
	if err != nil {
		return nil, err
	}
	if mask.Bounds().Dx() == width && mask.Bounds().Dy() == height {
		return mask, nil
	}

	scaled := image.NewGray(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), mask, mask.Bounds(), draw.Src, nil)
	return scaled, nil
}

// classMask collapses [1, C, H, W] logits to an H x W mask of arg-max class indices
func classMask(out *tensor.Dense) (*image.Gray, error) {
	shape := out.Shape()
	if len(shape) != 4 || shape[0] != 1 || shape[1] < 1 {
		return nil, errors.Errorf("unexpected segmenter output shape %v", shape)
	}
	if shape[1] > 256 {
		return nil, errors.Errorf("segmenter has %d classes, at most 256 fit in a mask", shape[1])
	}
	h, w := shape[2], shape[3]

	best, err := out.Argmax(1)
	if err != nil {
		return nil, errors.Wrap(err, "arg-max over classes failed")
	}

	var indices []int
	switch v := best.Data().(type) {
	case []int:
		indices = v
	case int:
		indices = []int{v}
	default:
		return nil, errors.Errorf("unexpected arg-max result %T", v)
	}
	if len(indices) != w*h {
		return nil, errors.Errorf("arg-max returned %d values for a %dx%d mask", len(indices), w, h)
	}

	mask := image.NewGray(image.Rect(0, 0, w, h))
	for i, c := range indices {
		mask.Pix[i] = uint8(c)
	}
	return mask, nil
}

// Visualize paints a purple canvas the size of mask and composites yellow
// over every pixel whose class is a cat or a dog.
func Visualize(mask *image.Gray) *image.NRGBA {
	r := mask.Bounds()
	out := image.NewNRGBA(r)
	draw.Draw(out, r, image.NewUniform(Background), image.Point{}, draw.Src)

	for _, class := range PetClasses {
		draw.DrawMask(out, r, image.NewUniform(Highlight), image.Point{}, binaryMask(mask, class), r.Min, draw.Over)
	}
	return out
}

// binaryMask is opaque where mask equals class and transparent elsewhere
func binaryMask(mask *image.Gray, class uint8) *image.Alpha {
	alpha := image.NewAlpha(mask.Bounds())
	for i, v := range mask.Pix {
		if v == class {
			alpha.Pix[i] = 0xff
		}
	}
	return alpha
}

// Coverage returns the fraction of mask pixels that belong to a pet class
func Coverage(mask *image.Gray) float64 {
	if len(mask.Pix) == 0 {
		return 0
	}
	n := 0
	for _, v := range mask.Pix {
		if v == labels.VOCCat || v == labels.VOCDog {
			n++
		}
	}
	return float64(n) / float64(len(mask.Pix))
}
