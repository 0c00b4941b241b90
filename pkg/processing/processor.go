package processing

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"

	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/utils"
)

// Default size limits
const (
	DefaultMaxPixels           = 10_000_000
	DefaultMaxSegmentationSide = 512
)

// ErrInvalidImage marks input files that are not decodable images
var ErrInvalidImage = errors.New("invalid image")

// Processor handles image loading, resizing and encoding
type Processor struct {
	maxPixels           int
	maxSegmentationSide int
}

// NewProcessor creates a processor with the default size limits
func NewProcessor() *Processor {
	return NewProcessorWithLimits(DefaultMaxPixels, DefaultMaxSegmentationSide)
}

// NewProcessorWithLimits creates a processor with custom size limits
func NewProcessorWithLimits(maxPixels, maxSegmentationSide int) *Processor {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if maxSegmentationSide <= 0 {
		maxSegmentationSide = DefaultMaxSegmentationSide
	}
	return &Processor{maxPixels: maxPixels, maxSegmentationSide: maxSegmentationSide}
}

// MaxPixels returns the pixel budget used by Downscale
func (p *Processor) MaxPixels() int { return p.maxPixels }

// LoadImage verifies and decodes the image at path and returns an opaque RGB copy.
// Errors that come from the file content wrap ErrInvalidImage.
func (p *Processor) LoadImage(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidImage, "cannot open %s: %v", path, err)
	}
	defer f.Close()

	// Verify the header first
	if _, err := verify(f, path); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "failed to rewind image file")
	}

	img, err := decode(f, path)
	if err != nil {
		return nil, err
	}

	return ToRGB(img), nil
}

func verify(f *os.File, path string) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(f)
	if err == nil {
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return cfg, errors.Wrapf(ErrInvalidImage, "%s has empty dimensions", path)
		}
		return cfg, nil
	}

	// Fallback: explicit WebP header
	if _, serr := f.Seek(0, io.SeekStart); serr == nil && isWebP(path) {
		if wcfg, werr := webp.DecodeConfig(f); werr == nil {
			return wcfg, nil
		}
	}
	return cfg, errors.Wrapf(ErrInvalidImage, "cannot identify image file %s: %v", path, err)
}

func decode(f *os.File, path string) (image.Image, error) {
	img, err := imaging.Decode(f)
	if err == nil {
		return img, nil
	}

	if _, serr := f.Seek(0, io.SeekStart); serr == nil && isWebP(path) {
		if wimg, werr := webp.Decode(f); werr == nil {
			return wimg, nil
		}
	}
	return nil, errors.Wrapf(ErrInvalidImage, "cannot decode %s: %v", path, err)
}

func isWebP(path string) bool {
	return utils.GetFileExtension(path) == "webp"
}

// ToRGB returns an NRGBA copy of img with every pixel made opaque.
// Transparency is discarded rather than composited.
func ToRGB(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

// Downscale shrinks img uniformly so that it holds at most MaxPixels pixels.
// The second return value reports whether a resize happened.
func (p *Processor) Downscale(img image.Image) (image.Image, bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w*h <= p.maxPixels {
		return img, false
	}

	ratio := math.Sqrt(float64(p.maxPixels) / float64(w*h))
	nw := maxInt(1, int(float64(w)*ratio))
	nh := maxInt(1, int(float64(h)*ratio))
	return imaging.Resize(img, nw, nh, imaging.Lanczos), true
}

// SegmentationCopy returns img capped at the segmentation long-side limit.
// img itself is returned when it already fits.
func (p *Processor) SegmentationCopy(img image.Image) image.Image {
	return FitLongSide(img, p.maxSegmentationSide)
}

// FitLongSide scales img down so its longer side is at most maxSide
func FitLongSide(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longer := maxInt(w, h)
	if longer <= maxSide {
		return img
	}

	scale := float64(maxSide) / float64(longer)
	nw := maxInt(1, int(float64(w)*scale))
	nh := maxInt(1, int(float64(h)*scale))
	return imaging.Resize(img, nw, nh, imaging.Lanczos)
}

// EncodePNGBase64 encodes img as PNG and returns standard base64 text
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", errors.Wrap(err, "failed to encode png")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodePNGBase64 is the inverse of EncodePNGBase64
func DecodePNGBase64(s string) (image.Image, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode base64")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode png")
	}
	return img, nil
}

// PrepareImageForModel converts an image to base64 for sending to vision-LLM backends
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		img = FitLongSide(img, maxDim)
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Helper functions
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
