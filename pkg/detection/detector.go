package detection

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gorgonia.org/tensor"

	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/inference"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/labels"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/processing"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/types"
)

// Config holds the decoding parameters of a YOLO detector
type Config struct {
	InputSize     int
	ConfThreshold float64
	IoUThreshold  float64
	MaxDetections int
	Names         []string
}

// DefaultConfig returns the thresholds used by the detector by default
func DefaultConfig() Config {
	return Config{
		InputSize:     640,
		ConfThreshold: 0.25,
		IoUThreshold:  0.7,
		MaxDetections: 300,
		Names:         labels.COCO,
	}
}

// Detector runs an anchor-free YOLO model (xywh + per-class scores head)
type Detector struct {
	model  inference.Model
	config Config
}

// New creates a detector over model
func New(model inference.Model, config Config) *Detector {
	if len(config.Names) == 0 {
		config.Names = labels.COCO
	}
	return &Detector{model: model, config: config}
}

// Name returns the model identifier
func (d *Detector) Name() string { return d.model.Name() }

// Close releases the underlying model
func (d *Detector) Close() error { return d.model.Close() }

type candidate struct {
	box   [4]float64
	score float64
	class int
}

// Detect returns every detection above the confidence threshold after
// non-max suppression. Boxes are in img pixel coordinates, clipped to its bounds.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	size := d.config.InputSize
	canvas, gain, left, top := processing.Letterbox(img, size)
	input := inference.NewTensor(processing.ToCHW(canvas, processing.ZeroMean, processing.UnitStd), 1, 3, size, size)

	out, err := d.model.Infer(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "detector inference failed")
	}

	candidates, err := d.decode(out)
	if err != nil {
		return nil, err
	}
	kept := nonMaxSuppression(candidates, d.config.IoUThreshold, d.config.MaxDetections)

	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	detections := make([]types.Detection, 0, len(kept))
	for _, c := range kept {
		box := types.BBox{
			clamp((c.box[0]-float64(left))/gain, 0, w),
			clamp((c.box[1]-float64(top))/gain, 0, h),
			clamp((c.box[2]-float64(left))/gain, 0, w),
			clamp((c.box[3]-float64(top))/gain, 0, h),
		}
		detections = append(detections, types.Detection{
			Class:      labels.Lookup(d.config.Names, c.class),
			Confidence: c.score,
			BBox:       box,
		})
	}
	return detections, nil
}

// decode turns a [1, 4+nc, n] (or transposed [1, n, 4+nc]) prediction into
// xyxy candidates in letterbox coordinates.
func (d *Detector) decode(out *tensor.Dense) ([]candidate, error) {
	data, err := inference.Float32s(out)
	if err != nil {
		return nil, err
	}
	shape := out.Shape()
	if len(shape) != 3 || shape[0] != 1 {
		return nil, errors.Errorf("unexpected detector output shape %v", shape)
	}

	// the head width is known from the vocabulary; fall back to the smaller dimension
	channels, n := shape[1], shape[2]
	expected := 4 + len(d.config.Names)
	transposed := false
	if channels != expected && (n == expected || channels > n) {
		channels, n = n, channels
		transposed = true
	}
	if channels < 5 {
		return nil, errors.Errorf("detector output has %d channels, need at least 5", channels)
	}
	at := func(c, i int) float64 {
		if transposed {
			return float64(data[i*channels+c])
		}
		return float64(data[c*n+i])
	}

	var candidates []candidate
	for i := 0; i < n; i++ {
		best, bestScore := -1, 0.0
		for c := 4; c < channels; c++ {
			if s := at(c, i); best < 0 || s > bestScore {
				best, bestScore = c-4, s
			}
		}
		// NaN scores fail this comparison too
		if !(bestScore > d.config.ConfThreshold) {
			continue
		}

		cx, cy := at(0, i), at(1, i)
		bw, bh := math.Abs(at(2, i)), math.Abs(at(3, i))
		if !finite(cx, cy, bw, bh) {
			continue
		}
		candidates = append(candidates, candidate{
			box:   [4]float64{cx - bw/2, cy - bh/2, cx + bw/2, cy + bh/2},
			score: bestScore,
			class: best,
		})
	}
	return candidates, nil
}

// nonMaxSuppression keeps the highest scoring boxes, dropping any box that
// overlaps an already kept box of the same class by more than iouThreshold.
func nonMaxSuppression(candidates []candidate, iouThreshold float64, limit int) []candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	kept := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if limit > 0 && len(kept) >= limit {
			break
		}
		suppressed := lo.ContainsBy(kept, func(k candidate) bool {
			return k.class == c.class && iou(k.box, c.box) > iouThreshold
		})
		if !suppressed {
			kept = append(kept, c)
		}
	}
	return kept
}

func iou(a, b [4]float64) float64 {
	ix0, iy0 := max(a[0], b[0]), max(a[1], b[1])
	ix1, iy1 := min(a[2], b[2]), min(a[3], b[3])
	iw, ih := ix1-ix0, iy1-iy0
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Pets keeps only cat and dog detections, with confidence rounded to 4 and
// box coordinates to 2 decimal places.
func Pets(detections []types.Detection) []types.Detection {
	pets := lo.Filter(detections, func(d types.Detection, _ int) bool {
		return labels.IsPet(d.Class)
	})
	return lo.Map(pets, func(d types.Detection, _ int) types.Detection {
		return types.Detection{
			Class:      d.Class,
			Confidence: types.Round(d.Confidence, 4),
			BBox:       d.BBox.Rounded(),
		}
	})
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// clamp ensures a value is within the given bounds
func clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
