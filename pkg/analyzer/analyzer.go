// Package analyzer runs the fixed pet analysis pipeline on a single image:
// load, downscale, classify, detect, and segment when a pet is present.
package analyzer

import (
	"context"
	"fmt"
	"image"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/logging"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/detection"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/loader"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/processing"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/segmentation"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/types"
)

// Error prefixes of the failure records
const (
	InvalidImagePrefix    = "Invalid image file: "
	ProcessingErrorPrefix = "Image processing failed: "
)

// ImageAnalyzer runs the pipeline against a loaded model bundle
type ImageAnalyzer struct {
	bundle    *loader.Bundle
	processor *processing.Processor
	logger    *logrus.Logger
}

// Config holds the image size limits and the logger of an ImageAnalyzer
type Config struct {
	MaxPixels           int
	MaxSegmentationSide int
	Logger              *logrus.Logger
}

// New creates a new ImageAnalyzer with default configuration
func New(bundle *loader.Bundle) *ImageAnalyzer {
	return NewWithConfig(bundle, Config{})
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration.
// Zero limits fall back to the defaults.
func NewWithConfig(bundle *loader.Bundle, config Config) *ImageAnalyzer {
	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &ImageAnalyzer{
		bundle:    bundle,
		processor: processing.NewProcessorWithLimits(config.MaxPixels, config.MaxSegmentationSide),
		logger:    logger,
	}
}

// Analyze runs the pipeline on the image at path with default settings
func Analyze(ctx context.Context, path string, bundle *loader.Bundle) types.AnalysisResult {
	return New(bundle).Analyze(ctx, path)
}

// Analyze never returns a partial result: any error or panic after the image
// is loaded turns the whole result into a failure record with a trace.
func (a *ImageAnalyzer) Analyze(ctx context.Context, path string) (result types.AnalysisResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithField("panic", r).Warn("analysis panicked")
			result = types.Failure(fmt.Sprintf("%s%v", ProcessingErrorPrefix, r), string(debug.Stack()))
		}
		// forces a collection and hands freed pages back to the OS
		debug.FreeOSMemory()
	}()

	img, err := a.processor.LoadImage(path)
	if err != nil {
		if errors.Is(err, processing.ErrInvalidImage) {
			a.logger.WithError(err).WithField("path", path).Info("rejected input")
			return types.Failure(InvalidImagePrefix+err.Error(), "")
		}
		return a.failure(err)
	}

	result, err = a.run(ctx, img)
	if err != nil {
		return a.failure(err)
	}

	a.logger.WithFields(logrus.Fields{
		"path":    path,
		"pets":    len(result.Detections),
		"elapsed": time.Since(start).String(),
	}).Debug("analysis finished")
	return result
}

func (a *ImageAnalyzer) run(ctx context.Context, img *image.NRGBA) (types.AnalysisResult, error) {
	b := a.bundle
	origW, origH := img.Bounds().Dx(), img.Bounds().Dy()

	work, resized := a.processor.Downscale(img)
	w, h := work.Bounds().Dx(), work.Bounds().Dy()
	if resized {
		a.logger.WithFields(logrus.Fields{
			"from":       fmt.Sprintf("%dx%d", origW, origH),
			"to":         fmt.Sprintf("%dx%d", w, h),
			"max_pixels": a.processor.MaxPixels(),
		}).Debug("downscaled")
	}
	segInput := a.processor.SegmentationCopy(work)

	label, err := b.Classifier.Classify(ctx, work)
	if err != nil {
		return types.AnalysisResult{}, errors.Wrap(err, "classification")
	}

	all, err := b.Detector.Detect(ctx, work)
	if err != nil {
		return types.AnalysisResult{}, errors.Wrap(err, "detection")
	}
	pets := detection.Pets(all)
	a.logger.WithFields(logrus.Fields{"label": label, "detections": len(all), "pets": len(pets)}).Debug("stages done")

	var vis types.Visualizations
	if len(pets) > 0 {
		detB64, err := processing.EncodePNGBase64(processing.DrawDetections(work, pets))
		if err != nil {
			return types.AnalysisResult{}, errors.Wrap(err, "detection visualization")
		}

		mask, err := b.Segmenter.Segment(ctx, segInput, w, h)
		if err != nil {
			return types.AnalysisResult{}, errors.Wrap(err, "segmentation")
		}
		a.logger.WithField("coverage", segmentation.Coverage(mask)).Debug("segmented")

		segB64, err := processing.EncodePNGBase64(segmentation.Visualize(mask))
		if err != nil {
			return types.AnalysisResult{}, errors.Wrap(err, "segmentation visualization")
		}
		vis = types.Visualizations{Detection: &detB64, Segmentation: &segB64}
	}

	return types.AnalysisResult{
		Success:        true,
		Classification: label,
		Detections:     pets,
		Visualizations: vis,
		Metadata: types.Metadata{
			Device:              b.Device,
			FrameworkVersion:    b.FrameworkVersion,
			ClassificationModel: b.ClassificationModel,
			DetectionModel:      b.DetectionModel,
			SegmentationModel:   b.SegmentationModel,
			ImageWidth:          origW,
			ImageHeight:         origH,
			PetsDetected:        len(pets) > 0,
		},
	}, nil
}

func (a *ImageAnalyzer) failure(err error) types.AnalysisResult {
	a.logger.WithError(err).Warn("analysis failed")
	return types.Failure(ProcessingErrorPrefix+err.Error(), Trace(err))
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Trace renders err with the stack recorded where it was created or first
// wrapped. Errors without a recorded stack get the caller's.
func Trace(err error) string {
	var st stackTracer
	if !errors.As(err, &st) {
		err = errors.WithStack(err)
	}
	return fmt.Sprintf("%+v", err)
}
