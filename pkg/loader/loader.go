// Package loader builds the model bundle used by the analyzer: the three
// pipeline stages, the resolved compute device and the label vocabularies.
package loader

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/config"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/utils"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/classification"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/client"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/detection"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/inference"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/labels"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/llamacpp"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/ollama"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/processing"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/segmentation"
)

// Runtime opens models on a resolved device
type Runtime interface {
	Open(name, path string) (inference.Model, error)
	Device() string
	Version() string
	Close() error
}

// Bundle holds everything the analyzer needs. It is built once per process
// and must be closed when done.
type Bundle struct {
	Classifier classification.Classifier
	Detector   *detection.Detector
	Segmenter  *segmentation.Segmenter

	Device           string
	FrameworkVersion string

	ClassificationModel string
	DetectionModel      string
	SegmentationModel   string

	ImageNetLabels     []string
	SegmentationLabels []string

	runtime Runtime
}

// Close releases every model session and then the runtime
func (b *Bundle) Close() error {
	var err error
	if b.Classifier != nil {
		err = multierr.Append(err, b.Classifier.Close())
	}
	if b.Detector != nil {
		err = multierr.Append(err, b.Detector.Close())
	}
	if b.Segmenter != nil {
		err = multierr.Append(err, b.Segmenter.Close())
	}
	if b.runtime != nil {
		err = multierr.Append(err, b.runtime.Close())
	}
	return err
}

// Load initializes ONNX Runtime and builds a bundle from cfg
func Load(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Bundle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	rt, err := inference.NewRuntime(cfg.Runtime, logger)
	if err != nil {
		return nil, err
	}

	bundle, err := LoadWithRuntime(ctx, cfg, rt, logger)
	if err != nil {
		return nil, multierr.Append(err, rt.Close())
	}
	return bundle, nil
}

// LoadWithRuntime builds a bundle whose models are opened through rt.
// On success the bundle owns rt; on failure every model opened so far is closed
// but rt is left to the caller.
func LoadWithRuntime(ctx context.Context, cfg *config.Config, rt Runtime, logger *logrus.Logger) (bundle *Bundle, err error) {
	start := time.Now()
	b := &Bundle{
		Device:             rt.Device(),
		FrameworkVersion:   rt.Version(),
		DetectionModel:     cfg.Models.Detection.Name,
		SegmentationModel:  cfg.Models.Segmentation.Name,
		SegmentationLabels: labels.VOC,
	}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	switch cfg.Classifier.Backend {
	case config.BackendOllama, config.BackendLlamaCpp:
		vc, err := newVisionClient(cfg.Classifier)
		if err != nil {
			return nil, err
		}
		b.ClassificationModel = cfg.Classifier.Model
		b.Classifier = classification.NewLLM(vc, cfg.Classifier.Model,
			processing.NewProcessorWithLimits(cfg.Processing.MaxPixels, cfg.Processing.MaxSegmentationSide))
	default:
		model, err := open(rt, cfg, cfg.Models.Classification)
		if err != nil {
			return nil, err
		}
		b.ImageNetLabels = labels.FetchOrEmpty(ctx, cfg.Labels.ImageNetURL, cfg.LabelsTimeout(), logger)
		b.ClassificationModel = cfg.Models.Classification.Name
		b.Classifier = classification.NewONNX(model, b.ImageNetLabels, cfg.Classifier.InputSize)
	}

	detModel, err := open(rt, cfg, cfg.Models.Detection.ModelSpec)
	if err != nil {
		return nil, err
	}
	det := cfg.Models.Detection
	b.Detector = detection.New(detModel, detection.Config{
		InputSize:     det.InputSize,
		ConfThreshold: det.ConfThreshold,
		IoUThreshold:  det.IoUThreshold,
		MaxDetections: det.MaxDetections,
		Names:         labels.COCO,
	})

	segModel, err := open(rt, cfg, cfg.Models.Segmentation)
	if err != nil {
		return nil, err
	}
	b.Segmenter = segmentation.New(segModel)

	b.runtime = rt
	logger.WithFields(logrus.Fields{
		"device":          b.Device,
		"classifier":      b.ClassificationModel,
		"imagenet_labels": len(b.ImageNetLabels),
		"elapsed":         time.Since(start).String(),
	}).Debug("models loaded")

	return b, nil
}

func open(rt Runtime, cfg *config.Config, spec config.ModelSpec) (inference.Model, error) {
	path := cfg.ModelPath(spec.File)
	if !utils.FileExists(path) {
		return nil, errors.Errorf("model file %s not found for %s", path, spec.Name)
	}
	model, err := rt.Open(spec.Name, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", spec.Name)
	}
	return model, nil
}

func newVisionClient(cfg config.ClassifierConfig) (client.VisionClient, error) {
	switch cfg.Backend {
	case config.BackendOllama:
		url := cfg.URL
		if url == "" {
			url = "http://localhost:11434"
		}
		c, err := ollama.NewClient(url)
		return c, errors.Wrap(err, "failed to create ollama client")
	case config.BackendLlamaCpp:
		c, err := llamacpp.NewClient(cfg.URL)
		return c, errors.Wrap(err, "failed to create llama.cpp client")
	default:
		return nil, errors.Errorf("unsupported classifier backend %q", cfg.Backend)
	}
}
