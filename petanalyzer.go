// Package petanalyzer finds cats and dogs in images.
//
// It chains three pretrained ONNX models: an ImageNet classifier that labels
// the whole image, a YOLO detector whose cat and dog boxes are kept, and a
// DeepLab segmenter that runs only when a pet was found.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"encoding/json"
//		"log"
//		"os"
//
//		petanalyzer "github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application"
//	)
//
//	func main() {
//		cfg := petanalyzer.DefaultConfig()
//		cfg.Models.Dir = "./models"
//
//		pa, err := petanalyzer.New(context.Background(), cfg)
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer pa.Close()
//
//		result := pa.AnalyzeFile(context.Background(), "cat.jpg")
//		_ = json.NewEncoder(os.Stdout).Encode(result)
//	}
//
// The package consists of these main components:
//
//  1. Loader (pkg/loader): ONNX Runtime setup, device selection, label vocabularies
//  2. Stages (pkg/classification, pkg/detection, pkg/segmentation)
//  3. Analyzer (pkg/analyzer): the pipeline producing a types.AnalysisResult
//  4. Runner (pkg/runner): runs the pet-analyzer CLI from a host process
//
// Results are always a types.AnalysisResult; failures are reported in the
// result rather than as Go errors, matching the CLI's JSON contract.
package petanalyzer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/config"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/logging"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/utils"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/analyzer"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/loader"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/types"
)

// Version of the pet analyzer library
const Version = "1.0.0"

// Config is the analyzer configuration
type Config = config.Config

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return config.Default()
}

// PetAnalyzer owns a loaded model bundle
type PetAnalyzer struct {
	bundle   *loader.Bundle
	analyzer *analyzer.ImageAnalyzer
	logger   *logrus.Logger
}

// New loads the models described by cfg. A nil cfg means DefaultConfig.
func New(ctx context.Context, cfg *Config) (*PetAnalyzer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := logging.New(cfg.Logging.Level)

	bundle, err := loader.Load(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithBundle(bundle, cfg, logger), nil
}

// NewWithBundle wraps an already loaded bundle
func NewWithBundle(bundle *loader.Bundle, cfg *Config, logger *logrus.Logger) *PetAnalyzer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &PetAnalyzer{
		bundle: bundle,
		analyzer: analyzer.NewWithConfig(bundle, analyzer.Config{
			MaxPixels:           cfg.Processing.MaxPixels,
			MaxSegmentationSide: cfg.Processing.MaxSegmentationSide,
			Logger:              logger,
		}),
		logger: logger,
	}
}

// AnalyzeFile analyzes the image at path
func (pa *PetAnalyzer) AnalyzeFile(ctx context.Context, path string) types.AnalysisResult {
	return pa.analyzer.Analyze(ctx, path)
}

// AnalyzeReader spools r to a temp file and analyzes it
func (pa *PetAnalyzer) AnalyzeReader(ctx context.Context, r io.Reader) types.AnalysisResult {
	path, err := utils.WriteTempFile("pet-*.img", r)
	if err != nil {
		return types.Failure(analyzer.InvalidImagePrefix+err.Error(), "")
	}
	defer os.Remove(path)

	return pa.AnalyzeFile(ctx, path)
}

// AnalyzeUpload analyzes an uploaded file. Names without an image extension
// are rejected before anything is written; the extension is kept on the
// spooled copy.
func (pa *PetAnalyzer) AnalyzeUpload(ctx context.Context, name string, r io.Reader) types.AnalysisResult {
	if !utils.IsImageFile(name) {
		return types.Failure(fmt.Sprintf("%sunsupported file type %q", analyzer.InvalidImagePrefix, name), "")
	}

	path, err := utils.WriteTempFile("pet-*."+utils.GetFileExtension(name), r)
	if err != nil {
		return types.Failure(analyzer.InvalidImagePrefix+err.Error(), "")
	}
	defer os.Remove(path)

	pa.logger.WithField("upload", name).Debug("analyzing upload")
	return pa.AnalyzeFile(ctx, path)
}

// Device returns the compute device the models run on
func (pa *PetAnalyzer) Device() string {
	return pa.bundle.Device
}

// Close releases the models
func (pa *PetAnalyzer) Close() error {
	return pa.bundle.Close()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
