// Package main is the pet-analyzer CLI: it analyzes one image and prints a
// single JSON document on stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	petanalyzer "github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/config"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/logging"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/utils"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/analyzer"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/loader"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/types"
)

const (
	// Flags.
	flagConfig            = "config"
	flagDevice            = "device"
	flagThreads           = "threads"
	flagModelsDir         = "models-dir"
	flagORTLib            = "ort-lib"
	flagLabelsURL         = "labels-url"
	flagClassifierBackend = "classifier-backend"
	flagClassifierModel   = "classifier-model"
	flagClassifierURL     = "classifier-url"
	flagLogLevel          = "log-level"

	envPrefix = "PET_ANALYZER_"
)

// Error messages of the failure documents
const (
	errNoImagePath    = "No image path provided"
	errTooManyPaths   = "Expected exactly one image path, got %d arguments (options must come before the path)"
	errModelLoading   = "Model loading failed: "
	errSystemFailure  = "System error: "
	errEncodingFailed = `{"success":false,"error":"System error: result encoding failed"}`
)

// loadBundle builds the model bundle; tests replace it
var loadBundle = loader.Load

func main() {
	os.Exit(run(os.Args, os.Stdout))
}

func env(name string) []string {
	return []string{envPrefix + name}
}

func run(args []string, stdout io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			emit(stdout, types.Failure(fmt.Sprintf("%s%v", errSystemFailure, r), string(debug.Stack())))
			code = 1
		}
	}()

	app := &cli.App{
		Name:      "pet-analyzer",
		Usage:     "analyze an image for cats and dogs",
		ArgsUsage: "<image_path>",
		UsageText: "pet-analyzer [options] <image_path>",
		Version:   petanalyzer.Version,
		// stdout carries nothing but the result document
		Writer:    os.Stderr,
		ErrWriter: os.Stderr,
		Flags:     flags(),
		Action: func(c *cli.Context) error {
			code = analyze(c, stdout)
			return nil
		},
	}

	if err := app.Run(args); err != nil {
		emit(stdout, types.Failure(errSystemFailure+err.Error(), analyzer.Trace(err)))
		return 1
	}
	return code
}

// flags are the command line options; each can also be set from the environment
func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
			EnvVars: env("CONFIG"),
		},
		&cli.StringFlag{
			Name:    flagDevice,
			Usage:   "compute device: auto, cpu or cuda",
			EnvVars: env("DEVICE"),
		},
		&cli.IntFlag{
			Name:    flagThreads,
			Usage:   "intra-op threads for onnxruntime (0 = runtime default)",
			EnvVars: env("THREADS"),
		},
		&cli.StringFlag{
			Name:    flagModelsDir,
			Usage:   "directory holding the ONNX model files",
			EnvVars: env("MODELS_DIR"),
		},
		&cli.StringFlag{
			Name:    flagORTLib,
			Usage:   "path to the onnxruntime shared library",
			EnvVars: env("ORT_LIB"),
		},
		&cli.StringFlag{
			Name:    flagLabelsURL,
			Usage:   "URL of the ImageNet class names file",
			EnvVars: env("LABELS_URL"),
		},
		&cli.StringFlag{
			Name:    flagClassifierBackend,
			Usage:   "classification backend: onnx, ollama or llamacpp",
			EnvVars: env("CLASSIFIER_BACKEND"),
		},
		&cli.StringFlag{
			Name:    flagClassifierModel,
			Usage:   "vision model name for the ollama and llamacpp backends",
			EnvVars: env("CLASSIFIER_MODEL"),
		},
		&cli.StringFlag{
			Name:    flagClassifierURL,
			Usage:   "server URL for the ollama and llamacpp backends",
			EnvVars: env("CLASSIFIER_URL"),
		},
		&cli.StringFlag{
			Name:    flagLogLevel,
			Usage:   "stderr log level (debug, info, warn, error)",
			EnvVars: env("LOG_LEVEL"),
		},
	}
}

// analyze checks the arguments, loads the models and analyzes one image
func analyze(c *cli.Context, stdout io.Writer) int {
	switch n := c.NArg(); {
	case n == 0:
		emit(stdout, types.Failure(errNoImagePath, ""))
		return 1
	case n > 1:
		emit(stdout, types.Failure(fmt.Sprintf(errTooManyPaths, n), ""))
		return 1
	}

	cfg, err := loadConfig(c)
	if err != nil {
		emit(stdout, types.Failure(errSystemFailure+err.Error(), analyzer.Trace(err)))
		return 1
	}
	logger := logging.New(cfg.Logging.Level)

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	bundle, err := loadBundle(ctx, cfg, logger)
	if err != nil {
		emit(stdout, types.Failure(errModelLoading+err.Error(), analyzer.Trace(err)))
		return 1
	}
	defer func() {
		if err := bundle.Close(); err != nil {
			logger.WithError(err).Warn("failed to release models")
		}
	}()

	result := analyzer.NewWithConfig(bundle, analyzer.Config{
		MaxPixels:           cfg.Processing.MaxPixels,
		MaxSegmentationSide: cfg.Processing.MaxSegmentationSide,
		Logger:              logger,
	}).Analyze(ctx, c.Args().First())

	if err := emit(stdout, result); err != nil {
		logger.WithError(err).Error("failed to encode result")
		return 1
	}
	if !result.Success {
		return 1
	}
	return 0
}

// loadConfig layers the config file, then flags and environment, over the defaults
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()

	path := c.String(flagConfig)
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		cfg = loaded
	}

	if c.IsSet(flagDevice) {
		cfg.Runtime.Device = config.NormalizedDevice(c.String(flagDevice))
	}
	if c.IsSet(flagThreads) {
		cfg.Runtime.NumThreads = c.Int(flagThreads)
	}
	if c.IsSet(flagORTLib) {
		cfg.Runtime.LibraryPath = c.String(flagORTLib)
	}
	if c.IsSet(flagModelsDir) {
		cfg.Models.Dir = c.String(flagModelsDir)
	}
	if c.IsSet(flagLabelsURL) {
		cfg.Labels.ImageNetURL = c.String(flagLabelsURL)
	}
	if c.IsSet(flagClassifierBackend) {
		cfg.Classifier.Backend = c.String(flagClassifierBackend)
	}
	if c.IsSet(flagClassifierModel) {
		cfg.Classifier.Model = c.String(flagClassifierModel)
	}
	if c.IsSet(flagClassifierURL) {
		cfg.Classifier.URL = c.String(flagClassifierURL)
	}
	if c.IsSet(flagLogLevel) {
		cfg.Logging.Level = c.String(flagLogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// emit writes result as one line of JSON. When result cannot be encoded a
// fixed failure line is written instead and the encoding error returned.
func emit(w io.Writer, result types.AnalysisResult) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		fmt.Fprintln(w, errEncodingFailed)
		return errors.Wrap(err, "encode result")
	}
	return nil
}
