package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"go.viam.com/test"
	"gorgonia.org/tensor"

	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/config"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/classification"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/detection"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/inference"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/labels"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/loader"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/segmentation"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/types"
)

type document struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Traceback string `json:"traceback"`
}

func runCLI(t *testing.T, args ...string) (int, document, string) {
	t.Helper()
	// keep a config in the real home directory out of the way
	t.Setenv("HOME", t.TempDir())
	for _, name := range []string{"CONFIG", "DEVICE", "MODELS_DIR", "ORT_LIB", "LOG_LEVEL"} {
		t.Setenv(envPrefix+name, "")
		os.Unsetenv(envPrefix + name)
	}

	var out bytes.Buffer
	code := run(append([]string{"pet-analyzer"}, args...), &out)

	raw := out.String()
	test.That(t, strings.Count(strings.TrimSpace(raw), "\n"), test.ShouldEqual, 0)

	var doc document
	test.That(t, json.Unmarshal(out.Bytes(), &doc), test.ShouldBeNil)
	return code, doc, raw
}

func TestNoImagePath(t *testing.T) {
	code, doc, raw := runCLI(t)
	test.That(t, code, test.ShouldEqual, 1)
	test.That(t, doc.Success, test.ShouldBeFalse)
	test.That(t, doc.Error, test.ShouldEqual, "No image path provided")
	test.That(t, strings.TrimSpace(raw), test.ShouldEqual, `{"success":false,"error":"No image path provided"}`)

}

func TestTooManyArguments(t *testing.T) {
	code, doc, _ := runCLI(t, "a.jpg", "b.jpg")
	test.That(t, code, test.ShouldEqual, 1)
	test.That(t, doc.Error, test.ShouldStartWith, "Expected exactly one image path, got 2")
	test.That(t, doc.Traceback, test.ShouldBeEmpty)

	// flags after the path are positional arguments to the parser
	code, doc, _ = runCLI(t, "cat.jpg", "--device", "cpu")
	test.That(t, code, test.ShouldEqual, 1)
	test.That(t, doc.Error, test.ShouldStartWith, "Expected exactly one image path, got 3")
	test.That(t, doc.Error, test.ShouldContainSubstring, "options must come before the path")
}

func TestNoImagePathSkipsModelLoading(t *testing.T) {
	// a broken runtime path would fail loading; argument checks come first
	code, doc, _ := runCLI(t, "--ort-lib", "/nonexistent/libonnxruntime.so")
	test.That(t, code, test.ShouldEqual, 1)
	test.That(t, doc.Error, test.ShouldEqual, "No image path provided")
}

func TestInvalidConfiguration(t *testing.T) {
	code, doc, _ := runCLI(t, "--device", "tpu", "cat.jpg")
	test.That(t, code, test.ShouldEqual, 1)
	test.That(t, doc.Error, test.ShouldStartWith, "System error: ")
	test.That(t, doc.Error, test.ShouldContainSubstring, "runtime.device")

	code, doc, _ = runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.json"), "cat.jpg")
	test.That(t, code, test.ShouldEqual, 1)
	test.That(t, doc.Error, test.ShouldStartWith, "System error: ")
	test.That(t, doc.Traceback, test.ShouldNotBeEmpty)
}

func TestUnknownFlag(t *testing.T) {
	code, doc, _ := runCLI(t, "--no-such-flag", "cat.jpg")
	test.That(t, code, test.ShouldEqual, 1)
	test.That(t, doc.Error, test.ShouldStartWith, "System error: ")
}

func TestModelLoadingFailure(t *testing.T) {
	code, doc, _ := runCLI(t,
		"--ort-lib", filepath.Join(t.TempDir(), "libonnxruntime.so"),
		"--models-dir", t.TempDir(),
		"--device", "cpu",
		"cat.jpg")
	test.That(t, code, test.ShouldEqual, 1)
	test.That(t, doc.Success, test.ShouldBeFalse)
	test.That(t, doc.Error, test.ShouldStartWith, "Model loading failed: ")
	test.That(t, doc.Traceback, test.ShouldNotBeEmpty)
}

type stubModel struct {
	name   string
	infer  func(*tensor.Dense) *tensor.Dense
	closed bool
}

func (m *stubModel) Name() string { return m.name }

func (m *stubModel) Infer(_ context.Context, in *tensor.Dense) (*tensor.Dense, error) {
	return m.infer(in), nil
}

func (m *stubModel) Close() error {
	m.closed = true
	return nil
}

// useStubModels swaps the model loader for one that returns a bundle which
// labels every image "tabby", finds one cat and segments every pixel as cat.
func useStubModels(t *testing.T) []*stubModel {
	t.Helper()
	cls := &stubModel{name: "resnet50", infer: func(*tensor.Dense) *tensor.Dense {
		return inference.NewTensor([]float32{0, 5, 1}, 1, 3)
	}}
	det := &stubModel{name: "yolov5su", infer: func(*tensor.Dense) *tensor.Dense {
		channels := 4 + len(labels.COCO)
		data := make([]float32, channels)
		copy(data, []float32{320, 320, 200, 200})
		data[4+15] = 0.8
		return inference.NewTensor(data, 1, channels, 1)
	}}
	seg := &stubModel{name: "deeplabv3", infer: func(in *tensor.Dense) *tensor.Dense {
		h, w := in.Shape()[2], in.Shape()[3]
		data := make([]float32, 21*h*w)
		for i := 0; i < h*w; i++ {
			data[labels.VOCCat*h*w+i] = 1
		}
		return inference.NewTensor(data, 1, 21, h, w)
	}}

	orig := loadBundle
	t.Cleanup(func() { loadBundle = orig })
	loadBundle = func(context.Context, *config.Config, *logrus.Logger) (*loader.Bundle, error) {
		return &loader.Bundle{
			Classifier:          classification.NewONNX(cls, []string{"tench", "tabby", "goldfish"}, 32),
			Detector:            detection.New(det, detection.DefaultConfig()),
			Segmenter:           segmentation.New(seg),
			Device:              "cpu",
			FrameworkVersion:    "onnxruntime test",
			ClassificationModel: "resnet50",
			DetectionModel:      "yolov5su",
			SegmentationModel:   "deeplabv3",
		}, nil
	}
	return []*stubModel{cls, det, seg}
}

func writePNG(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	test.That(t, png.Encode(&buf, img), test.ShouldBeNil)
	path := filepath.Join(t.TempDir(), "cat.png")
	test.That(t, os.WriteFile(path, buf.Bytes(), 0o644), test.ShouldBeNil)
	return path
}

func TestAnalyzeSuccess(t *testing.T) {
	models := useStubModels(t)

	code, doc, raw := runCLI(t, writePNG(t, 300, 200))
	test.That(t, code, test.ShouldEqual, 0)
	test.That(t, doc.Success, test.ShouldBeTrue)
	test.That(t, doc.Error, test.ShouldBeEmpty)

	var result struct {
		Classification string `json:"classification"`
		Detections     []struct {
			Class string `json:"class"`
		} `json:"detections"`
		Visualizations struct {
			Detection    *string `json:"detection"`
			Segmentation *string `json:"segmentation"`
		} `json:"visualizations"`
		Metadata struct {
			ImageWidth   int  `json:"image_width"`
			PetsDetected bool `json:"pets_detected"`
		} `json:"metadata"`
	}
	test.That(t, json.Unmarshal([]byte(raw), &result), test.ShouldBeNil)
	test.That(t, result.Classification, test.ShouldEqual, "tabby")
	test.That(t, result.Detections, test.ShouldHaveLength, 1)
	test.That(t, result.Detections[0].Class, test.ShouldEqual, "cat")
	test.That(t, result.Visualizations.Detection, test.ShouldNotBeNil)
	test.That(t, result.Visualizations.Segmentation, test.ShouldNotBeNil)
	test.That(t, result.Metadata.ImageWidth, test.ShouldEqual, 300)
	test.That(t, result.Metadata.PetsDetected, test.ShouldBeTrue)

	// models are released before exit
	for _, m := range models {
		test.That(t, m.closed, test.ShouldBeTrue)
	}
}

func TestAnalyzeInvalidImageAfterLoading(t *testing.T) {
	models := useStubModels(t)

	path := filepath.Join(t.TempDir(), "cat.jpg")
	test.That(t, os.WriteFile(path, []byte("not a jpeg at all"), 0o644), test.ShouldBeNil)

	code, doc, _ := runCLI(t, path)
	test.That(t, code, test.ShouldEqual, 1)
	test.That(t, doc.Success, test.ShouldBeFalse)
	test.That(t, doc.Error, test.ShouldStartWith, "Invalid image file: ")
	test.That(t, doc.Traceback, test.ShouldBeEmpty)
	test.That(t, models[0].closed, test.ShouldBeTrue)
}

func TestEmitEncodingFailure(t *testing.T) {
	var out bytes.Buffer
	err := emit(&out, types.AnalysisResult{
		Success:    true,
		Detections: []types.Detection{{Class: "cat", Confidence: math.NaN()}},
	})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, out.String(), test.ShouldEqual, errEncodingFailed+"\n")

	var doc document
	test.That(t, json.Unmarshal(out.Bytes(), &doc), test.ShouldBeNil)
	test.That(t, doc.Success, test.ShouldBeFalse)

	out.Reset()
	test.That(t, emit(&out, types.Failure("boom", "")), test.ShouldBeNil)
	test.That(t, strings.TrimSpace(out.String()), test.ShouldEqual, `{"success":false,"error":"boom"}`)
}

// parseConfig runs loadConfig against args using the CLI's flags
func parseConfig(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	var (
		cfg    *config.Config
		cfgErr error
	)
	app := &cli.App{
		Name:      "pet-analyzer",
		Writer:    io.Discard,
		ErrWriter: io.Discard,
		Flags:     flags(),
		Action: func(c *cli.Context) error {
			cfg, cfgErr = loadConfig(c)
			return nil
		},
	}
	test.That(t, app.Run(append([]string{"pet-analyzer"}, args...)), test.ShouldBeNil)
	return cfg, cfgErr
}

func TestLoadConfigLayers(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := parseConfig(t)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Runtime.Device, test.ShouldEqual, config.DeviceAuto)
	test.That(t, cfg.Logging.Level, test.ShouldEqual, "error")

	path := filepath.Join(t.TempDir(), "config.json")
	test.That(t, os.WriteFile(path, []byte(`{"runtime": {"device": "cpu"}, "logging": {"level": "debug"}}`), 0o644), test.ShouldBeNil)
	t.Setenv(envPrefix+"MODELS_DIR", "/srv/models")

	// file over defaults, environment over file, flags over environment
	cfg, err = parseConfig(t, "--config", path, "--log-level", "warn", "--classifier-backend", "ollama", "--classifier-model", "llava")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Runtime.Device, test.ShouldEqual, config.DeviceCPU)
	test.That(t, cfg.Models.Dir, test.ShouldEqual, "/srv/models")
	test.That(t, cfg.Logging.Level, test.ShouldEqual, "warn")
	test.That(t, cfg.Classifier.Backend, test.ShouldEqual, config.BackendOllama)
	test.That(t, cfg.Classifier.Model, test.ShouldEqual, "llava")
	test.That(t, cfg.Models.Detection.ConfThreshold, test.ShouldEqual, 0.25)

	cfg, err = parseConfig(t, "--device", " CUDA ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Runtime.Device, test.ShouldEqual, config.DeviceCUDA)

	_, err = parseConfig(t, "--classifier-backend", "ollama")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "classifier.model")
}

func TestLoadConfigDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, ".config", "pet-analyzer", "config.json")
	test.That(t, os.MkdirAll(filepath.Dir(path), 0o755), test.ShouldBeNil)
	test.That(t, os.WriteFile(path, []byte(`{"runtime": {"num_threads": 2}}`), 0o644), test.ShouldBeNil)

	cfg, err := parseConfig(t)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Runtime.NumThreads, test.ShouldEqual, 2)
}
