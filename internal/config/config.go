package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Device values accepted by RuntimeConfig.Device
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// Classifier backends accepted by ClassifierConfig.Backend
const (
	BackendONNX     = "onnx"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// Config holds the application configuration
type Config struct {
	Runtime    RuntimeConfig    `json:"runtime"`
	Models     ModelsConfig     `json:"models"`
	Classifier ClassifierConfig `json:"classifier"`
	Labels     LabelsConfig     `json:"labels"`
	Processing ProcessingConfig `json:"processing"`
	Logging    LoggingConfig    `json:"logging"`
}

// RuntimeConfig holds ONNX Runtime settings
type RuntimeConfig struct {
	LibraryPath string `json:"library_path"`
	Device      string `json:"device"`
	NumThreads  int    `json:"num_threads"`
}

// ModelSpec names one model file and the identifier reported in metadata
type ModelSpec struct {
	Name string `json:"name"`
	File string `json:"file"`
}

// DetectionSpec is the detector model plus its decoding thresholds
type DetectionSpec struct {
	ModelSpec
	InputSize     int     `json:"input_size"`
	ConfThreshold float64 `json:"conf_threshold"`
	IoUThreshold  float64 `json:"iou_threshold"`
	MaxDetections int     `json:"max_detections"`
}

// ModelsConfig locates the three model files
type ModelsConfig struct {
	Dir            string        `json:"dir"`
	Classification ModelSpec     `json:"classification"`
	Detection      DetectionSpec `json:"detection"`
	Segmentation   ModelSpec     `json:"segmentation"`
}

// ClassifierConfig selects how the classification label is produced
type ClassifierConfig struct {
	Backend   string `json:"backend"`
	InputSize int    `json:"input_size"`
	// URL and Model are only used by the vision-LLM backends.
	URL   string `json:"url"`
	Model string `json:"model"`
}

// LabelsConfig holds the remote label vocabulary source
type LabelsConfig struct {
	ImageNetURL    string `json:"imagenet_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ProcessingConfig holds image size limits
type ProcessingConfig struct {
	MaxPixels           int `json:"max_pixels"`
	MaxSegmentationSide int `json:"max_segmentation_side"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `json:"level"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			LibraryPath: DefaultLibraryPath(),
			Device:      DeviceAuto,
			NumThreads:  0,
		},
		Models: ModelsConfig{
			Dir:            "./models",
			Classification: ModelSpec{Name: "resnet50", File: "resnet50.onnx"},
			Detection: DetectionSpec{
				ModelSpec:     ModelSpec{Name: "yolov5su", File: "yolov5su.onnx"},
				InputSize:     640,
				ConfThreshold: 0.25,
				IoUThreshold:  0.7,
				MaxDetections: 300,
			},
			Segmentation: ModelSpec{Name: "deeplabv3", File: "deeplabv3_resnet50.onnx"},
		},
		Classifier: ClassifierConfig{
			Backend:   BackendONNX,
			InputSize: 224,
		},
		Labels: LabelsConfig{
			ImageNetURL:    "https://raw.githubusercontent.com/pytorch/hub/master/imagenet_classes.txt",
			TimeoutSeconds: 10,
		},
		Processing: ProcessingConfig{
			MaxPixels:           10_000_000,
			MaxSegmentationSide: 512,
		},
		Logging: LoggingConfig{
			Level: "error",
		},
	}
}

// DefaultLibraryPath returns the platform file name of the ONNX Runtime shared library
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// LoadFromFile loads configuration from a JSON file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Runtime.Device {
	case DeviceAuto, DeviceCPU, DeviceCUDA:
	default:
		return fmt.Errorf("runtime.device must be one of auto, cpu, cuda (got %q)", c.Runtime.Device)
	}

	if c.Runtime.NumThreads < 0 {
		return fmt.Errorf("runtime.num_threads cannot be negative")
	}

	switch c.Classifier.Backend {
	case BackendONNX:
		if c.Models.Classification.File == "" {
			return fmt.Errorf("models.classification.file cannot be empty")
		}
	case BackendOllama, BackendLlamaCpp:
		if c.Classifier.Model == "" {
			return fmt.Errorf("classifier.model is required for the %s backend", c.Classifier.Backend)
		}
	default:
		return fmt.Errorf("classifier.backend must be one of onnx, ollama, llamacpp (got %q)", c.Classifier.Backend)
	}

	if c.Classifier.InputSize < 1 {
		return fmt.Errorf("classifier.input_size must be positive")
	}

	if c.Models.Detection.File == "" || c.Models.Segmentation.File == "" {
		return fmt.Errorf("models.detection.file and models.segmentation.file cannot be empty")
	}

	if c.Models.Detection.InputSize < 32 || c.Models.Detection.InputSize%32 != 0 {
		return fmt.Errorf("models.detection.input_size must be a positive multiple of 32")
	}

	if c.Models.Detection.ConfThreshold < 0 || c.Models.Detection.ConfThreshold > 1 {
		return fmt.Errorf("models.detection.conf_threshold must be between 0 and 1")
	}

	if c.Models.Detection.IoUThreshold < 0 || c.Models.Detection.IoUThreshold > 1 {
		return fmt.Errorf("models.detection.iou_threshold must be between 0 and 1")
	}

	if c.Models.Detection.MaxDetections < 1 {
		return fmt.Errorf("models.detection.max_detections must be positive")
	}

	if c.Labels.TimeoutSeconds < 1 {
		return fmt.Errorf("labels.timeout_seconds must be positive")
	}

	if c.Processing.MaxPixels < 1 || c.Processing.MaxSegmentationSide < 1 {
		return fmt.Errorf("processing limits must be positive")
	}

	return nil
}

// ModelPath resolves a model file against the models directory
func (c *Config) ModelPath(file string) string {
	if filepath.IsAbs(file) || c.Models.Dir == "" {
		return file
	}
	return filepath.Join(c.Models.Dir, file)
}

// LabelsTimeout returns the label fetch timeout
func (c *Config) LabelsTimeout() time.Duration {
	return time.Duration(c.Labels.TimeoutSeconds) * time.Second
}

// NormalizedDevice returns the device in lower case with surrounding space removed
func NormalizedDevice(device string) string {
	return strings.ToLower(strings.TrimSpace(device))
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "pet-analyzer", "config.json")
}
