package inference

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/config"
)

// Runtime owns the ONNX Runtime environment and the session options shared by
// every model it opens.
type Runtime struct {
	device  string
	version string
	options *ort.SessionOptions
	logger  *logrus.Logger
}

// NewRuntime initializes ONNX Runtime and resolves the compute device.
//
// With device "auto" the CUDA execution provider is tried first and CPU is used
// when it cannot be enabled; "cuda" makes that a hard error.
func NewRuntime(cfg config.RuntimeConfig, logger *logrus.Logger) (*Runtime, error) {
	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	device := config.NormalizedDevice(cfg.Device)
	if device == "" {
		device = config.DeviceAuto
	}

	options, err := newSessionOptions(cfg.NumThreads)
	if err != nil {
		return nil, err
	}

	resolved := config.DeviceCPU
	if device != config.DeviceCPU {
		if cudaErr := appendCUDA(options); cudaErr != nil {
			if device == config.DeviceCUDA {
				_ = options.Destroy()
				return nil, errors.Wrap(cudaErr, "cuda requested but unavailable")
			}
			logger.WithError(cudaErr).Warn("cuda unavailable, falling back to cpu")

			// the failed append may leave the options half configured
			_ = options.Destroy()
			if options, err = newSessionOptions(cfg.NumThreads); err != nil {
				return nil, err
			}
		} else {
			resolved = config.DeviceCUDA
		}
	}

	logger.WithFields(logrus.Fields{"device": resolved, "onnxruntime": ort.GetVersion()}).Debug("runtime ready")

	return &Runtime{
		device:  resolved,
		version: "onnxruntime " + ort.GetVersion(),
		options: options,
		logger:  logger,
	}, nil
}

// Device returns the resolved device, "cuda" or "cpu"
func (r *Runtime) Device() string { return r.device }

// Version returns the runtime version string reported in metadata
func (r *Runtime) Version() string { return r.version }

// Open creates a session for the model file at path.
// The first declared input and output of the graph are used.
func (r *Runtime) Open(name, path string) (Model, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to inspect model %s", path)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errors.Errorf("model %s declares no inputs or outputs", path)
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, r.options)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create session for %s", path)
	}

	r.logger.WithFields(logrus.Fields{
		"model":  name,
		"path":   path,
		"input":  inputs[0].Name,
		"output": outputs[0].Name,
	}).Debug("model loaded")

	return &onnxModel{
		name:       name,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		session:    session,
	}, nil
}

// Close releases the session options and tears down the environment
func (r *Runtime) Close() error {
	if r.options != nil {
		if err := r.options.Destroy(); err != nil {
			return errors.Wrap(err, "failed to destroy session options")
		}
		r.options = nil
	}
	if ort.IsInitialized() {
		return errors.Wrap(ort.DestroyEnvironment(), "failed to destroy onnxruntime environment")
	}
	return nil
}

// CUDAAvailable reports whether the CUDA execution provider can be enabled
// with the shared library at libraryPath.
func CUDAAvailable(libraryPath string) (bool, error) {
	if err := initEnvironment(libraryPath); err != nil {
		return false, err
	}
	options, err := newSessionOptions(0)
	if err != nil {
		return false, err
	}
	defer options.Destroy()

	return appendCUDA(options) == nil, nil
}

// RuntimeVersion returns the version of the loaded ONNX Runtime library
func RuntimeVersion(libraryPath string) (string, error) {
	if err := initEnvironment(libraryPath); err != nil {
		return "", err
	}
	return ort.GetVersion(), nil
}

func initEnvironment(libraryPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrapf(err, "failed to initialize onnxruntime from %q", libraryPath)
	}
	return nil
}

func newSessionOptions(threads int) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}
	if threads > 0 {
		if err := options.SetIntraOpNumThreads(threads); err != nil {
			_ = options.Destroy()
			return nil, errors.Wrap(err, "failed to set thread count")
		}
	}
	return options, nil
}

func appendCUDA(options *ort.SessionOptions) error {
	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cudaOptions.Destroy()
	return options.AppendExecutionProviderCUDA(cudaOptions)
}

type onnxModel struct {
	name       string
	inputName  string
	outputName string
	session    *ort.DynamicAdvancedSession
}

func (m *onnxModel) Name() string { return m.name }

// Infer runs the session once. Runtime tensors are destroyed before returning;
// the result is a Go-owned copy.
func (m *onnxModel) Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	data, err := Float32s(input)
	if err != nil {
		return nil, err
	}

	dims := input.Shape()
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		shape[i] = int64(d)
	}

	in, err := ort.NewTensor(shape, data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to create input tensor %q", m.name, m.inputName)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, errors.Wrapf(err, "%s: inference failed", m.name)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.Errorf("%s: output %q is not a float32 tensor", m.name, m.outputName)
	}

	values := append([]float32(nil), out.GetData()...)
	outShape := out.GetShape()
	outDims := make([]int, len(outShape))
	for i, d := range outShape {
		outDims[i] = int(d)
	}

	return NewTensor(values, outDims...), nil
}

func (m *onnxModel) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return errors.Wrapf(err, "%s: failed to destroy session", m.name)
}
