// Package inference runs pretrained networks exported to ONNX.
//
// Every stage of the analyzer talks to a Model, which takes one float32
// tensor and returns one float32 tensor. The ONNX Runtime implementation lives
// in onnx.go; tests substitute their own Model.
package inference

import (
	"context"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Model is a single-input, single-output network
type Model interface {
	// Name is the identifier reported in result metadata.
	Name() string
	Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error)
	Close() error
}

// NewTensor wraps data in a dense float32 tensor of the given shape
func NewTensor(data []float32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// Float32s returns the backing slice of a float32 tensor
func Float32s(t *tensor.Dense) ([]float32, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("expected float32 tensor, got %v", t.Dtype())
	}
	return data, nil
}

// ArgMax returns the index of the largest value, -1 for an empty slice
func ArgMax(values []float32) int {
	best := -1
	for i, v := range values {
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}
