// Package classification assigns a single label to a whole image.
package classification

import (
	"context"
	"image"
	"strings"

	"github.com/pkg/errors"

	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/client"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/inference"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/labels"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/processing"
)

// DefaultInputSize is the square input resolution of ImageNet classifiers
const DefaultInputSize = 224

// Classifier produces one label per image
type Classifier interface {
	Name() string
	Classify(ctx context.Context, img image.Image) (string, error)
	Close() error
}

// ONNXClassifier runs an ImageNet style network and maps the arg-max logit to a label
type ONNXClassifier struct {
	model     inference.Model
	labels    []string
	inputSize int
}

var _ Classifier = (*ONNXClassifier)(nil)

// NewONNX creates a classifier. Indices outside names classify as "unknown",
// so an empty names list always yields "unknown".
func NewONNX(model inference.Model, names []string, inputSize int) *ONNXClassifier {
	if inputSize <= 0 {
		inputSize = DefaultInputSize
	}
	return &ONNXClassifier{model: model, labels: names, inputSize: inputSize}
}

// Name returns the model identifier
func (c *ONNXClassifier) Name() string { return c.model.Name() }

// Close releases the underlying model
func (c *ONNXClassifier) Close() error { return c.model.Close() }

// Classify resizes img to the input size, scales pixels to [0,1] without
// mean/std normalization and returns the label of the highest logit.
func (c *ONNXClassifier) Classify(ctx context.Context, img image.Image) (string, error) {
	size := c.inputSize
	resized := processing.ResizeExact(img, size, size)
	input := inference.NewTensor(processing.ToCHW(resized, processing.ZeroMean, processing.UnitStd), 1, 3, size, size)

	out, err := c.model.Infer(ctx, input)
	if err != nil {
		return "", errors.Wrap(err, "classifier inference failed")
	}
	logits, err := inference.Float32s(out)
	if err != nil {
		return "", err
	}
	if len(logits) == 0 {
		return "", errors.New("classifier returned no logits")
	}

	return labels.Lookup(c.labels, inference.ArgMax(logits)), nil
}

// Prompt asks a vision-LLM for a single ImageNet style label
const Prompt = `Classify the main subject of this image with one short ImageNet style label ` +
	`(for example "tabby", "golden retriever", "Persian cat", "sports car"). ` +
	`Answer with JSON only: {"label": "<label>"}`

// PlainPrompt is the free-text retry used when a reply to Prompt carries no label
const PlainPrompt = `What is the main subject of this image? Reply with a short ImageNet style label and nothing else.`

// LLM image encoding settings
const (
	llmMaxDim  = 768
	llmQuality = 85
)

// LLMClassifier delegates classification to a vision-LLM backend
type LLMClassifier struct {
	client    client.VisionClient
	model     string
	processor *processing.Processor
}

var _ Classifier = (*LLMClassifier)(nil)

// NewLLM creates a classifier that queries model through vc
func NewLLM(vc client.VisionClient, model string, processor *processing.Processor) *LLMClassifier {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	return &LLMClassifier{client: vc, model: model, processor: processor}
}

// Name returns the LLM model name
func (c *LLMClassifier) Name() string { return c.model }

// Close is a no-op; backends hold no session
func (c *LLMClassifier) Close() error { return nil }

// Classify sends a downsized JPEG of img and returns the label from the reply
func (c *LLMClassifier) Classify(ctx context.Context, img image.Image) (string, error) {
	imgB64, err := c.processor.PrepareImageForModel(img, "jpg", llmMaxDim, llmQuality)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode image for the vision model")
	}

	label, err := c.client.Classify(ctx, c.model, Prompt, imgB64)
	if err != nil {
		return "", errors.Wrapf(err, "%s classification failed", c.model)
	}
	if label != "" && label != labels.Unknown {
		return label, nil
	}

	// retry once without the JSON instruction
	raw, err := c.client.SimpleQuery(ctx, c.model, PlainPrompt, imgB64)
	if err != nil {
		return labels.Unknown, nil
	}
	return plainLabel(raw), nil
}

// plainLabel takes the first non-empty line of a free-text reply, without
// surrounding quotes or a final period.
func plainLabel(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "\"'`.")
		if line != "" {
			return line
		}
	}
	return labels.Unknown
}
