package classification

import (
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gorgonia.org/tensor"

	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/inference"
)

type fakeModel struct {
	logits []float32
	err    error
	input  []float32
	shape  tensor.Shape
}

func (m *fakeModel) Name() string { return "fake-resnet" }

func (m *fakeModel) Infer(_ context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	m.shape = input.Shape().Clone()
	m.input, _ = inference.Float32s(input)
	if m.err != nil {
		return nil, m.err
	}
	return inference.NewTensor(m.logits, 1, len(m.logits)), nil
}

func (m *fakeModel) Close() error { return nil }

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestONNXClassify(t *testing.T) {
	model := &fakeModel{logits: []float32{0.1, 2.5, -1, 0.3}}
	c := NewONNX(model, []string{"tench", "goldfish", "great white shark", "tiger shark"}, 0)
	test.That(t, c.Name(), test.ShouldEqual, "fake-resnet")

	label, err := c.Classify(context.Background(), solid(300, 200, color.NRGBA{255, 0, 0, 255}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, label, test.ShouldEqual, "goldfish")

	test.That(t, model.shape, test.ShouldResemble, tensor.Shape{1, 3, 224, 224})
	// plain [0,1] scaling: red plane is 1, green plane is 0
	test.That(t, model.input[0], test.ShouldEqual, float32(1))
	test.That(t, model.input[224*224], test.ShouldEqual, float32(0))
}

func TestONNXClassifyUnknown(t *testing.T) {
	img := solid(10, 10, color.NRGBA{0, 0, 0, 255})

	// empty vocabulary
	label, err := NewONNX(&fakeModel{logits: []float32{1, 2}}, []string{}, 32).Classify(context.Background(), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, label, test.ShouldEqual, "unknown")

	// index past the end of the vocabulary
	label, err = NewONNX(&fakeModel{logits: []float32{0, 0, 9}}, []string{"a", "b"}, 32).Classify(context.Background(), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, label, test.ShouldEqual, "unknown")
}

func TestONNXClassifyErrors(t *testing.T) {
	img := solid(10, 10, color.NRGBA{0, 0, 0, 255})

	_, err := NewONNX(&fakeModel{err: errors.New("boom")}, nil, 32).Classify(context.Background(), img)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "boom")

	_, err = NewONNX(&fakeModel{logits: []float32{}}, nil, 32).Classify(context.Background(), img)
	test.That(t, err, test.ShouldNotBeNil)
}

type fakeVision struct {
	label  string
	err    error
	model  string
	prompt string
	imgB64 string

	raw     string
	rawErr  error
	queries []string
}

func (f *fakeVision) SimpleQuery(_ context.Context, _, prompt, _ string) (string, error) {
	f.queries = append(f.queries, prompt)
	return f.raw, f.rawErr
}

func (f *fakeVision) Classify(_ context.Context, model, prompt, imgB64 string) (string, error) {
	f.model, f.prompt, f.imgB64 = model, prompt, imgB64
	return f.label, f.err
}

func TestLLMClassify(t *testing.T) {
	vc := &fakeVision{label: "Persian cat"}
	c := NewLLM(vc, "llava:7b", nil)
	test.That(t, c.Name(), test.ShouldEqual, "llava:7b")
	test.That(t, c.Close(), test.ShouldBeNil)

	label, err := c.Classify(context.Background(), solid(1600, 900, color.NRGBA{10, 200, 30, 255}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, label, test.ShouldEqual, "Persian cat")
	test.That(t, vc.model, test.ShouldEqual, "llava:7b")
	test.That(t, vc.prompt, test.ShouldEqual, Prompt)

	raw, err := base64.StdEncoding.DecodeString(vc.imgB64)
	test.That(t, err, test.ShouldBeNil)
	// JPEG start of image marker
	test.That(t, raw[:2], test.ShouldResemble, []byte{0xff, 0xd8})
}

func TestLLMClassifyFallbacks(t *testing.T) {
	img := solid(20, 20, color.NRGBA{0, 0, 0, 255})

	label, err := NewLLM(&fakeVision{}, "m", nil).Classify(context.Background(), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, label, test.ShouldEqual, "unknown")

	_, err = NewLLM(&fakeVision{err: errors.New("connection refused")}, "m", nil).Classify(context.Background(), img)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "connection refused")

	label, err = NewLLM(&fakeVision{label: "unknown", rawErr: errors.New("timeout")}, "m", nil).Classify(context.Background(), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, label, test.ShouldEqual, "unknown")
}

func TestLLMClassifyPlainTextRetry(t *testing.T) {
	img := solid(20, 20, color.NRGBA{0, 0, 0, 255})

	vc := &fakeVision{label: "unknown", raw: "\n  \"Golden retriever.\"\nIt is lying on grass."}
	label, err := NewLLM(vc, "m", nil).Classify(context.Background(), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, label, test.ShouldEqual, "Golden retriever")
	test.That(t, vc.queries, test.ShouldResemble, []string{PlainPrompt})

	// a usable JSON label skips the retry
	vc = &fakeVision{label: "tabby", raw: "ignored"}
	label, err = NewLLM(vc, "m", nil).Classify(context.Background(), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, label, test.ShouldEqual, "tabby")
	test.That(t, vc.queries, test.ShouldBeEmpty)
}

func TestPlainLabel(t *testing.T) {
	test.That(t, plainLabel("Siamese cat"), test.ShouldEqual, "Siamese cat")
	test.That(t, plainLabel("`beagle`."), test.ShouldEqual, "beagle")
	test.That(t, plainLabel("  \n\t\n"), test.ShouldEqual, "unknown")
	test.That(t, plainLabel(""), test.ShouldEqual, "unknown")
}
