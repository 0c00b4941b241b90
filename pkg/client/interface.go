// Package client defines the vision-LLM backends that can stand in for the
// ONNX classifier, plus helpers for reading their loosely formatted replies.
package client

import (
	"context"
)

// VisionClient is a chat model that accepts one image with a text prompt
type VisionClient interface {
	// SimpleQuery returns the raw reply text.
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	// Classify asks for a single label and returns it, or "unknown" when the
	// reply carries none.
	Classify(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
