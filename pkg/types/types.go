package types

import (
	"encoding/json"
	"math"
)

// BBox is a pixel bounding box in [left, top, right, bottom] order
type BBox [4]float64

// Left returns the left edge
func (b BBox) Left() float64 { return b[0] }

// Top returns the top edge
func (b BBox) Top() float64 { return b[1] }

// Right returns the right edge
func (b BBox) Right() float64 { return b[2] }

// Bottom returns the bottom edge
func (b BBox) Bottom() float64 { return b[3] }

// Width returns the box width
func (b BBox) Width() float64 { return b[2] - b[0] }

// Height returns the box height
func (b BBox) Height() float64 { return b[3] - b[1] }

// Rounded returns the box with every coordinate rounded to 2 decimal places
func (b BBox) Rounded() BBox {
	return BBox{Round(b[0], 2), Round(b[1], 2), Round(b[2], 2), Round(b[3], 2)}
}

// Detection is a single detected object
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// Visualizations carries base64 PNG renderings; both are nil when no pet was found
type Visualizations struct {
	Detection    *string `json:"detection"`
	Segmentation *string `json:"segmentation"`
}

// Metadata describes how an analysis was produced
type Metadata struct {
	Device              string `json:"device"`
	FrameworkVersion    string `json:"framework_version"`
	ClassificationModel string `json:"classification_model"`
	DetectionModel      string `json:"detection_model"`
	SegmentationModel   string `json:"segmentation_model"`
	ImageWidth          int    `json:"image_width"`
	ImageHeight         int    `json:"image_height"`
	PetsDetected        bool   `json:"pets_detected"`
}

// AnalysisResult is the single JSON document printed by the CLI.
//
// It is either a success record (Classification, Detections, Visualizations,
// Metadata) or a failure record (Error, Traceback). MarshalJSON emits only the
// fields belonging to the active shape.
type AnalysisResult struct {
	Success        bool           `json:"success"`
	Classification string         `json:"classification"`
	Detections     []Detection    `json:"detections"`
	Visualizations Visualizations `json:"visualizations"`
	Metadata       Metadata       `json:"metadata"`
	Error          string         `json:"error"`
	Traceback      string         `json:"traceback"`
}

type successPayload struct {
	Success        bool           `json:"success"`
	Classification string         `json:"classification"`
	Detections     []Detection    `json:"detections"`
	Visualizations Visualizations `json:"visualizations"`
	Metadata       Metadata       `json:"metadata"`
}

type failurePayload struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Traceback string `json:"traceback,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(failurePayload{Error: r.Error, Traceback: r.Traceback})
	}
	detections := r.Detections
	if detections == nil {
		detections = []Detection{}
	}
	return json.Marshal(successPayload{
		Success:        true,
		Classification: r.Classification,
		Detections:     detections,
		Visualizations: r.Visualizations,
		Metadata:       r.Metadata,
	})
}

// Failure builds a failure record
func Failure(message, traceback string) AnalysisResult {
	return AnalysisResult{Success: false, Error: message, Traceback: traceback}
}

// Round rounds v to the given number of decimal places
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
