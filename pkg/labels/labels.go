// Package labels provides the class vocabularies of the three models.
package labels

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// VOC holds the 21 Pascal VOC classes predicted by the segmenter, indexed by mask value
var VOC = []string{
	"background", "aeroplane", "bicycle", "bird", "boat", "bottle", "bus",
	"car", "cat", "chair", "cow", "diningtable", "dog", "horse", "motorbike",
	"person", "pottedplant", "sheep", "sofa", "train", "tvmonitor",
}

// VOC class indices of the pet classes
const (
	VOCCat = 8
	VOCDog = 12
)

// COCO holds the 80 classes predicted by the detector
var COCO = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck",
	"boat", "traffic light", "fire hydrant", "stop sign", "parking meter", "bench",
	"bird", "cat", "dog", "horse", "sheep", "cow", "elephant", "bear", "zebra",
	"giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup",
	"fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
	"potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear",
	"hair drier", "toothbrush",
}

// Unknown is the label used when a class index has no name
const Unknown = "unknown"

// Lookup returns names[idx], or Unknown when idx is out of range
func Lookup(names []string, idx int) string {
	if idx < 0 || idx >= len(names) {
		return Unknown
	}
	return names[idx]
}

// IsPet reports whether a detector class is a cat or a dog, ignoring case
func IsPet(class string) bool {
	c := strings.ToLower(strings.TrimSpace(class))
	return c == "cat" || c == "dog"
}

// Fetch downloads a newline separated label file
func Fetch(ctx context.Context, url string, timeout time.Duration) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create label request")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to download labels")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("failed to download labels: HTTP %d", resp.StatusCode)
	}

	return Parse(resp.Body)
}

// FetchOrEmpty is Fetch with graceful degradation: any failure is logged and
// yields an empty vocabulary, so classification falls back to Unknown.
func FetchOrEmpty(ctx context.Context, url string, timeout time.Duration, logger *logrus.Logger) []string {
	names, err := Fetch(ctx, url, timeout)
	if err != nil {
		logger.WithError(err).WithField("url", url).Warn("label vocabulary unavailable, using empty list")
		return []string{}
	}
	return names
}

// Parse reads one label per line. Trailing carriage returns are stripped and a
// final empty line is dropped.
func Parse(r io.Reader) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		names = append(names, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read labels")
	}
	return names, nil
}
