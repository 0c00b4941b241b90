package client

import (
	"encoding/json"
	"regexp"
	"strings"
)

// UnknownLabel is returned when a reply contains no usable label
const UnknownLabel = "unknown"

// LabelReply is the JSON object the classification prompt asks for
type LabelReply struct {
	Label string `json:"label"`
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseLabel extracts the label from a model reply. Replies that are not
// JSON, or JSON without a label, yield UnknownLabel.
func ParseLabel(raw string) string {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return UnknownLabel
	}

	var reply LabelReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return UnknownLabel
	}

	label := strings.TrimSpace(reply.Label)
	if label == "" {
		return UnknownLabel
	}
	return label
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
