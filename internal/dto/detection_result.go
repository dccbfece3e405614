package dto

import (
	"time"

	"fishcam/internal/models"
)

// DetectionResult is the reporting detection of the latest published result.
type DetectionResult struct {
	Label       string     `json:"label"`
	Confidence  float64    `json:"confidence"`
	Box         models.Box `json:"box"`
	ModelWidth  int        `json:"modelWidth"`
	ModelHeight int        `json:"modelHeight"`
	Rotation    int        `json:"rotation"`
	Seq         uint64     `json:"seq"`
	Timestamp   time.Time  `json:"timestamp"`
	Empty       bool       `json:"empty"`
	Count       int        `json:"count"`
}

// NewDetectionResult flattens a published result into its reporting payload.
func NewDetectionResult(result *models.DetectionResult) DetectionResult {
	out := DetectionResult{
		ModelWidth:  result.ModelWidth,
		ModelHeight: result.ModelHeight,
		Rotation:    result.Rotation,
		Seq:         result.Seq,
		Timestamp:   result.Timestamp,
		Empty:       result.Empty(),
		Count:       len(result.Detections),
	}
	if primary, ok := result.Primary(); ok {
		out.Label = primary.Label
		out.Confidence = primary.Confidence
		out.Box = primary.Box
	}
	return out
}
