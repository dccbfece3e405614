// Package overlay turns the latest detection result into something a viewer can draw.
package overlay

import (
	"fmt"

	"fishcam/internal/models"
	"fishcam/internal/services/geometry"
)

// Text placement relative to the top-left corner of the transformed box.
const (
	TextOffsetX      = 256.0
	LabelOffsetY     = -80.0
	ConfidenceOffset = -20.0

	LabelSize      = 48.0
	ConfidenceSize = 50.0
	StrokeWidth    = 8.0
	Color          = "#FFFFFF"
)

// Display is the size of the drawing surface in pixels.
type Display struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (d Display) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

// Text is a string anchored at a display-space point.
type Text struct {
	Value string  `json:"value"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Size  float64 `json:"size"`
}

// Scene is everything drawn for one result on one display.
type Scene struct {
	Box         models.DisplayBox `json:"box"`
	Label       Text              `json:"label"`
	Confidence  Text              `json:"confidence"`
	StrokeWidth float64           `json:"stroke_width"`
	Color       string            `json:"color"`
}

// Empty reports whether the scene draws nothing.
func (s Scene) Empty() bool {
	return s.Box.IsEmpty()
}

// Compose builds the scene for the reporting detection of result. An empty result or a
// degenerate geometry gives an empty scene.
func Compose(result *models.DetectionResult, display Display) Scene {
	primary, ok := result.Primary()
	if !ok {
		return Scene{}
	}

	box := geometry.ForRotation(primary.Box, result.ModelWidth, result.ModelHeight, result.Rotation, display.Width, display.Height)
	if box.IsEmpty() {
		return Scene{}
	}

	return Scene{
		Box: box,
		Label: Text{
			Value: primary.Label,
			X:     box.Left + TextOffsetX,
			Y:     box.Top + LabelOffsetY,
			Size:  LabelSize,
		},
		Confidence: Text{
			Value: FormatConfidence(primary.Confidence),
			X:     box.Left + TextOffsetX,
			Y:     box.Top + ConfidenceOffset,
			Size:  ConfidenceSize,
		},
		StrokeWidth: StrokeWidth,
		Color:       Color,
	}
}

// FormatConfidence renders a confidence as a two-decimal ratio, e.g. "0.93".
func FormatConfidence(confidence float64) string {
	return fmt.Sprintf("%.2f", confidence)
}
