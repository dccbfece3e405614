package models

import "time"

// Box is an axis-aligned rectangle in model input pixel coordinates.
type Box struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Detection represents a detected specimen in a single frame.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// DetectionResult is the published unit of the analyzer. It is never mutated after
// publication; a newer result replaces it as a whole.
type DetectionResult struct {
	Detections  []Detection `json:"detections"`
	ModelWidth  int         `json:"model_width"`
	ModelHeight int         `json:"model_height"`
	Rotation    int         `json:"rotation"`
	Seq         uint64      `json:"seq"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Empty reports whether the result carries no detection.
func (r *DetectionResult) Empty() bool {
	return r == nil || len(r.Detections) == 0
}

// Primary returns the reporting detection: the first one, in detector order.
func (r *DetectionResult) Primary() (Detection, bool) {
	if r.Empty() {
		return Detection{}, false
	}
	return r.Detections[0], true
}

// Boxes returns the model-space boxes in detector order.
func (r *DetectionResult) Boxes() []Box {
	if r.Empty() {
		return nil
	}
	boxes := make([]Box, len(r.Detections))
	for i, d := range r.Detections {
		boxes[i] = d.Box
	}
	return boxes
}

// DisplayBox is a rectangle in drawing-surface pixel coordinates.
type DisplayBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// IsEmpty reports whether the box has no area.
func (b DisplayBox) IsEmpty() bool {
	return b.Right <= b.Left || b.Bottom <= b.Top
}
