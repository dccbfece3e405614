package geometry

import "fishcam/internal/models"

// ToDisplaySpace maps a model-space box onto the drawing surface.
//
// The analyzed frame comes from a landscape sensor while the display is portrait, so
// the axes are swapped between the two spaces:
//
//	scaleX = displayWidth / modelHeight
//	scaleY = displayHeight / modelWidth
//
// Any zero or negative dimension yields an empty box.
func ToDisplaySpace(box models.Box, modelWidth, modelHeight int, displayWidth, displayHeight float64) models.DisplayBox {
	if modelWidth <= 0 || modelHeight <= 0 || displayWidth <= 0 || displayHeight <= 0 {
		return models.DisplayBox{}
	}

	scaleX := displayWidth / float64(modelHeight)
	scaleY := displayHeight / float64(modelWidth)

	return scale(box, scaleX, scaleY)
}

// ForRotation maps a box taking the frame rotation into account. Frames rotated by
// 90 or 270 degrees relative to the display use the swapped-axis mapping of
// ToDisplaySpace; upright (0/180) frames scale each axis onto itself.
func ForRotation(box models.Box, modelWidth, modelHeight, rotation int, displayWidth, displayHeight float64) models.DisplayBox {
	if SwapsAxes(rotation) {
		return ToDisplaySpace(box, modelWidth, modelHeight, displayWidth, displayHeight)
	}
	if modelWidth <= 0 || modelHeight <= 0 || displayWidth <= 0 || displayHeight <= 0 {
		return models.DisplayBox{}
	}
	return scale(box, displayWidth/float64(modelWidth), displayHeight/float64(modelHeight))
}

// SwapsAxes reports whether a rotation exchanges width and height.
func SwapsAxes(rotation int) bool {
	r := ((rotation % 360) + 360) % 360
	return r == 90 || r == 270
}

func scale(box models.Box, scaleX, scaleY float64) models.DisplayBox {
	return models.DisplayBox{
		Left:   box.Left * scaleX,
		Top:    box.Top * scaleY,
		Right:  box.Right * scaleX,
		Bottom: box.Bottom * scaleY,
	}
}
