package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"fishcam/internal/models"

	"gocv.io/x/gocv"
)

// hersheyPixelHeight is the cap height of FontHersheySimplex at scale 1.
const hersheyPixelHeight = 22.0

// MaxImageSide bounds the surface RenderPNG will allocate.
const MaxImageSide = 8192

var ErrInvalidDisplay = errors.New("invalid display size")

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// RenderPNG draws the overlay for result on a transparent surface of the given size.
// A nil or empty result yields a fully transparent image.
func RenderPNG(result *models.DetectionResult, display Display) ([]byte, error) {
	if display.Width < 1 || display.Height < 1 || display.Width > MaxImageSide || display.Height > MaxImageSide {
		return nil, ErrInvalidDisplay
	}

	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), int(display.Height), int(display.Width), gocv.MatTypeCV8UC4)
	defer mat.Close()

	if err := DrawScene(&mat, Compose(result, display)); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode overlay: %w", err)
	}
	defer buf.Close()

	// Bufor należy do OpenCV, kopiujemy przed Close
	return append([]byte(nil), buf.GetBytes()...), nil
}

// DrawScene renders the scene onto mat. An empty scene leaves mat untouched.
func DrawScene(mat *gocv.Mat, scene Scene) error {
	if scene.Empty() {
		return nil
	}

	thickness := int(math.Max(1, math.Round(scene.StrokeWidth)))
	rect := image.Rect(
		int(math.Round(scene.Box.Left)),
		int(math.Round(scene.Box.Top)),
		int(math.Round(scene.Box.Right)),
		int(math.Round(scene.Box.Bottom)),
	)
	if err := gocv.Rectangle(mat, rect, white, thickness); err != nil {
		return fmt.Errorf("failed to draw box: %w", err)
	}

	for _, text := range []Text{scene.Label, scene.Confidence} {
		if text.Value == "" {
			continue
		}
		pt := image.Pt(int(math.Round(text.X)), int(math.Round(text.Y)))
		if err := gocv.PutText(mat, text.Value, pt, gocv.FontHersheySimplex, text.Size/hersheyPixelHeight, white, thickness/2+1); err != nil {
			return fmt.Errorf("failed to draw text %q: %w", text.Value, err)
		}
	}
	return nil
}
